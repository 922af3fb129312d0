package panel

import (
	"encoding/binary"
	"image"

	"golang.org/x/image/draw"
)

// Native raster of the panel.
const (
	Width      = 320
	Height     = 240
	FrameBytes = Width * Height * 2
)

// RGB565 packs an 8-bit colour into the panel's 16-bit pixel format.
func RGB565(r, g, b uint8) uint16 {
	return uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
}

// Encode converts img to a fresh 320x240 RGB565LE payload.
func Encode(img image.Image) []byte {
	return EncodeInto(make([]byte, FrameBytes), img)
}

// EncodeInto writes the RGB565LE payload for img into dst, reusing dst when
// it is large enough. Images of any other size are resampled to 320x240
// first. The returned slice is exactly FrameBytes long.
func EncodeInto(dst []byte, img image.Image) []byte {
	if cap(dst) < FrameBytes {
		dst = make([]byte, FrameBytes)
	}
	dst = dst[:FrameBytes]

	rgba := toNativeRGBA(img)
	for y := 0; y < Height; y++ {
		row := rgba.Pix[y*rgba.Stride : y*rgba.Stride+Width*4]
		out := dst[y*Width*2:]
		for x := 0; x < Width; x++ {
			p := row[x*4 : x*4+3]
			binary.LittleEndian.PutUint16(out[x*2:], RGB565(p[0], p[1], p[2]))
		}
	}
	return dst
}

// toNativeRGBA returns img as an *image.RGBA of exactly the panel size with
// origin (0,0), resampling or copying only when needed.
func toNativeRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	if rgba, ok := img.(*image.RGBA); ok && b.Min == (image.Point{}) && b.Dx() == Width && b.Dy() == Height {
		return rgba
	}
	return Resample(img, Width, Height)
}

// Resample scales img to w x h with bilinear filtering. Alpha is composited
// over black so transparent regions come out dark.
func Resample(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
		return dst
	}
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	return dst
}

// Attenuate writes src scaled by fraction into dst and returns dst.
// fraction is clamped to [0,1]; alpha is preserved. dst is allocated when nil
// or a different size, so src is never modified.
func Attenuate(dst, src *image.RGBA, fraction float64) *image.RGBA {
	switch {
	case fraction < 0:
		fraction = 0
	case fraction > 1:
		fraction = 1
	}

	if dst == nil || dst.Bounds() != src.Bounds() {
		dst = image.NewRGBA(src.Bounds())
	}

	scale := uint32(fraction*256 + 0.5)
	for i := 0; i+3 < len(src.Pix) && i+3 < len(dst.Pix); i += 4 {
		dst.Pix[i] = uint8(uint32(src.Pix[i]) * scale >> 8)
		dst.Pix[i+1] = uint8(uint32(src.Pix[i+1]) * scale >> 8)
		dst.Pix[i+2] = uint8(uint32(src.Pix[i+2]) * scale >> 8)
		dst.Pix[i+3] = src.Pix[i+3]
	}
	return dst
}
