package panel

import (
	"encoding/binary"
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func TestRGB565(t *testing.T) {
	tests := []struct {
		name    string
		r, g, b uint8
		want    uint16
	}{
		{"red", 255, 0, 0, 0xF800},
		{"green", 0, 255, 0, 0x07E0},
		{"blue", 0, 0, 255, 0x001F},
		{"black", 0, 0, 0, 0x0000},
		{"white", 255, 255, 255, 0xFFFF},
		{"low bits dropped", 7, 3, 7, 0x0000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, RGB565(tt.r, tt.g, tt.b))
		})
	}
}

func TestEncode_SolidColours(t *testing.T) {
	tests := []struct {
		name string
		c    color.RGBA
		want uint16
	}{
		{"red", color.RGBA{255, 0, 0, 255}, 0xF800},
		{"green", color.RGBA{0, 255, 0, 255}, 0x07E0},
		{"blue", color.RGBA{0, 0, 255, 255}, 0x001F},
		{"black", color.RGBA{0, 0, 0, 255}, 0x0000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := Encode(solid(Width, Height, tt.c))
			require.Len(t, buf, FrameBytes)

			for _, off := range []int{0, FrameBytes / 2, FrameBytes - 2} {
				assert.Equal(t, tt.want, binary.LittleEndian.Uint16(buf[off:]))
			}
		})
	}
}

func TestEncode_LittleEndian(t *testing.T) {
	buf := Encode(solid(Width, Height, color.RGBA{255, 0, 0, 255}))
	assert.Equal(t, byte(0x00), buf[0])
	assert.Equal(t, byte(0xF8), buf[1])
}

func TestEncode_Deterministic(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	for i := range img.Pix {
		img.Pix[i] = byte(i * 31)
	}
	assert.Equal(t, Encode(img), Encode(img))
}

func TestEncode_ResamplesOtherSizes(t *testing.T) {
	buf := Encode(solid(64, 48, color.RGBA{0, 0, 255, 255}))
	require.Len(t, buf, FrameBytes)
	assert.Equal(t, uint16(0x001F), binary.LittleEndian.Uint16(buf[FrameBytes/2:]))
}

func TestEncodeInto_ReusesBuffer(t *testing.T) {
	dst := make([]byte, FrameBytes)
	out := EncodeInto(dst, solid(Width, Height, color.RGBA{0, 255, 0, 255}))
	assert.Same(t, &dst[0], &out[0])

	small := EncodeInto(make([]byte, 4), solid(Width, Height, color.RGBA{}))
	assert.Len(t, small, FrameBytes)
}

func TestAttenuate(t *testing.T) {
	src := solid(4, 4, color.RGBA{200, 100, 50, 255})

	tests := []struct {
		name     string
		fraction float64
		want     color.RGBA
	}{
		{"full", 1.0, color.RGBA{200, 100, 50, 255}},
		{"half", 0.5, color.RGBA{100, 50, 25, 255}},
		{"off", 0, color.RGBA{0, 0, 0, 255}},
		{"clamped high", 1.5, color.RGBA{200, 100, 50, 255}},
		{"clamped low", -1, color.RGBA{0, 0, 0, 255}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Attenuate(nil, src, tt.fraction)
			assert.Equal(t, tt.want, out.RGBAAt(2, 2))
		})
	}

	assert.Equal(t, color.RGBA{200, 100, 50, 255}, src.RGBAAt(0, 0), "source untouched")
}
