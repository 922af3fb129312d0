package dashboard

import (
	"fmt"
	"image"
	"image/color"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/math/fixed"
)

// Font sizes in points at 72 DPI, so one point is one pixel.
const (
	sizeLarge  = 45
	sizeMedium = 22
	sizeSmall  = 13
)

// typeface draws text at one size.
type typeface struct {
	font *truetype.Font
	size float64
	face font.Face
}

func newTypeface(f *truetype.Font, size float64) *typeface {
	return &typeface{
		font: f,
		size: size,
		face: truetype.NewFace(f, &truetype.Options{Size: size, DPI: 72, Hinting: font.HintingFull}),
	}
}

// width returns the advance width of s in pixels.
func (t *typeface) width(s string) int {
	return font.MeasureString(t.face, s).Ceil()
}

// draw renders s with its top-left corner at (x, y).
func (t *typeface) draw(dst *image.RGBA, s string, x, y int, c color.Color) error {
	ctx := freetype.NewContext()
	ctx.SetDPI(72)
	ctx.SetFont(t.font)
	ctx.SetFontSize(t.size)
	ctx.SetClip(dst.Bounds())
	ctx.SetDst(dst)
	ctx.SetSrc(image.NewUniform(c))
	ctx.SetHinting(font.HintingFull)

	ascent := t.face.Metrics().Ascent
	pt := fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y) + ascent}
	if _, err := ctx.DrawString(s, pt); err != nil {
		return fmt.Errorf("drawing %q: %w", s, err)
	}
	return nil
}

// loadFonts parses the embedded Go Bold face at the three layout sizes.
func loadFonts() (large, medium, small *typeface, err error) {
	f, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("parsing font: %w", err)
	}
	return newTypeface(f, sizeLarge), newTypeface(f, sizeMedium), newTypeface(f, sizeSmall), nil
}
