package dashboard

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"golang.org/x/image/draw"

	"github.com/nerrad567/coolpanel/internal/telemetry"
)

// Screen geometry.
const (
	Width  = 320
	Height = 240

	headerHeight = 28
	labelY       = 40
	contentY     = 65
	leftMargin   = 30
	rightMargin  = 160
	barRight     = 300
	barHeight    = 12
	powerY       = 115
	graphHeight  = 50
	graphBottom  = Height
	graphTop     = graphBottom - graphHeight

	ringRadius = 50
	ringWidth  = 5

	tempWarn = 55
	tempHot  = 75
)

// Palette.
var (
	colorBackground = rgb(0x000000)
	colorHeader     = rgb(0x111111)
	colorText       = rgb(0xFFFFFF)
	colorTextDim    = rgb(0x777777)
	colorAccent     = rgb(0x00CCFF)
	colorTrack      = rgb(0x222222)
	colorPower      = rgb(0xFFAA00)
	colorGraph      = rgb(0x080808)
	colorGrid       = rgb(0x2A2A2A)
	colorGraphEdge  = rgb(0x333333)

	colorTempOK   = rgb(0x00FF00)
	colorTempWarn = rgb(0xFFD700)
	colorTempHot  = rgb(0xFF3300)
)

func rgb(v uint32) color.RGBA {
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xFF}
}

// TempColor returns the ring colour for a CPU temperature in °C.
func TempColor(celsius float64) color.RGBA {
	switch {
	case celsius > tempHot:
		return colorTempHot
	case celsius > tempWarn:
		return colorTempWarn
	default:
		return colorTempOK
	}
}

// Renderer composes snapshots into 320x240 rasters.
//
// Thread Safety:
//   - Not safe for concurrent use. The render loop owns one Renderer; the
//     returned raster is reused by the next Render call.
type Renderer struct {
	large, medium, small *typeface
	canvas               *image.RGBA
}

// NewRenderer loads the embedded fonts.
func NewRenderer() (*Renderer, error) {
	large, medium, small, err := loadFonts()
	if err != nil {
		return nil, err
	}
	return &Renderer{
		large:  large,
		medium: medium,
		small:  small,
		canvas: image.NewRGBA(image.Rect(0, 0, Width, Height)),
	}, nil
}

// Render draws snap and returns the canvas. The result is valid until the
// next call.
func (r *Renderer) Render(snap telemetry.Snapshot) (*image.RGBA, error) {
	dst := r.canvas
	fill(dst, dst.Bounds(), colorBackground)

	steps := []func(*image.RGBA, telemetry.Snapshot) error{
		r.drawHeader,
		r.drawTemperature,
		r.drawLoad,
		r.drawPower,
		r.drawGraph,
	}
	for _, step := range steps {
		if err := step(dst, snap); err != nil {
			return nil, err
		}
	}
	return dst, nil
}

func (r *Renderer) drawHeader(dst *image.RGBA, snap telemetry.Snapshot) error {
	fill(dst, image.Rect(0, 0, Width, headerHeight+1), colorHeader)

	title := fmt.Sprintf("%s's PC", strings.ToUpper(snap.Hostname))
	if err := r.small.draw(dst, title, 8, 5, colorText); err != nil {
		return err
	}

	uptime := snap.Uptime
	if uptime == "" {
		uptime = telemetry.FormatUptime(snap.UptimeSeconds)
	}
	return r.small.draw(dst, uptime, Width-r.small.width(uptime)-8, 5, colorText)
}

func (r *Renderer) drawTemperature(dst *image.RGBA, snap telemetry.Snapshot) error {
	temp := snap.CPUTempC
	if err := r.small.draw(dst, "CPU TEMP", leftMargin+17, labelY, colorTextDim); err != nil {
		return err
	}

	cx, cy := leftMargin+45, contentY+ringRadius
	ring(dst, cx, cy, 360, colorTrack)
	ring(dst, cx, cy, 360*clamp01(temp/100), TempColor(temp))

	offset := 0
	if temp >= 100 {
		offset = -10
	}
	return r.large.draw(dst, fmt.Sprintf("%d°", int(temp)), leftMargin+15+offset, contentY+18, colorText)
}

func (r *Renderer) drawLoad(dst *image.RGBA, snap telemetry.Snapshot) error {
	if err := r.small.draw(dst, "CPU LOAD", rightMargin, labelY, colorTextDim); err != nil {
		return err
	}

	fill(dst, image.Rect(rightMargin, contentY, barRight+1, contentY+barHeight+1), colorTrack)
	barLen := int(float64(barRight-rightMargin) * clamp01(snap.CPUPercent/100))
	if barLen > 0 {
		fill(dst, image.Rect(rightMargin, contentY, rightMargin+barLen+1, contentY+barHeight+1), colorAccent)
	}

	return r.medium.draw(dst, fmt.Sprintf("%.1f%%", snap.CPUPercent), rightMargin, contentY+15, colorText)
}

func (r *Renderer) drawPower(dst *image.RGBA, snap telemetry.Snapshot) error {
	if err := r.small.draw(dst, "POWER", rightMargin, powerY, colorTextDim); err != nil {
		return err
	}
	return r.medium.draw(dst, fmt.Sprintf("%.1f W", snap.PowerWatts), rightMargin, powerY+20, colorPower)
}

func (r *Renderer) drawGraph(dst *image.RGBA, snap telemetry.Snapshot) error {
	fill(dst, image.Rect(0, graphTop, Width, graphBottom), colorGraph)

	for i := 1; i < 4; i++ {
		y := int(graphBottom - float64(graphHeight*i)/4)
		hline(dst, 0, Width, y, colorGrid)
	}
	for i := 1; i < 5; i++ {
		x := Width * i / 5
		vline(dst, x, graphTop, graphBottom, colorGrid)
	}
	hline(dst, 0, Width, graphTop, colorGraphEdge)

	values := snap.History
	if len(values) < 2 {
		return nil
	}

	step := float64(Width) / float64(len(values)-1)
	pts := make([]image.Point, len(values))
	for i, v := range values {
		y := int(graphBottom - clamp01(v/100)*graphHeight)
		if y >= graphBottom {
			y = graphBottom - 1
		}
		if y <= graphTop {
			y = graphTop + 1
		}
		pts[i] = image.Pt(int(float64(i)*step), y)
	}
	for i := 1; i < len(pts); i++ {
		thickLine(dst, pts[i-1], pts[i], colorAccent)
	}
	return nil
}

// fill paints rect with c, clipped to dst.
func fill(dst *image.RGBA, rect image.Rectangle, c color.RGBA) {
	draw.Draw(dst, rect.Intersect(dst.Bounds()), image.NewUniform(c), image.Point{}, draw.Src)
}

func hline(dst *image.RGBA, x0, x1, y int, c color.RGBA) {
	for x := x0; x < x1; x++ {
		dst.SetRGBA(x, y, c)
	}
}

func vline(dst *image.RGBA, x, y0, y1 int, c color.RGBA) {
	for y := y0; y < y1; y++ {
		dst.SetRGBA(x, y, c)
	}
}

// ring draws a ringWidth-thick arc of radius ringRadius centred on (cx, cy),
// starting at twelve o'clock and sweeping clockwise by sweep degrees.
func ring(dst *image.RGBA, cx, cy int, sweep float64, c color.RGBA) {
	if sweep <= 0 {
		return
	}
	outer := float64(ringRadius)
	inner := outer - ringWidth
	for y := cy - ringRadius; y <= cy+ringRadius; y++ {
		for x := cx - ringRadius; x <= cx+ringRadius; x++ {
			dx, dy := float64(x-cx), float64(y-cy)
			d := math.Hypot(dx, dy)
			if d < inner || d > outer {
				continue
			}
			// Screen angle, clockwise from three o'clock, rotated so that
			// twelve o'clock is zero.
			a := math.Atan2(dy, dx)*180/math.Pi + 90
			if a < 0 {
				a += 360
			}
			if a < sweep {
				dst.SetRGBA(x, y, c)
			}
		}
	}
}

// thickLine draws a two-pixel-wide line from a to b (Bresenham).
func thickLine(dst *image.RGBA, a, b image.Point, c color.RGBA) {
	dx := abs(b.X - a.X)
	dy := -abs(b.Y - a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	err := dx + dy
	x, y := a.X, a.Y
	for {
		dst.SetRGBA(x, y, c)
		dst.SetRGBA(x, y-1, c)
		if x == b.X && y == b.Y {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x += sx
		}
		if e2 <= dx {
			err += dx
			y += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
