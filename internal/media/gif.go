package media

import (
	"image"
	"image/draw"
	"image/gif"
	"io"

	"github.com/nerrad567/coolpanel/internal/panel"
)

// defaultGIFDelay is used for frames declaring a delay under 2/100s, which
// browsers also treat as 10 fps.
const defaultGIFDelay = 10

// gifSource plays an animated GIF decoded fully into panel-sized frames.
type gifSource struct {
	frames []*image.RGBA
	fps    float64
	pos    int
	closed bool
}

// newGIFSource composes every frame onto a full canvas (honouring disposal)
// and scales it once, so playback is a slice walk.
func newGIFSource(g *gif.GIF, w, h int) (*gifSource, error) {
	if len(g.Image) == 0 {
		return nil, ErrNoFrames
	}

	bounds := image.Rect(0, 0, g.Config.Width, g.Config.Height)
	if bounds.Empty() {
		bounds = g.Image[0].Bounds()
	}
	canvas := image.NewRGBA(bounds)

	frames := make([]*image.RGBA, 0, len(g.Image))
	totalDelay := 0
	for i, frame := range g.Image {
		var previous *image.RGBA
		disposal := byte(0)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}
		if disposal == gif.DisposalPrevious {
			previous = image.NewRGBA(bounds)
			draw.Draw(previous, bounds, canvas, bounds.Min, draw.Src)
		}

		draw.Draw(canvas, frame.Bounds(), frame, frame.Bounds().Min, draw.Over)
		frames = append(frames, panel.Resample(canvas, w, h))

		switch disposal {
		case gif.DisposalBackground:
			draw.Draw(canvas, frame.Bounds(), image.Transparent, image.Point{}, draw.Src)
		case gif.DisposalPrevious:
			canvas = previous
		}

		delay := defaultGIFDelay
		if i < len(g.Delay) && g.Delay[i] >= 2 {
			delay = g.Delay[i]
		}
		totalDelay += delay
	}

	avgDelay := float64(totalDelay) / float64(len(frames))
	return &gifSource{
		frames: frames,
		fps:    100 / avgDelay,
	}, nil
}

func (s *gifSource) FrameCount() int { return len(s.frames) }

func (s *gifSource) FPS() float64 { return s.fps }

func (s *gifSource) Next() (*image.RGBA, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.pos >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.pos]
	s.pos++
	return f, nil
}

func (s *gifSource) Rewind() error {
	if s.closed {
		return ErrClosed
	}
	s.pos = 0
	return nil
}

func (s *gifSource) Close() error {
	s.closed = true
	s.frames = nil
	return nil
}
