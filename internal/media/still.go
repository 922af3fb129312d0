package media

import (
	"image"
	"io"

	"github.com/nerrad567/coolpanel/internal/panel"
)

// stillSource yields one cached frame.
type stillSource struct {
	frame  *image.RGBA
	served bool
	closed bool
}

func newStillSource(img image.Image, w, h int) *stillSource {
	return &stillSource{frame: panel.Resample(img, w, h)}
}

func (s *stillSource) FrameCount() int { return 1 }

func (s *stillSource) FPS() float64 { return 0 }

func (s *stillSource) Next() (*image.RGBA, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.served {
		return nil, io.EOF
	}
	s.served = true
	return s.frame, nil
}

func (s *stillSource) Rewind() error {
	if s.closed {
		return ErrClosed
	}
	s.served = false
	return nil
}

func (s *stillSource) Close() error {
	s.closed = true
	s.frame = nil
	return nil
}
