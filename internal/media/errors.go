package media

import "errors"

// Domain errors for media sources.
var (
	// ErrUnsupported is returned when no decoder accepts the file.
	ErrUnsupported = errors.New("media: unsupported format")

	// ErrNoFrames is returned when a file decodes to zero frames.
	ErrNoFrames = errors.New("media: no frames")

	// ErrClosed is returned when a source is used after Close.
	ErrClosed = errors.New("media: source closed")
)
