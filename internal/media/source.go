package media

import (
	"bufio"
	"context"
	"fmt"
	"image"
	"image/gif"
	"os"
	"time"

	// Still-image decoders registered with image.Decode.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Source is an open media resource.
type Source interface {
	// FrameCount reports the number of frames, or -1 when unknown.
	FrameCount() int

	// FPS reports the native frame rate. Zero means none (a still image).
	FPS() float64

	// Next returns the next frame. At the end of the stream it returns
	// io.EOF; Rewind starts over from the first frame.
	Next() (*image.RGBA, error)

	// Rewind repositions the source at its first frame.
	Rewind() error

	// Close releases the resource.
	Close() error
}

// Logger defines the logging interface for media sources.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config configures an Opener.
type Config struct {
	// Width and Height are the raster size every frame is scaled to.
	Width  int
	Height int

	// FFmpegBinary and FFprobeBinary decode formats the standard image
	// decoders do not handle. Empty disables that path.
	FFmpegBinary  string
	FFprobeBinary string

	// ProbeTimeout bounds the ffprobe run.
	ProbeTimeout time.Duration
}

// Opener opens media files.
type Opener struct {
	cfg    Config
	logger Logger
}

// NewOpener returns an opener producing frames of cfg.Width x cfg.Height.
func NewOpener(cfg Config) *Opener {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	return &Opener{cfg: cfg, logger: noopLogger{}}
}

// SetLogger sets the logger for the opener and the sources it creates.
func (o *Opener) SetLogger(logger Logger) {
	o.logger = logger
}

// Open sniffs path and returns the matching source.
//
// Returns:
//   - Source: Ready source positioned at its first frame
//   - error: os.ErrNotExist if the file is absent, ErrUnsupported when no
//     decoder accepts it, or the decoder's error
func (o *Opener) Open(ctx context.Context, path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	_, format, cfgErr := image.DecodeConfig(bufio.NewReader(f))
	if cfgErr == nil {
		if _, err := f.Seek(0, 0); err != nil {
			return nil, fmt.Errorf("rewinding %s: %w", path, err)
		}
		if format == "gif" {
			all, err := gif.DecodeAll(bufio.NewReader(f))
			if err != nil {
				return nil, fmt.Errorf("decoding gif %s: %w", path, err)
			}
			if len(all.Image) > 1 {
				return newGIFSource(all, o.cfg.Width, o.cfg.Height)
			}
			if len(all.Image) == 0 {
				return nil, ErrNoFrames
			}
			return newStillSource(all.Image[0], o.cfg.Width, o.cfg.Height), nil
		}

		img, _, err := image.Decode(bufio.NewReader(f))
		if err != nil {
			return nil, fmt.Errorf("decoding %s %s: %w", format, path, err)
		}
		return newStillSource(img, o.cfg.Width, o.cfg.Height), nil
	}

	if o.cfg.FFmpegBinary == "" || o.cfg.FFprobeBinary == "" {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupported)
	}

	info, err := probe(ctx, o.cfg.FFprobeBinary, o.cfg.ProbeTimeout, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", path, ErrUnsupported, err)
	}
	return newFFmpegSource(ctx, o.cfg, info, path, o.logger)
}
