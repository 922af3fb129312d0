package mode

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"sync"

	"github.com/nerrad567/coolpanel/internal/media"
	"github.com/nerrad567/coolpanel/internal/settings"
)

// Mode is the display mode.
type Mode string

// Display modes.
const (
	Monitor Mode = "monitor"
	Static  Mode = "static"
	Video   Mode = "video"
)

// defaultVideoFPS is used when a video source reports a negative rate.
const defaultVideoFPS = 30

// MediaOpener opens media files. *media.Opener satisfies it.
type MediaOpener interface {
	Open(ctx context.Context, path string) (media.Source, error)
}

// SettingsWriter persists transitions. *settings.Store satisfies it.
type SettingsWriter interface {
	Merge(ctx context.Context, u settings.Update) error
}

// View is a consistent snapshot of the controller for one render tick.
type View struct {
	Mode       Mode    `json:"mode"`
	MediaPath  string  `json:"media_path,omitempty"`
	Brightness float64 `json:"brightness"`
	FPS        float64 `json:"fps,omitempty"`

	// Frame is the cached raster in Static mode.
	Frame *image.RGBA `json:"-"`
}

// Logger defines the logging interface for the controller.
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

// Controller owns the mode state.
//
// Thread Safety:
//   - mu guards the mode fields and is only held for short copies. The control
//     listener is the only writer after Restore.
//   - readMu is held while the render loop reads from or rewinds the video
//     source. A replaced source is closed only under readMu, so it is never
//     closed mid-read, and a slow decoder never holds mu.
type Controller struct {
	opener     MediaOpener
	store      SettingsWriter
	logger     Logger
	defaultFPS float64
	onChange   func(View)

	readMu   sync.Mutex
	retiring sync.WaitGroup

	mu         sync.Mutex
	mode       Mode
	mediaPath  string
	brightness float64
	fps        float64
	still      *image.RGBA
	source     media.Source
}

// New creates a controller in Monitor mode at full brightness.
//
// Parameters:
//   - opener: Opens media for SetMedia
//   - store: Durable sink for every transition
//   - defaultFPS: Rate used for video sources reporting a negative rate
func New(opener MediaOpener, store SettingsWriter, defaultFPS float64) *Controller {
	if defaultFPS <= 0 {
		defaultFPS = defaultVideoFPS
	}
	return &Controller{
		opener:     opener,
		store:      store,
		logger:     noopLogger{},
		defaultFPS: defaultFPS,
		mode:       Monitor,
		brightness: 1,
	}
}

// SetLogger sets the logger for the controller.
func (c *Controller) SetLogger(logger Logger) {
	c.logger = logger
}

// OnChange registers fn to be called after every successful transition.
// fn runs outside the controller's lock.
func (c *Controller) OnChange(fn func(View)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Restore rebuilds state from persisted settings at startup without writing
// anything back. A persisted media path that no longer opens falls back to
// Monitor.
func (c *Controller) Restore(ctx context.Context, s settings.Settings) {
	c.mu.Lock()
	c.brightness = clampFraction(s.Brightness)
	c.mu.Unlock()

	switch Mode(s.Mode) {
	case Static, Video:
		if s.MediaPath == "" {
			break
		}
		opened, err := c.open(ctx, s.MediaPath)
		if err != nil {
			c.logger.Warn("persisted media unavailable, using monitor mode",
				"path", s.MediaPath,
				"error", err,
			)
			break
		}
		c.swap(opened)
		c.logger.Info("restored media mode", "mode", opened.mode, "path", s.MediaPath)
	}
}

// SetMonitor releases any media resource and switches to the dashboard.
func (c *Controller) SetMonitor(ctx context.Context) (string, error) {
	c.swap(opened{mode: Monitor})
	c.persist(ctx, settings.Update{Mode: settings.Ptr(string(Monitor))})
	c.notify()
	return "monitor mode", nil
}

// SetMedia opens path and switches to Static or Video.
//
// Returns:
//   - string: Human-readable result for the control client
//   - error: ErrNotFound, ErrOpen, or ErrEmptyPath; state is unchanged
func (c *Controller) SetMedia(ctx context.Context, path string) (string, error) {
	o, err := c.open(ctx, path)
	if err != nil {
		return "", err
	}

	c.swap(o)
	c.persist(ctx, settings.Update{
		Mode:      settings.Ptr(string(o.mode)),
		MediaPath: settings.Ptr(path),
	})
	c.notify()

	if o.mode == Static {
		return fmt.Sprintf("showing image %s", path), nil
	}
	return fmt.Sprintf("playing video %s at %.2f fps", path, o.fps), nil
}

// SetBrightness sets the brightness from a percentage, clamped to 0..100.
func (c *Controller) SetBrightness(ctx context.Context, percent float64) (string, error) {
	fraction := clampFraction(percent / 100)

	c.mu.Lock()
	c.brightness = fraction
	c.mu.Unlock()

	c.persist(ctx, settings.Update{Brightness: settings.Ptr(fraction)})
	c.notify()
	return fmt.Sprintf("brightness %d%%", int(math.Round(fraction*100))), nil
}

// View returns a consistent snapshot of the current state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() View {
	return View{
		Mode:       c.mode,
		MediaPath:  c.mediaPath,
		Brightness: c.brightness,
		FPS:        c.fps,
		Frame:      c.still,
	}
}

// NextVideoFrame advances the video cursor and returns the frame. At the end
// of the stream it loops to the first frame. ok is false when not in Video
// mode or when no frame could be read; the caller skips the tick.
func (c *Controller) NextVideoFrame() (frame *image.RGBA, ok bool) {
	c.mu.Lock()
	src, path := c.source, c.mediaPath
	active := c.mode == Video && src != nil
	c.mu.Unlock()

	if !active {
		return nil, false
	}

	c.readMu.Lock()
	defer c.readMu.Unlock()

	// Replaced while waiting for readMu; it may already be closed.
	if !c.isCurrent(src) {
		return nil, false
	}

	frame, err := src.Next()
	if errors.Is(err, io.EOF) {
		if rerr := src.Rewind(); rerr != nil {
			c.logger.Warn("video rewind failed", "path", path, "error", rerr)
			return nil, false
		}
		frame, err = src.Next()
	}
	if err != nil {
		c.logger.Debug("video frame unreadable, skipping tick", "path", path, "error", err)
		return nil, false
	}
	return frame, true
}

func (c *Controller) isCurrent(src media.Source) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.source == src
}

// Close releases the media resource, waiting for an in-flight frame read and
// for any replaced source still being released. The mode is left as is so
// the status reported during shutdown stays accurate.
func (c *Controller) Close() error {
	c.mu.Lock()
	src := c.source
	c.source = nil
	c.mu.Unlock()

	var err error
	if src != nil {
		c.readMu.Lock()
		err = src.Close()
		c.readMu.Unlock()
	}
	c.retiring.Wait()
	return err
}

// opened is a validated media resource waiting to be swapped in.
type opened struct {
	mode   Mode
	path   string
	fps    float64
	still  *image.RGBA
	source media.Source
}

// open validates path and classifies the source. Nothing is held on error.
func (c *Controller) open(ctx context.Context, path string) (opened, error) {
	if path == "" {
		return opened{}, ErrEmptyPath
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return opened{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return opened{}, fmt.Errorf("%w: %s: %w", ErrOpen, path, err)
	}
	if info.IsDir() {
		return opened{}, fmt.Errorf("%w: %s is a directory", ErrOpen, path)
	}

	src, err := c.opener.Open(ctx, path)
	if err != nil {
		return opened{}, fmt.Errorf("%w: %w", ErrOpen, err)
	}

	first, err := src.Next()
	if err != nil {
		src.Close() //nolint:errcheck // Discarding a source that never became active
		return opened{}, fmt.Errorf("%w: no readable first frame: %w", ErrOpen, err)
	}

	fps := src.FPS()
	if src.FrameCount() == 1 || math.IsNaN(fps) || math.IsInf(fps, 0) || fps == 0 {
		// Copy before closing; sources may reuse their frame buffer.
		still := image.NewRGBA(first.Bounds())
		copy(still.Pix, first.Pix)
		src.Close() //nolint:errcheck // Still image is fully cached
		return opened{mode: Static, path: path, still: still}, nil
	}

	if err := src.Rewind(); err != nil {
		src.Close() //nolint:errcheck // Discarding a source that never became active
		return opened{}, fmt.Errorf("%w: rewind: %w", ErrOpen, err)
	}
	if fps < 0 {
		fps = c.defaultFPS
	}
	return opened{mode: Video, path: path, fps: fps, source: src}, nil
}

// swap installs o and releases the resource it replaces.
func (c *Controller) swap(o opened) {
	c.mu.Lock()
	prev := c.source
	c.mode = o.mode
	c.mediaPath = o.path
	c.fps = o.fps
	c.still = o.still
	c.source = o.source
	c.mu.Unlock()

	if prev != nil {
		c.retire(prev)
	}
}

// retire closes src once no frame read is using it. When a read is in
// flight the close is finished in the background so the caller returns
// without waiting on the decoder.
func (c *Controller) retire(src media.Source) {
	if c.readMu.TryLock() {
		c.closeRetired(src)
		c.readMu.Unlock()
		return
	}

	c.retiring.Add(1)
	go func() {
		defer c.retiring.Done()
		c.readMu.Lock()
		defer c.readMu.Unlock()
		c.closeRetired(src)
	}()
}

func (c *Controller) closeRetired(src media.Source) {
	if err := src.Close(); err != nil {
		c.logger.Warn("closing previous media", "error", err)
	}
}

// persist writes u; failures are logged and the in-memory state stands.
func (c *Controller) persist(ctx context.Context, u settings.Update) {
	if c.store == nil {
		return
	}
	if err := c.store.Merge(ctx, u); err != nil {
		c.logger.Error("persisting mode change", "error", err)
	}
}

func (c *Controller) notify() {
	c.mu.Lock()
	fn := c.onChange
	v := c.viewLocked()
	c.mu.Unlock()

	if fn != nil {
		fn(v)
	}
}

func clampFraction(f float64) float64 {
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
