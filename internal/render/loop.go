package render

import (
	"context"
	"image"
	"sync"
	"time"

	"github.com/nerrad567/coolpanel/internal/mode"
	"github.com/nerrad567/coolpanel/internal/panel"
	"github.com/nerrad567/coolpanel/internal/telemetry"
)

// Link is the device session. *panel.Link satisfies it.
type Link interface {
	EnsureConnected(ctx context.Context) bool
	Send(ctx context.Context, payload []byte) error
}

// Modes is the read side of the mode controller. *mode.Controller satisfies it.
type Modes interface {
	View() mode.View
	NextVideoFrame() (*image.RGBA, bool)
}

// Telemetry produces snapshots. *telemetry.Source satisfies it.
type Telemetry interface {
	Snapshot(ctx context.Context) telemetry.Snapshot
}

// Composer draws the dashboard. *dashboard.Renderer satisfies it.
type Composer interface {
	Render(snap telemetry.Snapshot) (*image.RGBA, error)
}

// Uptime keeps cumulative uptime flushed on ticks that take no snapshot.
// *telemetry.UptimeAccumulator satisfies it.
type Uptime interface {
	TotalSeconds(ctx context.Context) float64
}

// Sink receives telemetry snapshots.
type Sink interface {
	PublishSnapshot(ctx context.Context, snap telemetry.Snapshot) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, snap telemetry.Snapshot) error

// PublishSnapshot calls f.
func (f SinkFunc) PublishSnapshot(ctx context.Context, snap telemetry.Snapshot) error {
	return f(ctx, snap)
}

// Logger defines the logging interface for the render loop.
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

// Config holds loop pacing.
type Config struct {
	// MonitorInterval is the tick interval outside video mode.
	MonitorInterval time.Duration

	// PublishInterval rate-limits snapshots forwarded to sinks. Zero
	// forwards every snapshot.
	PublishInterval time.Duration

	// ReconnectInterval is the minimum gap between reconnect attempts while
	// the device is absent.
	ReconnectInterval time.Duration
}

// Default pacing.
const (
	DefaultMonitorInterval   = 200 * time.Millisecond
	DefaultReconnectInterval = time.Second
)

// Stats counts loop outcomes.
type Stats struct {
	Ticks        uint64 `json:"ticks"`
	FramesSent   uint64 `json:"frames_sent"`
	Skipped      uint64 `json:"skipped"`
	SendFailures uint64 `json:"send_failures"`
}

type namedSink struct {
	name string
	sink Sink
}

// Loop is the render loop.
//
// Thread Safety:
//   - Run and Tick must be called from a single goroutine. AddSink must be
//     called before Run. Stats and LastSnapshot are safe from any goroutine.
type Loop struct {
	cfg      Config
	link     Link
	modes    Modes
	source   Telemetry
	composer Composer
	logger   Logger
	uptime   Uptime
	sinks    []namedSink

	payload []byte
	dimmed  *image.RGBA

	lastPublish   time.Time
	lastReconnect time.Time
	publishCh     chan telemetry.Snapshot

	mu       sync.Mutex
	stats    Stats
	lastSnap telemetry.Snapshot

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// New creates a render loop.
func New(cfg Config, link Link, modes Modes, source Telemetry, composer Composer) *Loop {
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = DefaultMonitorInterval
	}
	if cfg.ReconnectInterval <= 0 {
		cfg.ReconnectInterval = DefaultReconnectInterval
	}
	return &Loop{
		cfg:       cfg,
		link:      link,
		modes:     modes,
		source:    source,
		composer:  composer,
		logger:    noopLogger{},
		payload:   make([]byte, panel.FrameBytes),
		publishCh: make(chan telemetry.Snapshot, 1),
		now:       time.Now,
		sleep:     sleepContext,
	}
}

// SetLogger sets the logger for the loop.
func (l *Loop) SetLogger(logger Logger) {
	l.logger = logger
}

// SetUptime registers the accumulator ticked outside Monitor mode.
func (l *Loop) SetUptime(u Uptime) {
	l.uptime = u
}

// AddSink registers a snapshot sink under name (used in log records).
func (l *Loop) AddSink(name string, sink Sink) {
	l.sinks = append(l.sinks, namedSink{name: name, sink: sink})
}

// Stats returns a copy of the loop counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// LastSnapshot returns the most recent telemetry snapshot.
func (l *Loop) LastSnapshot() telemetry.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSnap
}

// Run ticks until ctx is cancelled. It always returns nil; device and media
// failures are handled per tick.
func (l *Loop) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	if len(l.sinks) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.publishLoop(ctx)
		}()
	}
	defer wg.Wait()

	l.logger.Info("render loop started", "monitor_interval", l.cfg.MonitorInterval)
	for ctx.Err() == nil {
		start := l.now()
		interval := l.Tick(ctx)
		if remaining := interval - l.now().Sub(start); remaining > 0 {
			l.sleep(ctx, remaining)
		}
	}
	l.logger.Info("render loop stopped")
	return nil
}

// Tick runs one iteration and returns the target interval for it.
func (l *Loop) Tick(ctx context.Context) time.Duration {
	view := l.modes.View()
	interval := l.interval(view)

	l.mu.Lock()
	l.stats.Ticks++
	l.mu.Unlock()

	now := l.now()
	publishDue := len(l.sinks) > 0 && now.Sub(l.lastPublish) >= l.cfg.PublishInterval

	var snap telemetry.Snapshot
	if view.Mode == mode.Monitor || publishDue {
		snap = l.source.Snapshot(ctx)
		l.mu.Lock()
		l.lastSnap = snap
		l.mu.Unlock()
	}
	if publishDue {
		l.lastPublish = now
		l.enqueue(snap)
	}
	if view.Mode != mode.Monitor && !publishDue && l.uptime != nil {
		l.uptime.TotalSeconds(ctx)
	}

	if !l.connected(ctx, now) {
		l.skip()
		return interval
	}

	frame := l.selectFrame(view, snap)
	if frame == nil {
		l.skip()
		return interval
	}

	if view.Brightness < 1 {
		l.dimmed = panel.Attenuate(l.dimmed, frame, view.Brightness)
		frame = l.dimmed
	}

	l.payload = panel.EncodeInto(l.payload, frame)
	if err := l.link.Send(ctx, l.payload); err != nil {
		l.mu.Lock()
		l.stats.SendFailures++
		l.mu.Unlock()
		l.logger.Debug("frame not sent", "error", err)
		return interval
	}

	l.mu.Lock()
	l.stats.FramesSent++
	l.mu.Unlock()
	return interval
}

// connected runs EnsureConnected, at most once per ReconnectInterval while
// the device is missing.
func (l *Loop) connected(ctx context.Context, now time.Time) bool {
	if !l.lastReconnect.IsZero() && now.Sub(l.lastReconnect) < l.cfg.ReconnectInterval {
		return false
	}
	if l.link.EnsureConnected(ctx) {
		l.lastReconnect = time.Time{}
		return true
	}
	l.lastReconnect = now
	return false
}

func (l *Loop) selectFrame(view mode.View, snap telemetry.Snapshot) *image.RGBA {
	switch view.Mode {
	case mode.Static:
		return view.Frame
	case mode.Video:
		frame, ok := l.modes.NextVideoFrame()
		if !ok {
			return nil
		}
		return frame
	default:
		frame, err := l.composer.Render(snap)
		if err != nil {
			l.logger.Warn("dashboard render failed", "error", err)
			return nil
		}
		return frame
	}
}

func (l *Loop) interval(view mode.View) time.Duration {
	if view.Mode == mode.Video && view.FPS > 0 {
		return time.Duration(float64(time.Second) / view.FPS)
	}
	return l.cfg.MonitorInterval
}

func (l *Loop) skip() {
	l.mu.Lock()
	l.stats.Skipped++
	l.mu.Unlock()
}

// enqueue hands snap to the publisher, replacing any snapshot still waiting.
func (l *Loop) enqueue(snap telemetry.Snapshot) {
	for {
		select {
		case l.publishCh <- snap:
			return
		default:
		}
		select {
		case <-l.publishCh:
		default:
		}
	}
}

func (l *Loop) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-l.publishCh:
			for _, s := range l.sinks {
				if err := s.sink.PublishSnapshot(ctx, snap); err != nil {
					l.logger.Debug("telemetry sink failed", "sink", s.name, "error", err)
				}
			}
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
