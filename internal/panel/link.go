package panel

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Fixed protocol messages.
var (
	handshake = [][]byte{
		mustHex("aa04000603640027b9"),
		mustHex("aa0100092991"),
	}
	frameHeader = mustHex("aa08000001005802002c01bc11")
)

// handshakeGap is the pause after each handshake command.
const handshakeGap = 10 * time.Millisecond

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(fmt.Sprintf("panel: bad protocol constant %q: %v", s, err))
	}
	return b
}

// State is the device session state.
type State int

// Session states. Any I/O failure returns the session to Disconnected.
const (
	Disconnected State = iota
	Connecting
	HandshakeSent
	Ready
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case HandshakeSent:
		return "handshake_sent"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// Endpoint is a claimed bulk-OUT pipe to the panel.
type Endpoint interface {
	// Write sends p, honouring ctx's deadline.
	Write(ctx context.Context, p []byte) (int, error)

	// Close releases the endpoint, interface, and device.
	Close() error
}

// Opener locates the panel and claims its bulk-OUT endpoint.
type Opener interface {
	Open(ctx context.Context) (Endpoint, error)
}

// Timeouts bound each class of write.
type Timeouts struct {
	Handshake time.Duration
	Header    time.Duration
	Payload   time.Duration
}

// DefaultTimeouts returns the per-write bounds used by the panel firmware.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Handshake: time.Second,
		Header:    500 * time.Millisecond,
		Payload:   time.Second,
	}
}

// Stats is a point-in-time view of link activity.
type Stats struct {
	State           string    `json:"state"`
	FramesSent      uint64    `json:"frames_sent"`
	Connects        uint64    `json:"connects"`
	ConnectFailures uint64    `json:"connect_failures"`
	SendFailures    uint64    `json:"send_failures"`
	Reconnects      uint64    `json:"reconnects"`
	LastError       string    `json:"last_error,omitempty"`
	ConnectedSince  time.Time `json:"connected_since,omitempty"`
}

// Logger defines the logging interface for the link.
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

// Link is the device session.
//
// Connect and Send are called from the render loop only. Stats and State may
// be read from any goroutine.
type Link struct {
	opener   Opener
	timeouts Timeouts
	logger   Logger
	sleep    func(time.Duration)

	mu     sync.Mutex
	ep     Endpoint
	state  State
	stats  Stats
	closed bool
}

// NewLink creates a disconnected link. Nothing touches USB until Connect.
func NewLink(opener Opener, timeouts Timeouts) *Link {
	return &Link{
		opener:   opener,
		timeouts: timeouts,
		logger:   noopLogger{},
		sleep:    time.Sleep,
		state:    Disconnected,
	}
}

// SetLogger sets the logger for the link.
func (l *Link) SetLogger(logger Logger) {
	l.logger = logger
}

// State returns the current session state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Stats returns a copy of the link counters.
func (l *Link) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.stats
	s.State = l.state.String()
	return s
}

// Connect opens the device and performs the handshake. On any failure the
// session is left Disconnected; the error is informational.
func (l *Link) Connect(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connectLocked(ctx)
}

func (l *Link) connectLocked(ctx context.Context) error {
	if l.closed {
		return ErrClosed
	}
	l.dropLocked()
	l.state = Connecting

	ep, err := l.opener.Open(ctx)
	if err != nil {
		return l.failConnectLocked(fmt.Errorf("opening device: %w", err))
	}
	l.ep = ep

	for _, cmd := range handshake {
		if err := l.writeLocked(ctx, cmd, l.timeouts.Handshake); err != nil {
			return l.failConnectLocked(fmt.Errorf("handshake: %w", err))
		}
		l.sleep(handshakeGap)
	}
	l.state = HandshakeSent

	if err := l.writeLocked(ctx, frameHeader, l.timeouts.Header); err != nil {
		return l.failConnectLocked(fmt.Errorf("priming header: %w", err))
	}

	l.state = Ready
	l.stats.Connects++
	l.stats.ConnectedSince = time.Now()
	l.stats.LastError = ""
	l.logger.Info("panel connected")
	return nil
}

func (l *Link) failConnectLocked(err error) error {
	l.dropLocked()
	l.stats.ConnectFailures++
	l.stats.LastError = err.Error()
	if errors.Is(err, ErrDeviceNotFound) {
		l.logger.Debug("panel not present")
	} else {
		l.logger.Warn("panel connect failed", "error", err)
	}
	return err
}

// EnsureConnected is the single reconnect entry point. It returns true when
// the session is Ready, attempting one Connect if it is not.
func (l *Link) EnsureConnected(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == Ready {
		return true
	}
	return l.connectLocked(ctx) == nil
}

// Send writes one frame: the fixed header then payload.
//
// Send requires a Ready session. A write failure drops the session and makes
// exactly one reconnect attempt before returning the write error, so the
// next tick can send without further retries.
func (l *Link) Send(ctx context.Context, payload []byte) error {
	if len(payload) != FrameBytes {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(payload), FrameBytes)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	if l.state != Ready {
		return ErrNotConnected
	}

	err := l.writeLocked(ctx, frameHeader, l.timeouts.Header)
	if err == nil {
		err = l.writeLocked(ctx, payload, l.timeouts.Payload)
	}
	if err == nil {
		l.stats.FramesSent++
		return nil
	}

	l.stats.SendFailures++
	l.stats.LastError = err.Error()
	l.logger.Warn("panel write failed, reconnecting", "error", err)
	l.dropLocked()

	l.stats.Reconnects++
	if rerr := l.connectLocked(ctx); rerr != nil {
		return fmt.Errorf("sending frame: %w (reconnect: %w)", err, rerr)
	}
	return fmt.Errorf("sending frame: %w", err)
}

// Close releases the device. Later calls return ErrClosed.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return ErrClosed
	}
	l.closed = true
	l.dropLocked()
	return nil
}

// writeLocked writes p with a per-write timeout.
func (l *Link) writeLocked(ctx context.Context, p []byte, timeout time.Duration) error {
	if l.ep == nil {
		return ErrNotConnected
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	n, err := l.ep.Write(wctx, p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return fmt.Errorf("%w: %d of %d bytes", ErrShortWrite, n, len(p))
	}
	return nil
}

// dropLocked releases any endpoint and marks the session Disconnected.
func (l *Link) dropLocked() {
	if l.ep != nil {
		if err := l.ep.Close(); err != nil {
			l.logger.Debug("closing panel endpoint", "error", err)
		}
		l.ep = nil
	}
	l.state = Disconnected
}
