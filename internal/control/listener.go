package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

const (
	// maxRequestSize caps one request; paths are the only variable field.
	maxRequestSize = 64 << 10

	// connTimeout bounds reading a request and writing its response.
	connTimeout = 5 * time.Second

	// Backoff between failed accepts (e.g. EMFILE), doubling up to the cap.
	acceptRetryMin = 5 * time.Millisecond
	acceptRetryMax = time.Second
)

// Listener serves the control protocol on a unix domain socket, one
// connection at a time.
//
// Thread Safety:
//   - Serve runs in one goroutine; Close may be called from any goroutine.
type Listener struct {
	path    string
	channel *Channel
	logger  Logger

	mu     sync.Mutex
	ln     net.Listener
	closed bool
}

// Listen creates the control socket at path.
//
// A stale socket file left by a previous run is removed first. The socket
// file's permissions are set to perm.
//
// Parameters:
//   - path: Filesystem path of the socket
//   - perm: Permission bits for the socket file (e.g. 0660)
//   - channel: Channel every decoded request is applied to
//
// Returns:
//   - *Listener: Ready to Serve
//   - error: If the socket cannot be created
func Listen(path string, perm os.FileMode, channel *Channel) (*Listener, error) {
	if err := removeStale(path); err != nil {
		return nil, err
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", path, err)
	}

	if err := os.Chmod(path, perm); err != nil {
		ln.Close()
		os.Remove(path) //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("setting socket permissions: %w", err)
	}

	return &Listener{
		path:    path,
		channel: channel,
		logger:  noopLogger{},
		ln:      ln,
	}, nil
}

// removeStale deletes a leftover socket at path. Any other kind of file is
// left alone and reported.
func removeStale(path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("checking socket path: %w", err)
	}
	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("socket path %s exists and is not a socket", path)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("removing stale socket: %w", err)
	}
	return nil
}

// SetLogger sets the logger for the listener.
func (l *Listener) SetLogger(logger Logger) {
	l.logger = logger
}

// Path returns the socket path.
func (l *Listener) Path() string {
	return l.path
}

// Serve accepts connections until ctx is cancelled or Close is called.
// Each connection carries one request and receives one response before the
// next connection is accepted. Accept failures are logged and retried with
// a capped backoff; they never end Serve.
//
// Returns:
//   - error: ErrListenerClosed after a shutdown
func (l *Listener) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { l.Close() }) //nolint:errcheck // Close error surfaces via Accept
	defer stop()

	var delay time.Duration
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if l.isClosed() {
				return ErrListenerClosed
			}
			delay = nextAcceptDelay(delay)
			l.logger.Warn("accepting control connection failed, retrying",
				"error", err,
				"retry_in", delay,
			)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ErrListenerClosed
			case <-timer.C:
			}
			continue
		}
		delay = 0
		l.handle(ctx, conn)
	}
}

func nextAcceptDelay(prev time.Duration) time.Duration {
	if prev == 0 {
		return acceptRetryMin
	}
	return min(prev*2, acceptRetryMax)
}

// handle serves a single connection. Malformed input is answered with an
// error response; an unreadable connection is dropped silently.
func (l *Listener) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(connTimeout)) //nolint:errcheck // Unix sockets support deadlines

	var resp Response
	req, err := readRequest(conn)
	switch {
	case err == nil:
		resp = l.channel.Apply(ctx, req)
	case errors.Is(err, ErrMalformed):
		l.logger.Warn("malformed control request", "error", err)
		resp = ErrorResponse(err)
	default:
		l.logger.Debug("control connection unreadable", "error", err)
		return
	}

	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		l.logger.Debug("writing control response", "error", err)
	}
}

// readRequest decodes the first JSON value on conn. The client may keep its
// write side open; the decoder stops at the end of the first value.
func readRequest(conn net.Conn) (Request, error) {
	dec := json.NewDecoder(io.LimitReader(conn, maxRequestSize))

	var req Request
	if err := dec.Decode(&req); err != nil {
		var netErr net.Error
		if errors.Is(err, io.EOF) || errors.As(err, &netErr) {
			return Request{}, fmt.Errorf("reading request: %w", err)
		}
		return Request{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return req, nil
}

func (l *Listener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Close stops accepting connections and removes the socket file. It is safe
// to call more than once.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	err := l.ln.Close()
	if rmErr := os.Remove(l.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		return fmt.Errorf("removing socket: %w", rmErr)
	}
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("closing control listener: %w", err)
	}
	return nil
}

// Send dials the socket at path, submits req, and returns the response.
// Used by coolpanelctl and tests.
func Send(ctx context.Context, path string, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, connTimeout)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return Response{}, fmt.Errorf("connecting to %s: %w", path, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline) //nolint:errcheck // Unix sockets support deadlines
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return Response{}, fmt.Errorf("sending request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return Response{}, fmt.Errorf("reading response: %w", err)
	}
	return resp, nil
}
