package control

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nerrad567/coolpanel/internal/mode"
)

// Actions.
const (
	ActionMonitor    = "monitor"
	ActionMedia      = "media"
	ActionBrightness = "brightness"
	ActionStatus     = "status"
)

// Response statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Request is one control command.
type Request struct {
	// ID correlates a response with its request. Assigned when empty.
	ID     string   `json:"id,omitempty"`
	Action string   `json:"action"`
	Path   string   `json:"path,omitempty"`
	Value  *float64 `json:"value,omitempty"`
}

// Response is the reply to one Request. The mode fields are filled for the
// status action only.
type Response struct {
	ID         string   `json:"id,omitempty"`
	Status     string   `json:"status"`
	Message    string   `json:"message,omitempty"`
	Mode       string   `json:"mode,omitempty"`
	MediaPath  string   `json:"media_path,omitempty"`
	Brightness *float64 `json:"brightness,omitempty"`
}

// OK reports whether the request succeeded.
func (r Response) OK() bool {
	return r.Status == StatusOK
}

// Controller is the subset of *mode.Controller the channel drives.
type Controller interface {
	SetMonitor(ctx context.Context) (string, error)
	SetMedia(ctx context.Context, path string) (string, error)
	SetBrightness(ctx context.Context, percent float64) (string, error)
	View() mode.View
}

// Logger defines the logging interface for the control package.
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

// Channel serialises control requests onto the mode controller.
//
// Thread Safety:
//   - Apply may be called from any transport goroutine; at most one request
//     is in flight at a time.
type Channel struct {
	ctrl   Controller
	logger Logger
	mu     sync.Mutex
}

// NewChannel creates a channel driving ctrl.
func NewChannel(ctrl Controller) *Channel {
	return &Channel{ctrl: ctrl, logger: noopLogger{}}
}

// SetLogger sets the logger for the channel.
func (c *Channel) SetLogger(logger Logger) {
	c.logger = logger
}

// DecodeRequest parses one JSON request.
func DecodeRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return req, nil
}

// Apply executes req and returns its response. Failures are reported in the
// response; Apply never returns an error.
func (c *Channel) Apply(ctx context.Context, req Request) Response {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	msg, err := c.dispatch(ctx, req)
	if err != nil {
		c.logger.Warn("control request failed",
			"id", req.ID,
			"action", req.Action,
			"error", err,
		)
		return Response{ID: req.ID, Status: StatusError, Message: err.Error()}
	}

	if req.Action == ActionStatus {
		v := c.ctrl.View()
		pct := v.Brightness * 100
		return Response{
			ID:         req.ID,
			Status:     StatusOK,
			Message:    msg,
			Mode:       string(v.Mode),
			MediaPath:  v.MediaPath,
			Brightness: &pct,
		}
	}

	c.logger.Info("control request applied", "id", req.ID, "action", req.Action, "result", msg)
	return Response{ID: req.ID, Status: StatusOK, Message: msg}
}

func (c *Channel) dispatch(ctx context.Context, req Request) (string, error) {
	switch req.Action {
	case ActionMonitor:
		return c.ctrl.SetMonitor(ctx)
	case ActionMedia:
		return c.ctrl.SetMedia(ctx, req.Path)
	case ActionBrightness:
		if req.Value == nil {
			return "", fmt.Errorf("%w: brightness requires a value", ErrMalformed)
		}
		return c.ctrl.SetBrightness(ctx, *req.Value)
	case ActionStatus:
		return string(c.ctrl.View().Mode), nil
	case "":
		return "", fmt.Errorf("%w: missing action", ErrMalformed)
	default:
		return "", fmt.Errorf("%w: unknown action %q", ErrMalformed, req.Action)
	}
}

// ErrorResponse builds the reply for a request that could not be decoded.
func ErrorResponse(err error) Response {
	return Response{Status: StatusError, Message: err.Error()}
}
