package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/coolpanel/internal/control"
	"github.com/nerrad567/coolpanel/internal/infrastructure/config"
	"github.com/nerrad567/coolpanel/internal/infrastructure/logging"
	"github.com/nerrad567/coolpanel/internal/mode"
	"github.com/nerrad567/coolpanel/internal/panel"
	"github.com/nerrad567/coolpanel/internal/render"
	"github.com/nerrad567/coolpanel/internal/telemetry"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Controller applies control requests. *control.Channel satisfies it.
type Controller interface {
	Apply(ctx context.Context, req control.Request) control.Response
}

// ModeViewer reports the current mode state.
type ModeViewer interface {
	View() mode.View
}

// LinkStats reports panel session counters.
type LinkStats interface {
	Stats() panel.Stats
}

// LoopStats reports render loop counters and the last telemetry snapshot.
type LoopStats interface {
	Stats() render.Stats
	LastSnapshot() telemetry.Snapshot
}

// HealthChecker is implemented by optional backing services (database).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// BrokerStatus reports MQTT connectivity.
type BrokerStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Control Controller
	Modes   ModeViewer
	Link    LinkStats
	Loop    LoopStats
	DB      HealthChecker // optional
	MQTT    BrokerStatus  // optional
	Hub     *Hub          // optional; created by Start when nil
	Version string
}

// Server is the HTTP status and control API.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	control   Controller
	modes     ModeViewer
	link      LinkStats
	loop      LoopStats
	db        HealthChecker
	mqtt      BrokerStatus
	version   string
	startTime time.Time

	mu       sync.Mutex
	hub      *Hub
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (logger, control, modes, link, loop)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Control == nil:
		return nil, fmt.Errorf("control channel is required")
	case deps.Modes == nil:
		return nil, fmt.Errorf("mode controller is required")
	case deps.Link == nil:
		return nil, fmt.Errorf("panel link is required")
	case deps.Loop == nil:
		return nil, fmt.Errorf("render loop is required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		control:   deps.Control,
		modes:     deps.Modes,
		link:      deps.Link,
		loop:      deps.Loop,
		db:        deps.DB,
		mqtt:      deps.MQTT,
		hub:       deps.Hub,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Hub returns the WebSocket hub, or nil before Start when none was injected.
func (s *Server) Hub() *Hub {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hub
}

// Start binds the listener and serves HTTP in a background goroutine.
//
// Binding happens synchronously so a port already in use is reported here
// rather than logged later.
//
// Parameters:
//   - ctx: Parent context for the hub and background goroutines
//
// Returns:
//   - error: If the listener cannot be bound
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	go s.hub.Run(srvCtx)

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("binding api listener %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server listening", "address", ln.Addr().String())
	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	s.mu.Lock()
	srv, cancel := s.server, s.cancel
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
