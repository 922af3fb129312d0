package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/coolpanel/internal/control"
	"github.com/nerrad567/coolpanel/internal/mode"
	"github.com/nerrad567/coolpanel/internal/panel"
	"github.com/nerrad567/coolpanel/internal/render"
	"github.com/nerrad567/coolpanel/internal/telemetry"
)

// healthCheckTimeout bounds dependency checks made by GET /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/status", s.handleStatus)
		r.Get("/metrics", s.handleMetrics)
		r.Post("/control", s.handleControl)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns 200 when the process and its database are usable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":  "ok",
		"version": s.version,
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.db.HealthCheck(ctx); err != nil {
			s.logger.Warn("health check failed", "error", err)
			body["status"] = "degraded"
			body["database"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, body)
			return
		}
	}

	writeJSON(w, http.StatusOK, body)
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Version       string             `json:"version"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	Mode          mode.View          `json:"mode"`
	Link          panel.Stats        `json:"link"`
	Render        render.Stats       `json:"render"`
	Telemetry     telemetry.Snapshot `json:"telemetry"`
	MQTTConnected bool               `json:"mqtt_connected"`
	WSClients     int                `json:"websocket_clients"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Mode:          s.modes.View(),
		Link:          s.link.Stats(),
		Render:        s.loop.Stats(),
		Telemetry:     s.loop.LastSnapshot(),
	}
	if s.mqtt != nil {
		resp.MQTTConnected = s.mqtt.IsConnected()
	}
	if hub := s.Hub(); hub != nil {
		resp.WSClients = hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleControl submits a control request through the same channel as the
// unix socket. Rejected requests return 422 with the control response body.
func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return
		}
		writeBadRequest(w, "reading request body")
		return
	}
	req, err := control.DecodeRequest(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, control.ErrorResponse(err))
		return
	}
	if req.ID == "" {
		req.ID = requestIDFrom(r.Context())
	}

	resp := s.control.Apply(r.Context(), req)
	if !resp.OK() {
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
