package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/coolpanel/internal/control"
	"github.com/nerrad567/coolpanel/internal/infrastructure/config"
	"github.com/nerrad567/coolpanel/internal/infrastructure/logging"
	"github.com/nerrad567/coolpanel/internal/mode"
	"github.com/nerrad567/coolpanel/internal/panel"
	"github.com/nerrad567/coolpanel/internal/render"
	"github.com/nerrad567/coolpanel/internal/telemetry"
)

// fakeModes implements control.Controller and ModeViewer.
type fakeModes struct {
	mu   sync.Mutex
	view mode.View
}

func (f *fakeModes) SetMonitor(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.view = mode.View{Mode: mode.Monitor, Brightness: f.view.Brightness}
	return "monitor", nil
}

func (f *fakeModes) SetMedia(_ context.Context, path string) (string, error) {
	if path == "/missing.png" {
		return "", fmt.Errorf("%w: %s", mode.ErrNotFound, path)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.view.Mode = mode.Static
	f.view.MediaPath = path
	return "static " + path, nil
}

func (f *fakeModes) SetBrightness(_ context.Context, percent float64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.view.Brightness = percent / 100
	return fmt.Sprintf("brightness %.0f%%", percent), nil
}

func (f *fakeModes) View() mode.View {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.view
}

type fakeLink struct{ stats panel.Stats }

func (f fakeLink) Stats() panel.Stats { return f.stats }

type fakeLoop struct {
	stats render.Stats
	snap  telemetry.Snapshot
}

func (f fakeLoop) Stats() render.Stats               { return f.stats }
func (f fakeLoop) LastSnapshot() telemetry.Snapshot { return f.snap }

type fakeDB struct{ err error }

func (f fakeDB) HealthCheck(context.Context) error { return f.err }

type fakeBroker bool

func (f fakeBroker) IsConnected() bool { return bool(f) }

func testWSConfig() config.WebSocketConfig {
	return config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}
}

// testServer creates a Server wired to fakes with a running hub.
func testServer(t *testing.T, mutate ...func(*Deps)) (*Server, *fakeModes) {
	t.Helper()

	modes := &fakeModes{view: mode.View{Mode: mode.Monitor, Brightness: 1}}
	log := logging.Discard()

	deps := Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS:      testWSConfig(),
		Logger:  log,
		Control: control.NewChannel(modes),
		Modes:   modes,
		Link:    fakeLink{stats: panel.Stats{State: "ready", FramesSent: 42, Reconnects: 1}},
		Loop: fakeLoop{
			stats: render.Stats{Ticks: 50, FramesSent: 42},
			snap:  telemetry.Snapshot{Hostname: "box", CPUPercent: 12.5, CPUTempC: 48},
		},
		Version: "test",
	}
	for _, fn := range mutate {
		fn(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv.hub = NewHub(srv.wsCfg, log)
	go srv.hub.Run(ctx)

	return srv, modes
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)
	return w
}

// ─── Construction ──────────────────────────────────────────────────

func TestNew_RequiresDeps(t *testing.T) {
	modes := &fakeModes{}
	full := Deps{
		Logger:  logging.Discard(),
		Control: control.NewChannel(modes),
		Modes:   modes,
		Link:    fakeLink{},
		Loop:    fakeLoop{},
	}

	cases := map[string]func(d *Deps){
		"logger":  func(d *Deps) { d.Logger = nil },
		"control": func(d *Deps) { d.Control = nil },
		"modes":   func(d *Deps) { d.Modes = nil },
		"link":    func(d *Deps) { d.Link = nil },
		"loop":    func(d *Deps) { d.Loop = nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			d := full
			mutate(&d)
			if _, err := New(d); err == nil {
				t.Errorf("New() without %s should fail", name)
			}
		})
	}

	if _, err := New(full); err != nil {
		t.Errorf("New() with all deps: %v", err)
	}
}

// ─── Health Endpoint Tests ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v, want ok", resp["status"])
	}
	if resp["version"] != "test" {
		t.Errorf("version = %v, want test", resp["version"])
	}
}

func TestHealth_DatabaseDown(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) { d.DB = fakeDB{err: errors.New("disk gone")} })

	w := do(t, srv, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("health status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}
	if !strings.Contains(w.Body.String(), "disk gone") {
		t.Errorf("body = %s, want database error", w.Body.String())
	}
}

// ─── Middleware Tests ──────────────────────────────────────────────

func TestRequestID_Generated(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv, http.MethodGet, "/api/v1/health", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestRequestID_PreservesClient(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want %q", got, "client-123")
	}
}

func TestNotFound(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv, http.MethodGet, "/api/v1/nonexistent", "")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown route status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv, http.MethodGet, "/api/v1/control", "")
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /control status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}

func TestRecovery(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}

// ─── Status and Metrics ────────────────────────────────────────────

func TestStatus(t *testing.T) {
	srv, _ := testServer(t, func(d *Deps) { d.MQTT = fakeBroker(true) })

	w := do(t, srv, http.MethodGet, "/api/v1/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp StatusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Mode.Mode != mode.Monitor {
		t.Errorf("mode = %q, want monitor", resp.Mode.Mode)
	}
	if resp.Link.FramesSent != 42 || resp.Link.State != "ready" {
		t.Errorf("link = %+v", resp.Link)
	}
	if resp.Render.Ticks != 50 {
		t.Errorf("render ticks = %d, want 50", resp.Render.Ticks)
	}
	if resp.Telemetry.Hostname != "box" || resp.Telemetry.CPUPercent != 12.5 {
		t.Errorf("telemetry = %+v", resp.Telemetry)
	}
	if !resp.MQTTConnected {
		t.Error("mqtt_connected = false, want true")
	}
}

func TestMetrics(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv, http.MethodGet, "/api/v1/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var m SystemMetrics
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m.Runtime.Goroutines <= 0 {
		t.Errorf("goroutines = %d, want > 0", m.Runtime.Goroutines)
	}
	if m.Frames.Sent != 42 || m.Frames.Reconnects != 1 {
		t.Errorf("frames = %+v", m.Frames)
	}
	if m.MQTT.Enabled {
		t.Error("mqtt enabled without a client")
	}
}

// ─── Control ───────────────────────────────────────────────────────

func TestControl_Brightness(t *testing.T) {
	srv, modes := testServer(t)

	w := do(t, srv, http.MethodPost, "/api/v1/control", `{"action":"brightness","value":40}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusOK, w.Body.String())
	}

	var resp control.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != control.StatusOK {
		t.Errorf("response status = %q, want ok", resp.Status)
	}
	if got := modes.View().Brightness; got != 0.4 {
		t.Errorf("brightness = %v, want 0.4", got)
	}
}

func TestControl_IDFromRequestHeader(t *testing.T) {
	srv, _ := testServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/control", strings.NewReader(`{"action":"status"}`))
	req.Header.Set("X-Request-ID", "abc")
	w := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(w, req)

	var resp control.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ID != "abc" {
		t.Errorf("id = %q, want abc", resp.ID)
	}
	if resp.Mode != string(mode.Monitor) {
		t.Errorf("mode = %q, want monitor", resp.Mode)
	}
}

func TestControl_Rejected(t *testing.T) {
	srv, modes := testServer(t)

	w := do(t, srv, http.MethodPost, "/api/v1/control", `{"action":"media","path":"/missing.png"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnprocessableEntity)
	}
	if modes.View().Mode != mode.Monitor {
		t.Error("failed request changed the mode")
	}
}

func TestControl_Malformed(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv, http.MethodPost, "/api/v1/control", `{"action":`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}

	var resp control.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != control.StatusError {
		t.Errorf("response status = %q, want error", resp.Status)
	}
}

func TestControl_BodyTooLarge(t *testing.T) {
	srv, _ := testServer(t)

	body := `{"action":"media","path":"` + strings.Repeat("a", maxRequestBodySize) + `"}`
	w := do(t, srv, http.MethodPost, "/api/v1/control", body)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
}

// ─── WebSocket Hub Tests ───────────────────────────────────────────

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := NewHub(testWSConfig(), logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{ChannelTelemetry: {}},
	}
	hub.Register(client)

	if err := hub.PublishSnapshot(ctx, telemetry.Snapshot{Hostname: "box"}); err != nil {
		t.Fatalf("PublishSnapshot: %v", err)
	}

	select {
	case msg := <-client.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if wsMsg.EventType != ChannelTelemetry {
			t.Errorf("event_type = %q, want %q", wsMsg.EventType, ChannelTelemetry)
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for broadcast message")
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	hub := NewHub(testWSConfig(), logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{ChannelTelemetry: {}},
	}
	hub.Register(client)

	hub.PublishState(mode.View{Mode: mode.Static})

	select {
	case <-client.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := NewHub(testWSConfig(), logging.Discard())

	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}
}

func TestHub_SlowClientDoesNotBlock(t *testing.T) {
	hub := NewHub(testWSConfig(), logging.Discard())
	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, 1),
		subscriptions: map[string]struct{}{ChannelMode: {}},
	}
	hub.Register(client)

	done := make(chan struct{})
	go func() {
		for range 10 {
			hub.PublishState(mode.View{Mode: mode.Monitor})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full client buffer")
	}
}

func TestWebSocket_SubscribeAndReceive(t *testing.T) {
	srv, _ := testServer(t)
	ts := httptest.NewServer(srv.buildRouter())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := WSMessage{Type: WSTypeSubscribe, ID: "s1", Payload: WSSubscribePayload{Channels: []string{ChannelMode}}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("deadline: %v", err)
	}

	var ack WSMessage
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if ack.Type != WSTypeResponse || ack.ID != "s1" {
		t.Fatalf("ack = %+v, want response to s1", ack)
	}

	srv.Hub().PublishState(mode.View{Mode: mode.Video, MediaPath: "/clip.mp4"})

	var event WSMessage
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if event.Type != WSTypeEvent || event.EventType != ChannelMode {
		t.Fatalf("event = %+v, want mode event", event)
	}
	payload, ok := event.Payload.(map[string]any)
	if !ok || payload["media_path"] != "/clip.mp4" {
		t.Errorf("payload = %v", event.Payload)
	}
}

// ─── Lifecycle ─────────────────────────────────────────────────────

func TestStartAndClose(t *testing.T) {
	modes := &fakeModes{view: mode.View{Mode: mode.Monitor, Brightness: 1}}
	srv, err := New(Deps{
		Config:  config.APIConfig{Host: "127.0.0.1", Port: 0, Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5}},
		WS:      testWSConfig(),
		Logger:  logging.Discard(),
		Control: control.NewChannel(modes),
		Modes:   modes,
		Link:    fakeLink{},
		Loop:    fakeLoop{},
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck before Start should fail")
	}

	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start should fail")
	}

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}

	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestStart_PortInUse(t *testing.T) {
	first, _ := testServer(t)
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer first.Close()

	_, portStr, err := net.SplitHostPort(first.Addr())
	if err != nil {
		t.Fatalf("SplitHostPort: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("Atoi: %v", err)
	}
	second, _ := testServer(t, func(d *Deps) { d.Config.Port = port })
	if err := second.Start(context.Background()); err == nil {
		second.Close()
		t.Error("Start on a bound port should fail")
	}
}
