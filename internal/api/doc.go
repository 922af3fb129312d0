// Package api implements the HTTP status/control API and the WebSocket
// telemetry stream.
//
// Routes (all under /api/v1):
//   - GET  /health   process and database health
//   - GET  /status   mode, link counters, render counters, last snapshot
//   - GET  /metrics  Go runtime and frame pipeline counters
//   - POST /control  one control request, same JSON as the unix socket
//   - GET  /ws       WebSocket; subscribe to "telemetry" and/or "mode"
//
// Control requests submitted here go through the same control.Channel as
// the socket and MQTT transports, so all three are serialised together.
//
// The server has no authentication and binds to 127.0.0.1 by default.
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
