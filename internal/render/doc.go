// Package render runs the panel's frame loop.
//
// Each tick selects a frame for the current mode (the telemetry dashboard,
// the cached still, or the next video frame), dims it when brightness is
// below 100%, encodes it to RGB565 and sends it over the device link. The
// loop then sleeps for whatever remains of the tick interval: 1/fps in video
// mode, the monitor interval (200ms) otherwise.
//
// Telemetry snapshots are handed to the registered sinks (MQTT, InfluxDB,
// websocket) at most once per publish interval, from a separate goroutine so
// a slow broker never stalls the display.
package render
