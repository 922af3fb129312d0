// Package control is the panel's command surface.
//
// Requests are small JSON objects:
//
//	{"action":"monitor"}
//	{"action":"media","path":"/home/me/clip.mp4"}
//	{"action":"brightness","value":40}
//	{"action":"status"}
//
// and every request gets one JSON response:
//
//	{"status":"ok","message":"monitor mode"}
//	{"status":"error","message":"media file not found: /home/me/clip.mp4"}
//
// Channel applies requests to the mode controller one at a time. The unix
// socket Listener is the primary transport; the MQTT command topic and the
// HTTP API submit through the same Channel.
package control
