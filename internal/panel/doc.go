// Package panel drives the 320x240 USB display panel.
//
// It provides two pieces:
//   - Link: the device session. It owns the bulk-OUT endpoint, performs the
//     fixed handshake, and writes one header plus one RGB565 payload per
//     frame. Every I/O error drops the session to Disconnected; Send makes
//     exactly one reconnect attempt before returning.
//   - Encode / Attenuate: pure raster helpers that turn an image into the
//     153600-byte little-endian RGB565 payload the panel expects.
//
// Wire protocol:
//
//	handshake:  aa04000603640027b9, 10ms, aa0100092991, 10ms, frame header
//	per frame:  aa08000001005802002c01bc11 + 320*240*2 payload bytes
//
// The USB layer sits behind Opener and Endpoint. USBOpener is the gousb
// implementation; tests use an in-memory fake.
package panel
