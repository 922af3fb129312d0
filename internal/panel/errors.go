package panel

import "errors"

// Domain errors for the panel link.
var (
	// ErrDeviceNotFound is returned when no device matches the vendor/product ID.
	ErrDeviceNotFound = errors.New("panel: device not found")

	// ErrNoBulkOut is returned when the claimed interface has no bulk-OUT endpoint.
	ErrNoBulkOut = errors.New("panel: no bulk-out endpoint")

	// ErrNotConnected is returned by Send when the session is not Ready.
	ErrNotConnected = errors.New("panel: not connected")

	// ErrFrameSize is returned when a payload does not match the panel raster.
	ErrFrameSize = errors.New("panel: payload size mismatch")

	// ErrShortWrite is returned when the endpoint accepts fewer bytes than sent.
	ErrShortWrite = errors.New("panel: short write")

	// ErrClosed is returned when the link is used after Close.
	ErrClosed = errors.New("panel: link closed")
)
