package control

import "errors"

var (
	// ErrMalformed is returned when a request cannot be decoded or names an
	// unknown action.
	ErrMalformed = errors.New("malformed control request")

	// ErrListenerClosed is returned by Serve after Close.
	ErrListenerClosed = errors.New("control listener closed")
)
