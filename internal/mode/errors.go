package mode

import "errors"

// Transition errors.
var (
	// ErrNotFound is returned by SetMedia when the path does not exist.
	ErrNotFound = errors.New("media file not found")

	// ErrOpen is returned by SetMedia when the file cannot be decoded or has
	// no readable first frame.
	ErrOpen = errors.New("cannot open media")

	// ErrEmptyPath is returned by SetMedia for an empty path.
	ErrEmptyPath = errors.New("media path is empty")
)
