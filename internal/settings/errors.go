package settings

import "errors"

// Domain errors for the settings store.
var (
	// ErrClosed is returned when the store is used after Close.
	ErrClosed = errors.New("settings: store closed")

	// ErrEmptyUpdate is returned when Merge is called with no fields set.
	ErrEmptyUpdate = errors.New("settings: update has no fields")
)
