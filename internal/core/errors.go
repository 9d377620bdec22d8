package core

import "errors"

// Common errors shared across the wall packages
var (
	ErrInvalidShareToken = errors.New("share token is empty or malformed")
	ErrEmptySnapshot     = errors.New("pull returned no snapshot")
	ErrNotAttached       = errors.New("engine is not attached to an event")
)
