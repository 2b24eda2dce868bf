package interview

import "errors"

var (
	// ErrSessionEnded is returned for input that reaches a session after it
	// ended.
	ErrSessionEnded = errors.New("session ended")
	ErrNoSession    = errors.New("no such session")
	ErrNoStream     = errors.New("no open voice stream")
)
