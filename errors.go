package avatarrelay

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyConnected is returned by Connect on a session that has
	// already started connecting.
	ErrAlreadyConnected = errors.New("avatar session already connected")

	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("avatar session closed")

	// ErrInvalidTransition indicates a connection state change that the
	// lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid connection state transition")
)

// ConnectionExhaustedError is returned by Connect once every attempt in the
// retry budget has failed. It unwraps to the last attempt's error.
type ConnectionExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ConnectionExhaustedError) Error() string {
	return fmt.Sprintf("failed to connect to avatar backend after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ConnectionExhaustedError) Unwrap() error { return e.Last }
