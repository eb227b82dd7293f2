package relay

import (
	"errors"
	"fmt"
)

// RejectedError is returned when the relay answered with a status other than the configured success code.
type RejectedError struct {
	StatusCode int
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("relay: rejected with status %d", e.StatusCode)
}

// ConnError wraps a transport-level failure (timeout, refused connection, DNS, ...).
type ConnError struct {
	Err error
}

func (e *ConnError) Error() string {
	return e.Err.Error()
}

func (e *ConnError) Unwrap() error {
	return e.Err
}

// StatusCode returns the relay status code carried by err, if it is a RejectedError.
func StatusCode(err error) (int, bool) {
	var rej *RejectedError
	if errors.As(err, &rej) {
		return rej.StatusCode, true
	}
	return 0, false
}

// IsConnError reports whether err is a transport-level failure.
func IsConnError(err error) bool {
	var ce *ConnError
	return errors.As(err, &ce)
}
