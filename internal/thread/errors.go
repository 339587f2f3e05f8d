package thread

import (
	"errors"
	"fmt"
)

// ErrBusy is returned when a mutating action is attempted while a run is
// in flight. Edit, regenerate and new submissions are disallowed until the
// current turn completes, to prevent two concurrent forks of the same
// checkpoint.
var ErrBusy = errors.New("a run is already in flight for this thread")

// StreamError is a terminal error reported by the Execution Service on a
// run stream.
type StreamError struct {
	Code    string
	Message string
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream error %s: %s", e.Code, e.Message)
}

// RecoverableError wraps a connection failure that exhausted reconnection
// attempts. The thread remains usable with its last-known state.
type RecoverableError struct {
	Err error
}

func (e *RecoverableError) Error() string {
	return fmt.Sprintf("connection lost (retry available): %v", e.Err)
}

func (e *RecoverableError) Unwrap() error {
	return e.Err
}
