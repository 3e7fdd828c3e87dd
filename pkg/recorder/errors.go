// ABOUTME: Recorder error types
// ABOUTME: Invalid state errors for misuse and encoder errors for worker failures
package recorder

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingWorker is returned by New without a worker
	ErrMissingWorker = errors.New("recorder: worker is required")

	// ErrInvalidState matches every *InvalidStateError
	ErrInvalidState = errors.New("recorder: invalid state")

	// ErrClosed is returned after Close
	ErrClosed = errors.New("recorder: closed")
)

// InvalidStateError reports an operation attempted in the wrong state
type InvalidStateError struct {
	Op    string
	State State
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("Failed to execute '%s' on 'MediaRecorder': The MediaRecorder's state is '%s'.", e.Op, e.State)
}

// Is makes errors.Is(err, ErrInvalidState) hold
func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// EncoderError carries a failure reported by the encoder worker
type EncoderError struct {
	Reason string
}

func (e *EncoderError) Error() string {
	return "encoder error: " + e.Reason
}
