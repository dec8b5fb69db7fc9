package interview

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyAnswer rejects a submit with nothing typed or spoken.
	ErrEmptyAnswer = &ValidationError{Field: "answer", Message: "please provide an answer"}

	ErrSessionTerminal     = errors.New("interview: session is over")
	ErrBusy                = errors.New("interview: not allowed in the current state")
	ErrClosed              = errors.New("interview: session closed")
	ErrCaptureUnsupported  = errors.New("interview: speech capture is not supported")
	ErrPlaybackUnsupported = errors.New("interview: speech playback is not supported")

	// Gateways wrap these so the orchestrator can tell a dead session from an outage.
	ErrSessionNotFound = errors.New("interview: session not found")
	ErrForbidden       = errors.New("interview: not authorized for session")
)

// ValidationError is a user-correctable input problem. No backend call is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// CaptureError is a failed recognition stream. The session carries on with typed input.
type CaptureError struct {
	Reason string
	Err    error
}

func (e *CaptureError) Error() string {
	return "speech recognition failed: " + e.Reason
}

func (e *CaptureError) Unwrap() error { return e.Err }

// BackendError is a failed gateway call. The session's buffered answer and
// history are left as they were so the call can be retried.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Unrecoverable reports whether retrying cannot help: the session no longer
// exists for this user, or it was never created.
func (e *BackendError) Unrecoverable() bool {
	if e.Op == opStart || e.Op == opResume {
		return true
	}
	return errors.Is(e.Err, ErrSessionNotFound) || errors.Is(e.Err, ErrForbidden)
}

// captureReason extracts a short reason from a voice adapter error.
func captureReason(err error) string {
	var r interface{ Reason() string }
	if errors.As(err, &r) {
		return r.Reason()
	}
	if err == nil {
		return "unknown"
	}
	return err.Error()
}
