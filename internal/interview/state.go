package interview

import (
	"fmt"
	"time"

	"github.com/msvee3/Interview-prep/internal/metrics"
)

// State is the orchestrator state.
type State int

const (
	StateLoading State = iota
	StateAwaitingAnswer
	StateSubmitting
	StateFinished
	StateError
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateAwaitingAnswer:
		return "awaiting_answer"
	case StateSubmitting:
		return "submitting"
	case StateFinished:
		return "finished"
	case StateError:
		return "error"
	}
	return "unknown"
}

// Terminal reports whether no further question or submission is possible.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateError
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for st := StateLoading; st <= StateError; st++ {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown session state %q", text)
}

// EventKind names what changed in a session step.
type EventKind string

const (
	EventState        EventKind = "state"
	EventQuestion     EventKind = "question"
	EventBuffer       EventKind = "buffer"
	EventTick         EventKind = "tick"
	EventSpeaking     EventKind = "speaking"
	EventCapture      EventKind = "capture"
	EventValidation   EventKind = "validation"
	EventCaptureError EventKind = "capture_error"
	EventBackendError EventKind = "backend_error"
	EventTurn         EventKind = "turn"
	EventFinished     EventKind = "finished"
)

// Event is delivered to the session listener. View is the state after the
// step that produced the event.
type Event struct {
	Kind    EventKind `json:"kind"`
	At      time.Time `json:"at"`
	Message string    `json:"message,omitempty"`
	View    View      `json:"view"`
}

// View is a consistent, read-only copy of a session.
type View struct {
	ID                 string        `json:"id"`
	Config             Config        `json:"config"`
	State              State         `json:"state"`
	Status             Status        `json:"status"`
	History            []Turn        `json:"history"`
	CurrentQuestion    string        `json:"currentQuestion"`
	Buffer             AnswerBuffer  `json:"buffer"`
	Metrics            metrics.Live  `json:"metrics"`
	ElapsedMs          int64         `json:"elapsedMs"`
	RemainingMs        int64         `json:"remainingMs"`
	Listening          bool          `json:"listening"`
	Speaking           bool          `json:"speaking"`
	CaptureAvailable   bool          `json:"captureAvailable"`
	PlaybackAvailable  bool          `json:"playbackAvailable"`
	StartedAt          time.Time     `json:"startedAt,omitempty"`
	Report             *FinishResult `json:"report,omitempty"`
	FinishAcknowledged bool          `json:"finishAcknowledged"`
	LastError          string        `json:"lastError,omitempty"`
}
