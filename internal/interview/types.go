package interview

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Type is the interview category.
type Type string

const (
	TypeTechnical  Type = "technical"
	TypeBehavioral Type = "behavioral"
	TypeHR         Type = "hr"
	TypeCaseStudy  Type = "case-study"
)

// SubType narrows a technical or behavioral interview.
type SubType string

const (
	SubTypeDSA          SubType = "dsa"
	SubTypeSystemDesign SubType = "system-design"
	SubTypeSTAR         SubType = "star"
)

// Difficulty is the seniority tier questions are pitched at.
type Difficulty string

const (
	DifficultyEntry  Difficulty = "entry"
	DifficultyMid    Difficulty = "mid"
	DifficultySenior Difficulty = "senior"
)

// Config is the immutable interview setup chosen before the session starts.
type Config struct {
	Type            Type       `json:"type" toml:"type"`
	SubType         SubType    `json:"subType,omitempty" toml:"sub_type"`
	Industry        string     `json:"industry" toml:"industry"`
	Role            string     `json:"role" toml:"role"`
	Difficulty      Difficulty `json:"difficulty" toml:"difficulty"`
	DurationMinutes int        `json:"durationMinutes" toml:"duration_minutes"`
	VoiceEnabled    bool       `json:"voiceEnabled" toml:"voice_enabled"`
}

// Validate checks the config against the values the backend accepts.
func (c Config) Validate() error {
	switch c.Type {
	case TypeTechnical, TypeBehavioral, TypeHR, TypeCaseStudy:
	default:
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unknown interview type %q", c.Type)}
	}
	switch c.SubType {
	case "", SubTypeDSA, SubTypeSystemDesign, SubTypeSTAR:
	default:
		return &ValidationError{Field: "subType", Message: fmt.Sprintf("unknown sub-type %q", c.SubType)}
	}
	switch c.Difficulty {
	case DifficultyEntry, DifficultyMid, DifficultySenior:
	default:
		return &ValidationError{Field: "difficulty", Message: fmt.Sprintf("unknown difficulty %q", c.Difficulty)}
	}
	switch c.DurationMinutes {
	case 15, 30, 45, 60:
	default:
		return &ValidationError{Field: "durationMinutes", Message: "duration must be 15, 30, 45 or 60 minutes"}
	}
	return nil
}

// Duration is the planned length of the interview.
func (c Config) Duration() time.Duration {
	return time.Duration(c.DurationMinutes) * time.Minute
}

// Status is the backend-visible lifecycle of an interview.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Turn is one question/answer exchange. It is never modified after it is
// appended to a session's history.
type Turn struct {
	QuestionID   string    `json:"questionId,omitempty"`
	QuestionText string    `json:"questionText"`
	AnswerText   string    `json:"answerText"`
	StartedAt    time.Time `json:"startedAt"`
	EndedAt      time.Time `json:"endedAt"`
	Score        *float64  `json:"score,omitempty"`
	Feedback     string    `json:"feedback,omitempty"`
	ModelAnswer  string    `json:"modelAnswer,omitempty"`
}

// Evaluation is the backend's opaque assessment of a submitted answer.
type Evaluation struct {
	Score        float64  `json:"score"`
	Feedback     string   `json:"feedback"`
	ModelAnswer  string   `json:"modelAnswer"`
	Strengths    []string `json:"strengths,omitempty"`
	Improvements []string `json:"improvements,omitempty"`
}

// Snapshot is the full server-side state of an interview.
type Snapshot struct {
	ID              string
	Config          Config
	Status          Status
	History         []Turn
	CurrentQuestion string
}

// StartResult is returned by the backend when an interview is created.
type StartResult struct {
	SessionID     string
	FirstQuestion string
}

// SubmitResult carries the next question, or Completed when there is none.
type SubmitResult struct {
	NextQuestion string
	Completed    bool
	Evaluation   *Evaluation
}

// HasNext reports whether the backend supplied a further question.
func (r SubmitResult) HasNext() bool {
	return !r.Completed && strings.TrimSpace(r.NextQuestion) != ""
}

// FinishResult is the backend acknowledgement of a finished interview.
type FinishResult struct {
	ReportID     string   `json:"reportId,omitempty"`
	OverallScore *float64 `json:"overallScore,omitempty"`
}

// Gateway is the request/response contract with the scoring backend.
// Every call must carry the caller's current credential.
type Gateway interface {
	Start(ctx context.Context, cfg Config) (StartResult, error)
	GetState(ctx context.Context, sessionID string) (Snapshot, error)
	SubmitAnswer(ctx context.Context, sessionID, answer string, elapsed time.Duration) (SubmitResult, error)
	// Finish is safe to call more than once. pending is the unanswered turn, if any.
	Finish(ctx context.Context, sessionID string, pending *Turn) (FinishResult, error)
}

// Voice is continuous speech capture plus single-slot speech playback.
// Implementations report failures through callbacks and never panic or block
// the caller on unsupported platforms.
type Voice interface {
	CaptureSupported() bool
	PlaybackSupported() bool
	// StartCapture is a no-op while a stream is active. onError ends the stream.
	StartCapture(onUpdate func(fragment string, final bool), onError func(err error))
	// StopCapture guarantees no callback of the stopped stream runs after it returns.
	StopCapture()
	// Speak preempts any current utterance before it returns. onComplete runs once
	// when text finishes playing naturally and never for a preempted utterance.
	Speak(text string, onComplete func())
	StopSpeaking()
	IsSpeaking() bool
}

// Observer receives lifecycle signals for telemetry.
type Observer interface {
	SessionStarted()
	SessionEnded(outcome string)
	AnswerSubmitted(voice bool)
	CaptureFailed(reason string)
}

// Record is the archived form of a finished interview.
type Record struct {
	ID         string        `json:"id"`
	Config     Config        `json:"config"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt time.Time     `json:"finishedAt"`
	History    []Turn        `json:"qa"`
	Report     *FinishResult `json:"report,omitempty"`
}

// Archiver stores the record of a finished interview somewhere durable.
type Archiver interface {
	Archive(ctx context.Context, rec Record) error
}

type nopVoice struct{}

func (nopVoice) CaptureSupported() bool                       { return false }
func (nopVoice) PlaybackSupported() bool                      { return false }
func (nopVoice) StartCapture(func(string, bool), func(error)) {}
func (nopVoice) StopCapture()                                 {}
func (nopVoice) Speak(string, func())                         {}
func (nopVoice) StopSpeaking()                                {}
func (nopVoice) IsSpeaking() bool                             { return false }

type nopObserver struct{}

func (nopObserver) SessionStarted()      {}
func (nopObserver) SessionEnded(string)  {}
func (nopObserver) AnswerSubmitted(bool) {}
func (nopObserver) CaptureFailed(string) {}
