package interview

import (
	"strings"
	"time"
)

// AnswerBuffer is the scratch text of the turn being answered.
// Committed holds finalized speech or everything typed so far. Interim is the
// recognizer's provisional fragment and is replaced wholesale on every update.
type AnswerBuffer struct {
	Committed string    `json:"committedText"`
	Interim   string    `json:"interimText"`
	StartedAt time.Time `json:"turnStartedAt,omitempty"`
}

// Text is the full answer: committed and interim text joined and trimmed.
func (b AnswerBuffer) Text() string {
	return joinSpace(b.Committed, b.Interim)
}

// Empty reports whether there is nothing to submit.
func (b AnswerBuffer) Empty() bool { return b.Text() == "" }

// Elapsed is the time since the first input, never negative.
func (b AnswerBuffer) Elapsed(now time.Time) time.Duration {
	if b.StartedAt.IsZero() || !now.After(b.StartedAt) {
		return 0
	}
	return now.Sub(b.StartedAt)
}

// applyFragment folds one recognizer result into the buffer. A final fragment
// is appended to Committed and clears Interim; a provisional one only
// replaces Interim.
func (b *AnswerBuffer) applyFragment(fragment string, final bool, now time.Time) {
	fragment = strings.TrimSpace(fragment)
	if final {
		b.Committed = joinSpace(b.Committed, fragment)
		b.Interim = ""
	} else {
		b.Interim = fragment
	}
	b.markStarted(fragment, now)
}

// replaceText sets the typed answer wholesale.
func (b *AnswerBuffer) replaceText(text string, now time.Time) {
	b.Committed = text
	b.Interim = ""
	b.markStarted(text, now)
}

func (b *AnswerBuffer) markStarted(input string, now time.Time) {
	if b.StartedAt.IsZero() && strings.TrimSpace(input) != "" {
		b.StartedAt = now
	}
}

func joinSpace(a, b string) string {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + " " + b
}
