package metrics

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
)

// fillerPattern matches the filler phrases counted against an answer.
// Matching is case-insensitive and bounded by word boundaries so that
// "like" inside "likely" or "um" inside "umbrella" never count.
var fillerPattern = regexp.MustCompile(`(?i)\b(um|uh|like|you know|actually|basically|literally|sort of|kind of)\b`)

// hedgingPattern matches hedging phrases that cost a flat confidence penalty.
var hedgingPattern = regexp.MustCompile(`(?i)\b(maybe|perhaps|possibly|might|could be)\b`)

const hedgingPenalty = 10

// Live is the set of speaking-quality signals shown while an answer is in progress.
// It holds no state of its own; Compute rebuilds it from the answer text every time.
type Live struct {
	WordCount       int           `json:"wordCount"`
	FillerCount     int           `json:"fillerCount"`
	ConfidenceScore int           `json:"confidenceScore"`
	ResponseTime    time.Duration `json:"-"`
	SpeakingPace    int           `json:"speakingPace"`
}

// ResponseTimeSeconds is the response time as fractional seconds.
func (l Live) ResponseTimeSeconds() float64 { return l.ResponseTime.Seconds() }

// MarshalJSON reports the response time in whole seconds.
func (l Live) MarshalJSON() ([]byte, error) {
	type plain Live
	return json.Marshal(struct {
		plain
		ResponseTimeSeconds int64 `json:"responseTimeSeconds"`
	}{plain(l), int64(l.ResponseTime / time.Second)})
}

// WordCount splits on runs of whitespace and counts the non-empty tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// FillerCount counts non-overlapping filler phrase matches.
func FillerCount(text string) int {
	return len(fillerPattern.FindAllStringIndex(text, -1))
}

// ConfidenceScore is a heuristic in [0, 100] that drops with the filler ratio
// and takes a flat penalty when the text hedges.
func ConfidenceScore(text string, fillerCount, wordCount int) int {
	if wordCount <= 0 {
		return 0
	}
	ratio := float64(fillerCount) / float64(wordCount)
	base := math.Max(0, 100-ratio*200)
	if hedgingPattern.MatchString(text) {
		base -= hedgingPenalty
	}
	score := int(math.Round(base))
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// SpeakingPace returns words per minute, or 0 when no time has elapsed.
func SpeakingPace(wordCount int, durationSeconds float64) int {
	if durationSeconds <= 0 {
		return 0
	}
	return int(math.Round(float64(wordCount) / durationSeconds * 60))
}

// FormatDuration renders a non-negative millisecond duration as M:SS.
// Minutes are not padded and are not rolled into hours.
func FormatDuration(ms int64) string {
	seconds := ms / 1000
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

// Compute derives the live metrics for an answer that started at startedAt.
// A zero startedAt means no input has been given yet and yields a zero response time.
func Compute(text string, startedAt, now time.Time) Live {
	words := WordCount(text)
	fillers := FillerCount(text)
	var elapsed time.Duration
	if !startedAt.IsZero() && now.After(startedAt) {
		elapsed = now.Sub(startedAt)
	}
	return Live{
		WordCount:       words,
		FillerCount:     fillers,
		ConfidenceScore: ConfidenceScore(text, fillers, words),
		ResponseTime:    elapsed,
		SpeakingPace:    SpeakingPace(words, elapsed.Seconds()),
	}
}
