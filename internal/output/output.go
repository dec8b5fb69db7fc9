package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/msvee3/Interview-prep/internal/interview"
	"github.com/msvee3/Interview-prep/internal/metrics"
)

type Formatter struct {
	w io.Writer
}

func NewFormatter(w io.Writer) *Formatter {
	return &Formatter{w: w}
}

func (f *Formatter) SessionStarted(v interview.View) {
	cfg := v.Config
	kind := string(cfg.Type)
	if cfg.SubType != "" {
		kind += "/" + string(cfg.SubType)
	}
	fmt.Fprintf(f.w, "🎙️  Interview %s: %s, %s %s in %s, %d min\n",
		v.ID, kind, cfg.Difficulty, cfg.Role, cfg.Industry, cfg.DurationMinutes)
}

func (f *Formatter) Question(n int, text string) {
	fmt.Fprintf(f.w, "\n❓ Q%d: %s\n", n, text)
}

// Live prints the running metrics for the answer being composed.
func (f *Formatter) Live(v interview.View) {
	m := v.Metrics
	fmt.Fprintf(f.w, "   %d words · %d fillers · confidence %d · %s · %d wpm · %s left\n",
		m.WordCount, m.FillerCount, m.ConfidenceScore,
		metrics.FormatDuration(m.ResponseTime.Milliseconds()), m.SpeakingPace,
		metrics.FormatDuration(v.RemainingMs))
}

func (f *Formatter) Transcript(buf interview.AnswerBuffer) {
	if buf.Interim == "" {
		fmt.Fprintf(f.w, "🗣️  %s\n", buf.Committed)
		return
	}
	fmt.Fprintf(f.w, "🗣️  %s \x1b[2m%s\x1b[0m\n", buf.Committed, buf.Interim)
}

func (f *Formatter) Listening(on bool) {
	if on {
		fmt.Fprintf(f.w, "🎤 Listening...\n")
		return
	}
	fmt.Fprintf(f.w, "🔇 Microphone off\n")
}

func (f *Formatter) Submitting() {
	fmt.Fprintf(f.w, "📤 Submitting answer...\n")
}

// Feedback prints the evaluation attached to an answered turn.
func (f *Formatter) Feedback(t interview.Turn) {
	if t.Score == nil && t.Feedback == "" {
		fmt.Fprintf(f.w, "✅ Answer recorded (%s)\n", metrics.FormatDuration(t.EndedAt.Sub(t.StartedAt).Milliseconds()))
		return
	}
	if t.Score != nil {
		fmt.Fprintf(f.w, "✅ Score %.1f/10\n", *t.Score)
	}
	if t.Feedback != "" {
		fmt.Fprintf(f.w, "   %s\n", t.Feedback)
	}
}

func (f *Formatter) Finished(v interview.View) {
	fmt.Fprintf(f.w, "\n🏁 Interview complete: %d answers in %s\n", len(v.History), metrics.FormatDuration(v.ElapsedMs))
	if r := v.Report; r != nil {
		if r.OverallScore != nil {
			fmt.Fprintf(f.w, "   Overall score: %.1f\n", *r.OverallScore)
		}
		if r.ReportID != "" {
			fmt.Fprintf(f.w, "   Report: %s\n", r.ReportID)
		}
	}
	if !v.FinishAcknowledged {
		f.Warning("The backend has not confirmed the finish yet. Type /retry to try again.")
	}
}

func (f *Formatter) Help(voice bool) {
	lines := []string{
		"Type your answer; each line is added to it.",
		"  /submit  send the answer",
		"  /clear   discard the typed answer",
		"  /end     end the interview now",
	}
	if voice {
		lines = append(lines,
			"  /mic     turn the microphone on or off",
			"  /repeat  hear the question again")
	}
	lines = append(lines, "  /retry   retry finishing the interview", "  /quit    leave without finishing")
	fmt.Fprintf(f.w, "%s\n", strings.Join(lines, "\n"))
}

func (f *Formatter) Error(msg string) {
	fmt.Fprintf(f.w, "❌ %s\n", msg)
}

func (f *Formatter) Info(msg string) {
	fmt.Fprintf(f.w, "ℹ️  %s\n", msg)
}

func (f *Formatter) Success(msg string) {
	fmt.Fprintf(f.w, "✅ %s\n", msg)
}

func (f *Formatter) Warning(msg string) {
	fmt.Fprintf(f.w, "⚠️  %s\n", msg)
}

func (f *Formatter) SetupCheck(name string, ok bool, detail string) {
	if ok {
		fmt.Fprintf(f.w, "  ✅ %s: %s\n", name, detail)
	} else {
		fmt.Fprintf(f.w, "  ❌ %s: %s\n", name, detail)
	}
}
