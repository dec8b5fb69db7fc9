package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/msvee3/Interview-prep/internal/interview"
	"github.com/msvee3/Interview-prep/internal/metrics"
)

func TestFormatter_Live(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf)
	f.Live(interview.View{
		Metrics:     metrics.Live{WordCount: 9, FillerCount: 2, ConfidenceScore: 56, ResponseTime: 90 * time.Second, SpeakingPace: 6},
		RemainingMs: 1_500_000,
	})
	got := buf.String()
	for _, want := range []string{"9 words", "2 fillers", "confidence 56", "1:30", "25:00 left"} {
		if !strings.Contains(got, want) {
			t.Fatalf("missing %q in %q", want, got)
		}
	}
}

func TestFormatter_FinishedNeedsRetry(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf)
	score := 7.5
	f.Finished(interview.View{
		History:            make([]interview.Turn, 3),
		ElapsedMs:          61_000,
		Report:             &interview.FinishResult{ReportID: "iv-1", OverallScore: &score},
		FinishAcknowledged: true,
	})
	if got := buf.String(); !strings.Contains(got, "3 answers in 1:01") || !strings.Contains(got, "7.5") || strings.Contains(got, "/retry") {
		t.Fatalf("unexpected output %q", got)
	}
	buf.Reset()
	f.Finished(interview.View{})
	if !strings.Contains(buf.String(), "/retry") {
		t.Fatalf("expected retry hint, got %q", buf.String())
	}
}

func TestFormatter_FeedbackAndHelp(t *testing.T) {
	var buf bytes.Buffer
	f := NewFormatter(&buf)
	score := 8.0
	f.Feedback(interview.Turn{Score: &score, Feedback: "Clear explanation"})
	if got := buf.String(); !strings.Contains(got, "Score 8.0/10") || !strings.Contains(got, "Clear explanation") {
		t.Fatalf("unexpected feedback %q", got)
	}
	buf.Reset()
	f.Help(false)
	if strings.Contains(buf.String(), "/mic") {
		t.Fatalf("text help must not mention /mic")
	}
	buf.Reset()
	f.Help(true)
	if !strings.Contains(buf.String(), "/mic") {
		t.Fatalf("voice help must mention /mic")
	}
}
