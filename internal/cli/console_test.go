package cli

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/msvee3/Interview-prep/internal/interview"
	"github.com/msvee3/Interview-prep/internal/output"
)

type fakeGateway struct {
	mu       sync.Mutex
	answers  []string
	finishes int
	pending  *interview.Turn
	next     []string
}

func (g *fakeGateway) Start(ctx context.Context, cfg interview.Config) (interview.StartResult, error) {
	return interview.StartResult{SessionID: "iv-1", FirstQuestion: "What is a hash map?"}, nil
}

func (g *fakeGateway) GetState(ctx context.Context, id string) (interview.Snapshot, error) {
	return interview.Snapshot{ID: id, Status: interview.StatusInProgress}, nil
}

func (g *fakeGateway) SubmitAnswer(ctx context.Context, id, answer string, elapsed time.Duration) (interview.SubmitResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.answers = append(g.answers, answer)
	if len(g.next) == 0 {
		return interview.SubmitResult{Completed: true, Evaluation: &interview.Evaluation{Score: 8, Feedback: "Clear."}}, nil
	}
	q := g.next[0]
	g.next = g.next[1:]
	return interview.SubmitResult{NextQuestion: q}, nil
}

func (g *fakeGateway) Finish(ctx context.Context, id string, pending *interview.Turn) (interview.FinishResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.finishes++
	g.pending = pending
	return interview.FinishResult{ReportID: "rep-1"}, nil
}

var validConfig = interview.Config{
	Type:            interview.TypeTechnical,
	SubType:         interview.SubTypeDSA,
	Industry:        "fintech",
	Role:            "backend engineer",
	Difficulty:      interview.DifficultyMid,
	DurationMinutes: 30,
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// startConsole wires a console to a started session reading lines from the returned writer.
func startConsole(t *testing.T, gw interview.Gateway) (*console, *io.PipeWriter, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	pr, pw := io.Pipe()
	con := newConsole(output.NewFormatter(out), pr, false)
	con.session = interview.NewSession(gw, validConfig, interview.WithListener(con.listen), interview.WithTickInterval(0))
	t.Cleanup(con.session.Close)
	t.Cleanup(func() { _ = pw.Close() })
	if err := con.session.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return con, pw, out
}

func runConsole(t *testing.T, con *console) <-chan error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	errc := make(chan error, 1)
	go func() { errc <- con.run(ctx) }()
	return errc
}

func waitDone(t *testing.T, errc <-chan error) {
	t.Helper()
	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("console did not finish")
	}
}

func TestConsole_TypedInterviewToFinish(t *testing.T) {
	gw := &fakeGateway{next: []string{"How do you resize one?"}}
	con, pw, out := startConsole(t, gw)
	errc := runConsole(t, con)

	for _, line := range []string{"A hash map", "stores key value pairs", "/submit", "Double the buckets", "/submit"} {
		if _, err := io.WriteString(pw, line+"\n"); err != nil {
			t.Fatalf("write %q: %v", line, err)
		}
	}
	waitDone(t, errc)

	gw.mu.Lock()
	defer gw.mu.Unlock()
	if len(gw.answers) != 2 || gw.answers[0] != "A hash map stores key value pairs" || gw.answers[1] != "Double the buckets" {
		t.Fatalf("unexpected answers %q", gw.answers)
	}
	if gw.finishes != 1 {
		t.Fatalf("expected one finish call, got %d", gw.finishes)
	}
	text := out.String()
	for _, want := range []string{"What is a hash map?", "How do you resize one?", "Interview complete: 2 answers", "rep-1", "Score 8.0/10"} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
}

func TestConsole_EmptySubmitAndVoiceCommands(t *testing.T) {
	gw := &fakeGateway{}
	con, pw, out := startConsole(t, gw)
	errc := runConsole(t, con)

	for _, line := range []string{"/submit", "/mic", "/bogus", "/quit"} {
		if _, err := io.WriteString(pw, line+"\n"); err != nil {
			t.Fatalf("write %q: %v", line, err)
		}
	}
	waitDone(t, errc)

	gw.mu.Lock()
	if len(gw.answers) != 0 {
		t.Fatalf("empty answer must not reach the backend")
	}
	gw.mu.Unlock()
	text := out.String()
	for _, want := range []string{"please provide an answer", "Speech capture is not available", "Unknown command /bogus"} {
		if !strings.Contains(text, want) {
			t.Fatalf("output missing %q:\n%s", want, text)
		}
	}
	if con.session.View().State != interview.StateAwaitingAnswer {
		t.Fatalf("quit must leave the interview open, got %v", con.session.View().State)
	}
}

func TestConsole_EndSendsPendingAnswer(t *testing.T) {
	gw := &fakeGateway{}
	con, pw, out := startConsole(t, gw)
	errc := runConsole(t, con)

	for _, line := range []string{"partial thought", "/end"} {
		if _, err := io.WriteString(pw, line+"\n"); err != nil {
			t.Fatalf("write %q: %v", line, err)
		}
	}
	waitDone(t, errc)

	v := con.session.View()
	if v.State != interview.StateFinished || !v.FinishAcknowledged {
		t.Fatalf("expected acknowledged finish, got %v ack=%v", v.State, v.FinishAcknowledged)
	}
	gw.mu.Lock()
	pending := gw.pending
	gw.mu.Unlock()
	if pending == nil || pending.AnswerText != "partial thought" || pending.QuestionText != "What is a hash map?" {
		t.Fatalf("unexpected pending turn %+v", pending)
	}
	if !strings.Contains(out.String(), "Interview complete: 0 answers") {
		t.Fatalf("expected finish summary:\n%s", out.String())
	}
}
