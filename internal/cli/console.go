package cli

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/msvee3/Interview-prep/internal/interview"
	"github.com/msvee3/Interview-prep/internal/output"
)

const consoleEvents = 256

// console drives one session from a line-oriented terminal.
type console struct {
	f       *output.Formatter
	in      io.Reader
	session *interview.Session
	events  chan interview.Event
	voice   bool
}

func newConsole(f *output.Formatter, in io.Reader, voice bool) *console {
	return &console{f: f, in: in, events: make(chan interview.Event, consoleEvents), voice: voice}
}

// listen is the session listener. It runs on the session goroutine, so it
// only hands the event over.
func (c *console) listen(ev interview.Event) {
	select {
	case c.events <- ev:
	default:
	}
}

// run prints events and executes commands until the interview is over, the
// user quits or ctx is cancelled.
func (c *console) run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(c.in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	c.f.Help(c.voice)
	for {
		select {
		case <-ctx.Done():
			c.f.Info("Interrupted, leaving the interview unfinished.")
			return nil
		case <-c.session.Done():
			return nil
		case ev := <-c.events:
			if done := c.show(ev); done {
				return nil
			}
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if done := c.drain(); done {
				return nil
			}
			if quit := c.command(ctx, strings.TrimSpace(line)); quit {
				return nil
			}
		}
	}
}

// drain shows the events already queued so output stays in order with commands.
func (c *console) drain() bool {
	for {
		select {
		case ev := <-c.events:
			if c.show(ev) {
				return true
			}
		default:
			return false
		}
	}
}

// show renders ev and reports whether the interview is over.
func (c *console) show(ev interview.Event) bool {
	v := ev.View
	switch ev.Kind {
	case interview.EventQuestion:
		c.f.Question(len(v.History)+1, v.CurrentQuestion)
	case interview.EventBuffer:
		if v.Listening {
			c.f.Transcript(v.Buffer)
		}
		c.f.Live(v)
	case interview.EventCapture:
		c.f.Listening(v.Listening)
	case interview.EventValidation:
		c.f.Warning(ev.Message)
	case interview.EventCaptureError:
		c.f.Warning(ev.Message + ". Type your answer instead, or /mic to try again.")
	case interview.EventBackendError:
		c.f.Error(ev.Message)
		if v.State == interview.StateFinished && !v.FinishAcknowledged {
			c.f.Finished(v)
		}
	case interview.EventTurn:
		if n := len(v.History); n > 0 {
			c.f.Feedback(v.History[n-1])
		}
	case interview.EventState:
		switch v.State {
		case interview.StateSubmitting:
			c.f.Submitting()
		case interview.StateError:
			c.f.Error("The interview cannot continue: " + v.LastError)
			return true
		}
	case interview.EventFinished:
		c.f.Finished(v)
		return true
	}
	return false
}

// command executes one input line and reports whether to quit.
func (c *console) command(ctx context.Context, line string) bool {
	var err error
	switch line {
	case "":
		return false
	case "/quit":
		return true
	case "/help":
		c.f.Help(c.voice)
	case "/submit":
		_, err = c.session.Submit(ctx)
	case "/clear":
		err = c.session.Input("")
	case "/end":
		_, err = c.session.End(ctx)
	case "/retry":
		_, err = c.session.RetryFinish(ctx)
	case "/repeat":
		err = c.session.RepeatQuestion()
	case "/mic":
		if c.session.View().Listening {
			err = c.session.StopCapture()
		} else {
			err = c.session.StartCapture()
		}
	default:
		if strings.HasPrefix(line, "/") {
			c.f.Warning("Unknown command " + line + ". Type /help for the list.")
			return false
		}
		text := c.session.View().Buffer.Text()
		if text != "" {
			text += " "
		}
		err = c.session.Input(text + line)
	}
	c.report(err)
	return false
}

// report prints command errors the event stream does not already cover.
func (c *console) report(err error) {
	var verr *interview.ValidationError
	var berr *interview.BackendError
	switch {
	case err == nil:
	case errors.As(err, &verr), errors.As(err, &berr):
	case errors.Is(err, interview.ErrSessionTerminal):
		c.f.Warning("The interview is over.")
	case errors.Is(err, interview.ErrBusy):
		c.f.Warning("Please wait for the current answer to be scored.")
	case errors.Is(err, interview.ErrCaptureUnsupported):
		c.f.Warning("Speech capture is not available. Type your answer instead.")
	case errors.Is(err, interview.ErrPlaybackUnsupported):
		c.f.Warning("Speech playback is not available.")
	default:
		c.f.Error(err.Error())
	}
}
