package interview

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/msvee3/Interview-prep/internal/metrics"
)

const (
	opStart  = "start"
	opResume = "resume"
	opSubmit = "submit"
	opFinish = "finish"
)

const (
	defaultTickInterval   = time.Second
	defaultRequestTimeout = 30 * time.Second
	archiveTimeout        = 30 * time.Second
)

// Session outcomes reported to the Observer.
const (
	OutcomeCompleted = "completed"
	OutcomeEnded     = "ended"
	OutcomeError     = "error"
	OutcomeAbandoned = "abandoned"
)

// Session drives one interview from start to finish.
//
// All session state is owned by a single goroutine. Commands, voice callbacks
// and backend completions are posted to its mailbox and applied one at a time;
// the published View is swapped atomically after each step so readers never
// observe a half-applied update.
type Session struct {
	gateway   Gateway
	voice     Voice
	listener  func(Event)
	observer  Observer
	archiver  Archiver
	now       func() time.Time
	tickEvery time.Duration
	timeout   time.Duration

	mbox      *mailbox
	view      atomic.Pointer[View]
	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the run goroutine.
	state       State
	id          string
	config      Config
	status      Status
	history     []Turn
	question    string
	askedAt     time.Time
	buf         AnswerBuffer
	live        metrics.Live
	spoken      bool
	listening   bool
	speaking    bool
	captureGen  uint64
	speakGen    uint64
	submitSeq   uint64
	inflight    *submission
	started     bool
	active      bool
	startedAt   time.Time
	finishedAt  time.Time
	pending     *Turn
	finishing   bool
	finishAcked bool
	report      *FinishResult
	archived    bool
	archivedAck bool
	archiveDone chan struct{}
	lastErr     string
	closed      bool
	events      []notedEvent
	deferred    []func()
}

type submission struct {
	seq    uint64
	answer string
	at     time.Time
	cancel context.CancelFunc
	reply  func(SubmitOutcome, error)
}

type notedEvent struct {
	kind EventKind
	msg  string
	at   time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithVoice attaches a voice adapter. Without one the session is text only.
func WithVoice(v Voice) Option {
	return func(s *Session) {
		if v != nil {
			s.voice = v
		}
	}
}

// WithListener registers fn for every event. fn runs on the session goroutine
// and must return quickly; it may call View but no other Session method.
func WithListener(fn func(Event)) Option {
	return func(s *Session) { s.listener = fn }
}

func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithArchiver stores the finished interview once the backend has been told.
func WithArchiver(a Archiver) Option {
	return func(s *Session) { s.archiver = a }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTickInterval sets the display refresh period. Zero disables the tick.
func WithTickInterval(d time.Duration) Option {
	return func(s *Session) { s.tickEvery = d }
}

// WithRequestTimeout bounds each backend call.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewSession creates a session in the Loading state. Call Start or Resume next,
// and Close when done with it.
func NewSession(gw Gateway, cfg Config, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		gateway:   gw,
		voice:     nopVoice{},
		observer:  nopObserver{},
		now:       time.Now,
		tickEvery: defaultTickInterval,
		timeout:   defaultRequestTimeout,
		mbox:      newMailbox(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		config:    cfg,
		status:    StatusInProgress,
		state:     StateLoading,
	}
	for _, opt := range opts {
		opt(s)
	}
	v := s.snapshot()
	s.view.Store(&v)
	go s.run()
	return s
}

// View returns the latest published state. It never blocks.
func (s *Session) View() View {
	return *s.view.Load()
}

// Done is closed once the session has been torn down.
func (s *Session) Done() <-chan struct{} { return s.done }

// Start creates the interview on the backend, fetches its state and presents
// the first question. Any failure leaves the session in the Error state.
func (s *Session) Start(ctx context.Context) error {
	_, err := roundTrip(s, ctx, func(reply func(struct{}, error)) {
		if err := s.requireFresh(); err != nil {
			reply(struct{}{}, err)
			return
		}
		s.started = true
		if err := s.config.Validate(); err != nil {
			s.state = StateError
			s.lastErr = err.Error()
			s.note(EventState, "")
			s.note(EventValidation, err.Error())
			reply(struct{}{}, err)
			return
		}
		cfg := s.config
		rctx, cancel := s.requestContext()
		go func() {
			defer cancel()
			res, err := s.gateway.Start(rctx, cfg)
			if err != nil {
				s.mbox.post(func() { s.onLoaded(opStart, Snapshot{}, err, reply) })
				return
			}
			snap, err := s.gateway.GetState(rctx, res.SessionID)
			if err == nil {
				if snap.ID == "" {
					snap.ID = res.SessionID
				}
				if snap.CurrentQuestion == "" {
					snap.CurrentQuestion = res.FirstQuestion
				}
				snap.Config = cfg
			}
			s.mbox.post(func() { s.onLoaded(opStart, snap, err, reply) })
		}()
	})
	return err
}

// Resume attaches the session to an interview that already exists on the
// backend. A completed interview resumes straight into Finished.
func (s *Session) Resume(ctx context.Context, sessionID string) error {
	_, err := roundTrip(s, ctx, func(reply func(struct{}, error)) {
		if err := s.requireFresh(); err != nil {
			reply(struct{}{}, err)
			return
		}
		s.started = true
		rctx, cancel := s.requestContext()
		go func() {
			defer cancel()
			snap, err := s.gateway.GetState(rctx, sessionID)
			if err == nil && snap.ID == "" {
				snap.ID = sessionID
			}
			s.mbox.post(func() { s.onLoaded(opResume, snap, err, reply) })
		}()
	})
	return err
}

func (s *Session) onLoaded(op string, snap Snapshot, err error, reply func(struct{}, error)) {
	if err == nil && snap.Status != StatusCompleted && snap.CurrentQuestion == "" {
		err = errors.New("backend returned no question")
	}
	if err != nil {
		berr := &BackendError{Op: op, Err: err}
		s.fail(berr)
		reply(struct{}{}, berr)
		return
	}
	s.id = snap.ID
	if op == opResume {
		s.config = snap.Config
	}
	s.status = snap.Status
	if s.status == "" {
		s.status = StatusInProgress
	}
	s.history = append([]Turn(nil), snap.History...)
	s.startedAt = s.now()

	if s.status == StatusCompleted {
		log.Printf("[%s] interview already completed", s.id)
		s.state = StateFinished
		s.finishedAt = s.startedAt
		s.finishAcked = true
		s.note(EventState, "")
		s.note(EventFinished, "")
		reply(struct{}{}, nil)
		return
	}

	log.Printf("[%s] interview %s (%s %s, %s, %d min)", s.id, op, s.config.Type, s.config.SubType, s.config.Difficulty, s.config.DurationMinutes)
	s.active = true
	s.observer.SessionStarted()
	s.askQuestion(snap.CurrentQuestion)
	reply(struct{}{}, nil)
}

// Input replaces the typed answer with text.
func (s *Session) Input(text string) error {
	return s.do(func() error {
		if err := s.require(StateAwaitingAnswer); err != nil {
			return err
		}
		s.buf.replaceText(text, s.now())
		s.spoken = false
		s.recompute()
		s.note(EventBuffer, "")
		return nil
	})
}

// SubmitOutcome is what a successful submit led to.
type SubmitOutcome struct {
	NextQuestion string
	Finished     bool
	Evaluation   *Evaluation
}

// Submit sends the buffered answer. An empty answer is rejected with
// ErrEmptyAnswer and nothing changes. A failed call keeps the buffer so the
// same answer can be submitted again. ctx only bounds the wait: the request
// belongs to the session and is cancelled by End or Close.
func (s *Session) Submit(ctx context.Context) (SubmitOutcome, error) {
	return roundTrip(s, ctx, func(reply func(SubmitOutcome, error)) {
		if err := s.require(StateAwaitingAnswer); err != nil {
			reply(SubmitOutcome{}, err)
			return
		}
		if s.buf.Empty() {
			s.note(EventValidation, ErrEmptyAnswer.Message)
			reply(SubmitOutcome{}, ErrEmptyAnswer)
			return
		}
		s.stopCapture()
		s.stopSpeech()

		now := s.now()
		answer := s.buf.Text()
		elapsed := s.buf.Elapsed(now)
		s.live = metrics.Compute(answer, s.buf.StartedAt, now)

		s.submitSeq++
		rctx, cancel := s.requestContext()
		sub := &submission{seq: s.submitSeq, answer: answer, at: now, cancel: cancel, reply: reply}
		s.inflight = sub
		s.lastErr = ""
		s.state = StateSubmitting
		s.note(EventState, "")
		log.Printf("[%s] submitting answer (%d words, %s)", s.id, s.live.WordCount, metrics.FormatDuration(elapsed.Milliseconds()))

		id := s.id
		go func() {
			defer cancel()
			res, err := s.gateway.SubmitAnswer(rctx, id, answer, elapsed)
			s.mbox.post(func() { s.onSubmitted(sub, res, err) })
		}()
	})
}

func (s *Session) onSubmitted(sub *submission, res SubmitResult, err error) {
	if s.state != StateSubmitting || s.inflight != sub {
		return
	}
	s.inflight = nil
	if err != nil {
		berr := &BackendError{Op: opSubmit, Err: err}
		if berr.Unrecoverable() {
			s.fail(berr)
			sub.reply(SubmitOutcome{}, berr)
			return
		}
		log.Printf("[%s] %v", s.id, berr)
		s.lastErr = berr.Error()
		s.state = StateAwaitingAnswer
		s.note(EventState, "")
		s.note(EventBackendError, berr.Error())
		sub.reply(SubmitOutcome{}, berr)
		return
	}

	s.observer.AnswerSubmitted(s.spoken)
	turn := s.openTurn(sub.answer, sub.at)
	if ev := res.Evaluation; ev != nil {
		score := ev.Score
		turn.Score = &score
		turn.Feedback = ev.Feedback
		turn.ModelAnswer = ev.ModelAnswer
	}
	s.history = append(s.history, turn)
	s.note(EventTurn, "")

	if res.HasNext() {
		s.askQuestion(res.NextQuestion)
		sub.reply(SubmitOutcome{NextQuestion: res.NextQuestion, Evaluation: res.Evaluation}, nil)
		return
	}
	log.Printf("[%s] no further questions", s.id)
	s.finish(nil, OutcomeCompleted, func(FinishResult, error) {
		sub.reply(SubmitOutcome{Finished: true, Evaluation: res.Evaluation}, nil)
	})
}

// End terminates the interview early. The unanswered turn, if any, is passed
// to the backend's finish call. The session is Finished even if that call
// fails; RetryFinish may then be used.
func (s *Session) End(ctx context.Context) (FinishResult, error) {
	return roundTrip(s, ctx, func(reply func(FinishResult, error)) {
		if err := s.require(StateAwaitingAnswer, StateSubmitting); err != nil {
			reply(FinishResult{}, err)
			return
		}
		var pending Turn
		if sub := s.inflight; sub != nil {
			s.inflight = nil
			sub.cancel()
			pending = s.openTurn(sub.answer, sub.at)
			sub.reply(SubmitOutcome{}, ErrSessionTerminal)
		} else {
			pending = s.openTurn(s.buf.Text(), s.now())
		}
		log.Printf("[%s] interview ended by user", s.id)
		s.finish(&pending, OutcomeEnded, reply)
	})
}

// RetryFinish repeats a finish call the backend has not yet acknowledged.
func (s *Session) RetryFinish(ctx context.Context) (FinishResult, error) {
	return roundTrip(s, ctx, func(reply func(FinishResult, error)) {
		switch {
		case s.state == StateError:
			reply(FinishResult{}, ErrSessionTerminal)
		case s.state != StateFinished:
			reply(FinishResult{}, ErrBusy)
		case s.finishAcked:
			reply(FinishResult{}, ErrSessionTerminal)
		case s.finishing:
			reply(FinishResult{}, ErrBusy)
		default:
			s.requestFinish(reply)
		}
	})
}

// StartCapture turns the microphone on for the current answer. Any question
// still being spoken is cut off.
func (s *Session) StartCapture() error {
	return s.do(func() error {
		if err := s.require(StateAwaitingAnswer); err != nil {
			return err
		}
		if !s.voice.CaptureSupported() {
			return ErrCaptureUnsupported
		}
		s.stopSpeech()
		s.startCapture()
		return nil
	})
}

// StopCapture turns the microphone off. Text already recognized stays in the buffer.
func (s *Session) StopCapture() error {
	return s.do(func() error {
		if s.state.Terminal() {
			return ErrSessionTerminal
		}
		s.stopCapture()
		return nil
	})
}

// RepeatQuestion speaks the current question again.
func (s *Session) RepeatQuestion() error {
	return s.do(func() error {
		if err := s.require(StateAwaitingAnswer); err != nil {
			return err
		}
		if !s.voice.PlaybackSupported() {
			return ErrPlaybackUnsupported
		}
		resume := s.listening || s.config.VoiceEnabled
		s.stopCapture()
		s.speakQuestion(resume)
		return nil
	})
}

// Close tears the session down: capture and speech are stopped, the display
// tick and any in-flight request are cancelled. It is safe to call more than
// once and from any goroutine except a listener.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mbox.post(s.teardown)
	})
	<-s.done
}

func (s *Session) teardown() {
	s.captureGen++
	s.speakGen++
	s.voice.StopCapture()
	s.voice.StopSpeaking()
	s.listening = false
	s.speaking = false
	if sub := s.inflight; sub != nil {
		s.inflight = nil
		sub.cancel()
	}
	s.cancel()
	s.endSession(OutcomeAbandoned)
	s.mbox.close()
	s.closed = true
	if s.id != "" {
		log.Printf("[%s] session closed in state %s", s.id, s.state)
	}
}

func (s *Session) run() {
	defer close(s.done)
	var tick <-chan time.Time
	if s.tickEvery > 0 {
		t := time.NewTicker(s.tickEvery)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-s.mbox.ready():
			for _, fn := range s.mbox.drain() {
				fn()
				s.flush()
				if s.closed {
					return
				}
			}
		case <-tick:
			s.onTick()
			s.flush()
		}
	}
}

// askQuestion opens a new turn for q.
func (s *Session) askQuestion(q string) {
	s.question = q
	s.askedAt = s.now()
	s.buf = AnswerBuffer{}
	s.live = metrics.Live{}
	s.spoken = false
	s.state = StateAwaitingAnswer
	s.note(EventState, "")
	s.note(EventQuestion, q)
	s.presentQuestion()
}

func (s *Session) presentQuestion() {
	if !s.config.VoiceEnabled {
		return
	}
	if !s.voice.PlaybackSupported() {
		log.Printf("[%s] %v, showing question as text", s.id, ErrPlaybackUnsupported)
		s.startCapture()
		return
	}
	s.speakQuestion(true)
}

func (s *Session) speakQuestion(thenCapture bool) {
	s.speakGen++
	gen := s.speakGen
	s.speaking = true
	s.note(EventSpeaking, "")
	s.voice.Speak(s.question, func() {
		s.mbox.post(func() { s.onSpoken(gen, thenCapture) })
	})
}

func (s *Session) onSpoken(gen uint64, thenCapture bool) {
	if gen != s.speakGen {
		return
	}
	s.speaking = false
	s.note(EventSpeaking, "")
	if thenCapture && s.state == StateAwaitingAnswer {
		s.startCapture()
	}
}

func (s *Session) stopSpeech() {
	if !s.speaking {
		return
	}
	s.speakGen++
	s.speaking = false
	s.voice.StopSpeaking()
	s.note(EventSpeaking, "")
}

func (s *Session) startCapture() {
	if s.listening || !s.voice.CaptureSupported() {
		return
	}
	s.captureGen++
	gen := s.captureGen
	s.listening = true
	s.note(EventCapture, "")
	s.voice.StartCapture(
		func(fragment string, final bool) {
			s.mbox.post(func() { s.onFragment(gen, fragment, final) })
		},
		func(err error) {
			s.mbox.post(func() { s.onCaptureError(gen, err) })
		},
	)
}

// stopCapture ends the stream. Results it already posted carry a stale
// generation and are dropped.
func (s *Session) stopCapture() {
	if !s.listening {
		return
	}
	s.captureGen++
	s.listening = false
	s.voice.StopCapture()
	s.note(EventCapture, "")
}

func (s *Session) onFragment(gen uint64, fragment string, final bool) {
	if gen != s.captureGen || s.state != StateAwaitingAnswer {
		return
	}
	s.buf.applyFragment(fragment, final, s.now())
	s.spoken = true
	s.recompute()
	s.note(EventBuffer, "")
}

func (s *Session) onCaptureError(gen uint64, err error) {
	if gen != s.captureGen {
		return
	}
	s.captureGen++
	s.listening = false
	cerr := &CaptureError{Reason: captureReason(err), Err: err}
	log.Printf("[%s] %v", s.id, cerr)
	s.lastErr = cerr.Error()
	s.observer.CaptureFailed(cerr.Reason)
	s.note(EventCapture, "")
	s.note(EventCaptureError, cerr.Error())
}

func (s *Session) onTick() {
	if s.state != StateAwaitingAnswer || s.buf.StartedAt.IsZero() {
		return
	}
	s.recompute()
	s.note(EventTick, "")
}

func (s *Session) recompute() {
	s.live = metrics.Compute(s.buf.Text(), s.buf.StartedAt, s.now())
}

// openTurn closes the current question with answer at end.
func (s *Session) openTurn(answer string, end time.Time) Turn {
	start := s.buf.StartedAt
	if start.IsZero() {
		start = s.askedAt
	}
	if end.Before(start) {
		end = start
	}
	return Turn{QuestionText: s.question, AnswerText: answer, StartedAt: start, EndedAt: end}
}

// finish moves to Finished immediately and tells the backend.
func (s *Session) finish(pending *Turn, outcome string, reply func(FinishResult, error)) {
	s.stopCapture()
	s.stopSpeech()
	s.state = StateFinished
	s.status = StatusCompleted
	s.finishedAt = s.now()
	s.pending = pending
	s.endSession(outcome)
	s.note(EventState, "")
	s.requestFinish(reply)
}

func (s *Session) requestFinish(reply func(FinishResult, error)) {
	s.finishing = true
	rctx, cancel := s.requestContext()
	id, pending := s.id, s.pending
	go func() {
		defer cancel()
		res, err := s.gateway.Finish(rctx, id, pending)
		s.mbox.post(func() { s.onFinished(res, err, reply) })
	}()
}

func (s *Session) onFinished(res FinishResult, err error, reply func(FinishResult, error)) {
	s.finishing = false
	if err != nil {
		berr := &BackendError{Op: opFinish, Err: err}
		log.Printf("[%s] %v", s.id, berr)
		s.lastErr = berr.Error()
		s.note(EventBackendError, berr.Error())
		s.archive()
		reply(FinishResult{}, berr)
		return
	}
	s.finishAcked = true
	s.report = &res
	s.lastErr = ""
	log.Printf("[%s] interview finished (%d turns)", s.id, len(s.history))
	s.note(EventFinished, "")
	s.archive()
	reply(res, nil)
}

// archive uploads the record once when the session finishes, and again with
// the report once the backend acknowledges. Uploads run in order.
func (s *Session) archive() {
	if s.archiver == nil || s.archivedAck || (s.archived && !s.finishAcked) {
		return
	}
	s.archived = true
	s.archivedAck = s.finishAcked
	rec := Record{
		ID:         s.id,
		Config:     s.config,
		StartedAt:  s.startedAt,
		FinishedAt: s.finishedAt,
		History:    s.history[:len(s.history):len(s.history)],
		Report:     s.report,
	}
	prev, done := s.archiveDone, make(chan struct{})
	s.archiveDone = done
	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		defer cancel()
		if err := s.archiver.Archive(ctx, rec); err != nil {
			log.Printf("[%s] archive failed: %v", rec.ID, err)
		}
	}()
}

func (s *Session) fail(err *BackendError) {
	s.stopCapture()
	s.stopSpeech()
	log.Printf("[%s] %v", s.id, err)
	s.state = StateError
	s.lastErr = err.Error()
	s.endSession(OutcomeError)
	s.note(EventState, "")
	s.note(EventBackendError, err.Error())
}

func (s *Session) endSession(outcome string) {
	if !s.active {
		return
	}
	s.active = false
	s.observer.SessionEnded(outcome)
}

func (s *Session) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.ctx, s.timeout)
}

func (s *Session) require(states ...State) error {
	if s.state.Terminal() {
		return ErrSessionTerminal
	}
	for _, st := range states {
		if s.state == st {
			return nil
		}
	}
	return ErrBusy
}

func (s *Session) requireFresh() error {
	if s.state.Terminal() {
		return ErrSessionTerminal
	}
	if s.started {
		return ErrBusy
	}
	return nil
}

func (s *Session) note(kind EventKind, msg string) {
	s.events = append(s.events, notedEvent{kind: kind, msg: msg, at: s.now()})
}

// flush publishes the view for the step just applied, then delivers its
// events and command replies.
func (s *Session) flush() {
	v := s.snapshot()
	s.view.Store(&v)
	events := s.events
	s.events = nil
	if s.listener != nil {
		for _, e := range events {
			s.listener(Event{Kind: e.kind, At: e.at, Message: e.msg, View: v})
		}
	}
	deferred := s.deferred
	s.deferred = nil
	for _, fn := range deferred {
		fn()
	}
}

func (s *Session) snapshot() View {
	now := s.now()
	history := s.history[:len(s.history):len(s.history)]
	if history == nil {
		history = []Turn{}
	}
	elapsed := s.live.ResponseTime
	if s.state == StateAwaitingAnswer {
		elapsed = s.buf.Elapsed(now)
	}
	v := View{
		ID:                 s.id,
		Config:             s.config,
		State:              s.state,
		Status:             s.status,
		History:            history,
		CurrentQuestion:    s.question,
		Buffer:             s.buf,
		Metrics:            s.live,
		ElapsedMs:          elapsed.Milliseconds(),
		Listening:          s.listening,
		Speaking:           s.speaking,
		CaptureAvailable:   s.voice.CaptureSupported(),
		PlaybackAvailable:  s.voice.PlaybackSupported(),
		StartedAt:          s.startedAt,
		Report:             s.report,
		FinishAcknowledged: s.finishAcked,
		LastError:          s.lastErr,
	}
	if !s.startedAt.IsZero() {
		end := now
		if !s.finishedAt.IsZero() {
			end = s.finishedAt
		}
		if remaining := s.config.Duration() - end.Sub(s.startedAt); remaining > 0 {
			v.RemainingMs = remaining.Milliseconds()
		}
	}
	return v
}

// do runs fn on the session goroutine and returns its error.
func (s *Session) do(fn func() error) error {
	_, err := roundTrip(s, context.Background(), func(reply func(struct{}, error)) {
		reply(struct{}{}, fn())
	})
	return err
}

type result[T any] struct {
	v   T
	err error
}

// roundTrip posts fn and waits for the reply it eventually sends. Replies are
// delivered after the step's view has been published.
func roundTrip[T any](s *Session, ctx context.Context, fn func(reply func(T, error))) (T, error) {
	ch := make(chan result[T], 1)
	reply := func(v T, err error) {
		s.deferred = append(s.deferred, func() {
			select {
			case ch <- result[T]{v, err}:
			default:
			}
		})
	}
	var zero T
	if !s.mbox.post(func() { fn(reply) }) {
		return zero, ErrClosed
	}
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-s.done:
		select {
		case r := <-ch:
			return r.v, r.err
		default:
		}
		return zero, ErrClosed
	}
}
