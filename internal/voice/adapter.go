package voice

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultNoSpeechTimeout ends a capture stream that has produced no result.
const DefaultNoSpeechTimeout = 10 * time.Second

var errStreamEnded = errors.New("recognition stream ended")

// Adapter provides continuous speech capture and single-slot speech playback
// on top of a recognizer, an audio source, a synthesizer and an audio sink.
// A missing part makes the matching capability unsupported.
type Adapter struct {
	recognizer Recognizer
	source     AudioSource
	synth      Synthesizer
	sink       AudioSink
	noSpeech   time.Duration

	capMu   sync.Mutex
	capture *captureRun

	playMu   sync.Mutex
	sinkMu   sync.Mutex
	utter    *utterance
	speaking atomic.Bool
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

func WithCapture(r Recognizer, src AudioSource) AdapterOption {
	return func(a *Adapter) { a.recognizer, a.source = r, src }
}

func WithPlayback(s Synthesizer, sink AudioSink) AdapterOption {
	return func(a *Adapter) { a.synth, a.sink = s, sink }
}

// WithNoSpeechTimeout sets how long a stream may stay silent before it fails.
// Zero disables the check.
func WithNoSpeechTimeout(d time.Duration) AdapterOption {
	return func(a *Adapter) { a.noSpeech = d }
}

func NewAdapter(opts ...AdapterOption) *Adapter {
	a := &Adapter{noSpeech: DefaultNoSpeechTimeout}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Adapter) CaptureSupported() bool {
	return a.recognizer != nil && a.source != nil
}

func (a *Adapter) PlaybackSupported() bool {
	return a.synth != nil && a.sink != nil
}

type captureRun struct {
	cancel   context.CancelFunc
	done     chan struct{}
	onUpdate func(string, bool)
	onError  func(error)

	mu      sync.Mutex
	stopped bool
}

// deliver runs fn unless the run was stopped. Holding mu while fn runs is
// what lets stop guarantee no callback after it returns.
func (r *captureRun) deliver(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	fn()
}

// fail reports err and ends the run.
func (r *captureRun) fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	if r.onError != nil {
		r.onError(err)
	}
}

func (r *captureRun) stop() {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.cancel()
}

func (r *captureRun) active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.stopped
}

// StartCapture begins a recognition stream. It is a no-op while one is active
// and when capture is unsupported. Callbacks must not call back into the Adapter.
func (a *Adapter) StartCapture(onUpdate func(fragment string, final bool), onError func(err error)) {
	if !a.CaptureSupported() {
		return
	}
	a.capMu.Lock()
	defer a.capMu.Unlock()
	prev := a.capture
	if prev != nil && prev.active() {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	run := &captureRun{cancel: cancel, done: make(chan struct{}), onUpdate: onUpdate, onError: onError}
	a.capture = run
	go a.runCapture(ctx, run, prev)
}

// StopCapture ends the active stream. No callback of that stream runs after it returns.
func (a *Adapter) StopCapture() {
	a.capMu.Lock()
	run := a.capture
	a.capMu.Unlock()
	if run != nil {
		run.stop()
	}
}

func (a *Adapter) runCapture(ctx context.Context, run *captureRun, prev *captureRun) {
	defer close(run.done)
	defer run.cancel()
	if prev != nil {
		// The source and recognizer are single-owner; wait for the last run to let go.
		<-prev.done
	}

	stream, err := a.recognizer.Connect(ctx)
	if err != nil {
		if ctx.Err() == nil {
			run.fail(&Error{Code: ReasonNetwork, Err: err})
		}
		return
	}
	defer stream.Close()

	if err := a.source.Start(ctx, func(pcm []byte) {
		if err := stream.SendPCM16KLE(pcm); err != nil {
			log.Printf("voice: send audio: %v", err)
		}
	}); err != nil {
		run.fail(&Error{Code: ReasonAudioCapture, Err: err})
		return
	}
	defer a.source.Stop()

	var silent <-chan time.Time
	if a.noSpeech > 0 {
		t := time.NewTimer(a.noSpeech)
		defer t.Stop()
		silent = t.C
	}

	deliver := func(res Result) {
		run.deliver(func() {
			if run.onUpdate != nil {
				run.onUpdate(res.Text, res.Final)
			}
		})
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-silent:
			run.fail(&Error{Code: ReasonNoSpeech})
			return
		case res := <-stream.Results():
			silent = nil
			deliver(res)
		case <-stream.Done():
			for {
				select {
				case res := <-stream.Results():
					deliver(res)
					continue
				default:
				}
				break
			}
			if ctx.Err() != nil {
				return
			}
			err := stream.Err()
			if err == nil {
				err = errStreamEnded
			}
			run.fail(&Error{Code: ReasonNetwork, Err: err})
			return
		}
	}
}

type utterance struct {
	cancel    context.CancelFunc
	cancelled bool // guarded by Adapter.sinkMu
}

// Speak preempts the current utterance, then plays text. onComplete runs once
// if text plays to the end; a synthesis failure counts as the end.
func (a *Adapter) Speak(text string, onComplete func()) {
	if !a.PlaybackSupported() {
		return
	}
	a.playMu.Lock()
	defer a.playMu.Unlock()
	a.stopLocked()
	ctx, cancel := context.WithCancel(context.Background())
	u := &utterance{cancel: cancel}
	a.utter = u
	a.speaking.Store(true)
	go a.play(ctx, u, text, onComplete)
}

// StopSpeaking cancels the current utterance, if any.
func (a *Adapter) StopSpeaking() {
	if !a.PlaybackSupported() {
		return
	}
	a.playMu.Lock()
	defer a.playMu.Unlock()
	a.stopLocked()
}

func (a *Adapter) IsSpeaking() bool { return a.speaking.Load() }

func (a *Adapter) stopLocked() {
	if u := a.utter; u != nil {
		a.sinkMu.Lock()
		u.cancelled = true
		a.sink.Reset()
		a.sinkMu.Unlock()
		u.cancel()
		a.utter = nil
	}
	a.speaking.Store(false)
}

func (a *Adapter) play(ctx context.Context, u *utterance, text string, onComplete func()) {
	defer u.cancel()
	pcmCh, errCh := a.synth.StreamPCM48k(ctx, text)
	for pcm := range pcmCh {
		if !a.write(u, pcm) {
			return
		}
	}
	if err := <-errCh; err != nil && ctx.Err() == nil {
		log.Printf("voice: synthesis failed: %v", err)
	}

	a.sinkMu.Lock()
	if u.cancelled {
		a.sinkMu.Unlock()
		return
	}
	a.sink.FlushTail()
	a.sinkMu.Unlock()

	if err := a.sink.Drain(ctx); err != nil {
		return
	}

	a.playMu.Lock()
	if a.utter != u {
		a.playMu.Unlock()
		return
	}
	a.utter = nil
	a.speaking.Store(false)
	a.playMu.Unlock()
	if onComplete != nil {
		onComplete()
	}
}

func (a *Adapter) write(u *utterance, pcm []byte) bool {
	a.sinkMu.Lock()
	defer a.sinkMu.Unlock()
	if u.cancelled {
		return false
	}
	a.sink.WritePCM(pcm)
	return true
}
