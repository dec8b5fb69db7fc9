package tts

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/pkg/api/speak/v1/websocket/interfaces"
	clientinterfaces "github.com/deepgram/deepgram-go-sdk/pkg/client/interfaces/v1"
	"github.com/deepgram/deepgram-go-sdk/pkg/client/speak"
)

const (
	defaultDeepgramModel = "aura-2-thalia-en"
	// deepgramIdle ends an utterance once audio has stopped arriving for this long.
	deepgramIdle = 400 * time.Millisecond
	// deepgramMaxUtterance caps a single question; interview prompts are a few sentences.
	deepgramMaxUtterance = 30 * time.Second
)

// Deepgram synthesizes speech over the Deepgram speak websocket.
type Deepgram struct {
	apiKey     string
	model      string
	sampleRate int
	encoding   string
}

func NewDeepgram(apiKey, model string) *Deepgram {
	if model == "" {
		model = defaultDeepgramModel
	}
	return &Deepgram{apiKey: apiKey, model: model, sampleRate: 48000, encoding: "linear16"}
}

// StreamPCM48k streams linear16 48 kHz mono audio for text. Both channels are
// closed when the utterance ends, fails or ctx is cancelled.
func (d *Deepgram) StreamPCM48k(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	out := newPCMOut(4096)
	errCh := make(chan error, 1)

	go func() {
		defer out.close()
		defer close(errCh)

		if d.apiKey == "" {
			errCh <- errors.New("deepgram: API key missing")
			return
		}
		if text == "" {
			return
		}

		options := &clientinterfaces.WSSpeakOptions{
			Model:      d.model,
			Encoding:   d.encoding,
			SampleRate: d.sampleRate,
		}

		var lastRecv atomic.Int64
		cb := &speakCallback{onBinary: func(data []byte) error {
			if len(data) == 0 {
				return nil
			}
			lastRecv.Store(time.Now().UnixNano())
			b := make([]byte, len(data))
			copy(b, data)
			out.send(b)
			return nil
		}}

		dg, err := speak.NewWSUsingCallback(ctx, d.apiKey, &clientinterfaces.ClientOptions{}, options, cb)
		if err != nil {
			errCh <- fmt.Errorf("deepgram: create ws client: %w", err)
			return
		}
		defer dg.Stop()

		if ok := dg.Connect(); !ok {
			errCh <- errors.New("deepgram: connect failed")
			return
		}
		if err := dg.SpeakWithText(text); err != nil {
			errCh <- fmt.Errorf("deepgram: speak text: %w", err)
			return
		}
		if err := dg.Flush(); err != nil {
			log.Printf("deepgram: flush error: %v", err)
		}

		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		deadline := time.Now().Add(deepgramMaxUtterance)
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				if last := lastRecv.Load(); last != 0 && now.Sub(time.Unix(0, last)) > deepgramIdle {
					return
				}
				if now.After(deadline) {
					log.Printf("deepgram: utterance cut at %s", deepgramMaxUtterance)
					return
				}
			}
		}
	}()

	return out.ch, errCh
}

// pcmOut is the audio channel handed to the SDK callback, which may still
// fire after the stream has ended.
type pcmOut struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

func newPCMOut(size int) *pcmOut {
	return &pcmOut{ch: make(chan []byte, size)}
}

// send queues b without blocking. It reports false once the channel is closed.
func (o *pcmOut) send(b []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return false
	}
	select {
	case o.ch <- b:
	default:
		log.Printf("deepgram: audio buffer full, dropping %d bytes", len(b))
	}
	return true
}

func (o *pcmOut) close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.closed {
		o.closed = true
		close(o.ch)
	}
}

type speakCallback struct{ onBinary func([]byte) error }

func (s *speakCallback) Open(*msginterfaces.OpenResponse) error         { return nil }
func (s *speakCallback) Metadata(*msginterfaces.MetadataResponse) error { return nil }
func (s *speakCallback) Flush(*msginterfaces.FlushedResponse) error     { return nil }
func (s *speakCallback) Clear(*msginterfaces.ClearedResponse) error     { return nil }
func (s *speakCallback) Close(*msginterfaces.CloseResponse) error       { return nil }
func (s *speakCallback) Warning(w *msginterfaces.WarningResponse) error {
	log.Printf("deepgram: warning: %+v", w)
	return nil
}
func (s *speakCallback) Error(e *msginterfaces.ErrorResponse) error {
	log.Printf("deepgram: error: %+v", e)
	return nil
}
func (s *speakCallback) UnhandledEvent([]byte) error { return nil }
func (s *speakCallback) Binary(byMsg []byte) error {
	if s.onBinary != nil {
		return s.onBinary(byMsg)
	}
	return nil
}
