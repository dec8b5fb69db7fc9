package voice

import (
	"context"
	"fmt"
)

// Result is one recognition update. Final results will not be revised.
type Result struct {
	Text  string
	Final bool
}

// Recognizer opens realtime speech-to-text streams.
type Recognizer interface {
	Connect(ctx context.Context) (Stream, error)
}

// Stream accepts 16 kHz little-endian mono PCM and emits recognition results.
type Stream interface {
	SendPCM16KLE(pcm []byte) error
	Results() <-chan Result
	// Done is closed when the stream ends for any reason.
	Done() <-chan struct{}
	// Err reports why the stream ended. It is nil before Done is closed and after Close.
	Err() error
	Close() error
}

// AudioSource delivers microphone audio as 16 kHz little-endian mono PCM.
type AudioSource interface {
	Start(ctx context.Context, onPCM func(pcm []byte)) error
	Stop()
}

// Synthesizer streams 48 kHz mono PCM audio for the given text.
type Synthesizer interface {
	StreamPCM48k(ctx context.Context, text string) (<-chan []byte, <-chan error)
}

// AudioSink plays 48 kHz mono PCM. Implementations buffer internally and pace delivery.
type AudioSink interface {
	WritePCM(pcm []byte)
	FlushTail()
	// Reset drops any queued audio immediately.
	Reset()
	// Drain blocks until queued audio has been played or ctx is done.
	Drain(ctx context.Context) error
}

// Failure reasons reported through capture errors.
const (
	ReasonNoSpeech     = "no-speech"
	ReasonNetwork      = "network"
	ReasonAudioCapture = "audio-capture"
)

// Error is a capture failure delivered to the onError callback.
type Error struct {
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "voice: " + e.Code
	}
	return fmt.Sprintf("voice: %s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Reason is the short failure code shown to the user.
func (e *Error) Reason() string { return e.Code }
