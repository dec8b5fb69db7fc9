package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

const (
	speakerSampleRate = 48000
	speakerLatency    = 100 * time.Millisecond
	// tailBytes is 200ms of 48kHz mono PCM.
	tailBytes = 19200
	drainPoll = 20 * time.Millisecond
)

var errSpeakerClosed = errors.New("audio: speaker closed")

type player interface {
	Play()
	Pause()
	Close() error
}

// Speaker plays 48kHz mono PCM on the default output device. Only one
// Speaker may exist per process.
type Speaker struct {
	newPlayer func(io.Reader) player
	latency   time.Duration

	mu     sync.Mutex
	buf    []byte
	gen    int
	player player
	closed bool
}

// NewSpeaker opens the output device.
func NewSpeaker() (*Speaker, error) {
	otoCtx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   speakerSampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   speakerLatency,
	})
	if err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	<-ready
	return newSpeaker(func(r io.Reader) player { return otoCtx.NewPlayer(r) }, speakerLatency), nil
}

func newSpeaker(newPlayer func(io.Reader) player, latency time.Duration) *Speaker {
	return &Speaker{newPlayer: newPlayer, latency: latency}
}

func (s *Speaker) WritePCM(pcm []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.buf = append(s.buf, pcm...)
	if s.player == nil {
		s.player = s.newPlayer(&feed{s: s, gen: s.gen})
		s.player.Play()
	}
}

// FlushTail appends a short silence so the end of speech is not clipped.
func (s *Speaker) FlushTail() {
	s.WritePCM(make([]byte, tailBytes))
}

// feed is the reader handed to one player. It stops once the speaker is
// reset so a stale player never steals audio from the next one.
type feed struct {
	s   *Speaker
	gen int
}

// Read never blocks; it plays silence while there is nothing queued.
func (f *feed) Read(p []byte) (int, error) {
	s := f.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || f.gen != s.gen {
		return 0, io.EOF
	}
	if len(s.buf) == 0 {
		clear(p)
		return len(p), nil
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

// Reset discards pending audio and stops playback immediately.
func (s *Speaker) Reset() {
	s.mu.Lock()
	s.buf = s.buf[:0]
	s.gen++
	p := s.player
	s.player = nil
	s.mu.Unlock()
	if p != nil {
		p.Pause()
		_ = p.Close()
	}
}

// Drain waits until everything written so far has left the queue, then for
// the device buffer to play out.
func (s *Speaker) Drain(ctx context.Context) error {
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()
	for {
		s.mu.Lock()
		closed, pending := s.closed, len(s.buf)
		s.mu.Unlock()
		if closed {
			return errSpeakerClosed
		}
		if pending == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.latency):
		return nil
	}
}

func (s *Speaker) Close() {
	s.mu.Lock()
	s.closed = true
	p := s.player
	s.player = nil
	s.mu.Unlock()
	if p != nil {
		_ = p.Close()
	}
}
