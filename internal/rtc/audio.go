package rtc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hraban/opus"
	"github.com/pion/webrtc/v3/pkg/media"
)

const (
	sampleRate48k  = 48000
	frameSamples   = 960 // 20ms at 48kHz
	frameDuration  = 20 * time.Millisecond
	tailSilence    = 10 // frames appended by FlushTail
	maxOpusPacket  = 4000
	frameQueueSize = 512
)

var errWriterClosed = errors.New("rtc: writer closed")

type sampleWriter interface {
	WriteSample(media.Sample) error
}

// OpusPacedWriter encodes 48kHz PCM mono to Opus frames and writes them to a
// track at real-time pace.
type OpusPacedWriter struct {
	enc          *opus.Encoder
	track        sampleWriter
	pcmBuf       []int16
	frameSamples int
	frames       chan []byte
	stopCh       chan struct{}
	stopped      bool
	mu           sync.Mutex
}

// NewOpusPacedWriter constructs a paced writer with 20ms frames at 48kHz mono.
func NewOpusPacedWriter(track sampleWriter) (*OpusPacedWriter, error) {
	enc, err := opus.NewEncoder(sampleRate48k, 1, opus.AppVoIP)
	if err != nil {
		return nil, err
	}
	w := &OpusPacedWriter{
		enc:          enc,
		track:        track,
		frameSamples: frameSamples,
		frames:       make(chan []byte, frameQueueSize),
		stopCh:       make(chan struct{}),
	}
	go w.pacer()
	return w, nil
}

// WritePCM buffers PCM and queues every full frame it completes.
func (w *OpusPacedWriter) WritePCM(pcmBytes []byte) {
	if len(pcmBytes) < 2 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	need := len(pcmBytes) / 2
	for i := 0; i < need; i++ {
		w.pcmBuf = append(w.pcmBuf, int16(uint16(pcmBytes[2*i])|uint16(pcmBytes[2*i+1])<<8))
	}
	opusBuf := make([]byte, maxOpusPacket)
	for len(w.pcmBuf) >= w.frameSamples {
		w.encode(w.pcmBuf[:w.frameSamples], opusBuf)
		n := copy(w.pcmBuf, w.pcmBuf[w.frameSamples:])
		w.pcmBuf = w.pcmBuf[:n]
	}
}

// FlushTail pads the remaining PCM to a full frame and adds a short silence
// tail so the last syllable is not clipped.
func (w *OpusPacedWriter) FlushTail() {
	w.mu.Lock()
	defer w.mu.Unlock()
	opusBuf := make([]byte, maxOpusPacket)
	if len(w.pcmBuf) > 0 {
		pad := make([]int16, w.frameSamples)
		copy(pad, w.pcmBuf)
		w.encode(pad, opusBuf)
		w.pcmBuf = w.pcmBuf[:0]
	}
	silence := make([]int16, w.frameSamples)
	for i := 0; i < tailSilence; i++ {
		w.encode(silence, opusBuf)
	}
}

func (w *OpusPacedWriter) encode(frame []int16, opusBuf []byte) {
	n, err := w.enc.Encode(frame, opusBuf)
	if err != nil || n == 0 {
		return
	}
	pkt := make([]byte, n)
	copy(pkt, opusBuf[:n])
	w.pushFrame(pkt)
}

// Reset drops queued frames and buffered PCM immediately.
func (w *OpusPacedWriter) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pcmBuf = w.pcmBuf[:0]
	for {
		select {
		case <-w.frames:
		default:
			return
		}
	}
}

// Drain waits until every queued frame has been written to the track.
func (w *OpusPacedWriter) Drain(ctx context.Context) error {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for {
		if len(w.frames) == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return errWriterClosed
		case <-ticker.C:
		}
	}
}

// Close stops the pacer.
func (w *OpusPacedWriter) Close() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		close(w.stopCh)
	}
	w.mu.Unlock()
}

func (w *OpusPacedWriter) pacer() {
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			select {
			case frame := <-w.frames:
				_ = w.track.WriteSample(media.Sample{Data: frame, Duration: frameDuration})
			default:
			}
		}
	}
}

// pushFrame enqueues a frame, dropping the oldest one when the queue is full
// so WritePCM never blocks a caller holding the writer lock.
func (w *OpusPacedWriter) pushFrame(pkt []byte) {
	for {
		select {
		case <-w.stopCh:
			return
		case w.frames <- pkt:
			return
		default:
		}
		select {
		case <-w.frames:
		default:
		}
	}
}
