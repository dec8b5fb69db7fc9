package rtc

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/webrtc/v3/pkg/media"
)

type fakeTrack struct{ writes int32 }

func (f *fakeTrack) WriteSample(s media.Sample) error {
	atomic.AddInt32(&f.writes, 1)
	return nil
}

func newTestWriter(ft *fakeTrack, queue int) *OpusPacedWriter {
	return &OpusPacedWriter{
		track:        ft,
		frameSamples: frameSamples,
		frames:       make(chan []byte, queue),
		stopCh:       make(chan struct{}),
	}
}

func TestOpusPacedWriter_PacerWritesFrames(t *testing.T) {
	ft := &fakeTrack{}
	w := newTestWriter(ft, 8)
	done := make(chan struct{})
	go func() { w.pacer(); close(done) }()

	for i := 0; i < 3; i++ {
		w.pushFrame([]byte{0x01, 0x02})
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	w.Close()
	<-done

	if atomic.LoadInt32(&ft.writes) < 3 {
		t.Fatalf("expected pacer to write every frame, got %d", ft.writes)
	}
}

func TestOpusPacedWriter_ResetDrains(t *testing.T) {
	w := newTestWriter(&fakeTrack{}, 8)
	w.pcmBuf = []int16{1, 2, 3}
	w.frames <- []byte{0x01}
	w.frames <- []byte{0x02}
	w.Reset()
	select {
	case <-w.frames:
		t.Fatalf("expected frames channel to be drained")
	default:
	}
	if len(w.pcmBuf) != 0 {
		t.Fatalf("expected pcmBuf to be reset, got len=%d", len(w.pcmBuf))
	}
}

func TestOpusPacedWriter_DrainStopsOnClose(t *testing.T) {
	w := newTestWriter(&fakeTrack{}, 8)
	w.frames <- []byte{0x01}
	w.Close()
	if err := w.Drain(context.Background()); err != errWriterClosed {
		t.Fatalf("expected errWriterClosed, got %v", err)
	}
}

func TestOpusPacedWriter_FullQueueDropsOldest(t *testing.T) {
	w := newTestWriter(&fakeTrack{}, 2)
	w.pushFrame([]byte{1})
	w.pushFrame([]byte{2})
	w.pushFrame([]byte{3})
	if got := (<-w.frames)[0]; got != 2 {
		t.Fatalf("expected oldest frame dropped, got %d first", got)
	}
}

func TestRemoteMic_ChunksOnlyWhileStarted(t *testing.T) {
	m := &RemoteMic{}
	m.feed(make([]int16, 2000))

	var chunks [][]byte
	if err := m.Start(context.Background(), func(pcm []byte) { chunks = append(chunks, pcm) }); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Start(context.Background(), func([]byte) {}); err != errMicBusy {
		t.Fatalf("expected busy, got %v", err)
	}
	m.feed(make([]int16, 1000))
	if len(chunks) != 0 {
		t.Fatalf("expected no chunk before 100ms of audio")
	}
	m.feed(make([]int16, 1000))
	if len(chunks) != 1 || len(chunks[0]) != pcm16kChunkBytes {
		t.Fatalf("expected one full chunk, got %d", len(chunks))
	}
	m.Stop()
	m.feed(make([]int16, 4000))
	if len(chunks) != 1 {
		t.Fatalf("expected no chunks after stop")
	}
}

func TestParseICEServers(t *testing.T) {
	got := ParseICEServers(`[{"urls":["turn:turn.example.com"],"username":"u","credential":"p"}]`)
	if len(got) != 1 || got[0].URLs[0] != "turn:turn.example.com" {
		t.Fatalf("unexpected servers %+v", got)
	}
	if def := ParseICEServers(""); len(def) != 1 || def[0].URLs[0] != "stun:stun.l.google.com:19302" {
		t.Fatalf("unexpected default %+v", def)
	}
}

func TestNewPeer_RejectsBadOffer(t *testing.T) {
	if _, _, err := NewPeer(context.Background(), SessionDescription{Type: "answer"}, nil, nil); err == nil {
		t.Fatalf("expected invalid offer error")
	}
}
