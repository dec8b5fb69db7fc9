package rtc

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
)

// pcm16kChunkBytes is 100ms of 16kHz mono PCM, the unit handed to the recognizer.
const pcm16kChunkBytes = 3200

var errMicBusy = errors.New("rtc: microphone already in use")

// RemoteMic is the browser microphone as a voice.AudioSource. Audio arriving
// while no consumer is attached is discarded.
type RemoteMic struct {
	mu    sync.Mutex
	onPCM func([]byte)
	buf   []byte
}

func (m *RemoteMic) Start(ctx context.Context, onPCM func([]byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.onPCM != nil {
		return errMicBusy
	}
	m.onPCM = onPCM
	m.buf = m.buf[:0]
	return nil
}

func (m *RemoteMic) Stop() {
	m.mu.Lock()
	m.onPCM = nil
	m.buf = m.buf[:0]
	m.mu.Unlock()
}

// feed appends decoded samples and hands out every complete chunk.
func (m *RemoteMic) feed(samples []int16) {
	m.mu.Lock()
	onPCM := m.onPCM
	if onPCM == nil {
		m.mu.Unlock()
		return
	}
	for _, v := range samples {
		m.buf = binary.LittleEndian.AppendUint16(m.buf, uint16(v))
	}
	var chunks [][]byte
	for len(m.buf) >= pcm16kChunkBytes {
		chunk := make([]byte, pcm16kChunkBytes)
		copy(chunk, m.buf)
		chunks = append(chunks, chunk)
		n := copy(m.buf, m.buf[pcm16kChunkBytes:])
		m.buf = m.buf[:n]
	}
	m.mu.Unlock()
	for _, c := range chunks {
		onPCM(c)
	}
}
