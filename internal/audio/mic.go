package audio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/gen2brain/malgo"
)

const (
	micSampleRate = 16000
	micChannels   = 1
	// micChunkBytes is 100ms of 16kHz mono PCM.
	micChunkBytes = 3200
	micQueue      = 64
)

var errMicBusy = errors.New("audio: microphone already started")

// Microphone captures 16kHz mono PCM from the default input device.
type Microphone struct {
	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	chunks chan []byte
	done   chan struct{}
	buf    []byte
}

func NewMicrophone() *Microphone { return &Microphone{} }

// Start opens the device and delivers audio to onPCM from a single goroutine
// until Stop. Audio the consumer cannot keep up with is dropped.
func (m *Microphone) Start(ctx context.Context, onPCM func([]byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device != nil {
		return errMicBusy
	}
	if m.ctx == nil {
		mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return fmt.Errorf("init audio context: %w", err)
		}
		m.ctx = mctx
	}

	chunks := make(chan []byte, micQueue)
	m.buf = m.buf[:0]
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = micChannels
	deviceConfig.SampleRate = micSampleRate
	deviceConfig.PeriodSizeInMilliseconds = 20

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, _ uint32) {
			m.collect(chunks, pInputSamples)
		},
	}
	device, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("init microphone: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start microphone: %w", err)
	}
	m.device = device
	m.chunks = chunks
	m.done = make(chan struct{})
	go deliver(chunks, m.done, onPCM)
	return nil
}

// collect runs on the audio thread and must not block.
func (m *Microphone) collect(chunks chan<- []byte, pcm []byte) {
	m.buf = append(m.buf, pcm...)
	for len(m.buf) >= micChunkBytes {
		chunk := make([]byte, micChunkBytes)
		copy(chunk, m.buf)
		n := copy(m.buf, m.buf[micChunkBytes:])
		m.buf = m.buf[:n]
		select {
		case chunks <- chunk:
		default:
			log.Printf("audio: microphone queue full, dropping %d bytes", micChunkBytes)
		}
	}
}

func deliver(chunks <-chan []byte, done chan<- struct{}, onPCM func([]byte)) {
	defer close(done)
	for chunk := range chunks {
		onPCM(chunk)
	}
}

// Stop closes the device. No audio is delivered after it returns.
func (m *Microphone) Stop() {
	m.mu.Lock()
	device, chunks, done := m.device, m.chunks, m.done
	m.device, m.chunks, m.done = nil, nil, nil
	m.mu.Unlock()
	if device == nil {
		return
	}
	_ = device.Stop()
	device.Uninit()
	close(chunks)
	<-done
}

// Close releases the audio context.
func (m *Microphone) Close() {
	m.Stop()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx != nil {
		_ = m.ctx.Uninit()
		m.ctx.Free()
		m.ctx = nil
	}
}

// Devices lists the names of the available capture and playback devices.
type Devices struct {
	Capture  []string
	Playback []string
}

// Probe enumerates audio devices without opening them.
func Probe() (Devices, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return Devices{}, fmt.Errorf("init audio context: %w", err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	var out Devices
	capture, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return Devices{}, fmt.Errorf("list capture devices: %w", err)
	}
	for _, d := range capture {
		out.Capture = append(out.Capture, d.Name())
	}
	playback, err := mctx.Devices(malgo.Playback)
	if err != nil {
		return Devices{}, fmt.Errorf("list playback devices: %w", err)
	}
	for _, d := range playback {
		out.Playback = append(out.Playback, d.Name())
	}
	return out, nil
}
