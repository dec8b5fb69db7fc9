package transcript

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/gorilla/websocket"

	"github.com/msvee3/Interview-prep/internal/voice"
)

// silenceThreshold is the base inactivity window before a partial transcript is committed.
// Keep conservative to avoid cutting the candidate mid-sentence.
const silenceThreshold = 700 * time.Millisecond

// continuationExtension is added when the last word suggests the sentence goes on ("and", "if").
const continuationExtension = 1200 * time.Millisecond

// stabilizationGrace absorbs late ASR updates after the silence window.
const stabilizationGrace = 250 * time.Millisecond

const (
	defaultEndpoint = "wss://streaming.assemblyai.com/v3/ws"
	voiceRMS        = 250.0
)

// AssemblyAI opens realtime transcription streams against the v3 streaming API.
type AssemblyAI struct {
	apiKey   string
	endpoint string
	dialer   websocket.Dialer
}

func NewAssemblyAI(apiKey string) *AssemblyAI {
	return &AssemblyAI{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		dialer:   websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// WithEndpoint points the client at a different streaming URL.
func (a *AssemblyAI) WithEndpoint(endpoint string) *AssemblyAI {
	a.endpoint = endpoint
	return a
}

// Connect dials a new stream. The stream belongs to the caller, who must Close it.
func (a *AssemblyAI) Connect(ctx context.Context) (voice.Stream, error) {
	if a.apiKey == "" {
		return nil, errors.New("assemblyai: API key is empty")
	}
	params := url.Values{}
	params.Set("sample_rate", "16000")
	params.Set("format_turns", "false")
	params.Set("encoding", "pcm_s16le")
	wsURL := a.endpoint + "?" + params.Encode()

	log.Printf("assemblyai: connecting with key %s...", preview(a.apiKey))
	conn, resp, err := a.dialer.DialContext(ctx, wsURL, http.Header{"Authorization": {a.apiKey}})
	if err != nil {
		if resp != nil {
			log.Printf("assemblyai: connection failed with status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("assemblyai: connect: %w", err)
	}
	s := newStream(conn)
	go s.readLoop()
	go s.writeLoop()
	return s, nil
}

// Stream is one AssemblyAI session. Partial transcripts are emitted as
// interim results; a turn is committed as a final result when the service
// ends it or after a window of silence.
type Stream struct {
	conn      *websocket.Conn
	results   chan voice.Result
	audio     chan []byte
	done      chan struct{}
	endOnce   sync.Once
	closeOnce sync.Once
	err       error
	writeMu   sync.Mutex

	mu         sync.Mutex
	latest     string
	committed  string
	lastUpdate time.Time
	lastVoice  time.Time
	silence    *time.Timer
}

func newStream(conn *websocket.Conn) *Stream {
	now := time.Now()
	return &Stream{
		conn:       conn,
		results:    make(chan voice.Result, 64),
		audio:      make(chan []byte, 1000),
		done:       make(chan struct{}),
		lastUpdate: now,
		lastVoice:  now,
	}
}

// AssemblyAI message types
type beginMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	ExpiresAt int64  `json:"expires_at"`
}

type turnMessage struct {
	Type          string `json:"type"`
	TurnOrder     int    `json:"turn_order"`
	Transcript    string `json:"transcript"`
	EndOfTurn     bool   `json:"end_of_turn"`
	TurnFormatted bool   `json:"turn_is_formatted"`
}

type terminationMessage struct {
	Type                   string  `json:"type"`
	AudioDurationSeconds   float64 `json:"audio_duration_seconds"`
	SessionDurationSeconds float64 `json:"session_duration_seconds"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func (s *Stream) Results() <-chan voice.Result { return s.results }
func (s *Stream) Done() <-chan struct{}        { return s.done }

func (s *Stream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// SendPCM16KLE queues 16 kHz PCM for the service. Audio is dropped when the queue is full.
func (s *Stream) SendPCM16KLE(pcm []byte) error {
	select {
	case <-s.done:
		return errors.New("assemblyai: stream closed")
	default:
	}
	s.detectVoiceActivity(pcm)
	select {
	case s.audio <- pcm:
	default:
		log.Println("assemblyai: audio buffer full, dropping packet")
	}
	return nil
}

// RecentlyDetectedVoice reports whether voice energy was seen within window.
func (s *Stream) RecentlyDetectedVoice(window time.Duration) bool {
	s.mu.Lock()
	last := s.lastVoice
	s.mu.Unlock()
	return time.Since(last) <= window
}

// Close terminates the session and releases the connection.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.end(nil)
		s.writeMu.Lock()
		_ = s.conn.WriteJSON(map[string]string{"type": "Terminate"})
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	return nil
}

func (s *Stream) end(err error) {
	s.endOnce.Do(func() {
		s.err = err
		close(s.done)
		s.mu.Lock()
		if s.silence != nil {
			s.silence.Stop()
			s.silence = nil
		}
		s.mu.Unlock()
	})
}

func (s *Stream) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("assemblyai: recovered from panic in read loop: %v", r)
		}
	}()
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			s.end(fmt.Errorf("assemblyai: read: %w", err))
			return
		}
		s.processMessage(message)
	}
}

func (s *Stream) writeLoop() {
	for {
		select {
		case <-s.done:
			return
		case pcm := <-s.audio:
			s.writeMu.Lock()
			err := s.conn.WriteMessage(websocket.BinaryMessage, pcm)
			s.writeMu.Unlock()
			if err != nil {
				s.end(fmt.Errorf("assemblyai: send audio: %w", err))
				return
			}
		}
	}
}

func (s *Stream) processMessage(message []byte) {
	var base struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(message, &base); err != nil {
		log.Printf("assemblyai: unmarshal message: %v", err)
		return
	}
	switch base.Type {
	case "Begin":
		var msg beginMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("assemblyai: unmarshal Begin: %v", err)
			return
		}
		log.Printf("assemblyai: session began id=%s expires=%s", msg.ID, time.Unix(msg.ExpiresAt, 0).Format(time.RFC3339))
	case "Turn":
		var msg turnMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("assemblyai: unmarshal Turn: %v", err)
			return
		}
		s.onTurn(msg)
	case "Termination":
		var msg terminationMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("assemblyai: unmarshal Termination: %v", err)
			return
		}
		log.Printf("assemblyai: session terminated audio=%.2fs session=%.2fs", msg.AudioDurationSeconds, msg.SessionDurationSeconds)
		s.mu.Lock()
		s.commitLocked()
		s.mu.Unlock()
		s.end(nil)
	case "Error":
		var msg errorMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("assemblyai: unmarshal Error: %v", err)
			return
		}
		s.end(fmt.Errorf("assemblyai: %s", msg.Error))
	default:
		log.Printf("assemblyai: unknown message type %q", base.Type)
	}
}

func (s *Stream) onTurn(msg turnMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.Transcript != "" {
		s.latest = msg.Transcript
		s.lastUpdate = time.Now()
	}
	if msg.EndOfTurn {
		s.commitLocked()
		// The next turn's transcript starts from scratch.
		s.latest, s.committed = "", ""
		if s.silence != nil {
			s.silence.Stop()
		}
		return
	}
	if msg.Transcript == "" {
		return
	}
	if delta := pendingDelta(s.latest, s.committed); delta != "" {
		s.emitLocked(voice.Result{Text: delta})
	}
	s.armLocked(silenceThreshold)
}

// finalizeDueToSilence commits the pending transcript once neither text nor
// voice energy has been seen for the silence window.
func (s *Stream) finalizeDueToSilence() {
	select {
	case <-s.done:
		return
	default:
	}

	s.mu.Lock()
	threshold := thresholdFor(s.latest)
	now := time.Now()
	sinceText, sinceVoice := now.Sub(s.lastUpdate), now.Sub(s.lastVoice)
	if sinceText < threshold || sinceVoice < threshold {
		wait := threshold
		if rem := threshold - sinceText; sinceText < threshold && rem < wait {
			wait = rem
		}
		if rem := threshold - sinceVoice; sinceVoice < threshold && rem < wait {
			wait = rem
		}
		s.armLocked(max(wait, 10*time.Millisecond))
		s.mu.Unlock()
		return
	}
	lastUpdateAt := s.lastUpdate
	s.mu.Unlock()

	time.Sleep(stabilizationGrace)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastUpdate.After(lastUpdateAt) {
		threshold = thresholdFor(s.latest)
		wait := threshold
		if rem := threshold - time.Since(s.lastUpdate); rem > 10*time.Millisecond && rem < wait {
			wait = rem
		}
		s.armLocked(wait)
		return
	}
	s.commitLocked()
}

// commitLocked emits everything not yet committed as a final result.
func (s *Stream) commitLocked() {
	delta := pendingDelta(s.latest, s.committed)
	s.committed = s.latest
	if delta != "" {
		s.emitLocked(voice.Result{Text: delta, Final: true})
	}
}

// emitLocked delivers r in order. It gives up only when the stream has ended.
func (s *Stream) emitLocked(r voice.Result) {
	select {
	case s.results <- r:
	case <-s.done:
	}
}

func (s *Stream) armLocked(d time.Duration) {
	select {
	case <-s.done:
		return
	default:
	}
	if s.silence == nil {
		s.silence = time.AfterFunc(d, s.finalizeDueToSilence)
		return
	}
	s.silence.Stop()
	s.silence.Reset(d)
}

// detectVoiceActivity updates lastVoice if the 16-bit PCM buffer carries voice energy.
func (s *Stream) detectVoiceActivity(pcm []byte) {
	rms, ok := rms16(pcm)
	if !ok || rms < voiceRMS {
		return
	}
	s.mu.Lock()
	s.lastVoice = time.Now()
	s.mu.Unlock()
}

// rms16 estimates the RMS of little-endian 16-bit PCM. Large buffers are sampled sparsely.
func rms16(pcm []byte) (float64, bool) {
	const minSamples = 160 // 10ms at 16kHz
	if len(pcm) < minSamples*2 {
		return 0, false
	}
	step := 2
	if len(pcm) > 3200 {
		step = 4
	}
	var sumSquares float64
	count := 0
	for i := 0; i+1 < len(pcm); i += 2 * step {
		v := int16(binary.LittleEndian.Uint16(pcm[i : i+2]))
		sumSquares += float64(v) * float64(v)
		count++
	}
	if count == 0 {
		return 0, false
	}
	return math.Sqrt(sumSquares / float64(count)), true
}

// pendingDelta returns the part of latest that has not been committed yet.
func pendingDelta(latest, committed string) string {
	delta := strings.TrimSpace(strings.TrimPrefix(latest, committed))
	if delta == "" && committed != "" {
		if idx := strings.LastIndex(latest, committed); idx >= 0 {
			delta = strings.TrimSpace(latest[idx+len(committed):])
		}
	}
	return delta
}

func thresholdFor(text string) time.Duration {
	if isContinuationLikely(text) {
		return silenceThreshold + continuationExtension
	}
	return silenceThreshold
}

// isContinuationLikely reports whether the last word suggests the speaker will go on.
func isContinuationLikely(text string) bool {
	w := lastWord(text)
	if w == "" {
		return false
	}
	_, ok := continuationWords[w]
	return ok
}

func lastWord(text string) string {
	fields := strings.FieldsFunc(strings.TrimSpace(text), func(r rune) bool { return !unicode.IsLetter(r) })
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[len(fields)-1])
}

var continuationWords = map[string]struct{}{
	// Coordinating conjunctions
	"and": {}, "or": {}, "but": {}, "nor": {}, "yet": {}, "so": {},
	// Subordinating conjunctions / conditionals
	"if": {}, "when": {}, "while": {}, "though": {}, "although": {},
	"because": {}, "since": {}, "unless": {}, "until": {}, "whereas": {},
	// Discourse markers / fillers
	"also": {}, "plus": {}, "um": {}, "uh": {}, "like": {},
	// Prepositions that are awkward sentence endings
	"about": {}, "with": {}, "to": {}, "of": {}, "for": {}, "on": {}, "in": {}, "at": {},
}

func preview(key string) string {
	if len(key) > 8 {
		return key[:8]
	}
	return key
}
