package transcript

import (
	"context"
	"encoding/binary"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/msvee3/Interview-prep/internal/voice"
)

func TestRMS16_LoudAndQuietFrames(t *testing.T) {
	loud := make([]byte, 160*2)
	for i := 0; i < 160; i++ {
		binary.LittleEndian.PutUint16(loud[i*2:(i+1)*2], 3000)
	}
	if rms, ok := rms16(loud); !ok || rms < voiceRMS {
		t.Fatalf("expected loud frame, got %v %v", rms, ok)
	}
	if rms, ok := rms16(make([]byte, 320)); !ok || rms != 0 {
		t.Fatalf("expected silent frame, got %v %v", rms, ok)
	}
	if _, ok := rms16(make([]byte, 10)); ok {
		t.Fatalf("expected short buffer to be ignored")
	}
}

func TestHelpers_LastWordAndContinuation(t *testing.T) {
	if lastWord("") != "" {
		t.Fatalf("lastWord empty mismatch")
	}
	if lastWord("hi there!") != "there" {
		t.Fatalf("lastWord basic mismatch")
	}
	if !isContinuationLikely("we should and") {
		t.Fatalf("expected continuation likely when last word is 'and'")
	}
	if isContinuationLikely("complete sentence.") {
		t.Fatalf("did not expect continuation likely")
	}
	if thresholdFor("because") != silenceThreshold+continuationExtension {
		t.Fatalf("expected extended threshold")
	}
}

func TestPendingDelta(t *testing.T) {
	cases := []struct {
		latest, committed, want string
	}{
		{"hello world", "", "hello world"},
		{"hello world", "hello", "world"},
		{"hello", "hello", ""},
		{"so hello there", "hello", "there"},
	}
	for _, tc := range cases {
		if got := pendingDelta(tc.latest, tc.committed); got != tc.want {
			t.Fatalf("pendingDelta(%q,%q)=%q want %q", tc.latest, tc.committed, got, tc.want)
		}
	}
}

func TestConnect_NoKey(t *testing.T) {
	if _, err := NewAssemblyAI("").Connect(context.Background()); err == nil {
		t.Fatalf("expected error without API key")
	}
}

func TestStream_TurnsBecomeResults(t *testing.T) {
	upgrader := websocket.Upgrader{}
	gotAudio := make(chan int, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "key-123" || r.URL.Query().Get("sample_rate") != "16000" {
			http.Error(w, "bad request", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(map[string]any{"type": "Begin", "id": "s1", "expires_at": 0})
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		gotAudio <- len(data)
		_ = conn.WriteJSON(map[string]any{"type": "Turn", "transcript": "a hash", "end_of_turn": false})
		_ = conn.WriteJSON(map[string]any{"type": "Turn", "transcript": "a hash map", "end_of_turn": true})
		_ = conn.WriteJSON(map[string]any{"type": "Turn", "transcript": "stores pairs", "end_of_turn": true})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	client := NewAssemblyAI("key-123").WithEndpoint("ws" + strings.TrimPrefix(srv.URL, "http"))
	stream, err := client.Connect(context.Background())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer stream.Close()

	if err := stream.SendPCM16KLE(make([]byte, 640)); err != nil {
		t.Fatalf("send: %v", err)
	}
	select {
	case n := <-gotAudio:
		if n != 640 {
			t.Fatalf("server got %d bytes", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("audio never arrived")
	}

	want := []voice.Result{
		{Text: "a hash", Final: false},
		{Text: "a hash map", Final: true},
		{Text: "stores pairs", Final: true},
	}
	for i, w := range want {
		select {
		case got := <-stream.Results():
			if got != w {
				t.Fatalf("result %d = %+v want %+v", i, got, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for result %d", i)
		}
	}

	if err := stream.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	<-stream.Done()
	if stream.Err() != nil {
		t.Fatalf("expected nil error after Close, got %v", stream.Err())
	}
	if err := stream.SendPCM16KLE(make([]byte, 2)); err == nil {
		t.Fatalf("expected send after close to fail")
	}
}
