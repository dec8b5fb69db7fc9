package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/msvee3/Interview-prep/internal/auth"
	"github.com/msvee3/Interview-prep/internal/backend"
	"github.com/msvee3/Interview-prep/internal/interview"
)

type fakeGateway struct {
	mu        sync.Mutex
	provider  auth.Provider
	tokens    []string
	next      []interview.SubmitResult
	submitErr error
	submits   int
}

func (g *fakeGateway) seen(ctx context.Context) error {
	tok, err := g.provider.Token(ctx)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.tokens = append(g.tokens, tok)
	g.mu.Unlock()
	return nil
}

func (g *fakeGateway) Start(ctx context.Context, cfg interview.Config) (interview.StartResult, error) {
	if err := g.seen(ctx); err != nil {
		return interview.StartResult{}, err
	}
	return interview.StartResult{SessionID: "iv-1", FirstQuestion: "Explain hash maps"}, nil
}

func (g *fakeGateway) GetState(ctx context.Context, id string) (interview.Snapshot, error) {
	if err := g.seen(ctx); err != nil {
		return interview.Snapshot{}, err
	}
	if id != "iv-1" {
		return interview.Snapshot{}, interview.ErrSessionNotFound
	}
	return interview.Snapshot{
		ID:              id,
		Status:          interview.StatusInProgress,
		CurrentQuestion: "Explain hash maps",
		Config:          testConfig(),
	}, nil
}

func (g *fakeGateway) SubmitAnswer(ctx context.Context, id, answer string, elapsed time.Duration) (interview.SubmitResult, error) {
	if err := g.seen(ctx); err != nil {
		return interview.SubmitResult{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.submits++
	if g.submitErr != nil {
		return interview.SubmitResult{}, g.submitErr
	}
	if len(g.next) == 0 {
		return interview.SubmitResult{Completed: true}, nil
	}
	res := g.next[0]
	g.next = g.next[1:]
	return res, nil
}

func (g *fakeGateway) Finish(ctx context.Context, id string, pending *interview.Turn) (interview.FinishResult, error) {
	if err := g.seen(ctx); err != nil {
		return interview.FinishResult{}, err
	}
	return interview.FinishResult{ReportID: id}, nil
}

func (g *fakeGateway) lastToken() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.tokens) == 0 {
		return ""
	}
	return g.tokens[len(g.tokens)-1]
}

func testConfig() interview.Config {
	return interview.Config{
		Type:            interview.TypeTechnical,
		SubType:         interview.SubTypeDSA,
		Industry:        "fintech",
		Role:            "backend engineer",
		Difficulty:      interview.DifficultyMid,
		DurationMinutes: 30,
	}
}

func newTestServer(t *testing.T, gw *fakeGateway) *Server {
	t.Helper()
	srv := New(Deps{
		Gateway: func(p auth.Provider) interview.Gateway {
			gw.provider = p
			return gw
		},
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("interview_sessions_active 0\n"))
		}),
	})
	t.Cleanup(srv.Shutdown)
	return srv
}

func do(t *testing.T, srv *Server, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, r)
	return w
}

func createSession(t *testing.T, srv *Server) interview.View {
	t.Helper()
	cfg, _ := json.Marshal(map[string]any{"config": testConfig()})
	w := do(t, srv, http.MethodPost, "/api/sessions", "tok-1", string(cfg))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var resp sessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Answer != nil {
		t.Fatalf("text session must not carry an SDP answer")
	}
	return resp.View
}

func TestServer_Healthz(t *testing.T) {
	srv := newTestServer(t, &fakeGateway{})
	w := do(t, srv, http.MethodGet, "/healthz", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	w = do(t, srv, http.MethodGet, "/metrics", "", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "interview_sessions_active") {
		t.Fatalf("expected metrics, got %d %s", w.Code, w.Body.String())
	}
}

func TestServer_RequiresBearer(t *testing.T) {
	srv := newTestServer(t, &fakeGateway{})
	if w := do(t, srv, http.MethodPost, "/api/sessions", "", `{}`); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	r := httptest.NewRequest(http.MethodGet, "/api/sessions/iv-1", nil)
	r.Header.Set("Authorization", "Token abc")
	w := httptest.NewRecorder()
	srv.Router.ServeHTTP(w, r)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for non-bearer scheme, got %d", w.Code)
	}
}

func TestServer_CreateAndAnswer(t *testing.T) {
	gw := &fakeGateway{next: []interview.SubmitResult{{NextQuestion: "What is a heap?"}}}
	srv := newTestServer(t, gw)
	view := createSession(t, srv)
	if view.ID != "iv-1" || view.State != interview.StateAwaitingAnswer || view.CurrentQuestion != "Explain hash maps" {
		t.Fatalf("unexpected view %+v", view)
	}
	if gw.lastToken() != "tok-1" {
		t.Fatalf("expected relayed token, got %q", gw.lastToken())
	}

	w := do(t, srv, http.MethodPost, "/api/sessions/iv-1/submit", "tok-1", "")
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty answer, got %d", w.Code)
	}
	if gw.submits != 0 {
		t.Fatalf("empty answer must not reach the backend")
	}

	w = do(t, srv, http.MethodPut, "/api/sessions/iv-1/answer", "tok-1", `{"text":"um so like I think the answer is O(1)"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var v interview.View
	_ = json.Unmarshal(w.Body.Bytes(), &v)
	if v.Metrics.WordCount != 9 || v.Metrics.FillerCount != 2 {
		t.Fatalf("unexpected live metrics %+v", v.Metrics)
	}

	w = do(t, srv, http.MethodPost, "/api/sessions/iv-1/submit", "tok-2", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var sub submitResponse
	_ = json.Unmarshal(w.Body.Bytes(), &sub)
	if sub.NextQuestion != "What is a heap?" || sub.Finished || len(sub.View.History) != 1 {
		t.Fatalf("unexpected submit response %+v", sub)
	}
	if gw.lastToken() != "tok-2" {
		t.Fatalf("expected refreshed token, got %q", gw.lastToken())
	}
}

func TestServer_FinishThenTerminal(t *testing.T) {
	srv := newTestServer(t, &fakeGateway{})
	createSession(t, srv)
	do(t, srv, http.MethodPut, "/api/sessions/iv-1/answer", "tok", `{"text":"buckets"}`)
	w := do(t, srv, http.MethodPost, "/api/sessions/iv-1/submit", "tok", "")
	var sub submitResponse
	_ = json.Unmarshal(w.Body.Bytes(), &sub)
	if w.Code != http.StatusOK || !sub.Finished || sub.View.State != interview.StateFinished {
		t.Fatalf("expected finished, got %d %+v", w.Code, sub)
	}
	if w := do(t, srv, http.MethodPost, "/api/sessions/iv-1/submit", "tok", ""); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 after finish, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodPost, "/api/sessions/iv-1/capture", "tok", `{"on":true}`); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for capture after finish, got %d", w.Code)
	}
}

func TestServer_BackendFailureIs502(t *testing.T) {
	gw := &fakeGateway{submitErr: &backend.StatusError{Code: 500, Body: "boom"}}
	srv := newTestServer(t, gw)
	createSession(t, srv)
	do(t, srv, http.MethodPut, "/api/sessions/iv-1/answer", "tok", `{"text":"buckets"}`)
	w := do(t, srv, http.MethodPost, "/api/sessions/iv-1/submit", "tok", "")
	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	var body errorBody
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body.View == nil || body.View.State != interview.StateAwaitingAnswer || body.View.Buffer.Text() != "buckets" {
		t.Fatalf("expected buffer kept for retry, got %+v", body.View)
	}
}

func TestServer_InvalidConfigIs422(t *testing.T) {
	srv := newTestServer(t, &fakeGateway{})
	w := do(t, srv, http.MethodPost, "/api/sessions", "tok", `{"config":{"type":"quiz"}}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	if srv.sessions.count() != 0 {
		t.Fatalf("failed session must not be registered")
	}
}

func TestServer_ResumeEndAndDelete(t *testing.T) {
	srv := newTestServer(t, &fakeGateway{})
	w := do(t, srv, http.MethodPost, "/api/sessions/iv-1/resume", "tok", "")
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if w := do(t, srv, http.MethodPost, "/api/sessions/missing/resume", "tok", ""); w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for unknown backend session, got %d", w.Code)
	}
	w = do(t, srv, http.MethodPost, "/api/sessions/iv-1/end", "tok", "")
	var v interview.View
	_ = json.Unmarshal(w.Body.Bytes(), &v)
	if w.Code != http.StatusOK || v.State != interview.StateFinished {
		t.Fatalf("expected finished after end, got %d %+v", w.Code, v.State)
	}
	if w := do(t, srv, http.MethodPost, "/api/sessions/iv-1/finish", "tok", ""); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for acknowledged finish, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodDelete, "/api/sessions/iv-1", "tok", ""); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodGet, "/api/sessions/iv-1", "tok", ""); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
}

func TestServer_VoiceCommandsUnsupportedForTextSession(t *testing.T) {
	srv := newTestServer(t, &fakeGateway{})
	createSession(t, srv)
	if w := do(t, srv, http.MethodPost, "/api/sessions/iv-1/repeat", "tok", ""); w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if w := do(t, srv, http.MethodPost, "/api/sessions/iv-1/capture", "tok", `{"on":true}`); w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestServer_EventsStream(t *testing.T) {
	srv := newTestServer(t, &fakeGateway{})
	createSession(t, srv)
	ts := httptest.NewServer(srv.Router)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/sessions/iv-1/events?access_token=tok"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first interview.Event
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read: %v", err)
	}
	if first.Kind != interview.EventState || first.View.ID != "iv-1" {
		t.Fatalf("unexpected first event %+v", first)
	}

	do(t, srv, http.MethodPut, "/api/sessions/iv-1/answer", "tok", `{"text":"buckets"}`)
	for {
		var ev interview.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read: %v", err)
		}
		if ev.Kind == interview.EventBuffer {
			if ev.View.Buffer.Text() != "buckets" {
				t.Fatalf("unexpected buffer %q", ev.View.Buffer.Text())
			}
			return
		}
	}
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := newHub()
	events, unsubscribe := h.subscribe()
	for i := 0; i < subscriberBuffer*2; i++ {
		h.publish(interview.Event{Kind: interview.EventTick})
	}
	if len(events) != subscriberBuffer {
		t.Fatalf("expected buffer to cap at %d, got %d", subscriberBuffer, len(events))
	}
	unsubscribe()
	unsubscribe()
	h.close()
	late, _ := h.subscribe()
	if _, ok := <-late; ok {
		t.Fatalf("subscribe after close must return a closed channel")
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{interview.ErrEmptyAnswer, http.StatusUnprocessableEntity},
		{interview.ErrSessionTerminal, http.StatusConflict},
		{interview.ErrBusy, http.StatusConflict},
		{&interview.BackendError{Op: "submit", Err: errors.New("x")}, http.StatusBadGateway},
		{&interview.BackendError{Op: "submit", Err: auth.ErrCredentialExpired}, http.StatusUnauthorized},
		{interview.ErrClosed, http.StatusGone},
		{errors.New("other"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d want %d", tc.err, got, tc.want)
		}
	}
}
