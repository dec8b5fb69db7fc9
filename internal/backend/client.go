package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/msvee3/Interview-prep/internal/auth"
	"github.com/msvee3/Interview-prep/internal/interview"
)

const (
	opStart  = "start"
	opState  = "get_state"
	opSubmit = "submit_answer"
	opFinish = "finish"

	defaultBaseURL = "http://localhost:8000"
	maxErrorBody   = 4 << 10
)

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned %d", e.Code)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Body)
}

// Recorder observes every backend request. status is the HTTP code, or "error"
// when no response was received.
type Recorder interface {
	ObserveRequest(op, status string, d time.Duration)
}

// Client is the HTTP implementation of interview.Gateway.
type Client struct {
	BaseURL  string
	HTTP     *http.Client
	Auth     auth.Provider
	Recorder Recorder
}

var _ interview.Gateway = (*Client)(nil)

func NewClient(baseURL string, provider auth.Provider, timeout time.Duration) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP:    &http.Client{Timeout: timeout},
		Auth:    provider,
	}
}

type startRequest struct {
	Config interview.Config `json:"config"`
}

type startResponse struct {
	InterviewID   string `json:"interviewId"`
	FirstQuestion string `json:"firstQuestion"`
}

func (c *Client) Start(ctx context.Context, cfg interview.Config) (interview.StartResult, error) {
	var resp startResponse
	if err := c.do(ctx, opStart, http.MethodPost, "/api/interviews/start", startRequest{Config: cfg}, &resp); err != nil {
		return interview.StartResult{}, err
	}
	if resp.InterviewID == "" {
		return interview.StartResult{}, errors.New("backend: start response missing interviewId")
	}
	return interview.StartResult{SessionID: resp.InterviewID, FirstQuestion: resp.FirstQuestion}, nil
}

type qaEntry struct {
	QuestionID   string   `json:"questionId"`
	QuestionText string   `json:"questionText"`
	AnswerText   string   `json:"answerText"`
	StartTs      int64    `json:"startTs"`
	EndTs        int64    `json:"endTs"`
	AIScore      *float64 `json:"aiScore"`
	AIFeedback   string   `json:"aiFeedback"`
	ModelAnswer  string   `json:"modelAnswer"`
}

type stateResponse struct {
	ID              string           `json:"id"`
	Config          interview.Config `json:"config"`
	Status          interview.Status `json:"status"`
	QA              []qaEntry        `json:"qa"`
	FirstQuestion   string           `json:"firstQuestion"`
	CurrentQuestion string           `json:"currentQuestion"`
}

func (c *Client) GetState(ctx context.Context, sessionID string) (interview.Snapshot, error) {
	var resp stateResponse
	if err := c.do(ctx, opState, http.MethodGet, "/api/interviews/"+url.PathEscape(sessionID), nil, &resp); err != nil {
		return interview.Snapshot{}, err
	}
	snap := interview.Snapshot{
		ID:              resp.ID,
		Config:          resp.Config,
		Status:          resp.Status,
		CurrentQuestion: currentQuestion(resp),
	}
	if snap.ID == "" {
		snap.ID = sessionID
	}
	for _, qa := range resp.QA {
		snap.History = append(snap.History, interview.Turn{
			QuestionID:   qa.QuestionID,
			QuestionText: qa.QuestionText,
			AnswerText:   qa.AnswerText,
			StartedAt:    time.UnixMilli(qa.StartTs),
			EndedAt:      time.UnixMilli(qa.EndTs),
			Score:        qa.AIScore,
			Feedback:     qa.AIFeedback,
			ModelAnswer:  qa.ModelAnswer,
		})
	}
	return snap, nil
}

// currentQuestion prefers an explicit field, then the first question for a
// fresh interview, then the question the backend itself treats as current.
func currentQuestion(resp stateResponse) string {
	if q := strings.TrimSpace(resp.CurrentQuestion); q != "" {
		return q
	}
	if len(resp.QA) == 0 {
		return strings.TrimSpace(resp.FirstQuestion)
	}
	return strings.TrimSpace(resp.QA[len(resp.QA)-1].QuestionText)
}

type submitRequest struct {
	AnswerText string `json:"answerText"`
	ElapsedMs  int64  `json:"elapsedMs"`
}

type submitResponse struct {
	NextQuestion *string               `json:"nextQuestion"`
	Evaluation   *interview.Evaluation `json:"evaluation"`
	Completed    bool                  `json:"completed"`
}

func (c *Client) SubmitAnswer(ctx context.Context, sessionID, answer string, elapsed time.Duration) (interview.SubmitResult, error) {
	var resp submitResponse
	req := submitRequest{AnswerText: answer, ElapsedMs: elapsed.Milliseconds()}
	if err := c.do(ctx, opSubmit, http.MethodPost, "/api/interviews/"+url.PathEscape(sessionID)+"/answer", req, &resp); err != nil {
		return interview.SubmitResult{}, err
	}
	out := interview.SubmitResult{Completed: resp.Completed, Evaluation: resp.Evaluation}
	if resp.NextQuestion != nil {
		out.NextQuestion = *resp.NextQuestion
	}
	return out, nil
}

type finishRequest struct {
	Pending *pendingTurn `json:"pending,omitempty"`
}

type pendingTurn struct {
	QuestionText string `json:"questionText"`
	AnswerText   string `json:"answerText,omitempty"`
	StartTs      int64  `json:"startTs"`
	EndTs        int64  `json:"endTs"`
}

func (c *Client) Finish(ctx context.Context, sessionID string, pending *interview.Turn) (interview.FinishResult, error) {
	var req finishRequest
	if pending != nil {
		req.Pending = &pendingTurn{
			QuestionText: pending.QuestionText,
			AnswerText:   pending.AnswerText,
			StartTs:      pending.StartedAt.UnixMilli(),
			EndTs:        pending.EndedAt.UnixMilli(),
		}
	}
	var resp interview.FinishResult
	if err := c.do(ctx, opFinish, http.MethodPost, "/api/interviews/"+url.PathEscape(sessionID)+"/finish", req, &resp); err != nil {
		return interview.FinishResult{}, err
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	if c.HTTP == nil {
		c.HTTP = &http.Client{Timeout: 20 * time.Second}
	}
	if c.Auth == nil {
		return auth.ErrNoCredential
	}
	token, err := c.Auth.Token(ctx)
	if err != nil {
		return err
	}
	baseURL := strings.TrimRight(c.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, baseURL+path, body)
	if err != nil {
		return err
	}
	requestID := uuid.NewString()
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-ID", requestID)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	res, err := c.HTTP.Do(req)
	if err != nil {
		c.observe(op, "error", started)
		log.Printf("[%s] backend %s failed: %v", requestID, op, err)
		return err
	}
	defer res.Body.Close()
	c.observe(op, strconv.Itoa(res.StatusCode), started)

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		statusErr := &StatusError{Code: res.StatusCode, Body: errorDetail(raw)}
		log.Printf("[%s] backend %s: %v", requestID, op, statusErr)
		switch res.StatusCode {
		case http.StatusNotFound, http.StatusGone:
			return fmt.Errorf("%w: %v", interview.ErrSessionNotFound, statusErr)
		case http.StatusForbidden:
			return fmt.Errorf("%w: %v", interview.ErrForbidden, statusErr)
		}
		return statusErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

func (c *Client) observe(op, status string, started time.Time) {
	if c.Recorder != nil {
		c.Recorder.ObserveRequest(op, status, time.Since(started))
	}
}

// errorDetail extracts the "detail" field of a JSON error body when present.
func errorDetail(raw []byte) string {
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Detail != "" {
		return body.Detail
	}
	return strings.TrimSpace(string(raw))
}
