package httpserver

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pion/webrtc/v3"

	"github.com/msvee3/Interview-prep/internal/auth"
	"github.com/msvee3/Interview-prep/internal/interview"
	"github.com/msvee3/Interview-prep/internal/rtc"
	"github.com/msvee3/Interview-prep/internal/voice"
)

const offerTimeout = 10 * time.Second

// Deps are the collaborators the server builds sessions from.
type Deps struct {
	// Gateway returns a backend client that authenticates with provider.
	Gateway func(provider auth.Provider) interview.Gateway
	// Voice builds the voice I/O for browser audio. Nil disables voice sessions.
	Voice          func(src voice.AudioSource, sink voice.AudioSink) interview.Voice
	ICEServers     []webrtc.ICEServer
	Observer       interview.Observer
	Archiver       interview.Archiver
	RequestTimeout time.Duration
	Metrics        http.Handler
}

// Server bundles the HTTP router and the live sessions it serves.
type Server struct {
	Router   http.Handler
	deps     Deps
	sessions *registry
}

// New constructs the control server with routes.
func New(deps Deps) *Server {
	s := &Server{deps: deps, sessions: newRegistry()}
	e := newEcho()

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	if deps.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(deps.Metrics))
	}

	api := e.Group("/api/sessions", requireBearer)
	api.POST("", s.create)
	api.POST("/:id/resume", s.resume)
	api.GET("/:id", s.get)
	api.PUT("/:id/answer", s.input)
	api.POST("/:id/submit", s.submit)
	api.POST("/:id/capture", s.capture)
	api.POST("/:id/repeat", s.repeat)
	api.POST("/:id/end", s.end)
	api.POST("/:id/finish", s.retryFinish)
	api.DELETE("/:id", s.remove)
	api.GET("/:id/events", s.events)

	s.Router = e
	return s
}

// Shutdown tears down every live session.
func (s *Server) Shutdown() {
	n := s.sessions.count()
	s.sessions.closeAll()
	if n > 0 {
		log.Printf("closed %d live sessions", n)
	}
}

type errorBody struct {
	Error string          `json:"error"`
	View  *interview.View `json:"view,omitempty"`
}

type createRequest struct {
	Config interview.Config        `json:"config"`
	Offer  *rtc.SessionDescription `json:"offer,omitempty"`
}

type resumeRequest struct {
	Offer *rtc.SessionDescription `json:"offer,omitempty"`
}

type sessionResponse struct {
	View   interview.View          `json:"view"`
	Answer *rtc.SessionDescription `json:"answer,omitempty"`
}

func (s *Server) create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid request body"})
	}
	e, answer, err := s.open(c.Request().Context(), bearerToken(c), req.Config, req.Offer)
	if err != nil {
		return c.JSON(http.StatusBadGateway, errorBody{Error: err.Error()})
	}
	if err := e.session.Start(c.Request().Context()); err != nil {
		view := e.session.View()
		e.close()
		return writeError(c, err, &view)
	}
	return s.register(c, e, answer)
}

func (s *Server) resume(c echo.Context) error {
	var req resumeRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid request body"})
		}
	}
	id := c.Param("id")
	if old, ok := s.sessions.remove(id); ok {
		old.close()
	}
	// The config arrives with the backend snapshot. Voice is attached only
	// when the caller offers audio.
	e, answer, err := s.open(c.Request().Context(), bearerToken(c), interview.Config{VoiceEnabled: req.Offer != nil}, req.Offer)
	if err != nil {
		return c.JSON(http.StatusBadGateway, errorBody{Error: err.Error()})
	}
	if err := e.session.Resume(c.Request().Context(), id); err != nil {
		view := e.session.View()
		e.close()
		return writeError(c, err, &view)
	}
	return s.register(c, e, answer)
}

// open builds a session, attaching browser audio when offer is set.
func (s *Server) open(ctx context.Context, token string, cfg interview.Config, offer *rtc.SessionDescription) (*entry, *rtc.SessionDescription, error) {
	relay := &auth.Relay{}
	relay.Set(token)
	e := &entry{relay: relay, hub: newHub()}

	opts := []interview.Option{
		interview.WithListener(e.hub.publish),
		interview.WithObserver(s.deps.Observer),
		interview.WithRequestTimeout(s.deps.RequestTimeout),
	}
	if s.deps.Archiver != nil {
		opts = append(opts, interview.WithArchiver(s.deps.Archiver))
	}

	var answer *rtc.SessionDescription
	if offer != nil && s.deps.Voice != nil {
		octx, cancel := context.WithTimeout(ctx, offerTimeout)
		defer cancel()
		peer, sdp, err := rtc.NewPeer(octx, *offer, s.deps.ICEServers, func(cmd string) { s.control(e, cmd) })
		if err != nil {
			return nil, nil, err
		}
		e.peer = peer
		answer = &sdp
		opts = append(opts, interview.WithVoice(s.deps.Voice(peer.Source(), peer.Sink())))
	}
	e.session = interview.NewSession(s.deps.Gateway(relay), cfg, opts...)
	return e, answer, nil
}

func (s *Server) register(c echo.Context, e *entry, answer *rtc.SessionDescription) error {
	view := e.session.View()
	s.sessions.add(view.ID, e)
	log.Printf("[%s] session registered (state=%s voice=%t)", view.ID, view.State, e.peer != nil)
	return c.JSON(http.StatusCreated, sessionResponse{View: view, Answer: answer})
}

// control handles commands from the browser's data channel.
func (s *Server) control(e *entry, cmd string) {
	if e.session == nil {
		return
	}
	var err error
	switch cmd {
	case "submit":
		_, err = e.session.Submit(context.Background())
	case "mic-on":
		err = e.session.StartCapture()
	case "mic-off":
		err = e.session.StopCapture()
	case "repeat":
		err = e.session.RepeatQuestion()
	case "end":
		_, err = e.session.End(context.Background())
	default:
		log.Printf("[%s] unknown control command %q", e.session.View().ID, cmd)
		return
	}
	if err != nil {
		log.Printf("[%s] control %s: %v", e.session.View().ID, cmd, err)
	}
}

// lookup finds the session and refreshes its relayed credential.
func (s *Server) lookup(c echo.Context) (*entry, error) {
	e, ok := s.sessions.get(c.Param("id"))
	if !ok {
		return nil, c.JSON(http.StatusNotFound, errorBody{Error: interview.ErrSessionNotFound.Error()})
	}
	e.relay.Set(bearerToken(c))
	return e, nil
}

func (s *Server) get(c echo.Context) error {
	e, err := s.lookup(c)
	if e == nil {
		return err
	}
	return c.JSON(http.StatusOK, e.session.View())
}

type inputRequest struct {
	Text string `json:"text"`
}

func (s *Server) input(c echo.Context) error {
	e, err := s.lookup(c)
	if e == nil {
		return err
	}
	var req inputRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid request body"})
	}
	if err := e.session.Input(req.Text); err != nil {
		return writeSessionError(c, e, err)
	}
	return c.JSON(http.StatusOK, e.session.View())
}

type submitResponse struct {
	NextQuestion string                `json:"nextQuestion,omitempty"`
	Finished     bool                  `json:"finished"`
	Evaluation   *interview.Evaluation `json:"evaluation,omitempty"`
	View         interview.View        `json:"view"`
}

func (s *Server) submit(c echo.Context) error {
	e, err := s.lookup(c)
	if e == nil {
		return err
	}
	out, err := e.session.Submit(c.Request().Context())
	if err != nil {
		return writeSessionError(c, e, err)
	}
	return c.JSON(http.StatusOK, submitResponse{
		NextQuestion: out.NextQuestion,
		Finished:     out.Finished,
		Evaluation:   out.Evaluation,
		View:         e.session.View(),
	})
}

type captureRequest struct {
	On bool `json:"on"`
}

func (s *Server) capture(c echo.Context) error {
	e, err := s.lookup(c)
	if e == nil {
		return err
	}
	var req captureRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody{Error: "invalid request body"})
	}
	if req.On {
		err = e.session.StartCapture()
	} else {
		err = e.session.StopCapture()
	}
	if err != nil {
		return writeSessionError(c, e, err)
	}
	return c.JSON(http.StatusOK, e.session.View())
}

func (s *Server) repeat(c echo.Context) error {
	e, err := s.lookup(c)
	if e == nil {
		return err
	}
	if err := e.session.RepeatQuestion(); err != nil {
		return writeSessionError(c, e, err)
	}
	return c.JSON(http.StatusOK, e.session.View())
}

func (s *Server) end(c echo.Context) error {
	e, err := s.lookup(c)
	if e == nil {
		return err
	}
	if _, err := e.session.End(c.Request().Context()); err != nil {
		return writeSessionError(c, e, err)
	}
	return c.JSON(http.StatusOK, e.session.View())
}

func (s *Server) retryFinish(c echo.Context) error {
	e, err := s.lookup(c)
	if e == nil {
		return err
	}
	if _, err := e.session.RetryFinish(c.Request().Context()); err != nil {
		return writeSessionError(c, e, err)
	}
	return c.JSON(http.StatusOK, e.session.View())
}

func (s *Server) remove(c echo.Context) error {
	e, ok := s.sessions.remove(c.Param("id"))
	if !ok {
		return c.JSON(http.StatusNotFound, errorBody{Error: interview.ErrSessionNotFound.Error()})
	}
	e.close()
	return c.NoContent(http.StatusNoContent)
}

func writeSessionError(c echo.Context, e *entry, err error) error {
	view := e.session.View()
	return writeError(c, err, &view)
}

func writeError(c echo.Context, err error, view *interview.View) error {
	return c.JSON(statusFor(err), errorBody{Error: err.Error(), View: view})
}

// statusFor maps session errors to HTTP status codes.
func statusFor(err error) int {
	var verr *interview.ValidationError
	var berr *interview.BackendError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, auth.ErrNoCredential), errors.Is(err, auth.ErrCredentialExpired):
		return http.StatusUnauthorized
	case errors.As(err, &berr):
		return http.StatusBadGateway
	case errors.Is(err, interview.ErrClosed):
		return http.StatusGone
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	case errors.Is(err, interview.ErrSessionTerminal),
		errors.Is(err, interview.ErrBusy),
		errors.Is(err, interview.ErrCaptureUnsupported),
		errors.Is(err, interview.ErrPlaybackUnsupported):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
