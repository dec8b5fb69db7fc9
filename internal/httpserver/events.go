package httpserver

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/msvee3/Interview-prep/internal/interview"
)

const (
	subscriberBuffer = 64
	writeWait        = 10 * time.Second
	pingPeriod       = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// hub fans session events out to websocket subscribers. publish runs on the
// session goroutine, so it never blocks: a subscriber that falls behind
// loses events and catches up from the next view.
type hub struct {
	mu     sync.Mutex
	subs   map[chan interview.Event]struct{}
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[chan interview.Event]struct{})}
}

func (h *hub) publish(ev interview.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *hub) subscribe() (<-chan interview.Event, func()) {
	ch := make(chan interview.Event, subscriberBuffer)
	h.mu.Lock()
	if h.closed {
		close(ch)
	} else {
		h.subs[ch] = struct{}{}
	}
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		delete(h.subs, ch)
		close(ch)
	}
}

// events streams the session's events as JSON text frames. The first frame
// is a "state" event carrying the current view.
func (s *Server) events(c echo.Context) error {
	id := c.Param("id")
	e, ok := s.sessions.get(id)
	if !ok {
		return c.JSON(http.StatusNotFound, errorBody{Error: interview.ErrSessionNotFound.Error()})
	}
	e.relay.Set(bearerToken(c))

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("[%s] websocket upgrade failed: %v", id, err)
		return nil
	}
	defer conn.Close()

	events, unsubscribe := e.hub.subscribe()
	defer unsubscribe()

	// Drain client frames so close and pong control messages are processed.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	write := func(ev interview.Event) error {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(ev)
	}
	if err := write(interview.Event{Kind: interview.EventState, At: time.Now(), View: e.session.View()}); err != nil {
		return nil
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(writeWait))
				return nil
			}
			if err := write(ev); err != nil {
				log.Printf("[%s] websocket write failed: %v", id, err)
				return nil
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return nil
			}
		case <-gone:
			return nil
		}
	}
}
