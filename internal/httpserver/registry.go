package httpserver

import (
	"sync"

	"github.com/msvee3/Interview-prep/internal/auth"
	"github.com/msvee3/Interview-prep/internal/interview"
	"github.com/msvee3/Interview-prep/internal/rtc"
)

// entry is one live session owned by the server.
type entry struct {
	session *interview.Session
	relay   *auth.Relay
	hub     *hub
	peer    *rtc.Peer

	closeOnce sync.Once
}

func (e *entry) close() {
	e.closeOnce.Do(func() {
		e.session.Close()
		if e.peer != nil {
			e.peer.Close()
		}
		e.hub.close()
	})
}

// registry tracks live sessions by backend interview id.
type registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
}

func newRegistry() *registry {
	return &registry{sessions: make(map[string]*entry)}
}

// add stores e under id, closing any session it replaces.
func (r *registry) add(id string, e *entry) {
	r.mu.Lock()
	old := r.sessions[id]
	r.sessions[id] = e
	r.mu.Unlock()
	if old != nil && old != e {
		old.close()
	}
}

func (r *registry) get(id string) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	return e, ok
}

// remove deletes and returns the session stored under id.
func (r *registry) remove(id string) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	return e, ok
}

func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// closeAll tears down every session.
func (r *registry) closeAll() {
	r.mu.Lock()
	all := make([]*entry, 0, len(r.sessions))
	for id, e := range r.sessions {
		all = append(all, e)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range all {
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			e.close()
		}(e)
	}
	wg.Wait()
}
