package api

import (
	"sync"

	"github.com/google/uuid"

	"swapScope/internal/swap"
)

// Registry tracks open sessions by id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*swap.Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*swap.Session)}
}

// Add stores s under a fresh id.
func (r *Registry) Add(s *swap.Session) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.sessions[id] = s
	r.mu.Unlock()
	return id
}

func (r *Registry) Get(id string) (*swap.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Remove closes and forgets a session.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		s.Close()
	}
	return ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll closes every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*swap.Session)
	r.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
