package locsource

import (
	"sync"

	"github.com/JGarto/oss-mytracks/internal/track"
)

// Sim is an in-process positioning source. Fixes pushed with Push are
// delivered to the current registration, if any. It records every Register
// call so callers can assert on the negotiated interval.
type Sim struct {
	mu       sync.Mutex
	handler  Handler
	requests []Request
}

func NewSim() *Sim {
	return &Sim{}
}

func (s *Sim) Register(req Request, h Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
	s.requests = append(s.requests, req)
	return nil
}

func (s *Sim) Unregister() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = nil
}

// Push delivers a fix to the registered handler. Dropped when unregistered,
// matching a real source that stops calling back after removeUpdates.
func (s *Sim) Push(f track.Fix) {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()

	if h != nil {
		h(f)
	}
}

// Registrations returns a copy of all registration requests seen so far.
func (s *Sim) Registrations() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Registered reports whether a handler is currently attached.
func (s *Sim) Registered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler != nil
}
