package api

import "sync"

// Session holds the one bearer token the client uses for its lifetime.
// Any caller may invalidate it (typically on a 401), which forces the next
// Login to hit the network again. Re-authentication is idempotent.
type Session struct {
	mu    sync.RWMutex
	token string
}

func NewSession() *Session {
	return &Session{}
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *Session) Set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

func (s *Session) Invalidate() {
	s.Set("")
}
