package auth

import (
	"log/slog"
	"sync"
)

// Reasons passed to Session.End.
const (
	ReasonUnauthorized = "unauthorized"
	ReasonLogout       = "logout"
)

// Session fans out the session-ended signal. Collaborators register with
// OnEnd and react, for example by dropping cached data or re-authenticating.
type Session struct {
	mu        sync.Mutex
	listeners []func(reason string)
	ended     uint64
}

// NewSession returns a session with no listeners.
func NewSession() *Session {
	return &Session{}
}

// OnEnd registers fn to run every time the session ends.
func (s *Session) OnEnd(fn func(reason string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// End signals every listener. Listeners run synchronously on the caller's
// goroutine.
func (s *Session) End(reason string) {
	s.mu.Lock()
	s.ended++
	listeners := make([]func(string), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	slog.Info("[Auth] Session ended", "reason", reason)
	for _, fn := range listeners {
		fn(reason)
	}
}

// Ended reports how many times the session has ended.
func (s *Session) Ended() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}
