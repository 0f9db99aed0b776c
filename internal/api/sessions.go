package api

import (
	"sync"
	"time"
)

// SessionStore holds admin sessions in process memory. Sessions are created
// by the admin login flow, which lives outside this service; here they only
// back the Authenticated predicate. State resets on restart and is not
// shared across instances.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]time.Time
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionStore creates a session store with the given session lifetime.
// now may be nil, in which case time.Now is used.
func NewSessionStore(ttl time.Duration, now func() time.Time) *SessionStore {
	if now == nil {
		now = time.Now
	}
	return &SessionStore{
		sessions: make(map[string]time.Time),
		ttl:      ttl,
		now:      now,
	}
}

// Put registers a session token
func (s *SessionStore) Put(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = s.now().Add(s.ttl)
}

// Revoke removes a session token
func (s *SessionStore) Revoke(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

// Authenticated reports whether the token belongs to a live session.
// Expired sessions are removed lazily.
func (s *SessionStore) Authenticated(token string) bool {
	if token == "" {
		return false
	}

	s.mu.RLock()
	expiry, ok := s.sessions[token]
	s.mu.RUnlock()
	if !ok {
		return false
	}

	if s.now().After(expiry) {
		s.Revoke(token)
		return false
	}
	return true
}
