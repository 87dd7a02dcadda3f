package teamapi

import (
	"context"
	"sync"
	"time"
)

// Session holds the bearer token issued by Login. It implements
// httpclient.TokenSource, so every attempt reads the current token; a login
// or logout during a retry loop takes effect on the next attempt.
type Session struct {
	mu        sync.RWMutex
	token     string
	expiresAt time.Time
	userID    string

	now func() time.Time
}

// NewSession returns a session seeded with token, which may be empty.
func NewSession(token string) *Session {
	return &Session{token: token, now: time.Now}
}

// Token returns the current token, or "" once it has expired.
func (s *Session) Token(context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.expiresAt.IsZero() && !s.now().Before(s.expiresAt) {
		return "", nil
	}
	return s.token, nil
}

// Set stores a freshly issued token.
func (s *Session) Set(token, userID string, expiresAt time.Time) {
	s.mu.Lock()
	s.token, s.userID, s.expiresAt = token, userID, expiresAt
	s.mu.Unlock()
}

// Clear forgets the token.
func (s *Session) Clear() {
	s.Set("", "", time.Time{})
}

// UserID is the user the token was issued to, when known.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}
