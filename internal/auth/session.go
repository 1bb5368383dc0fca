package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrInvalidCredentials is returned for any failed login, whichever field was wrong
var ErrInvalidCredentials = errors.New("invalid username or password")

// Authenticator checks an admin credential pair
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (bool, error)
}

type session struct {
	username  string
	expiresAt time.Time
}

// Sessions tracks logged-in administrators by opaque token.
// It is safe for concurrent use.
type Sessions struct {
	auth Authenticator
	ttl  time.Duration
	now  func() time.Time

	mu     sync.Mutex
	active map[string]session
}

// NewSessions creates a session registry backed by auth
func NewSessions(auth Authenticator, ttl time.Duration) *Sessions {
	return &Sessions{
		auth:   auth,
		ttl:    ttl,
		now:    time.Now,
		active: make(map[string]session),
	}
}

// Login verifies the credentials and returns a new session token
func (s *Sessions) Login(ctx context.Context, username, password string) (string, error) {
	ok, err := s.auth.Authenticate(ctx, username, password)
	if err != nil {
		return "", fmt.Errorf("failed to authenticate: %w", err)
	}
	if !ok {
		log.Warn().Msg("Admin login rejected")
		return "", ErrInvalidCredentials
	}

	token := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()
	s.active[token] = session{username: username, expiresAt: s.now().Add(s.ttl)}

	log.Info().Str("username", username).Msg("Admin logged in")
	return token, nil
}

// Logout ends a session; unknown tokens are ignored
func (s *Sessions) Logout(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.active[token]; ok {
		delete(s.active, token)
		log.Info().Str("username", sess.username).Msg("Admin logged out")
	}
}

// Valid reports whether token belongs to a live session
func (s *Sessions) Valid(token string) bool {
	if token == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.active[token]
	if !ok {
		return false
	}
	if !s.now().Before(sess.expiresAt) {
		delete(s.active, token)
		return false
	}
	return true
}

// Count returns the number of live sessions
func (s *Sessions) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked()
	return len(s.active)
}

func (s *Sessions) purgeLocked() {
	now := s.now()
	for token, sess := range s.active {
		if !now.Before(sess.expiresAt) {
			delete(s.active, token)
		}
	}
}
