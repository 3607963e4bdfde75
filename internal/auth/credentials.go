// Package auth holds the gateway's upstream bearer credential and the
// session-ended signal raised when the upstream rejects it.
package auth

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/core/clock"
	"github.com/golang-jwt/jwt/v5"
)

// User is the upstream account the gateway acts as.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// CredentialStore keeps the bearer token in memory. A token whose exp claim
// has passed is treated as absent.
type CredentialStore struct {
	clock clock.Clock

	mu        sync.RWMutex
	token     string
	user      *User
	expiresAt time.Time
}

// NewCredentialStore returns an empty store. A nil clock means the system clock.
func NewCredentialStore(clk clock.Clock) *CredentialStore {
	if clk == nil {
		clk = clock.System{}
	}
	return &CredentialStore{clock: clk}
}

// Set stores token and user. The expiry is read from the token's exp claim
// without verifying the signature; the gateway does not hold the signing
// key. Tokens that are not JWTs are stored without an expiry.
func (s *CredentialStore) Set(token string, user *User) {
	var expiresAt time.Time
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		slog.Debug("[Auth] Token is not a parseable JWT, storing without expiry", "error", err)
	} else if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time.UTC()
	}

	var u *User
	if user != nil {
		copied := *user
		u = &copied
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
	s.user = u
	s.expiresAt = expiresAt
}

// Token returns the current token, or "" when none is stored or it expired.
func (s *CredentialStore) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == "" || s.expiredLocked() {
		return ""
	}
	return s.token
}

// User returns a copy of the stored user.
func (s *CredentialStore) User() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

// SetUser replaces the stored user, keeping the token.
func (s *CredentialStore) SetUser(user User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = &user
}

// ExpiresAt returns the token expiry, zero when unknown.
func (s *CredentialStore) ExpiresAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expiresAt
}

// Authenticated reports whether both a live token and a user are stored.
func (s *CredentialStore) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != "" && s.user != nil && !s.expiredLocked()
}

// Clear forgets the token and user.
func (s *CredentialStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.user = nil
	s.expiresAt = time.Time{}
}

func (s *CredentialStore) expiredLocked() bool {
	return !s.expiresAt.IsZero() && !s.clock.Now().Before(s.expiresAt)
}
