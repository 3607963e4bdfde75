package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// ErrMissingCredentials is returned by Login when email or password is empty.
var ErrMissingCredentials = errors.New("email and password are required")

// API performs a JSON request against the upstream gateway. body and out
// may be nil.
type API interface {
	Do(ctx context.Context, method, path string, body, out any) error
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	User      User   `json:"user"`
	ExpiresIn int64  `json:"expiresIn"`
}

// Service logs the gateway in and out of the upstream API.
type Service struct {
	api     API
	creds   *CredentialStore
	session *Session
}

func NewService(api API, creds *CredentialStore, session *Session) *Service {
	return &Service{api: api, creds: creds, session: session}
}

// Login exchanges credentials for a bearer token and stores it.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	if email == "" || password == "" {
		return LoginResponse{}, ErrMissingCredentials
	}

	var resp LoginResponse
	if err := s.api.Do(ctx, http.MethodPost, "/auth/login", LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return LoginResponse{}, fmt.Errorf("login: %w", err)
	}
	if resp.Token == "" {
		return LoginResponse{}, errors.New("login: upstream returned no token")
	}

	s.creds.Set(resp.Token, &resp.User)
	slog.Info("[Auth] Logged in", "user", resp.User.Email, "role", resp.User.Role)
	return resp, nil
}

// Logout tells the upstream to drop the session. A failing call is logged
// and otherwise ignored; local credentials are always cleared and the
// session-ended signal always fires.
func (s *Service) Logout(ctx context.Context) {
	if err := s.api.Do(ctx, http.MethodPost, "/auth/logout", nil, nil); err != nil {
		slog.Warn("[Auth] Logout call failed (non-critical)", "error", err)
	}
	s.creds.Clear()
	s.session.End(ReasonLogout)
}

// CurrentUser fetches the profile behind the stored token and refreshes the
// stored copy.
func (s *Service) CurrentUser(ctx context.Context) (User, error) {
	var u User
	if err := s.api.Do(ctx, http.MethodGet, "/auth/me", nil, &u); err != nil {
		return User{}, fmt.Errorf("current user: %w", err)
	}
	s.creds.SetUser(u)
	return u, nil
}

// Authenticated reports whether a live token and user are stored.
func (s *Service) Authenticated() bool {
	return s.creds.Authenticated()
}
