// Package session holds the signed-in user and bearer token for the
// booking API, and tears both down when the server rejects the token.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/museumbook/internal/museumapi"
	"github.com/wolfman30/museumbook/pkg/logging"
)

// ErrNotSignedIn is returned by operations that need a token when none is held.
var ErrNotSignedIn = errors.New("session: not signed in")

// Authenticator is the subset of the API client the session needs.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*museumapi.LoginResult, error)
	Profile(ctx context.Context, token string) (*museumapi.User, error)
}

// Session is safe for concurrent use. It satisfies museumapi.TokenSource.
type Session struct {
	mu     sync.RWMutex
	token  string
	user   *museumapi.User
	store  TokenStore
	auth   Authenticator
	logger *logging.Logger
	now    func() time.Time
}

// New returns an empty session backed by store.
func New(store TokenStore, logger *logging.Logger) *Session {
	if store == nil {
		store = &MemoryStore{}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Session{store: store, logger: logger, now: time.Now}
}

// WithAuthenticator sets the API used by Init and Login. The API client
// usually takes the session as its TokenSource, so the two are bound after
// construction.
func (s *Session) WithAuthenticator(auth Authenticator) *Session {
	s.auth = auth
	return s
}

// WithClock overrides the clock used for token expiry checks.
func (s *Session) WithClock(now func() time.Time) *Session {
	if now != nil {
		s.now = now
	}
	return s
}

// Init restores a persisted token. A locally expired token is discarded
// without a network call; otherwise the profile is fetched and the token is
// dropped if that fails.
func (s *Session) Init(ctx context.Context) error {
	token, err := s.store.Load()
	if err != nil {
		return fmt.Errorf("init session: %w", err)
	}
	if token == "" {
		return nil
	}
	if expired(token, s.now()) {
		s.logger.Info("stored token expired, discarding")
		s.Clear()
		return nil
	}
	if s.auth == nil {
		return errors.New("init session: no authenticator configured")
	}
	user, err := s.auth.Profile(ctx, token)
	if err != nil {
		s.logger.Warn("stored token rejected, discarding", "error", err)
		s.Clear()
		return nil
	}
	s.mu.Lock()
	s.token = token
	s.user = user
	s.mu.Unlock()
	return nil
}

// Login authenticates, persists the token and holds the returned user.
func (s *Session) Login(ctx context.Context, email, password string) (*museumapi.User, error) {
	if s.auth == nil {
		return nil, errors.New("login: no authenticator configured")
	}
	result, err := s.auth.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(result.Token); err != nil {
		return nil, fmt.Errorf("login: %w", err)
	}
	user := result.User
	s.mu.Lock()
	s.token = result.Token
	s.user = &user
	s.mu.Unlock()
	s.logger.Info("signed in", "email", user.Email, "role", user.Role)
	return &user, nil
}

// Logout drops the token and user and deletes the persisted token.
func (s *Session) Logout() error {
	s.mu.Lock()
	s.token = ""
	s.user = nil
	s.mu.Unlock()
	if err := s.store.Delete(); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Clear is Logout for callers that cannot handle an error, such as the API
// client reacting to a 401.
func (s *Session) Clear() {
	if err := s.Logout(); err != nil {
		s.logger.Warn("failed to remove persisted token", "error", err)
	}
}

func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// User returns a copy of the signed-in user, or nil.
func (s *Session) User() *museumapi.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Session) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.user.Role == museumapi.RoleAdmin
}

// RequireToken returns ErrNotSignedIn when no token is held.
func (s *Session) RequireToken() error {
	if s.Token() == "" {
		return ErrNotSignedIn
	}
	return nil
}

// expired decodes the token's exp claim without verifying the signature.
// Tokens that are not JWTs, or carry no exp, are left to the server.
func expired(token string, now time.Time) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(claims.ExpiresAt.Time)
}
