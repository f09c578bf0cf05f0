package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ArionMiles/spendsync/pkg/api"
	"github.com/ArionMiles/spendsync/pkg/storage"
)

// Fixed error messages recorded by AuthStore operations.
const (
	MsgInvalidCredentials = "Invalid credentials"
	MsgRegistrationFailed = "Registration failed"
)

// AuthAPI is the subset of the backend client the auth store uses.
type AuthAPI interface {
	Login(ctx context.Context, username, password string) (api.AuthResponse, error)
	Register(ctx context.Context, username, email, password string) (api.AuthResponse, error)
	VerifyToken(ctx context.Context) (bool, error)
}

// AuthState is a snapshot of the auth store.
type AuthState struct {
	IsAuthenticated bool
	User            *api.User
	// Loading is true until the startup check has settled.
	Loading bool
	Error   string
}

// AuthAction is a state transition request for the auth reducer.
type AuthAction interface {
	authAction()
}

type (
	// LoginSuccess marks the session authenticated as User.
	LoginSuccess struct{ User api.User }
	// LoginFailure clears the session and records Message.
	LoginFailure struct{ Message string }
	// Logout clears the session.
	Logout struct{}
	// SetAuthLoading sets the loading flag.
	SetAuthLoading struct{ Loading bool }
)

func (LoginSuccess) authAction()   {}
func (LoginFailure) authAction()   {}
func (Logout) authAction()         {}
func (SetAuthLoading) authAction() {}

// ReduceAuth returns the state that follows s after a. Unknown actions
// return s unchanged.
func ReduceAuth(s AuthState, a AuthAction) AuthState {
	switch a := a.(type) {
	case LoginSuccess:
		user := a.User
		return AuthState{IsAuthenticated: true, User: &user}
	case LoginFailure:
		return AuthState{Error: a.Message}
	case Logout:
		return AuthState{}
	case SetAuthLoading:
		s.Loading = a.Loading
	}
	return s
}

// AuthStore tracks the signed-in user and owns the persisted credentials.
type AuthStore struct {
	api    AuthAPI
	tokens storage.Storage
	logger *slog.Logger

	mu    sync.Mutex
	state AuthState

	subs listeners[AuthState]
}

// NewAuthStore creates a store in the loading state. Call Init to resolve it.
func NewAuthStore(backend AuthAPI, tokens storage.Storage, logger *slog.Logger) *AuthStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthStore{
		api:    backend,
		tokens: tokens,
		logger: logger.With("component", "auth_store"),
		state:  AuthState{Loading: true},
	}
}

// State returns the current snapshot.
func (s *AuthStore) State() AuthState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn to receive every new snapshot. The returned
// function unregisters it.
func (s *AuthStore) Subscribe(fn func(AuthState)) func() {
	return s.subs.add(fn)
}

// Dispatch applies a and notifies subscribers.
func (s *AuthStore) Dispatch(a AuthAction) {
	s.mu.Lock()
	s.state = ReduceAuth(s.state, a)
	s.subs.enqueue(s.state)
	s.mu.Unlock()
	s.subs.deliver()
}

// Init resolves the startup state from persisted credentials. Without an
// access token no request is made. A token the backend does not accept
// clears every persisted credential.
func (s *AuthStore) Init(ctx context.Context) {
	token, ok := s.tokens.Get(storage.AccessTokenKey)
	if !ok || token == "" {
		s.Dispatch(SetAuthLoading{Loading: false})
		return
	}

	valid, err := s.api.VerifyToken(ctx)
	if err != nil || !valid {
		if err != nil {
			s.logger.Warn("token verification failed", "error", err)
		} else {
			s.logger.Info("persisted token rejected")
		}
		s.clearSession()
		return
	}

	user, err := s.persistedUser()
	if err != nil {
		s.logger.Warn("persisted user unreadable", "error", err)
	}
	s.Dispatch(LoginSuccess{User: user})
}

// Login signs in, persists the credentials and marks the session
// authenticated. On failure the state records a generic message and the
// underlying error is returned.
func (s *AuthStore) Login(ctx context.Context, username, password string) error {
	s.Dispatch(SetAuthLoading{Loading: true})

	resp, err := s.api.Login(ctx, username, password)
	if err == nil {
		err = s.persist(resp)
	}
	if err != nil {
		s.logger.Warn("login failed", "username", username, "error", err)
		s.Dispatch(LoginFailure{Message: MsgInvalidCredentials})
		return err
	}

	s.logger.Info("signed in", "username", resp.User.Username)
	s.Dispatch(LoginSuccess{User: resp.User})
	return nil
}

// Register creates an account and signs in as it. On failure the state
// records a generic message and the underlying error is returned.
func (s *AuthStore) Register(ctx context.Context, username, email, password string) error {
	s.Dispatch(SetAuthLoading{Loading: true})

	resp, err := s.api.Register(ctx, username, email, password)
	if err == nil {
		err = s.persist(resp)
	}
	if err != nil {
		s.logger.Warn("registration failed", "username", username, "error", err)
		s.Dispatch(LoginFailure{Message: MsgRegistrationFailed})
		return err
	}

	s.logger.Info("registered", "username", resp.User.Username)
	s.Dispatch(LoginSuccess{User: resp.User})
	return nil
}

// Logout forgets the persisted credentials and clears the session.
func (s *AuthStore) Logout() error {
	err := s.tokens.Remove(storage.AccessTokenKey, storage.RefreshTokenKey, storage.UserKey)
	s.Dispatch(Logout{})
	if err != nil {
		return fmt.Errorf("clearing credentials: %w", err)
	}
	return nil
}

// SessionExpired ends the session after the backend refused to refresh it.
func (s *AuthStore) SessionExpired(cause error) {
	s.logger.Warn("session expired", "error", cause)
	s.clearSession()
}

func (s *AuthStore) clearSession() {
	if err := s.Logout(); err != nil {
		s.logger.Error("failed to clear session", "error", err)
	}
}

// persist stores the session from resp. It is all or nothing: when any value
// cannot be saved, the values already written are removed again so a later
// Init does not find half a session.
func (s *AuthStore) persist(resp api.AuthResponse) error {
	user, err := json.Marshal(resp.User)
	if err != nil {
		return fmt.Errorf("encoding user: %w", err)
	}

	values := []struct{ key, value, name string }{
		{storage.AccessTokenKey, resp.Tokens.Access, "access token"},
		{storage.RefreshTokenKey, resp.Tokens.Refresh, "refresh token"},
		{storage.UserKey, string(user), "user"},
	}
	for _, v := range values {
		if err := s.tokens.Set(v.key, v.value); err != nil {
			if rmErr := s.tokens.Remove(storage.AccessTokenKey, storage.RefreshTokenKey, storage.UserKey); rmErr != nil {
				s.logger.Error("failed to discard partial session", "error", rmErr)
			}
			return fmt.Errorf("saving %s: %w", v.name, err)
		}
	}
	return nil
}

var errNoPersistedUser = errors.New("no persisted user")

// persistedUser returns the stored user snapshot. A missing or corrupt
// snapshot yields the zero user.
func (s *AuthStore) persistedUser() (api.User, error) {
	raw, ok := s.tokens.Get(storage.UserKey)
	if !ok || raw == "" {
		return api.User{}, errNoPersistedUser
	}
	var user api.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return api.User{}, fmt.Errorf("decoding user: %w", err)
	}
	return user, nil
}
