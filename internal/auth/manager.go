// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/holomush/sessionauth/pkg/errutil"
)

// DefaultSessionKey is the session entry holding the issued token.
const DefaultSessionKey = "token"

// Manager runs the login, current-subject and logout flow against a
// per-client SessionStore. A Manager holds no per-client state and is safe
// for concurrent use.
type Manager struct {
	credentials CredentialVerifier
	tokens      *TokenService
	sessionKey  string
	maxAge      time.Duration
	logger      *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithSessionKey sets the session entry used to store the token.
func WithSessionKey(key string) ManagerOption {
	return func(m *Manager) {
		if key != "" {
			m.sessionKey = key
		}
	}
}

// WithMaxAge sets the token age accepted by CurrentSubject.
func WithMaxAge(maxAge time.Duration) ManagerOption {
	return func(m *Manager) {
		if maxAge > 0 {
			m.maxAge = maxAge
		}
	}
}

// WithLogger sets the logger for session write diagnostics.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a Manager.
func NewManager(credentials CredentialVerifier, tokens *TokenService, opts ...ManagerOption) (*Manager, error) {
	if credentials == nil {
		return nil, oops.Code("AUTH_MANAGER_INVALID").Errorf("credential verifier is required")
	}
	if tokens == nil {
		return nil, oops.Code("AUTH_MANAGER_INVALID").Errorf("token service is required")
	}

	m := &Manager{
		credentials: credentials,
		tokens:      tokens,
		sessionKey:  DefaultSessionKey,
		maxAge:      DefaultTokenMaxAge,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Login verifies the credentials and, on success, issues a token for
// username and stores it in sessions. On any failure it returns ("", false)
// and leaves sessions untouched.
func (m *Manager) Login(ctx context.Context, sessions SessionStore, username, password string) (string, bool) {
	token, ok := m.login(ctx, sessions, username, password)
	recordLogin(ok)
	return token, ok
}

func (m *Manager) login(ctx context.Context, sessions SessionStore, username, password string) (string, bool) {
	if !m.credentials.Verify(ctx, username, password) {
		return "", false
	}

	token, err := m.tokens.Generate(username)
	if err != nil {
		errutil.LogError(ctx, m.logger, "token generation failed", err)
		return "", false
	}

	// A session id that existed before authentication must not carry the token.
	if r, ok := sessions.(SessionRotator); ok {
		r.Rotate()
	}
	if err := sessions.Set(m.sessionKey, token); err != nil {
		errutil.LogError(ctx, m.logger, "session write failed",
			oops.Code("SESSION_WRITE_FAILED").
				With("operation", "store token").
				With("username", username).
				Wrap(err))
		return "", false
	}

	m.logger.InfoContext(ctx, "login succeeded", "username", username)
	return token, true
}

// CurrentSubject returns the subject of the session's token, or false when
// there is no session or its token is invalid or expired.
func (m *Manager) CurrentSubject(_ context.Context, sessions SessionStore) (string, bool) {
	token, ok := sessions.Get(m.sessionKey)
	if !ok {
		return "", false
	}
	return m.tokens.Validate(token, m.maxAge)
}

// Logout clears the session.
func (m *Manager) Logout(ctx context.Context, sessions SessionStore) {
	if err := sessions.Clear(); err != nil {
		errutil.LogError(ctx, m.logger, "session clear failed",
			oops.Code("SESSION_CLEAR_FAILED").
				With("operation", "logout").
				Wrap(err))
	}
}
