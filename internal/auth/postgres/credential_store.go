// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"

	"github.com/holomush/sessionauth/internal/auth"
	"github.com/holomush/sessionauth/pkg/errutil"
)

const (
	verifyDigestSQL = `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1 AND password_hash = $2)`
	lookupHashSQL   = `SELECT password_hash FROM users WHERE username = $1`
)

// CredentialStore implements auth.CredentialVerifier against the users table.
type CredentialStore struct {
	pool   Pool
	hasher auth.PasswordHasher
	logger *slog.Logger
}

// Option configures a CredentialStore.
type Option func(*CredentialStore)

// WithHasher sets the password hasher. Defaults to auth.SHA256Hasher.
func WithHasher(hasher auth.PasswordHasher) Option {
	return func(s *CredentialStore) {
		if hasher != nil {
			s.hasher = hasher
		}
	}
}

// WithLogger sets the logger that receives backend failure diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *CredentialStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewCredentialStore creates a CredentialStore reading from pool.
func NewCredentialStore(pool Pool, opts ...Option) (*CredentialStore, error) {
	if pool == nil {
		return nil, oops.Code("CREDENTIAL_STORE_INVALID").Errorf("connection pool is required")
	}
	s := &CredentialStore{
		pool:   pool,
		hasher: auth.NewSHA256Hasher(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Verify reports whether username exists with a hash matching password.
// Backend failures return false and are logged at ERROR level.
func (s *CredentialStore) Verify(ctx context.Context, username, password string) bool {
	ok, err := s.verify(ctx, username, password)
	if err != nil {
		auth.RecordCredentialCheck(auth.ResultError)
		errutil.LogError(ctx, s.logger, "credential verification failed", err, diagnosticAttrs(err)...)
		return false
	}
	if !ok {
		auth.RecordCredentialCheck(auth.ResultMismatch)
		s.logger.DebugContext(ctx, "credential mismatch", "username", username)
		return false
	}
	auth.RecordCredentialCheck(auth.ResultMatch)
	return true
}

func (s *CredentialStore) verify(ctx context.Context, username, password string) (bool, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return false, oops.Code("CREDENTIAL_BACKEND_UNAVAILABLE").
			With("operation", "acquire connection").
			With("username", username).
			Wrap(err)
	}
	defer conn.Release()

	if digester, ok := s.hasher.(auth.DigestHasher); ok {
		return verifyDigest(ctx, conn, digester, username, password)
	}
	return s.verifyHash(ctx, conn, username, password)
}

func verifyDigest(ctx context.Context, conn Conn, digester auth.DigestHasher, username, password string) (bool, error) {
	var exists bool
	err := conn.QueryRow(ctx, verifyDigestSQL, username, digester.Digest(password)).Scan(&exists)
	if err != nil {
		return false, oops.Code("CREDENTIAL_BACKEND_UNAVAILABLE").
			With("operation", "lookup credential").
			With("username", username).
			Wrap(err)
	}
	return exists, nil
}

// verifyHash loads the stored hash and verifies in process. Unknown users are
// checked against the hasher's dummy hash to keep timing uniform.
func (s *CredentialStore) verifyHash(ctx context.Context, conn Conn, username, password string) (bool, error) {
	var hash string
	found := true
	err := conn.QueryRow(ctx, lookupHashSQL, username).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		hash = auth.DummyHashFor(s.hasher)
		found = false
	} else if err != nil {
		return false, oops.Code("CREDENTIAL_BACKEND_UNAVAILABLE").
			With("operation", "lookup password hash").
			With("username", username).
			Wrap(err)
	}

	valid, err := s.hasher.Verify(password, hash)
	if err != nil {
		if !found {
			return false, nil
		}
		return false, oops.
			With("operation", "verify password").
			With("username", username).
			Wrap(err)
	}
	return found && valid, nil
}

// diagnosticAttrs extracts the SQLSTATE and an operator hint from err.
func diagnosticAttrs(err error) []any {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil
	}
	attrs := []any{"pg_code", pgErr.Code}
	switch {
	case pgErr.Code == pgerrcode.UndefinedTable:
		attrs = append(attrs, "hint", "users table missing; run migrations")
	case pgErr.Code == pgerrcode.InsufficientPrivilege:
		attrs = append(attrs, "hint", "database role cannot read users")
	case pgerrcode.IsConnectionException(pgErr.Code):
		attrs = append(attrs, "hint", "database connection lost")
	}
	return attrs
}
