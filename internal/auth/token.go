// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"math"
	"time"

	"github.com/samber/oops"
)

// TokenSalt separates session tokens from other signatures made with the
// same secret. It is not secret and must not change: existing tokens would
// stop validating.
const TokenSalt = "auth_salt"

// DefaultTokenMaxAge is the validity window used when Validate is given a
// non-positive max age.
const DefaultTokenMaxAge = time.Hour

// maxTokenAgeSeconds is the largest age, in seconds, a time.Duration holds.
const maxTokenAgeSeconds = math.MaxInt64 / int64(time.Second)

// Token wire formats.
const (
	TokenFormatItsdangerous = "itsdangerous"
	TokenFormatJWT          = "jwt"
)

// tokenCodec signs and verifies (subject, issued-at) pairs. issuedAt is in
// Unix seconds. decode returns ErrInvalidToken for anything it cannot verify.
type tokenCodec interface {
	encode(subject string, issuedAt int64) (string, error)
	decode(token string) (subject string, issuedAt int64, err error)
}

// TokenService issues and validates stateless, timestamped session tokens.
// Expiry is decided at validation time from the issuance timestamp; tokens
// carry no expiry of their own.
type TokenService struct {
	codec tokenCodec
	now   func() time.Time
}

type tokenOptions struct {
	format string
	now    func() time.Time
}

// TokenOption configures a TokenService.
type TokenOption func(*tokenOptions)

// WithTokenFormat selects the wire format. Empty means TokenFormatItsdangerous.
func WithTokenFormat(format string) TokenOption {
	return func(o *tokenOptions) {
		if format != "" {
			o.format = format
		}
	}
}

// WithClock overrides the time source. Useful for testing with deterministic time values.
func WithClock(now func() time.Time) TokenOption {
	return func(o *tokenOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// NewTokenService creates a TokenService signing with secret.
func NewTokenService(secret string, opts ...TokenOption) (*TokenService, error) {
	if secret == "" {
		return nil, oops.Code("TOKEN_SECRET_REQUIRED").Errorf("token secret cannot be empty")
	}

	o := tokenOptions{format: TokenFormatItsdangerous, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	var codec tokenCodec
	switch o.format {
	case TokenFormatItsdangerous:
		codec = newItsdangerousCodec(secret)
	case TokenFormatJWT:
		jc, err := newJWTCodec(secret)
		if err != nil {
			return nil, err
		}
		codec = jc
	default:
		return nil, oops.Code("TOKEN_UNKNOWN_FORMAT").
			With("format", o.format).
			Errorf("unsupported token format: %s", o.format)
	}

	return &TokenService{codec: codec, now: o.now}, nil
}

// Generate issues a token binding subject to the current time.
func (s *TokenService) Generate(subject string) (string, error) {
	token, err := s.codec.encode(subject, s.now().Unix())
	if err != nil {
		return "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "encode token").
			Wrap(err)
	}
	return token, nil
}

// Validate returns the token's subject if its signature verifies and it was
// issued no more than maxAge ago. Tampered, malformed, expired and
// future-dated tokens all return ("", false).
func (s *TokenService) Validate(token string, maxAge time.Duration) (string, bool) {
	subject, ok := s.validate(token, maxAge)
	recordTokenValidation(ok)
	return subject, ok
}

func (s *TokenService) validate(token string, maxAge time.Duration) (string, bool) {
	if token == "" {
		return "", false
	}
	if maxAge <= 0 {
		maxAge = DefaultTokenMaxAge
	}

	subject, issuedAt, err := s.codec.decode(token)
	if err != nil {
		return "", false
	}

	// Ages are whole seconds; compare as durations so a sub-second maxAge
	// is not truncated to zero.
	age := s.now().Unix() - issuedAt
	if age < 0 || age > maxTokenAgeSeconds || time.Duration(age)*time.Second > maxAge {
		return "", false
	}
	return subject, true
}
