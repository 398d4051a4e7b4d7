// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/sha256"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
	"golang.org/x/crypto/hkdf"
)

// jwtCodec encodes tokens as HS256 JWTs carrying sub and iat claims.
type jwtCodec struct {
	key []byte
}

func newJWTCodec(secret string) (*jwtCodec, error) {
	key := make([]byte, sha256.Size)
	r := hkdf.New(sha256.New, []byte(secret), []byte(TokenSalt), []byte("signer"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, oops.Code("TOKEN_KEY_DERIVE_FAILED").Wrap(err)
	}
	return &jwtCodec{key: key}, nil
}

func (c *jwtCodec) encode(subject string, issuedAt int64) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(time.Unix(issuedAt, 0)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", oops.With("operation", "sign jwt").Wrap(err)
	}
	return signed, nil
}

func (c *jwtCodec) decode(token string) (string, int64, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return c.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithStrictDecoding(),
	)
	if err != nil {
		return "", 0, ErrInvalidToken
	}
	if claims.IssuedAt == nil {
		return "", 0, ErrInvalidToken
	}
	return claims.Subject, claims.IssuedAt.Unix(), nil
}
