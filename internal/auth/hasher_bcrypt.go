// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"errors"
	"sync"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
)

// AlgorithmBcrypt selects BcryptHasher.
const AlgorithmBcrypt = "bcrypt"

// BcryptHasher implements PasswordHasher with bcrypt. Passwords longer than
// 72 bytes cannot be hashed and never verify.
type BcryptHasher struct {
	cost int

	dummyOnce sync.Once
	dummy     string
}

// NewBcryptHasher creates a BcryptHasher with bcrypt.DefaultCost.
func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{cost: bcrypt.DefaultCost}
}

// Cost returns the bcrypt work factor used by Hash and DummyHash.
func (h *BcryptHasher) Cost() int {
	return h.cost
}

// DummyHash returns a bcrypt hash of random bytes at the hasher's cost,
// generated on first use. Verifying against it takes as long as verifying
// a stored password.
func (h *BcryptHasher) DummyHash() string {
	h.dummyOnce.Do(func() {
		secret := make([]byte, 32)
		_, _ = rand.Read(secret)
		// Only an invalid cost fails here; the caller then gets the generic dummy.
		if hash, err := bcrypt.GenerateFromPassword(secret, h.cost); err == nil {
			h.dummy = string(hash)
		}
	})
	if h.dummy == "" {
		return DummyPasswordHash
	}
	return h.dummy
}

// Hash produces a bcrypt hash of the password.
func (h *BcryptHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", oops.Code("AUTH_HASH_FAILED").With("algorithm", AlgorithmBcrypt).Wrap(err)
	}
	return string(hash), nil
}

// Verify checks password against a bcrypt hash.
func (h *BcryptHasher) Verify(password, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
		return false, nil
	default:
		return false, oops.Code("AUTH_INVALID_HASH").With("algorithm", AlgorithmBcrypt).Wrap(err)
	}
}
