// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "context"

// DummyPasswordHash is verified against when a user does not exist so that
// response time does not reveal whether the username is known. It never
// matches any password.
//
//nolint:gosec // G101: intentionally fake hash, not a credential.
const DummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// DummyHasher is implemented by hashers whose dummy hash must differ from
// DummyPasswordHash so that verifying it costs the same as a real hash.
type DummyHasher interface {
	// DummyHash returns a well-formed hash that matches no password.
	DummyHash() string
}

// DummyHashFor returns the dummy hash to verify against with h when a user
// does not exist.
func DummyHashFor(h PasswordHasher) string {
	if d, ok := h.(DummyHasher); ok {
		return d.DummyHash()
	}
	return DummyPasswordHash
}

// CredentialVerifier checks a username/password pair.
//
// Verify returns true only for an exact match. Backend failures also return
// false; implementations must report them through their logger so that an
// outage remains distinguishable from a bad password.
type CredentialVerifier interface {
	Verify(ctx context.Context, username, password string) bool
}

// SessionStore persists string values for one client session.
type SessionStore interface {
	// Set stores value under key and flushes the store before returning.
	Set(key, value string) error

	// Get returns the value for key, or false if it was never set or was cleared.
	Get(key string) (string, bool)

	// Clear removes every entry in the store's namespace and flushes.
	Clear() error
}

// SessionRotator is implemented by stores whose session id is issued by the
// server. Rotate makes the next Set move the session to a fresh id and
// retire the old one.
type SessionRotator interface {
	Rotate()
}
