// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides credential verification, signed session tokens and
// the login/logout flow that binds them to a client session.
//
// # Components
//
//   - PasswordHasher - SHA256Hasher (default, deterministic), Argon2idHasher
//     and BcryptHasher
//   - CredentialVerifier - checks a username/password pair against a backend
//     (see the postgres subpackage)
//   - TokenService - issues and validates timestamped, HMAC-signed tokens
//   - SessionStore - per-client key/value persistence (see internal/session)
//   - Manager - orchestrates login, current subject lookup and logout
//
// Core operations never return errors to the caller. Credential backend
// failures collapse to "not verified" and are reported through the injected
// logger; token failures collapse to "invalid". Constructors validate their
// dependencies and return coded errors.
package auth
