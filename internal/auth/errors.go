// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "errors"

// ErrInvalidToken is returned by token codecs for any malformed or
// unverifiable token. TokenService.Validate never surfaces it.
var ErrInvalidToken = errors.New("invalid token")
