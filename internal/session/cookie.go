// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package session provides client-side session stores for auth.Manager.
package session

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// DefaultCookieName is the cookie that holds the session namespace.
const DefaultCookieName = "auth_cookie"

// MaxCookieSize is the largest encoded cookie value accepted by browsers.
const MaxCookieSize = 4096

// Strict decoding makes every character significant.
var cookieEncoding = base64.RawURLEncoding.Strict()

// CookieOptions defines how session cookies are issued.
type CookieOptions struct {
	Path     string
	Domain   string
	Secure   bool
	SameSite http.SameSite
	// MaxAge in seconds; 0 issues a browser-session cookie.
	MaxAge int
}

// normalize applies safe defaults without breaking callers.
func (o CookieOptions) normalize() CookieOptions {
	if o.Path == "" {
		o.Path = "/"
	}
	if o.SameSite == 0 {
		o.SameSite = http.SameSiteLaxMode
	}
	return o
}

// Codec encrypts and authenticates session values for one cookie name.
// It is safe for concurrent use.
type Codec struct {
	name string
	aead cipher.AEAD
	opts CookieOptions
}

// NewCodec derives the cookie key from secret and binds it to name.
func NewCodec(name string, secret []byte, opts CookieOptions) (*Codec, error) {
	if name == "" {
		name = DefaultCookieName
	}
	if len(secret) == 0 {
		return nil, oops.Code("SESSION_SECRET_REQUIRED").Errorf("cookie secret cannot be empty")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, secret, nil, []byte("sessionauth cookie:"+name))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, oops.Code("SESSION_KEY_DERIVE_FAILED").Wrap(err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, oops.Code("SESSION_KEY_DERIVE_FAILED").Wrap(err)
	}

	return &Codec{name: name, aead: aead, opts: opts.normalize()}, nil
}

// Name returns the cookie name.
func (c *Codec) Name() string {
	return c.name
}

// Encode seals values into a cookie-safe string.
func (c *Codec) Encode(values map[string]string) (string, error) {
	plaintext, err := json.Marshal(values)
	if err != nil {
		return "", oops.Code("SESSION_ENCODE_FAILED").With("operation", "marshal values").Wrap(err)
	}

	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", oops.Code("SESSION_ENCODE_FAILED").With("operation", "generate nonce").Wrap(err)
	}
	sealed := c.aead.Seal(nonce, nonce, plaintext, []byte(c.name))

	encoded := cookieEncoding.EncodeToString(sealed)
	if len(encoded) > MaxCookieSize {
		return "", oops.Code("SESSION_COOKIE_TOO_LARGE").
			With("size", len(encoded)).
			With("max", MaxCookieSize).
			Errorf("encoded session exceeds cookie size limit")
	}
	return encoded, nil
}

// Decode opens a value produced by Encode. Tampered values, values sealed
// under another key or cookie name, and malformed input all fail.
func (c *Codec) Decode(encoded string) (map[string]string, error) {
	sealed, err := cookieEncoding.DecodeString(encoded)
	if err != nil {
		return nil, oops.Code("SESSION_DECODE_FAILED").With("operation", "base64 decode").Wrap(err)
	}
	if len(sealed) < c.aead.NonceSize()+c.aead.Overhead() {
		return nil, oops.Code("SESSION_DECODE_FAILED").Errorf("session cookie too short")
	}

	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, []byte(c.name))
	if err != nil {
		return nil, oops.Code("SESSION_DECODE_FAILED").With("operation", "open").Wrap(err)
	}

	values := map[string]string{}
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, oops.Code("SESSION_DECODE_FAILED").With("operation", "unmarshal values").Wrap(err)
	}
	return values, nil
}

// Open returns the CookieStore for one request. An absent or undecodable
// cookie yields an empty store.
func (c *Codec) Open(w http.ResponseWriter, r *http.Request) *CookieStore {
	values := map[string]string{}
	if cookie, err := r.Cookie(c.name); err == nil {
		if decoded, err := c.Decode(cookie.Value); err == nil {
			values = decoded
		}
	}
	return &CookieStore{codec: c, w: w, values: values}
}

// CookieStore implements auth.SessionStore over a single encrypted cookie.
// It belongs to one request and is not safe for concurrent use.
type CookieStore struct {
	codec  *Codec
	w      http.ResponseWriter
	values map[string]string
}

// Set stores value under key and writes the cookie to the response.
func (s *CookieStore) Set(key, value string) error {
	next := make(map[string]string, len(s.values)+1)
	for k, v := range s.values {
		next[k] = v
	}
	next[key] = value

	encoded, err := s.codec.Encode(next)
	if err != nil {
		return oops.With("key", key).Wrap(err)
	}
	s.values = next
	s.write(encoded, s.codec.opts.MaxAge)
	return nil
}

// Get returns the value stored under key.
func (s *CookieStore) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Clear removes all entries and expires the cookie.
func (s *CookieStore) Clear() error {
	s.values = map[string]string{}
	s.write("", -1)
	return nil
}

func (s *CookieStore) write(value string, maxAge int) {
	writeCookie(s.w, s.codec.name, value, maxAge, s.codec.opts)
}

// writeCookie replaces any Set-Cookie header already emitted for name so
// the response carries only the latest state.
func writeCookie(w http.ResponseWriter, name, value string, maxAge int, opts CookieOptions) {
	header := w.Header()
	prefix := name + "="
	kept := header["Set-Cookie"][:0]
	for _, line := range header["Set-Cookie"] {
		if !strings.HasPrefix(line, prefix) {
			kept = append(kept, line)
		}
	}
	if len(kept) == 0 {
		header.Del("Set-Cookie")
	} else {
		header["Set-Cookie"] = kept
	}

	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     opts.Path,
		Domain:   opts.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	})
}
