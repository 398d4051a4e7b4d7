// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/sessionauth/pkg/errutil"
)

// DefaultRedisPrefix namespaces session hashes in Redis.
const DefaultRedisPrefix = "sessionauth:session:"

// sessionIDField is the only entry the id cookie carries.
const sessionIDField = "sid"

// sessionIDBytes is the entropy of a generated session id.
const sessionIDBytes = 32

// RedisClient is the subset of *redis.Client used by RedisBackend. Writes
// go through TxPipelined so a session hash never exists without its TTL.
type RedisClient interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	TxPipelined(ctx context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error)
}

// RedisBackend keeps session entries server side in a Redis hash per
// session. The client only holds an encrypted cookie naming the session id.
type RedisBackend struct {
	client RedisClient
	codec  *Codec
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

// RedisOption configures a RedisBackend.
type RedisOption func(*RedisBackend)

// WithRedisPrefix sets the key prefix. Defaults to DefaultRedisPrefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(b *RedisBackend) {
		if prefix != "" {
			b.prefix = prefix
		}
	}
}

// WithRedisLogger sets the logger for Redis read failures.
func WithRedisLogger(logger *slog.Logger) RedisOption {
	return func(b *RedisBackend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewRedisBackend creates a backend whose hashes expire ttl after the last write.
func NewRedisBackend(client RedisClient, codec *Codec, ttl time.Duration, opts ...RedisOption) (*RedisBackend, error) {
	if client == nil || codec == nil {
		return nil, oops.Code("SESSION_BACKEND_INVALID").Errorf("redis client and cookie codec are required")
	}
	if ttl <= 0 {
		return nil, oops.Code("SESSION_BACKEND_INVALID").With("ttl", ttl).Errorf("session ttl must be positive")
	}
	b := &RedisBackend{
		client: client,
		codec:  codec,
		prefix: DefaultRedisPrefix,
		ttl:    ttl,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Open loads the session named by the request's id cookie. A missing,
// undecodable or unreadable session yields an empty store; a read failure
// is logged.
func (b *RedisBackend) Open(w http.ResponseWriter, r *http.Request) *RedisStore {
	ctx := r.Context()
	s := &RedisStore{backend: b, ctx: ctx, w: w, values: map[string]string{}}

	cookie, err := r.Cookie(b.codec.Name())
	if err != nil {
		return s
	}
	decoded, err := b.codec.Decode(cookie.Value)
	if err != nil || decoded[sessionIDField] == "" {
		return s
	}

	sid := decoded[sessionIDField]
	values, err := b.client.HGetAll(ctx, b.prefix+sid).Result()
	if err != nil {
		errutil.LogError(ctx, b.logger, "session read failed",
			oops.Code("SESSION_BACKEND_UNAVAILABLE").With("operation", "load session").Wrap(err))
		return s
	}
	if len(values) == 0 {
		// Expired or cleared server side.
		return s
	}
	s.sid = sid
	s.values = values
	return s
}

// RedisStore implements auth.SessionStore over one Redis hash. It belongs
// to one request and is not safe for concurrent use.
type RedisStore struct {
	backend *RedisBackend
	ctx     context.Context
	w       http.ResponseWriter
	sid     string
	values  map[string]string
	rotate  bool
}

// Rotate moves the session to a fresh id on the next Set. The old hash is
// deleted in the same transaction that writes the new one, so an id
// planted before login never names the logged-in session.
func (s *RedisStore) Rotate() {
	s.rotate = true
}

// Set writes value under key and refreshes the session expiry. The first
// Set of a new or rotated session issues its id cookie. On error neither
// Redis nor the store changes.
func (s *RedisStore) Set(key, value string) error {
	b := s.backend
	sid := s.sid
	fresh := sid == "" || s.rotate
	var encoded string
	if fresh {
		id, err := newSessionID()
		if err != nil {
			return err
		}
		sid = id
		encoded, err = b.codec.Encode(map[string]string{sessionIDField: sid})
		if err != nil {
			return oops.With("operation", "issue session cookie").Wrap(err)
		}
	}

	// A fresh hash receives every entry so rotation keeps the session's data.
	fields := []any{key, value}
	if fresh {
		for k, v := range s.values {
			if k != key {
				fields = append(fields, k, v)
			}
		}
	}

	hashKey := b.prefix + sid
	_, err := b.client.TxPipelined(s.ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(s.ctx, hashKey, fields...)
		pipe.Expire(s.ctx, hashKey, b.ttl)
		if fresh && s.sid != "" {
			pipe.Del(s.ctx, b.prefix+s.sid)
		}
		return nil
	})
	if err != nil {
		return oops.Code("SESSION_BACKEND_UNAVAILABLE").
			With("operation", "store entry").
			With("key", key).
			With("rotated", fresh && s.sid != "").
			Wrap(err)
	}

	if fresh {
		writeCookie(s.w, b.codec.Name(), encoded, int(b.ttl/time.Second), b.codec.opts)
		s.sid = sid
		s.rotate = false
	}
	s.values[key] = value
	return nil
}

// Get returns the value stored under key as loaded by Open or written by Set.
func (s *RedisStore) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

// Clear deletes the session hash and expires the id cookie.
func (s *RedisStore) Clear() error {
	s.values = map[string]string{}
	writeCookie(s.w, s.backend.codec.Name(), "", -1, s.backend.codec.opts)
	if s.sid == "" {
		return nil
	}
	sid := s.sid
	s.sid = ""
	if err := s.backend.client.Del(s.ctx, s.backend.prefix+sid).Err(); err != nil {
		return oops.Code("SESSION_BACKEND_UNAVAILABLE").With("operation", "delete session").Wrap(err)
	}
	return nil
}

func newSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("SESSION_ID_FAILED").Wrap(err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
