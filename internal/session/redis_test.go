// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package session

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/sessionauth/pkg/errutil"
)

// fakeRedis is an in-memory RedisClient. Transactions apply all queued
// commands or none: err fails every call, failExpire fails only a
// transaction that queues an EXPIRE.
type fakeRedis struct {
	hashes     map[string]map[string]string
	ttls       map[string]time.Duration
	err        error
	failExpire error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{hashes: map[string]map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) HGetAll(_ context.Context, key string) *redis.MapStringStringCmd {
	out := map[string]string{}
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return redis.NewMapStringStringResult(out, f.err)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.del(keys)
	return redis.NewIntResult(int64(len(keys)), nil)
}

func (f *fakeRedis) TxPipelined(_ context.Context, fn func(redis.Pipeliner) error) ([]redis.Cmder, error) {
	pipe := &fakePipe{}
	if err := fn(pipe); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.failExpire != nil && pipe.expires > 0 {
		return nil, f.failExpire
	}
	for _, op := range pipe.ops {
		op(f)
	}
	return nil, nil
}

func (f *fakeRedis) del(keys []string) {
	for _, k := range keys {
		delete(f.hashes, k)
		delete(f.ttls, k)
	}
}

// fakePipe queues the commands RedisStore issues inside a transaction.
type fakePipe struct {
	redis.Pipeliner
	ops     []func(*fakeRedis)
	expires int
}

func (p *fakePipe) HSet(_ context.Context, key string, values ...any) *redis.IntCmd {
	p.ops = append(p.ops, func(f *fakeRedis) {
		h, ok := f.hashes[key]
		if !ok {
			h = map[string]string{}
			f.hashes[key] = h
		}
		for i := 0; i+1 < len(values); i += 2 {
			h[values[i].(string)] = values[i+1].(string)
		}
	})
	return redis.NewIntResult(int64(len(values)/2), nil)
}

func (p *fakePipe) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	p.expires++
	p.ops = append(p.ops, func(f *fakeRedis) { f.ttls[key] = ttl })
	return redis.NewBoolResult(true, nil)
}

func (p *fakePipe) Del(_ context.Context, keys ...string) *redis.IntCmd {
	p.ops = append(p.ops, func(f *fakeRedis) { f.del(keys) })
	return redis.NewIntResult(int64(len(keys)), nil)
}

func newTestBackend(t *testing.T, client RedisClient, opts ...RedisOption) *RedisBackend {
	t.Helper()
	b, err := NewRedisBackend(client, newTestCodec(t, CookieOptions{}), time.Hour, opts...)
	require.NoError(t, err)
	return b
}

// carryCookies copies cookies set on rec into a new request.
func carryCookies(rec *httptest.ResponseRecorder, path string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestRedisStore_SetThenReopen(t *testing.T) {
	fake := newFakeRedis()
	b := newTestBackend(t, fake)

	rec := httptest.NewRecorder()
	store := b.Open(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	require.NoError(t, store.Set("token", "abc"))
	require.NoError(t, store.Set("theme", "dark"))

	require.Len(t, fake.hashes, 1)
	for key, h := range fake.hashes {
		assert.True(t, strings.HasPrefix(key, DefaultRedisPrefix))
		assert.Equal(t, map[string]string{"token": "abc", "theme": "dark"}, h)
		assert.Equal(t, time.Hour, fake.ttls[key])
	}
	assert.Len(t, rec.Header().Values("Set-Cookie"), 1, "id cookie issued once")

	reopened := b.Open(httptest.NewRecorder(), carryCookies(rec, "/whoami"))
	v, ok := reopened.Get("token")
	assert.True(t, ok)
	assert.Equal(t, "abc", v)
}

func TestRedisStore_Clear(t *testing.T) {
	fake := newFakeRedis()
	b := newTestBackend(t, fake)

	rec := httptest.NewRecorder()
	require.NoError(t, b.Open(rec, httptest.NewRequest(http.MethodPost, "/login", nil)).Set("token", "abc"))

	logoutRec := httptest.NewRecorder()
	store := b.Open(logoutRec, carryCookies(rec, "/logout"))
	require.NoError(t, store.Clear())

	assert.Empty(t, fake.hashes)
	_, ok := store.Get("token")
	assert.False(t, ok)
	cookies := responseCookies(logoutRec)
	require.Contains(t, cookies, DefaultCookieName)
	assert.Equal(t, -1, cookies[DefaultCookieName].MaxAge)

	// The old cookie no longer resolves to a session.
	_, ok = b.Open(httptest.NewRecorder(), carryCookies(rec, "/whoami")).Get("token")
	assert.False(t, ok)
}

func TestRedisStore_ForgedCookieReadsEmpty(t *testing.T) {
	b := newTestBackend(t, newFakeRedis())
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "forged"})

	_, ok := b.Open(httptest.NewRecorder(), req).Get("token")
	assert.False(t, ok)
}

func TestRedisStore_ReadFailureIsLogged(t *testing.T) {
	fake := newFakeRedis()
	var logs bytes.Buffer
	b := newTestBackend(t, fake, WithRedisLogger(slog.New(slog.NewJSONHandler(&logs, nil))))

	rec := httptest.NewRecorder()
	require.NoError(t, b.Open(rec, httptest.NewRequest(http.MethodPost, "/login", nil)).Set("token", "abc"))

	fake.err = errors.New("connection refused")
	_, ok := b.Open(httptest.NewRecorder(), carryCookies(rec, "/whoami")).Get("token")
	assert.False(t, ok)

	entries := errutil.LogEntries(t, &logs)
	require.Len(t, entries, 1)
	assert.Equal(t, "SESSION_BACKEND_UNAVAILABLE", entries[0]["code"])
}

func TestRedisStore_WriteFailure(t *testing.T) {
	fake := newFakeRedis()
	fake.err = errors.New("READONLY")
	b := newTestBackend(t, fake)

	rec := httptest.NewRecorder()
	store := b.Open(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	err := store.Set("token", "abc")
	errutil.AssertErrorCode(t, err, "SESSION_BACKEND_UNAVAILABLE")

	_, ok := store.Get("token")
	assert.False(t, ok)
	assert.Empty(t, rec.Header().Values("Set-Cookie"), "no id cookie for an unsaved session")
}

func TestRedisStore_FailedExpireLeavesNoSession(t *testing.T) {
	fake := newFakeRedis()
	fake.failExpire = errors.New("OOM command not allowed")
	b := newTestBackend(t, fake)

	rec := httptest.NewRecorder()
	store := b.Open(rec, httptest.NewRequest(http.MethodPost, "/login", nil))
	err := store.Set("token", "abc")
	errutil.AssertErrorCode(t, err, "SESSION_BACKEND_UNAVAILABLE")

	assert.Empty(t, fake.hashes, "no hash without a TTL")
	assert.Empty(t, fake.ttls)
	_, ok := store.Get("token")
	assert.False(t, ok)
	assert.Empty(t, rec.Header().Values("Set-Cookie"))
}

func TestRedisStore_RotateIssuesFreshID(t *testing.T) {
	fake := newFakeRedis()
	b := newTestBackend(t, fake)

	// An attacker obtains a session id and plants its cookie on the victim.
	attackerRec := httptest.NewRecorder()
	require.NoError(t, b.Open(attackerRec, httptest.NewRequest(http.MethodGet, "/", nil)).Set("theme", "dark"))
	require.Len(t, fake.hashes, 1)
	var plantedKey string
	for k := range fake.hashes {
		plantedKey = k
	}

	victimRec := httptest.NewRecorder()
	victim := b.Open(victimRec, carryCookies(attackerRec, "/login"))
	victim.Rotate()
	require.NoError(t, victim.Set("token", "victim-token"))

	assert.NotContains(t, fake.hashes, plantedKey, "pre-login hash deleted")
	require.Len(t, fake.hashes, 1)
	for key, h := range fake.hashes {
		assert.Equal(t, map[string]string{"theme": "dark", "token": "victim-token"}, h)
		assert.Equal(t, time.Hour, fake.ttls[key])
	}
	require.Len(t, victimRec.Header().Values("Set-Cookie"), 1, "new id cookie issued")

	_, ok := b.Open(httptest.NewRecorder(), carryCookies(attackerRec, "/whoami")).Get("token")
	assert.False(t, ok, "planted id does not resolve to the logged-in session")

	v, ok := b.Open(httptest.NewRecorder(), carryCookies(victimRec, "/whoami")).Get("token")
	assert.True(t, ok)
	assert.Equal(t, "victim-token", v)

	// Later writes stay on the rotated id.
	require.NoError(t, victim.Set("theme", "light"))
	assert.Len(t, fake.hashes, 1)
	assert.Len(t, victimRec.Header().Values("Set-Cookie"), 1)
}

func TestRedisStore_FailedRotationKeepsOldSession(t *testing.T) {
	fake := newFakeRedis()
	b := newTestBackend(t, fake)

	rec := httptest.NewRecorder()
	require.NoError(t, b.Open(rec, httptest.NewRequest(http.MethodPost, "/", nil)).Set("token", "old"))

	fake.failExpire = errors.New("connection reset")
	loginRec := httptest.NewRecorder()
	store := b.Open(loginRec, carryCookies(rec, "/login"))
	store.Rotate()
	errutil.AssertErrorCode(t, store.Set("token", "new"), "SESSION_BACKEND_UNAVAILABLE")
	assert.Empty(t, loginRec.Header().Values("Set-Cookie"))

	fake.failExpire = nil
	v, ok := b.Open(httptest.NewRecorder(), carryCookies(rec, "/whoami")).Get("token")
	assert.True(t, ok)
	assert.Equal(t, "old", v)
}

func TestRedisStore_CustomPrefix(t *testing.T) {
	fake := newFakeRedis()
	b := newTestBackend(t, fake, WithRedisPrefix("app:s:"))
	require.NoError(t, b.Open(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", nil)).Set("k", "v"))

	for key := range fake.hashes {
		assert.True(t, strings.HasPrefix(key, "app:s:"))
	}
}

func TestNewRedisBackend_Validation(t *testing.T) {
	codec := newTestCodec(t, CookieOptions{})

	_, err := NewRedisBackend(nil, codec, time.Hour)
	errutil.AssertErrorCode(t, err, "SESSION_BACKEND_INVALID")

	_, err = NewRedisBackend(newFakeRedis(), codec, 0)
	errutil.AssertErrorCode(t, err, "SESSION_BACKEND_INVALID")
}
