// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package login_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/holomush/sessionauth/internal/auth"
	"github.com/holomush/sessionauth/internal/auth/postgres"
	"github.com/holomush/sessionauth/internal/session"
	"github.com/holomush/sessionauth/internal/web"
)

const (
	testSecret  = "integration-signing-secret"
	redisPrefix = "sessionauth:it:"
)

type serverOptions struct {
	hasher      auth.PasswordHasher
	tokenFormat string
	redis       bool
}

// client drives one browser-like session against the server.
type client struct {
	base string
	http *http.Client
}

func startServer(opts serverOptions) *client {
	gin.SetMode(gin.TestMode)
	logger := slog.New(slog.NewTextHandler(GinkgoWriter, nil))

	creds, err := postgres.NewCredentialStore(postgres.NewPgxPool(env.pool),
		postgres.WithHasher(opts.hasher), postgres.WithLogger(logger))
	Expect(err).NotTo(HaveOccurred())

	tokens, err := auth.NewTokenService(testSecret, auth.WithTokenFormat(opts.tokenFormat))
	Expect(err).NotTo(HaveOccurred())

	manager, err := auth.NewManager(creds, tokens, auth.WithLogger(logger))
	Expect(err).NotTo(HaveOccurred())

	codec, err := session.NewCodec("", []byte(testSecret), session.CookieOptions{})
	Expect(err).NotTo(HaveOccurred())

	opener := web.SessionOpener(func(w http.ResponseWriter, r *http.Request) auth.SessionStore {
		return codec.Open(w, r)
	})
	if opts.redis {
		backend, err := session.NewRedisBackend(env.redis, codec, time.Hour,
			session.WithRedisPrefix(redisPrefix), session.WithRedisLogger(logger))
		Expect(err).NotTo(HaveOccurred())
		opener = func(w http.ResponseWriter, r *http.Request) auth.SessionStore {
			return backend.Open(w, r)
		}
	}

	handler, err := web.NewHandler(manager, opener, web.WithLogger(logger))
	Expect(err).NotTo(HaveOccurred())

	srv := httptest.NewServer(handler.Router())
	DeferCleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	Expect(err).NotTo(HaveOccurred())
	return &client{base: srv.URL, http: &http.Client{Jar: jar}}
}

func (c *client) login(username, password string) int {
	form := url.Values{"username": {username}, "password": {password}}
	resp, err := c.http.Post(c.base+"/login", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode
}

func (c *client) whoami() (int, string) {
	resp, err := c.http.Get(c.base + "/whoami")
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	var body struct {
		Subject string `json:"subject"`
	}
	Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
	return resp.StatusCode, body.Subject
}

func (c *client) logout() int {
	resp, err := c.http.Post(c.base+"/logout", "", nil)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()
	return resp.StatusCode
}

var _ = Describe("Login flow", func() {
	DescribeTable("round trip per password algorithm and token format",
		func(hasher auth.PasswordHasher, tokenFormat string) {
			env.addUser(hasher, "alice", "correct-pw")
			c := startServer(serverOptions{hasher: hasher, tokenFormat: tokenFormat})

			Expect(c.login("alice", "correct-pw")).To(Equal(http.StatusOK))

			status, subject := c.whoami()
			Expect(status).To(Equal(http.StatusOK))
			Expect(subject).To(Equal("alice"))

			Expect(c.logout()).To(Equal(http.StatusNoContent))
			status, _ = c.whoami()
			Expect(status).To(Equal(http.StatusUnauthorized))
		},
		Entry("sha256 / itsdangerous", auth.NewSHA256Hasher(), auth.TokenFormatItsdangerous),
		Entry("argon2id / itsdangerous", auth.NewArgon2idHasher(), auth.TokenFormatItsdangerous),
		Entry("bcrypt / jwt", auth.NewBcryptHasher(), auth.TokenFormatJWT),
	)

	It("rejects a wrong password without creating a session", func() {
		env.addUser(auth.NewSHA256Hasher(), "alice", "correct-pw")
		c := startServer(serverOptions{hasher: auth.NewSHA256Hasher()})

		Expect(c.login("alice", "wrong-pw")).To(Equal(http.StatusUnauthorized))
		status, _ := c.whoami()
		Expect(status).To(Equal(http.StatusUnauthorized))
	})

	It("rejects an unknown user", func() {
		c := startServer(serverOptions{hasher: auth.NewArgon2idHasher()})
		Expect(c.login("nobody", "whatever")).To(Equal(http.StatusUnauthorized))
	})

	It("keeps the first session when a later login fails", func() {
		env.addUser(auth.NewSHA256Hasher(), "alice", "correct-pw")
		c := startServer(serverOptions{hasher: auth.NewSHA256Hasher()})

		Expect(c.login("alice", "correct-pw")).To(Equal(http.StatusOK))
		Expect(c.login("alice", "wrong-pw")).To(Equal(http.StatusUnauthorized))

		_, subject := c.whoami()
		Expect(subject).To(Equal("alice"))
	})

	Context("with the redis session backend", func() {
		sessionKeys := func() []string {
			keys, err := env.redis.Keys(env.ctx, redisPrefix+"*").Result()
			Expect(err).NotTo(HaveOccurred())
			return keys
		}

		BeforeEach(func() {
			for _, k := range sessionKeys() {
				Expect(env.redis.Del(env.ctx, k).Err()).To(Succeed())
			}
		})

		It("stores the session server side and deletes it on logout", func() {
			env.addUser(auth.NewSHA256Hasher(), "bob", "hunter22")
			c := startServer(serverOptions{hasher: auth.NewSHA256Hasher(), redis: true})

			Expect(c.login("bob", "hunter22")).To(Equal(http.StatusOK))
			Expect(sessionKeys()).To(HaveLen(1))

			ttl, err := env.redis.TTL(env.ctx, sessionKeys()[0]).Result()
			Expect(err).NotTo(HaveOccurred())
			Expect(ttl).To(BeNumerically(">", 0))

			_, subject := c.whoami()
			Expect(subject).To(Equal("bob"))

			Expect(c.logout()).To(Equal(http.StatusNoContent))
			Expect(sessionKeys()).To(BeEmpty())
		})
	})
})
