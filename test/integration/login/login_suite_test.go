// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package login_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/holomush/sessionauth/internal/auth"
	"github.com/holomush/sessionauth/internal/store"
)

func TestLogin(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Login Flow Integration Suite")
}

// testEnv holds the containers and clients shared by every spec.
type testEnv struct {
	ctx            context.Context
	pool           *pgxpool.Pool
	redis          *redis.Client
	pgContainer    testcontainers.Container
	redisContainer testcontainers.Container
}

var env *testEnv

var _ = BeforeSuite(func() {
	var err error
	env, err = setupTestEnv()
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if env != nil {
		env.cleanup()
	}
})

func setupTestEnv() (*testEnv, error) {
	ctx := context.Background()
	e := &testEnv{ctx: ctx}

	pgContainer, err := postgres.Run(ctx,
		"postgres:18-alpine",
		postgres.WithDatabase("sessionauth_test"),
		postgres.WithUsername("sessionauth"),
		postgres.WithPassword("sessionauth"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, err
	}
	e.pgContainer = pgContainer

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		e.cleanup()
		return nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		e.cleanup()
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		e.cleanup()
		return nil, err
	}
	if err := migrator.Close(); err != nil {
		e.cleanup()
		return nil, err
	}

	e.pool, err = store.Open(ctx, connStr, store.OpenOptions{})
	if err != nil {
		e.cleanup()
		return nil, err
	}

	redisContainer, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		e.cleanup()
		return nil, err
	}
	e.redisContainer = redisContainer

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		e.cleanup()
		return nil, err
	}
	e.redis, err = store.OpenRedis(ctx, endpoint, "", 0, store.OpenOptions{})
	if err != nil {
		e.cleanup()
		return nil, err
	}

	return e, nil
}

func (e *testEnv) cleanup() {
	if e.redis != nil {
		_ = e.redis.Close()
	}
	if e.pool != nil {
		e.pool.Close()
	}
	if e.redisContainer != nil {
		_ = e.redisContainer.Terminate(e.ctx)
	}
	if e.pgContainer != nil {
		_ = e.pgContainer.Terminate(e.ctx)
	}
}

// addUser stores username with password hashed by hasher, replacing any
// existing row.
func (e *testEnv) addUser(hasher auth.PasswordHasher, username, password string) {
	hash, err := hasher.Hash(password)
	Expect(err).NotTo(HaveOccurred())
	_, err = e.pool.Exec(e.ctx,
		`INSERT INTO users (username, password_hash) VALUES ($1, $2)
		 ON CONFLICT (username) DO UPDATE SET password_hash = EXCLUDED.password_hash`,
		username, hash)
	Expect(err).NotTo(HaveOccurred())
}
