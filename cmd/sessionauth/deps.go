// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/holomush/sessionauth/internal/config"
	"github.com/holomush/sessionauth/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// PoolOpener connects to PostgreSQL.
	// Default: store.Open with default retry options
	PoolOpener func(ctx context.Context, dsn string) (*pgxpool.Pool, error)

	// RedisOpener connects to Redis for the redis session backend.
	// Default: store.OpenRedis with default retry options
	RedisOpener func(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error)

	// Signals delivers shutdown signals. The returned func stops delivery.
	// Default: SIGINT and SIGTERM via signal.Notify
	Signals func() (<-chan os.Signal, func())
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.PoolOpener == nil {
		out.PoolOpener = func(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
			return store.Open(ctx, dsn, store.OpenOptions{})
		}
	}
	if out.RedisOpener == nil {
		out.RedisOpener = func(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
			return store.OpenRedis(ctx, cfg.Addr, cfg.Password, cfg.DB, store.OpenOptions{})
		}
	}
	if out.Signals == nil {
		out.Signals = func() (<-chan os.Signal, func()) {
			ch := make(chan os.Signal, 1)
			signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
			return ch, func() { signal.Stop(ch) }
		}
	}
	return &out
}
