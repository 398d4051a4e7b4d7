// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// pingFunc adapts a ping call to pinger.
type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

// OpenRedis connects to the Redis server at addr and waits until it answers
// a PING. The client is closed if it never does.
func OpenRedis(ctx context.Context, addr, password string, db int, opts OpenOptions) (*redis.Client, error) {
	if addr == "" {
		return nil, oops.Code("REDIS_CONFIG_INVALID").Errorf("redis address is required")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ping := pingFunc(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err := waitReachable(ctx, ping, opts.normalize()); err != nil {
		_ = client.Close()
		return nil, oops.With("addr", addr).Wrap(err)
	}
	return client, nil
}
