// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store opens the backing stores (PostgreSQL, optionally Redis)
// and manages the PostgreSQL schema.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Default connection retry settings.
const (
	DefaultConnectAttempts = 5
	DefaultConnectBackoff  = 200 * time.Millisecond
)

// pinger is the part of *pgxpool.Pool used to check reachability.
type pinger interface {
	Ping(ctx context.Context) error
}

// OpenOptions tunes Open.
type OpenOptions struct {
	// Attempts is the number of pings tried before giving up.
	Attempts uint64
	// Backoff is the first retry delay; it doubles per attempt.
	Backoff time.Duration
}

func (o OpenOptions) normalize() OpenOptions {
	if o.Attempts == 0 {
		o.Attempts = DefaultConnectAttempts
	}
	if o.Backoff <= 0 {
		o.Backoff = DefaultConnectBackoff
	}
	return o
}

// Open creates a pool for dsn and waits until the server answers a ping.
// The pool is closed if the server never becomes reachable.
func Open(ctx context.Context, dsn string, opts OpenOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse dsn").Wrap(err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := waitReachable(ctx, pool, opts.normalize()); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// waitReachable pings p with exponential backoff until it succeeds,
// attempts run out, or ctx ends.
func waitReachable(ctx context.Context, p pinger, opts OpenOptions) error {
	backoff := retry.WithMaxRetries(opts.Attempts-1, retry.NewExponential(opts.Backoff))

	attempts := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		if err := p.Ping(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping").
			With("attempts", attempts).
			Wrap(err)
	}
	return nil
}
