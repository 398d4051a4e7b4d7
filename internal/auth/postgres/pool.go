// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres provides PostgreSQL implementations of auth interfaces.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Conn is a connection checked out of a Pool. Release must be called
// exactly once.
type Conn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Release()
}

// Pool hands out scoped connections.
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
}

// PgxPool adapts *pgxpool.Pool to Pool.
type PgxPool struct {
	pool *pgxpool.Pool
}

// NewPgxPool wraps pool.
func NewPgxPool(pool *pgxpool.Pool) *PgxPool {
	return &PgxPool{pool: pool}
}

// Acquire checks out a connection from the underlying pool.
func (p *PgxPool) Acquire(ctx context.Context) (Conn, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		//nolint:wrapcheck // caller attaches operation context
		return nil, err
	}
	return conn, nil
}
