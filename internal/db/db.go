// Package db provides PostgreSQL access for the lead pipeline's state store.
package db

import (
	"context"
	_ "embed"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonathan/sponsor-leads/internal/state"
)

//go:embed schema.sql
var schema string

// DB wraps a PostgreSQL connection pool
type DB struct {
	pool *pgxpool.Pool

	mu      sync.Mutex
	pending *state.Pending
}

// Connect establishes a connection pool to the database and makes sure the
// state tables exist. A database that cannot be read is reported as a
// corrupt store so the caller fails closed.
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, state.Corrupt("apply schema", err)
	}

	return &DB{pool: pool, pending: state.NewPending()}, nil
}

// Close closes the connection pool
func (db *DB) Close() error {
	if db.pool != nil {
		db.pool.Close()
	}
	return nil
}
