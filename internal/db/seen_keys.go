package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jonathan/sponsor-leads/internal/state"
	"github.com/jonathan/sponsor-leads/internal/types"
)

var _ state.Store = (*DB)(nil)

// Has reports whether key was committed by an earlier run.
func (db *DB) Has(ctx context.Context, key types.SeenKey) (bool, error) {
	var exists bool
	err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM seen_keys WHERE key = $1)`,
		string(key),
	).Scan(&exists)
	if err != nil {
		return false, state.Corrupt("read seen key", err)
	}
	return exists, nil
}

// MarkSeen buffers key until Commit.
func (db *DB) MarkSeen(_ context.Context, key types.SeenKey, meta types.SeenMeta) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.pending.Mark(key, meta)
	return nil
}

// Meta returns a committed metadata value.
func (db *DB) Meta(ctx context.Context, name string) (string, bool, error) {
	var value string
	err := db.pool.QueryRow(ctx,
		`SELECT value FROM run_meta WHERE name = $1`,
		name,
	).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, state.Corrupt("read meta", err)
	}
	return value, true, nil
}

// SetMeta buffers a metadata write until Commit.
func (db *DB) SetMeta(_ context.Context, name, value string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.pending.Meta[name] = value
	return nil
}

// Commit writes all buffered keys, metadata and cache entries in one transaction.
func (db *DB) Commit(ctx context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.pending.Empty() {
		return nil
	}

	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin commit: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, key := range db.pending.Order {
		meta := db.pending.Seen[key]
		batch.Queue(
			`INSERT INTO seen_keys (key, source, first_seen_at, last_run_id)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (key) DO NOTHING`,
			string(key), string(meta.Source), meta.FirstSeen, meta.RunID,
		)
	}
	for name, value := range db.pending.Meta {
		batch.Queue(
			`INSERT INTO run_meta (name, value) VALUES ($1, $2)
			 ON CONFLICT (name) DO UPDATE SET value = $2, updated_at = NOW()`,
			name, value,
		)
	}

	if err := queueCompanyCache(batch, db.pending); err != nil {
		return err
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to write state batch: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit state: %w", err)
	}
	db.pending.Reset()
	return nil
}

// RecordRun stores the summary of a finished run.
func (db *DB) RecordRun(ctx context.Context, run state.RunRecord) error {
	id, err := uuid.Parse(run.ID)
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", run.ID, err)
	}
	summary := run.Summary
	if len(summary) == 0 {
		summary = []byte("{}")
	}
	_, err = db.pool.Exec(ctx,
		`INSERT INTO lead_runs (id, started_at, finished_at, summary)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET finished_at = $3, summary = $4`,
		id, run.StartedAt, run.FinishedAt, summary,
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

// Stats summarizes store contents.
func (db *DB) Stats(ctx context.Context) (state.Stats, error) {
	var st state.Stats
	err := db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM seen_keys`).Scan(&st.SeenKeys)
	if err != nil {
		return st, state.Corrupt("count seen keys", err)
	}

	err = db.pool.QueryRow(ctx, `SELECT COUNT(*) FROM companies`).Scan(&st.Companies)
	if err != nil {
		return st, state.Corrupt("count companies", err)
	}

	var last *time.Time
	err = db.pool.QueryRow(ctx, `SELECT COUNT(*), MAX(finished_at) FROM lead_runs`).Scan(&st.Runs, &last)
	if err != nil {
		return st, state.Corrupt("count runs", err)
	}
	if last != nil {
		st.LastRun = *last
	}
	return st, nil
}

// PendingCount returns the number of keys buffered for the next commit.
func (db *DB) PendingCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.pending.Order)
}
