// Package sqlitestore implements the state store on a local SQLite file.
package sqlitestore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonathan/sponsor-leads/internal/state"
	"github.com/jonathan/sponsor-leads/internal/types"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// Store is a state.Store backed by SQLite.
type Store struct {
	db *sql.DB

	mu      sync.Mutex
	pending *state.Pending
}

var _ state.Store = (*Store)(nil)

// Open opens (creating if needed) the store at path and checks its integrity.
// An unreadable or damaged file yields state.ErrStoreCorrupt.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, state.Corrupt("open "+path, err)
	}
	db.SetMaxOpenConns(1)

	var check string
	if err := db.QueryRowContext(ctx, `PRAGMA quick_check`).Scan(&check); err != nil {
		_ = db.Close()
		return nil, state.Corrupt("integrity check", err)
	}
	if check != "ok" {
		_ = db.Close()
		return nil, state.Corrupt("integrity check", errors.New(check))
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, state.Corrupt("apply schema", err)
	}

	return &Store{db: db, pending: state.NewPending()}, nil
}

// Has reports whether key was committed by an earlier run.
func (s *Store) Has(ctx context.Context, key types.SeenKey) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM seen_keys WHERE key = ?`, string(key)).Scan(&n)
	if err != nil {
		return false, state.Corrupt("read seen key", err)
	}
	return n > 0, nil
}

// MarkSeen buffers key until Commit.
func (s *Store) MarkSeen(_ context.Context, key types.SeenKey, meta types.SeenMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.Mark(key, meta)
	return nil
}

// Meta returns a committed metadata value.
func (s *Store) Meta(ctx context.Context, name string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM run_meta WHERE name = ?`, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, state.Corrupt("read meta", err)
	}
	return v, true, nil
}

// SetMeta buffers a metadata write until Commit.
func (s *Store) SetMeta(_ context.Context, name, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.Meta[name] = value
	return nil
}

// Commit writes all buffered keys, metadata and cache entries in a single
// transaction.
func (s *Store) Commit(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending.Empty() {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin commit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO seen_keys (key, source, first_seen_at, last_run_id)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (key) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to prepare seen insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, key := range s.pending.Order {
		meta := s.pending.Seen[key]
		if _, err := stmt.ExecContext(ctx, string(key), string(meta.Source), meta.FirstSeen.UTC().Format(time.RFC3339Nano), meta.RunID); err != nil {
			return fmt.Errorf("failed to insert seen key %s: %w", key, err)
		}
	}

	for name, value := range s.pending.Meta {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_meta (name, value) VALUES (?, ?)
			 ON CONFLICT (name) DO UPDATE SET value = excluded.value`,
			name, value,
		); err != nil {
			return fmt.Errorf("failed to write meta %s: %w", name, err)
		}
	}

	if err := writeCompanyCache(ctx, tx, s.pending); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit state: %w", err)
	}
	s.pending.Reset()
	return nil
}

// RecordRun stores the summary of a finished run.
func (s *Store) RecordRun(ctx context.Context, run state.RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, summary) VALUES (?, ?, ?, ?)`,
		run.ID,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
		string(run.Summary),
	)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", run.ID, err)
	}
	return nil
}

// Stats summarizes the store.
func (s *Store) Stats(ctx context.Context) (state.Stats, error) {
	var st state.Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM seen_keys`).Scan(&st.SeenKeys); err != nil {
		return st, state.Corrupt("count seen keys", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM companies`).Scan(&st.Companies); err != nil {
		return st, state.Corrupt("count companies", err)
	}
	var last sql.NullString
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1), MAX(finished_at) FROM runs`).Scan(&st.Runs, &last); err != nil {
		return st, state.Corrupt("count runs", err)
	}
	if last.Valid {
		if t, err := time.Parse(time.RFC3339Nano, last.String); err == nil {
			st.LastRun = t
		}
	}
	return st, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
