// Package sqlite provides the embedded-deployment KV backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rezkam/prefstate/internal/storage"
	_ "modernc.org/sqlite" // cgo-free SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS preference (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL DEFAULT (unixepoch())
);`

// Store is a SQLite-backed implementation of storage.KV.
type Store struct {
	db  *sql.DB
	hub *storage.Notifier
}

// NewStore opens (or creates) the preference database at path and ensures
// the schema exists.
func NewStore(ctx context.Context, path string) (*Store, error) {
	// Wait up to 10 seconds for locks to clear; WAL keeps readers off the
	// writer's lock.
	dsn := path + "?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes all updates at the pool level.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{db: db, hub: storage.NewNotifier()}, nil
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM preference WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read preference: %w", err)
	}
	return value, nil
}

// Set writes key=value as a single upsert and signals watchers.
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO preference (key, value, updated_at) VALUES (?, ?, unixepoch())
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to write preference: %w", err)
	}

	s.hub.Notify()
	return nil
}

// Update applies fn inside a transaction so the read-modify-write observes
// a consistent prior state.
func (s *Store) Update(ctx context.Context, fn storage.UpdateFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := readAll(ctx, tx)
	if err != nil {
		return err
	}

	writes, err := fn(current)
	if err != nil {
		return err
	}

	for key, value := range writes {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO preference (key, value, updated_at) VALUES (?, ?, unixepoch())
			 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value)
		if err != nil {
			return fmt.Errorf("failed to write preference: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	if len(writes) > 0 {
		s.hub.Notify()
	}
	return nil
}

func readAll(ctx context.Context, tx *sql.Tx) (map[string]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT key, value FROM preference`)
	if err != nil {
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}
	defer rows.Close()

	state := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan preference: %w", err)
		}
		state[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate preferences: %w", err)
	}
	return state, nil
}

// Watch returns a change-signal channel.
func (s *Store) Watch(ctx context.Context) <-chan struct{} {
	return s.hub.Subscribe(ctx)
}

// Close closes the database connection and watcher channels.
func (s *Store) Close() error {
	s.hub.Close()
	return s.db.Close()
}
