// Package postgres provides the server-deployment KV backend.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/pressly/goose/v3"

	"github.com/rezkam/prefstate/internal/storage"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// advisoryLockID scopes preference updates; arbitrary but stable.
const advisoryLockID = 0x70726566 // "pref"

// DBConfig holds PostgreSQL connection configuration.
type DBConfig struct {
	DSN             string        // PostgreSQL connection string
	MaxOpenConns    int           // Maximum open connections (default: 10)
	MaxIdleConns    int           // Maximum idle connections (default: 2)
	ConnMaxLifetime time.Duration // Connection max lifetime (default: 5min)
}

// Store is a PostgreSQL-backed implementation of storage.KV.
type Store struct {
	db  *sql.DB
	hub *storage.Notifier
}

// NewStore opens a PostgreSQL connection, verifies it and runs migrations.
func NewStore(ctx context.Context, cfg DBConfig) (*Store, error) {
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxOpenConns := cfg.MaxOpenConns
	if maxOpenConns <= 0 {
		maxOpenConns = 10
	}
	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns <= 0 {
		maxIdleConns = 2
	}
	connMaxLifetime := cfg.ConnMaxLifetime
	if connMaxLifetime <= 0 {
		connMaxLifetime = 5 * time.Minute
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Store{db: db, hub: storage.NewNotifier()}, nil
}

// runMigrations applies the embedded goose migrations.
func runMigrations(db *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	goose.SetBaseFS(embedMigrations)

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM preferences WHERE key = $1`, key).Scan(&value)
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
		`INSERT INTO preferences (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to write preference: %w", err)
	}

	s.hub.Notify()
	return nil
}

// Update applies fn inside a serializable transaction. Rows are locked with
// FOR UPDATE so concurrent read-modify-writes observe a consistent prior
// state.
func (s *Store) Update(ctx context.Context, fn storage.UpdateFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Row locks alone cannot serialize the first-ever write (no rows to
	// lock yet), so updates also take a transaction-scoped advisory lock.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, advisoryLockID); err != nil {
		return fmt.Errorf("failed to acquire update lock: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT key, value FROM preferences`)
	if err != nil {
		return fmt.Errorf("failed to read preferences: %w", err)
	}

	current := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan preference: %w", err)
		}
		current[key] = value
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to iterate preferences: %w", err)
	}
	rows.Close()

	writes, err := fn(current)
	if err != nil {
		return err
	}

	for key, value := range writes {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO preferences (key, value, updated_at) VALUES ($1, $2, now())
			 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
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

// Watch returns a change-signal channel.
func (s *Store) Watch(ctx context.Context) <-chan struct{} {
	return s.hub.Subscribe(ctx)
}

// Close closes the database connection and watcher channels.
func (s *Store) Close() error {
	s.hub.Close()
	return s.db.Close()
}
