// Package postgres provides a checkpoint store backed by Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jordanhale/snapcrawl/internal/checkpoint"
)

// DB is the subset of pgxpool.Pool the store needs; a mock pool satisfies
// it in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists checkpoint values in a single key-value table.
type Store struct {
	db DB
}

const schema = `
	CREATE TABLE IF NOT EXISTS crawl_checkpoints (
		key        TEXT PRIMARY KEY,
		value      BYTEA NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
`

// NewStore connects to dsn, verifies the connection, and ensures the
// checkpoint table exists.
func NewStore(ctx context.Context, dsn string) (*Store, *pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	store := NewStoreWithDB(pool)
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ensure checkpoint table: %w", err)
	}
	return store, pool, nil
}

// NewStoreWithDB wraps an existing connection or mock.
func NewStoreWithDB(db DB) *Store {
	return &Store{db: db}
}

// Get returns the value stored under key, or checkpoint.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	query := `SELECT value FROM crawl_checkpoints WHERE key = $1;`
	var value []byte
	err := s.db.QueryRow(ctx, query, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, checkpoint.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select checkpoint %s: %w", key, err)
	}
	return value, nil
}

// Put upserts the value under key.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO crawl_checkpoints (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at;
	`
	if _, err := s.db.Exec(ctx, query, key, value); err != nil {
		return fmt.Errorf("upsert checkpoint %s: %w", key, err)
	}
	return nil
}
