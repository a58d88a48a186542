// Package postgres is a [catalog.Store] on PostgreSQL, used when several
// service instances share one catalog.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/speechscore/internal/catalog"
)

// Schema is the DDL for the assets table. Apply it with [Store.Migrate].
const Schema = `
CREATE TABLE IF NOT EXISTS speechscore_assets (
    id            TEXT PRIMARY KEY,
    original_name TEXT NOT NULL DEFAULT '',
    extension     TEXT NOT NULL DEFAULT '',
    has_script    BOOLEAN NOT NULL DEFAULT false,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_speechscore_assets_created ON speechscore_assets(created_at DESC);
`

// DB is the subset of *pgxpool.Pool used by [Store].
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Ping(ctx context.Context) error
	Close()
}

// Store is a [catalog.Store] backed by PostgreSQL.
type Store struct {
	db DB
}

var _ catalog.Store = (*Store)(nil)

// Open connects a pool to dsn, migrates the schema and returns the store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("catalog: ping postgres: %w", err)
	}
	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an existing pool or connection.
func New(db DB) *Store {
	return &Store{db: db}
}

// Migrate executes [Schema].
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("catalog: migrate: %w", err)
	}
	return nil
}

// Put implements [catalog.Store].
func (s *Store) Put(ctx context.Context, a *catalog.Asset) error {
	const query = `
		INSERT INTO speechscore_assets (id, original_name, extension, has_script, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
		ON CONFLICT (id) DO UPDATE SET
			original_name = EXCLUDED.original_name,
			extension = EXCLUDED.extension,
			has_script = EXCLUDED.has_script
		RETURNING created_at`

	var created any
	if !a.CreatedAt.IsZero() {
		created = a.CreatedAt
	}
	err := s.db.QueryRow(ctx, query, a.ID, a.OriginalName, a.Extension, a.HasScript, created).Scan(&a.CreatedAt)
	if err != nil {
		return fmt.Errorf("catalog: put %q: %w", a.ID, err)
	}
	return nil
}

// Get implements [catalog.Store].
func (s *Store) Get(ctx context.Context, id string) (*catalog.Asset, error) {
	const query = `
		SELECT id, original_name, extension, has_script, created_at
		FROM speechscore_assets
		WHERE id = $1`

	var a catalog.Asset
	err := s.db.QueryRow(ctx, query, id).Scan(&a.ID, &a.OriginalName, &a.Extension, &a.HasScript, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", catalog.ErrNotFound, id)
		}
		return nil, fmt.Errorf("catalog: get %q: %w", id, err)
	}
	return &a, nil
}

// Delete implements [catalog.Store].
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM speechscore_assets WHERE id = $1`, id); err != nil {
		return fmt.Errorf("catalog: delete %q: %w", id, err)
	}
	return nil
}

// List implements [catalog.Store].
func (s *Store) List(ctx context.Context, limit int) ([]catalog.Asset, error) {
	const query = `
		SELECT id, original_name, extension, has_script, created_at
		FROM speechscore_assets
		ORDER BY created_at DESC, id
		LIMIT $1`

	var lim any
	if limit > 0 {
		lim = limit
	}
	rows, err := s.db.Query(ctx, query, lim)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	defer rows.Close()

	var out []catalog.Asset
	for rows.Next() {
		var a catalog.Asset
		if err := rows.Scan(&a.ID, &a.OriginalName, &a.Extension, &a.HasScript, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("catalog: list scan: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list: %w", err)
	}
	return out, nil
}

// Ping implements [catalog.Store].
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close implements [catalog.Store].
func (s *Store) Close() error {
	s.db.Close()
	return nil
}
