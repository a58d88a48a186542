// Package sqlite is the default [catalog.Store], backed by an embedded
// SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/MrWong99/speechscore/internal/catalog"
)

const schema = `
CREATE TABLE IF NOT EXISTS assets (
    id            TEXT PRIMARY KEY,
    original_name TEXT NOT NULL DEFAULT '',
    extension     TEXT NOT NULL DEFAULT '',
    has_script    INTEGER NOT NULL DEFAULT 0,
    created_at    TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_assets_created ON assets(created_at);
`

// Store is a [catalog.Store] on SQLite.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

var _ catalog.Store = (*Store)(nil)

// Open opens (creating if needed) the database at path in WAL mode and
// applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("catalog: create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: migrate: %w", err)
	}
	return &Store{db: db, clock: time.Now}, nil
}

// Put implements [catalog.Store].
func (s *Store) Put(ctx context.Context, a *catalog.Asset) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assets(id, original_name, extension, has_script, created_at)
		 VALUES(?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     original_name=excluded.original_name,
		     extension=excluded.extension,
		     has_script=excluded.has_script`,
		a.ID, a.OriginalName, a.Extension, a.HasScript, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("catalog: put %q: %w", a.ID, err)
	}
	return nil
}

// Get implements [catalog.Store].
func (s *Store) Get(ctx context.Context, id string) (*catalog.Asset, error) {
	var a catalog.Asset
	err := s.db.QueryRowContext(ctx,
		`SELECT id, original_name, extension, has_script, created_at FROM assets WHERE id = ?`, id).
		Scan(&a.ID, &a.OriginalName, &a.Extension, &a.HasScript, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", catalog.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: get %q: %w", id, err)
	}
	return &a, nil
}

// Delete implements [catalog.Store].
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM assets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("catalog: delete %q: %w", id, err)
	}
	return nil
}

// List implements [catalog.Store].
func (s *Store) List(ctx context.Context, limit int) ([]catalog.Asset, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, original_name, extension, has_script, created_at
		 FROM assets ORDER BY created_at DESC, id LIMIT ?`, limit)
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
	return s.db.PingContext(ctx)
}

// Close implements [catalog.Store].
func (s *Store) Close() error {
	return s.db.Close()
}
