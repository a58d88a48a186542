// Package catalog records metadata about uploaded recordings.
//
// The catalog is an index, not the source of truth: scoring works from the
// files in storage and treats a missing catalog entry as unknown metadata.
package catalog

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by [Store.Get] for unknown IDs.
var ErrNotFound = errors.New("catalog: asset not found")

// Asset describes one upload.
type Asset struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"original_name"`
	Extension    string    `json:"extension"`
	HasScript    bool      `json:"has_script"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store persists [Asset] records. Implementations must be safe for
// concurrent use.
type Store interface {
	// Put inserts or replaces the record for a.ID. A zero CreatedAt is set to
	// the current time.
	Put(ctx context.Context, a *Asset) error

	// Get returns the record for id or [ErrNotFound].
	Get(ctx context.Context, id string) (*Asset, error)

	// Delete removes the record for id. Deleting an unknown id is not an
	// error.
	Delete(ctx context.Context, id string) error

	// List returns up to limit records, newest first. limit <= 0 means no
	// limit.
	List(ctx context.Context, limit int) ([]Asset, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend.
	Close() error
}
