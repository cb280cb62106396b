package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no snapshot has been written yet.
var ErrNotFound = errors.New("snapshot not found")

// SnapshotStore persists a single opaque blob: the serialized record cache.
type SnapshotStore interface {
	// Read returns the last written snapshot or ErrNotFound.
	Read(ctx context.Context) ([]byte, error)

	// Write replaces the snapshot.
	Write(ctx context.Context, data []byte) error
}
