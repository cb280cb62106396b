package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/willianribas/bots/internal/logger"
)

// Mirrored writes to a primary store and best-effort to a secondary one.
// Reads fall back to the secondary only when the primary has nothing.
type Mirrored struct {
	primary   SnapshotStore
	secondary SnapshotStore
}

// NewMirrored pairs two stores. A nil secondary makes it a pass-through.
func NewMirrored(primary, secondary SnapshotStore) *Mirrored {
	return &Mirrored{primary: primary, secondary: secondary}
}

func (m *Mirrored) Read(ctx context.Context) ([]byte, error) {
	data, err := m.primary.Read(ctx)
	if err == nil || m.secondary == nil || !errors.Is(err, ErrNotFound) {
		return data, err
	}
	logger.CtxInfo(ctx, "local snapshot missing, trying mirror")
	return m.secondary.Read(ctx)
}

func (m *Mirrored) Write(ctx context.Context, data []byte) error {
	if err := m.primary.Write(ctx, data); err != nil {
		return err
	}
	if m.secondary != nil {
		if err := m.secondary.Write(ctx, data); err != nil {
			logger.FromContext(ctx).WithError(err).Warn("snapshot mirror write failed")
		}
	}
	return nil
}

// detectStorageType guesses the provider from the endpoint host.
func detectStorageType(endpoint string) StorageType {
	endpoint = strings.ToLower(endpoint)

	switch {
	case strings.Contains(endpoint, "r2.cloudflarestorage.com"):
		return StorageTypeR2
	case strings.Contains(endpoint, "amazonaws.com"):
		return StorageTypeS3
	default:
		return StorageTypeS3Compatible
	}
}
