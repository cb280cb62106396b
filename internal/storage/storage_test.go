package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	data     []byte
	writeErr error
	writes   int
}

func (m *memStore) Read(context.Context) ([]byte, error) {
	if m.data == nil {
		return nil, ErrNotFound
	}
	return m.data, nil
}

func (m *memStore) Write(_ context.Context, data []byte) error {
	m.writes++
	if m.writeErr != nil {
		return m.writeErr
	}
	m.data = append([]byte(nil), data...)
	return nil
}

func TestFileStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	fs := NewFileStore(filepath.Join(t.TempDir(), "nested", "cache.json"))

	_, err := fs.Read(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, fs.Write(ctx, []byte(`{"a":1}`)))
	require.NoError(t, fs.Write(ctx, []byte(`{"a":2}`)))

	data, err := fs.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(data))
}

func TestMirroredFallsBackOnlyWhenPrimaryEmpty(t *testing.T) {
	ctx := context.Background()
	primary := &memStore{}
	secondary := &memStore{data: []byte("remote")}
	m := NewMirrored(primary, secondary)

	data, err := m.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "remote", string(data))

	require.NoError(t, m.Write(ctx, []byte("local")))
	data, err = m.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "local", string(data))
	assert.Equal(t, 1, secondary.writes)
}

func TestMirroredIgnoresSecondaryWriteFailure(t *testing.T) {
	ctx := context.Background()
	m := NewMirrored(&memStore{}, &memStore{writeErr: errors.New("offline")})
	assert.NoError(t, m.Write(ctx, []byte("x")))

	broken := NewMirrored(&memStore{writeErr: errors.New("disk full")}, nil)
	assert.Error(t, broken.Write(ctx, []byte("x")))
}

func TestDetectStorageType(t *testing.T) {
	assert.Equal(t, StorageTypeR2, detectStorageType("https://acc.r2.cloudflarestorage.com"))
	assert.Equal(t, StorageTypeS3, detectStorageType("s3.us-east-1.amazonaws.com"))
	assert.Equal(t, StorageTypeS3Compatible, detectStorageType("localhost:9000"))
	assert.Equal(t, "localhost:9000", normalizeEndpoint("http://localhost:9000/bucket"))
}
