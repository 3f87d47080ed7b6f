package blobstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/boxdb/blobstore"
	"github.com/hupe1980/boxdb/blobstore/blobtest"
)

func TestMemoryStore(t *testing.T) {
	blobtest.Run(t, func(t *testing.T) blobstore.BlobStore {
		return blobstore.NewMemoryStore()
	})
}

func TestLocalStore(t *testing.T) {
	blobtest.Run(t, func(t *testing.T) blobstore.BlobStore {
		return blobstore.NewLocalStore(t.TempDir())
	})
}

func TestLocalStoreLayout(t *testing.T) {
	root := t.TempDir()
	bs := blobstore.NewLocalStore(root)
	ctx := context.Background()

	w, err := bs.Create(ctx, "backup/MANIFEST")
	require.NoError(t, err)
	_, err = w.Write([]byte("{}"))
	require.NoError(t, err)

	// In-flight temp files are hidden from List.
	names, err := bs.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)

	require.NoError(t, w.Close())
	_, err = os.Stat(filepath.Join(root, "backup", "MANIFEST"))
	require.NoError(t, err)

	_, err = bs.Open(ctx, "../escape")
	require.Error(t, err)

	// Listing a root that does not exist yet is empty, not an error.
	names, err = blobstore.NewLocalStore(filepath.Join(root, "missing")).List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestMemoryStoreClosedWriter(t *testing.T) {
	bs := blobstore.NewMemoryStore()
	ctx := context.Background()

	w, err := bs.Create(ctx, "x")
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.Error(t, w.Close())
	_, err = w.Write([]byte("late"))
	require.Error(t, err)
	assert.Equal(t, 1, bs.Len())

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	require.ErrorIs(t, bs.Put(canceled, "y", nil), context.Canceled)
}
