package pebblekv

import (
	"testing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/boxdb/internal/kv"
	"github.com/hupe1980/boxdb/internal/kv/kvtest"
	"github.com/hupe1980/boxdb/internal/wal"
)

func TestConformance(t *testing.T) {
	kvtest.Run(t, func(t *testing.T) kv.Store {
		s, err := Open("db", Options{FS: vfs.NewMem()})
		require.NoError(t, err)
		return s
	})
}

func TestReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir, Options{Durability: wal.DurabilitySync})
	require.NoError(t, err)
	kvtest.Commit(t, s, "a", "1", "b", "2")
	require.NoError(t, s.Close())

	s2, err := Open(dir, Options{})
	require.NoError(t, err)
	defer s2.Close() //nolint:errcheck

	snap, err := s2.NewSnapshot()
	require.NoError(t, err)
	defer snap.Close() //nolint:errcheck
	assert.Equal(t, []string{"a=1", "b=2"}, kvtest.Scan(t, snap, nil, nil))
}

func TestIteratorBeforeNext(t *testing.T) {
	s, err := Open("db", Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck

	kvtest.Commit(t, s, "a", "1")

	snap, err := s.NewSnapshot()
	require.NoError(t, err)
	defer snap.Close() //nolint:errcheck

	it, err := snap.NewIterator(nil, nil)
	require.NoError(t, err)
	defer it.Close() //nolint:errcheck

	assert.False(t, it.Valid())
	_, err = it.Value()
	require.ErrorIs(t, err, kv.ErrNotFound)

	require.True(t, it.Next())
	assert.Equal(t, []byte("a"), it.Key())
	assert.False(t, it.Next())
}
