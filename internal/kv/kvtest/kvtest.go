// Package kvtest holds a behavioral suite every kv.Store backend must pass.
package kvtest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/boxdb/internal/kv"
)

// Factory opens a fresh, empty store for one subtest.
type Factory func(t *testing.T) kv.Store

// Run runs the suite against stores produced by open.
func Run(t *testing.T, open Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s kv.Store)
	}{
		{name: "put_get_delete", fn: testPutGetDelete},
		{name: "read_your_writes", fn: testReadYourWrites},
		{name: "snapshot_isolation", fn: testSnapshotIsolation},
		{name: "single_batch", fn: testSingleBatch},
		{name: "range_iteration", fn: testRangeIteration},
		{name: "discarded_batch", fn: testDiscardedBatch},
		{name: "compact", fn: testCompact},
		{name: "closed", fn: testClosed},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, open(t))
		})
	}
}

// Commit writes key/value pairs in one batch.
func Commit(t *testing.T, s kv.Store, kvs ...string) {
	t.Helper()
	b, err := s.NewBatch()
	require.NoError(t, err)
	for i := 0; i+1 < len(kvs); i += 2 {
		require.NoError(t, b.Put([]byte(kvs[i]), []byte(kvs[i+1])))
	}
	require.NoError(t, b.Commit())
}

// Scan returns "key=value" strings for [start, end).
func Scan(t *testing.T, r kv.Reader, start, end []byte) []string {
	t.Helper()
	it, err := r.NewIterator(start, end)
	require.NoError(t, err)
	defer it.Close() //nolint:errcheck

	var out []string
	for it.Next() {
		require.True(t, it.Valid())
		v, err := it.Value()
		require.NoError(t, err)
		out = append(out, string(it.Key())+"="+string(v))
	}
	require.NoError(t, it.Error())
	assert.False(t, it.Valid())
	return out
}

func testPutGetDelete(t *testing.T, s kv.Store) {
	defer s.Close() //nolint:errcheck

	Commit(t, s, "k1", "v1", "k2", "v2")

	snap, err := s.NewSnapshot()
	require.NoError(t, err)
	v, err := snap.Get([]byte("k1"))
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), v)
	_, err = snap.Get([]byte("missing"))
	require.ErrorIs(t, err, kv.ErrNotFound)
	require.NoError(t, snap.Close())

	b, err := s.NewBatch()
	require.NoError(t, err)
	require.NoError(t, b.Delete([]byte("k1")))
	require.NoError(t, b.Delete([]byte("never-existed")))
	require.NoError(t, b.Commit())

	snap, err = s.NewSnapshot()
	require.NoError(t, err)
	defer snap.Close() //nolint:errcheck
	_, err = snap.Get([]byte("k1"))
	require.ErrorIs(t, err, kv.ErrNotFound)
	assert.Equal(t, []string{"k2=v2"}, Scan(t, snap, nil, nil))
}

func testReadYourWrites(t *testing.T, s kv.Store) {
	defer s.Close() //nolint:errcheck

	Commit(t, s, "a", "1", "c", "3", "e", "5")

	b, err := s.NewBatch()
	require.NoError(t, err)
	defer b.Close() //nolint:errcheck

	require.NoError(t, b.Put([]byte("b"), []byte("2")))
	require.NoError(t, b.Put([]byte("c"), []byte("33")))
	require.NoError(t, b.Delete([]byte("e")))

	v, err := b.Get([]byte("c"))
	require.NoError(t, err)
	assert.Equal(t, []byte("33"), v)
	_, err = b.Get([]byte("e"))
	require.ErrorIs(t, err, kv.ErrNotFound)

	assert.Equal(t, []string{"a=1", "b=2", "c=33"}, Scan(t, b, nil, nil))
	assert.Equal(t, []string{"b=2"}, Scan(t, b, []byte("b"), []byte("c")))
}

func testSnapshotIsolation(t *testing.T, s kv.Store) {
	defer s.Close() //nolint:errcheck

	Commit(t, s, "k", "old")

	snap, err := s.NewSnapshot()
	require.NoError(t, err)
	defer snap.Close() //nolint:errcheck

	Commit(t, s, "k", "new", "added", "x")

	v, err := snap.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("old"), v)
	assert.Equal(t, []string{"k=old"}, Scan(t, snap, nil, nil))

	fresh, err := s.NewSnapshot()
	require.NoError(t, err)
	defer fresh.Close() //nolint:errcheck
	assert.Equal(t, []string{"added=x", "k=new"}, Scan(t, fresh, nil, nil))
}

func testSingleBatch(t *testing.T, s kv.Store) {
	defer s.Close() //nolint:errcheck

	b, err := s.NewBatch()
	require.NoError(t, err)

	_, err = s.NewBatch()
	require.ErrorIs(t, err, kv.ErrBusy)

	require.NoError(t, b.Commit())
	require.ErrorIs(t, b.Commit(), kv.ErrBatchDone)
	require.ErrorIs(t, b.Put([]byte("k"), nil), kv.ErrBatchDone)
	require.NoError(t, b.Close())

	b2, err := s.NewBatch()
	require.NoError(t, err)
	require.NoError(t, b2.Close())
}

func testRangeIteration(t *testing.T, s kv.Store) {
	defer s.Close() //nolint:errcheck

	var kvs []string
	for i := 0; i < 20; i++ {
		kvs = append(kvs, fmt.Sprintf("key-%02d", i), fmt.Sprint(i))
	}
	Commit(t, s, kvs...)

	snap, err := s.NewSnapshot()
	require.NoError(t, err)
	defer snap.Close() //nolint:errcheck

	assert.Len(t, Scan(t, snap, nil, nil), 20)
	assert.Equal(t, []string{"key-05=5", "key-06=6", "key-07=7"},
		Scan(t, snap, []byte("key-05"), []byte("key-08")))
	assert.Equal(t, []string{"key-18=18", "key-19=19"}, Scan(t, snap, []byte("key-18"), nil))
	assert.Empty(t, Scan(t, snap, []byte("zzz"), nil))
}

func testDiscardedBatch(t *testing.T, s kv.Store) {
	defer s.Close() //nolint:errcheck

	b, err := s.NewBatch()
	require.NoError(t, err)
	require.NoError(t, b.Put([]byte("k"), []byte("v")))
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	snap, err := s.NewSnapshot()
	require.NoError(t, err)
	defer snap.Close() //nolint:errcheck
	_, err = snap.Get([]byte("k"))
	require.ErrorIs(t, err, kv.ErrNotFound)
}

func testCompact(t *testing.T, s kv.Store) {
	defer s.Close() //nolint:errcheck

	for i := 0; i < 30; i++ {
		Commit(t, s, "hot", fmt.Sprintf("v%02d", i))
	}
	require.NoError(t, s.Compact(context.Background()))

	size, err := s.SizeOnDisk()
	require.NoError(t, err)
	assert.Positive(t, size)

	snap, err := s.NewSnapshot()
	require.NoError(t, err)
	defer snap.Close() //nolint:errcheck
	assert.Equal(t, []string{"hot=v29"}, Scan(t, snap, nil, nil))
}

func testClosed(t *testing.T, s kv.Store) {
	require.NoError(t, s.Close())
	require.ErrorIs(t, s.Close(), kv.ErrClosed)

	_, err := s.NewSnapshot()
	require.ErrorIs(t, err, kv.ErrClosed)
	_, err = s.NewBatch()
	require.ErrorIs(t, err, kv.ErrClosed)
	_, err = s.SizeOnDisk()
	require.ErrorIs(t, err, kv.ErrClosed)
	require.ErrorIs(t, s.Compact(context.Background()), kv.ErrClosed)
}
