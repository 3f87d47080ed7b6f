// Package blobtest is a conformance suite for blobstore implementations.
package blobtest

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/boxdb/blobstore"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) blobstore.BlobStore

// Run exercises the BlobStore contract.
func Run(t *testing.T, open Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, bs blobstore.BlobStore)
	}{
		{name: "put_read", fn: testPutRead},
		{name: "create_visible_on_close", fn: testCreate},
		{name: "ranges", fn: testRanges},
		{name: "missing", fn: testMissing},
		{name: "list", fn: testList},
		{name: "overwrite_delete", fn: testOverwriteDelete},
		{name: "empty_blob", fn: testEmpty},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, open(t))
		})
	}
}

func testPutRead(t *testing.T, bs blobstore.BlobStore) {
	ctx := context.Background()
	require.NoError(t, bs.Put(ctx, "a/b", []byte("hello")))

	data, err := blobstore.ReadAll(ctx, bs, "a/b")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func testCreate(t *testing.T, bs blobstore.BlobStore) {
	ctx := context.Background()
	w, err := bs.Create(ctx, "stream")
	require.NoError(t, err)

	_, err = w.Write([]byte("part1-"))
	require.NoError(t, err)
	_, err = w.Write([]byte("part2"))
	require.NoError(t, err)
	require.NoError(t, w.Sync())

	_, err = bs.Open(ctx, "stream")
	require.ErrorIs(t, err, blobstore.ErrNotFound, "not visible before Close")

	require.NoError(t, w.Close())

	data, err := blobstore.ReadAll(ctx, bs, "stream")
	require.NoError(t, err)
	assert.Equal(t, "part1-part2", string(data))
}

func testRanges(t *testing.T, bs blobstore.BlobStore) {
	ctx := context.Background()
	require.NoError(t, bs.Put(ctx, "r", []byte("0123456789")))

	b, err := bs.Open(ctx, "r")
	require.NoError(t, err)
	defer b.Close() //nolint:errcheck
	assert.Equal(t, int64(10), b.Size())

	buf := make([]byte, 4)
	n, err := b.ReadAt(ctx, buf, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, "3456", string(buf))

	n, err = b.ReadAt(ctx, buf, 8)
	assert.Equal(t, 2, n)
	assert.True(t, errors.Is(err, io.EOF))

	rc, err := b.ReadRange(ctx, 2, 5)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "23456", string(got))
}

func testMissing(t *testing.T, bs blobstore.BlobStore) {
	ctx := context.Background()
	_, err := bs.Open(ctx, "nope")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
	_, err = blobstore.ReadAll(ctx, bs, "nope")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
	require.NoError(t, bs.Delete(ctx, "nope"))
}

func testList(t *testing.T, bs blobstore.BlobStore) {
	ctx := context.Background()
	for _, name := range []string{"b/2", "a/1", "b/1", "c"} {
		require.NoError(t, bs.Put(ctx, name, []byte(name)))
	}

	all, err := bs.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a/1", "b/1", "b/2", "c"}, all)

	sub, err := bs.List(ctx, "b/")
	require.NoError(t, err)
	assert.Equal(t, []string{"b/1", "b/2"}, sub)

	none, err := bs.List(ctx, "zzz")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testOverwriteDelete(t *testing.T, bs blobstore.BlobStore) {
	ctx := context.Background()
	require.NoError(t, bs.Put(ctx, "k", []byte("one")))
	require.NoError(t, bs.Put(ctx, "k", []byte("two")))

	data, err := blobstore.ReadAll(ctx, bs, "k")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	require.NoError(t, bs.Delete(ctx, "k"))
	_, err = bs.Open(ctx, "k")
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func testEmpty(t *testing.T, bs blobstore.BlobStore) {
	ctx := context.Background()
	require.NoError(t, bs.Put(ctx, "empty", nil))

	data, err := blobstore.ReadAll(ctx, bs, "empty")
	require.NoError(t, err)
	assert.Empty(t, data)
}
