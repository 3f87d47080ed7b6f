package fs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalFS(t *testing.T) {
	tmp := t.TempDir()
	lfs := LocalFS{}

	dir := filepath.Join(tmp, "subdir")
	assert.NoError(t, lfs.MkdirAll(dir, 0755))

	fpath := filepath.Join(dir, "test.txt")
	f, err := lfs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)

	_, err = f.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.NoError(t, f.Sync())

	info, err := f.Stat()
	assert.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())

	assert.NoError(t, f.Truncate(3))
	assert.NoError(t, f.Close())

	info2, err := lfs.Stat(fpath)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), info2.Size())

	_, err = lfs.OpenFile(filepath.Join(dir, "missing"), os.O_RDONLY, 0)
	assert.True(t, os.IsNotExist(err))

	newPath := filepath.Join(dir, "renamed.txt")
	assert.NoError(t, lfs.Rename(fpath, newPath))
	assert.NoError(t, SyncDir(lfs, dir))

	assert.NoError(t, lfs.Remove(newPath))
	_, err = lfs.Stat(newPath)
	assert.True(t, os.IsNotExist(err))
}

func TestFaultyFSTornWrite(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(LocalFS{})
	ffs.AddRule("faulty", Fault{FailAfterBytes: 5})

	fpath := filepath.Join(tmp, "faulty.txt")
	f, err := ffs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)

	n, err := f.Write([]byte("hel"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = f.Write([]byte("lo world"))
	require.ErrorIs(t, err, ErrInjected)
	assert.Equal(t, 2, n)
	require.NoError(t, f.Close())

	data, err := os.ReadFile(fpath)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestFaultyFSArmAfterOpen(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(nil)
	boom := errors.New("disk gone")

	fpath := filepath.Join(tmp, "store.log")
	f, err := ffs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)
	require.NoError(t, f.Sync())

	ffs.AddRule("store.log", Fault{FailAfterBytes: -1, FailOnSync: true, FailOnTruncate: true, Err: boom})
	require.ErrorIs(t, f.Sync(), boom)
	require.ErrorIs(t, f.Truncate(0), boom)

	ffs.ClearRules()
	require.NoError(t, f.Sync())
	require.NoError(t, f.Close())
}

func TestFaultyFSRenameAndClose(t *testing.T) {
	tmp := t.TempDir()
	ffs := NewFaultyFS(LocalFS{})

	fpath := filepath.Join(tmp, "a.tmp")
	f, err := ffs.OpenFile(fpath, os.O_CREATE|os.O_RDWR, 0644)
	require.NoError(t, err)

	ffs.AddRule("a.tmp", Fault{FailAfterBytes: -1, FailOnClose: true})
	require.ErrorIs(t, f.Close(), ErrInjected)

	ffs.AddRule("b.log", Fault{FailAfterBytes: -1, FailOnRename: true})
	require.ErrorIs(t, ffs.Rename(fpath, filepath.Join(tmp, "b.log")), ErrInjected)

	require.NoError(t, ffs.Rename(fpath, filepath.Join(tmp, "c.log")))
	_, err = ffs.Stat(filepath.Join(tmp, "c.log"))
	require.NoError(t, err)

	require.NoError(t, ffs.MkdirAll(filepath.Join(tmp, "d"), 0o755))
	info, err := ffs.Stat(filepath.Join(tmp, "d"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	require.NoError(t, ffs.Remove(filepath.Join(tmp, "c.log")))
}
