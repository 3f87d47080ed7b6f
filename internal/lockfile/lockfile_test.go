package lockfile

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireExclusive(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "store")

	l, err := Acquire(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, Name), l.Path())

	_, err = Acquire(dir)
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, l.Release())
	require.NoError(t, l.Release())

	l2, err := Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}

func TestAcquireIndependentDirs(t *testing.T) {
	a, err := Acquire(filepath.Join(t.TempDir(), "a"))
	require.NoError(t, err)
	defer a.Release() //nolint:errcheck

	b, err := Acquire(filepath.Join(t.TempDir(), "b"))
	require.NoError(t, err)
	require.NoError(t, b.Release())
}
