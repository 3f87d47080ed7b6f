package boxdb_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/boxdb"
	"github.com/hupe1980/boxdb/blobstore"
	"github.com/hupe1980/boxdb/schema"
)

func seedNotes(t *testing.T, box *boxdb.Box[*Note], n int) {
	t.Helper()
	notes := make([]*Note, n)
	for i := range notes {
		notes[i] = &Note{Title: fmt.Sprintf("note-%03d", i), Priority: int64(i % 5), Done: i%2 == 0}
	}
	_, err := box.PutMany(context.Background(), notes...)
	require.NoError(t, err)
}

func TestBackupRestore(t *testing.T) {
	stores := []struct {
		name string
		bs   func(t *testing.T) blobstore.BlobStore
	}{
		{name: "memory", bs: func(*testing.T) blobstore.BlobStore { return blobstore.NewMemoryStore() }},
		{name: "local", bs: func(t *testing.T) blobstore.BlobStore { return blobstore.NewLocalStore(t.TempDir()) }},
	}

	for _, tc := range stores {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			bs := tc.bs(t)

			src, srcBox := openNotes(t)
			seedNotes(t, srcBox, 120)
			require.NoError(t, srcBox.Remove(ctx, 7))

			info, err := src.Backup(ctx, bs, boxdb.WithBackupConcurrency(2))
			require.NoError(t, err)
			assert.NotEmpty(t, info.ID)
			assert.Equal(t, "log", info.Backend)
			require.Len(t, info.Entities, 1)
			assert.Equal(t, uint64(119), info.Records())

			// Writes after the backup are not part of it.
			_, err = srcBox.Put(ctx, &Note{Title: "late"})
			require.NoError(t, err)

			dst, dstBox := openNotes(t, boxdb.WithBackend(boxdb.BackendPebble))
			restored, err := dst.Restore(ctx, bs)
			require.NoError(t, err)
			assert.Equal(t, info.ID, restored.ID)

			want, err := srcBox.All()
			require.NoError(t, err)
			got, err := dstBox.All()
			require.NoError(t, err)
			require.Len(t, got, 119)
			assert.Equal(t, want[:119], got, "identifiers and values survive")

			_, err = dstBox.Get(7)
			require.ErrorIs(t, err, boxdb.ErrNotFound)

			// Unique indexes are rebuilt.
			_, err = dstBox.Put(ctx, &Note{Title: "note-000"})
			require.ErrorIs(t, err, boxdb.ErrConstraintViolation)
		})
	}
}

func TestRestoreIntoNonEmptyStore(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()

	src, srcBox := openNotes(t)
	seedNotes(t, srcBox, 3)
	_, err := src.Backup(ctx, bs)
	require.NoError(t, err)

	dst, dstBox := openNotes(t)
	_, err = dstBox.Put(ctx, &Note{Title: "existing"})
	require.NoError(t, err)

	_, err = dst.Restore(ctx, bs)
	require.ErrorIs(t, err, boxdb.ErrInvalidState)

	n, err := dstBox.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), n)
}

func TestRestoreUndeclaredEntity(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()

	src, srcBox := openNotes(t)
	seedNotes(t, srcBox, 1)
	_, err := src.Backup(ctx, bs)
	require.NoError(t, err)

	dst, err := boxdb.Open(t.TempDir(), []*schema.Entity{
		schema.MustEntity("Other", 2, schema.NewProperty("id", 1, schema.Int64, schema.ID)),
	})
	require.NoError(t, err)
	defer dst.Close() //nolint:errcheck

	_, err = dst.Restore(ctx, bs)
	require.ErrorIs(t, err, boxdb.ErrSchemaMismatch)
}

func TestRestoreCorruptBackup(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()

	src, srcBox := openNotes(t)
	seedNotes(t, srcBox, 10)
	info, err := src.Backup(ctx, bs)
	require.NoError(t, err)

	require.NoError(t, bs.Put(ctx, info.Entities[0].Blob, []byte("definitely not zstd")))

	dst, dstBox := openNotes(t)
	_, err = dst.Restore(ctx, bs)
	require.ErrorIs(t, err, boxdb.ErrIOFailure)

	n, err := dstBox.Count()
	require.NoError(t, err)
	assert.Zero(t, n, "a failed restore leaves nothing behind")
}

func TestRestoreWithoutBackup(t *testing.T) {
	dst, _ := openNotes(t)
	_, err := dst.Restore(context.Background(), blobstore.NewMemoryStore())
	require.ErrorIs(t, err, boxdb.ErrNotFound)

	_, err = boxdb.ReadBackupInfo(context.Background(), blobstore.NewMemoryStore(), "")
	require.ErrorIs(t, err, boxdb.ErrNotFound)
}

func TestBackups(t *testing.T) {
	ctx := context.Background()
	bs := blobstore.NewMemoryStore()

	src, srcBox := openNotes(t)
	seedNotes(t, srcBox, 2)

	first, err := src.Backup(ctx, bs)
	require.NoError(t, err)
	_, err = srcBox.Put(ctx, &Note{Title: "more"})
	require.NoError(t, err)
	second, err := src.Backup(ctx, bs, boxdb.WithBackupRateLimit(1<<20))
	require.NoError(t, err)

	ids, err := boxdb.Backups(ctx, bs)
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID, second.ID}, ids)

	current, err := boxdb.ReadBackupInfo(ctx, bs, "")
	require.NoError(t, err)
	assert.Equal(t, second.ID, current.ID)
	assert.Equal(t, uint64(3), current.Records())

	// An older backup can still be restored by id.
	dst, dstBox := openNotes(t)
	_, err = dst.Restore(ctx, bs, boxdb.WithBackupID(first.ID))
	require.NoError(t, err)
	n, err := dstBox.Count()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)
}
