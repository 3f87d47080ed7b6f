package engine

import (
	"fmt"
	"strings"
	"testing"

	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/boxdb/codec"
	"github.com/hupe1980/boxdb/internal/kv"
	"github.com/hupe1980/boxdb/internal/kv/logkv"
	"github.com/hupe1980/boxdb/internal/kv/pebblekv"
	"github.com/hupe1980/boxdb/model"
	"github.com/hupe1980/boxdb/schema"
)

var backends = []struct {
	name string
	open func(t *testing.T, dir string) kv.Store
}{
	{
		name: "log",
		open: func(t *testing.T, dir string) kv.Store {
			s, err := logkv.Open(dir, logkv.Options{})
			require.NoError(t, err)
			return s
		},
	},
	{
		name: "pebble",
		open: func(t *testing.T, dir string) kv.Store {
			s, err := pebblekv.Open(dir, pebblekv.Options{})
			require.NoError(t, err)
			return s
		},
	},
}

func userEntity(t *testing.T, extra ...schema.Property) *schema.Entity {
	t.Helper()
	props := []schema.Property{
		schema.NewProperty("id", 1, schema.Int64, schema.ID),
		schema.NewProperty("name", 2, schema.String, schema.Unique),
		schema.NewProperty("age", 3, schema.Int64, schema.Indexed),
		schema.NewProperty("bio", 4, schema.String),
	}
	ent, err := schema.NewEntity("User", 1, append(props, extra...)...)
	require.NoError(t, err)
	return ent
}

func user(id uint64, name string, age int64) *model.Record {
	return model.NewRecord(id).Set("name", model.String(name)).Set("age", model.Int(age))
}

type fixture struct {
	t     *testing.T
	store kv.Store
	eng   *Engine
	user  *schema.Entity
}

func (f *fixture) update(fn func(b kv.Batch) error) error {
	f.t.Helper()
	b, err := f.store.NewBatch()
	require.NoError(f.t, err)
	defer b.Close() //nolint:errcheck
	if err := fn(b); err != nil {
		return err
	}
	return b.Commit()
}

func (f *fixture) view(fn func(r kv.Reader)) {
	f.t.Helper()
	snap, err := f.store.NewSnapshot()
	require.NoError(f.t, err)
	defer snap.Close() //nolint:errcheck
	fn(snap)
}

func (f *fixture) put(rec *model.Record) uint64 {
	f.t.Helper()
	var id uint64
	require.NoError(f.t, f.update(func(b kv.Batch) error {
		var err error
		id, err = f.eng.Put(b, f.user, rec)
		return err
	}))
	return id
}

func (f *fixture) count() uint64 {
	f.t.Helper()
	var n uint64
	f.view(func(r kv.Reader) {
		var err error
		n, err = f.eng.Count(r, f.user)
		require.NoError(f.t, err)
	})
	return n
}

func TestEngine(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T, f *fixture)
	}{
		{name: "auto_ids", fn: testAutoIDs},
		{name: "upsert_raises_sequence", fn: testUpsertRaisesSequence},
		{name: "round_trip", fn: testRoundTrip},
		{name: "remove", fn: testRemove},
		{name: "unique_constraint", fn: testUniqueConstraint},
		{name: "unique_value_moves", fn: testUniqueValueMoves},
		{name: "index_lookup", fn: testIndexLookup},
		{name: "scan_order", fn: testScanOrder},
		{name: "invalid_records", fn: testInvalidRecords},
		{name: "discarded_batch", fn: testDiscardedBatch},
	}

	for _, be := range backends {
		for _, tc := range tests {
			t.Run(be.name+"/"+tc.name, func(t *testing.T) {
				store := be.open(t, t.TempDir())
				defer store.Close() //nolint:errcheck

				ent := userEntity(t)
				eng, err := Open(store, []*schema.Entity{ent})
				require.NoError(t, err)

				tc.fn(t, &fixture{t: t, store: store, eng: eng, user: ent})
			})
		}
	}
}

func testAutoIDs(t *testing.T, f *fixture) {
	var last uint64
	for i := 0; i < 10; i++ {
		id := f.put(user(0, fmt.Sprintf("user-%d", i), int64(i)))
		assert.Greater(t, id, last)
		last = id
	}
	assert.Equal(t, uint64(10), last)
	assert.Equal(t, uint64(10), f.count())
}

func testUpsertRaisesSequence(t *testing.T, f *fixture) {
	assert.Equal(t, uint64(100), f.put(user(100, "hundred", 1)))
	assert.Equal(t, uint64(101), f.put(user(0, "next", 2)))

	// Upsert below the sequence does not lower it.
	assert.Equal(t, uint64(5), f.put(user(5, "five", 3)))
	assert.Equal(t, uint64(102), f.put(user(0, "after", 4)))

	seq, err := f.eng.Sequence(f.user)
	require.NoError(t, err)
	assert.Equal(t, uint64(102), seq)
}

func testRoundTrip(t *testing.T, f *fixture) {
	rec := user(0, "Alice", 30).Set("bio", model.String(strings.Repeat("likes go ", 20)))
	id := f.put(rec)

	f.view(func(r kv.Reader) {
		got, err := f.eng.Get(r, f.user, id)
		require.NoError(t, err)
		assert.Equal(t, id, got.ID)
		want := rec.Clone()
		want.ID = id
		assert.True(t, got.Equal(want), "got %v", got.Values)
	})

	// Replace drops values that are no longer set.
	f.put(model.NewRecord(id).Set("name", model.String("Alice")))
	f.view(func(r kv.Reader) {
		got, err := f.eng.Get(r, f.user, id)
		require.NoError(t, err)
		assert.True(t, got.Get("age").IsNull())
		assert.True(t, got.Get("bio").IsNull())
	})
	assert.Equal(t, uint64(1), f.count())
}

func testRemove(t *testing.T, f *fixture) {
	id := f.put(user(0, "Bob", 40))

	require.NoError(t, f.update(func(b kv.Batch) error { return f.eng.Remove(b, f.user, id) }))
	err := f.update(func(b kv.Batch) error { return f.eng.Remove(b, f.user, id) })
	require.ErrorIs(t, err, ErrNotFound)

	f.view(func(r kv.Reader) {
		_, err := f.eng.Get(r, f.user, id)
		require.ErrorIs(t, err, ErrNotFound)
		ids, err := f.eng.Lookup(r, f.user, prop(t, f.user, "age"), model.Int(40))
		require.NoError(t, err)
		assert.True(t, ids.IsEmpty())
	})
	assert.Zero(t, f.count())

	// The name is free again.
	f.put(user(0, "Bob", 41))
}

func testUniqueConstraint(t *testing.T, f *fixture) {
	first := f.put(user(0, "Alice", 30))

	err := f.update(func(b kv.Batch) error {
		if _, err := f.eng.Put(b, f.user, user(0, "Carol", 1)); err != nil {
			return err
		}
		_, err := f.eng.Put(b, f.user, user(0, "Alice", 31))
		return err
	})
	require.ErrorIs(t, err, ErrConstraint)

	var ce *ConstraintError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "User", ce.Entity)
	assert.Equal(t, "name", ce.Property)
	assert.Equal(t, first, ce.ConflictID)
	assert.Equal(t, model.String("Alice"), ce.Value)

	assert.Equal(t, uint64(1), f.count())
	f.view(func(r kv.Reader) {
		ids, err := f.eng.Lookup(r, f.user, prop(t, f.user, "name"), model.String("Carol"))
		require.NoError(t, err)
		assert.True(t, ids.IsEmpty())
	})

	// Nulls never conflict, and values are case-sensitive.
	f.put(model.NewRecord(0).Set("age", model.Int(1)))
	f.put(model.NewRecord(0).Set("age", model.Int(2)))
	f.put(user(0, "alice", 3))
	assert.Equal(t, uint64(4), f.count())
}

func testUniqueValueMoves(t *testing.T, f *fixture) {
	id := f.put(user(0, "old", 1))
	f.put(user(id, "new", 1))

	// The released value can be taken by another record.
	other := f.put(user(0, "old", 2))
	assert.NotEqual(t, id, other)

	err := f.update(func(b kv.Batch) error {
		_, err := f.eng.Put(b, f.user, user(other, "new", 2))
		return err
	})
	require.ErrorIs(t, err, ErrConstraint)
}

func testIndexLookup(t *testing.T, f *fixture) {
	a := f.put(user(0, "a", 30))
	b := f.put(user(0, "b", 30))
	c := f.put(user(0, "c", 31))

	age := prop(t, f.user, "age")
	f.view(func(r kv.Reader) {
		ids, err := f.eng.Lookup(r, f.user, age, model.Int(30))
		require.NoError(t, err)
		assert.Equal(t, []uint64{a, b}, ids.ToArray())
	})

	f.put(user(b, "b", 31))
	f.view(func(r kv.Reader) {
		ids, err := f.eng.Lookup(r, f.user, age, model.Int(31))
		require.NoError(t, err)
		assert.Equal(t, []uint64{b, c}, ids.ToArray())
	})

	_, err := f.eng.Lookup(nil, f.user, prop(t, f.user, "bio"), model.String("x"))
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func testScanOrder(t *testing.T, f *fixture) {
	for _, id := range []uint64{7, 3, 300, 1} {
		f.put(user(id, fmt.Sprint(id), 0))
	}

	f.view(func(r kv.Reader) {
		var ids []uint64
		for rec, err := range f.eng.Scan(r, f.user) {
			require.NoError(t, err)
			ids = append(ids, rec.ID)
		}
		assert.Equal(t, []uint64{1, 3, 7, 300}, ids)

		n := 0
		for range f.eng.Scan(r, f.user) {
			n++
			break
		}
		assert.Equal(t, 1, n)
	})
}

func testInvalidRecords(t *testing.T, f *fixture) {
	cases := []*model.Record{
		model.NewRecord(0).Set("age", model.String("old")),
		model.NewRecord(0).Set("nope", model.Int(1)),
		model.NewRecord(0).Set("id", model.Int(1)),
		nil,
	}
	for _, rec := range cases {
		err := f.update(func(b kv.Batch) error {
			_, err := f.eng.Put(b, f.user, rec)
			return err
		})
		require.ErrorIs(t, err, ErrInvalidArgument)
	}

	other := schema.MustEntity("Other", 9, schema.NewProperty("id", 1, schema.Int64, schema.ID))
	err := f.update(func(b kv.Batch) error {
		_, err := f.eng.Put(b, other, model.NewRecord(0))
		return err
	})
	require.ErrorIs(t, err, ErrUnknownEntity)
	assert.Zero(t, f.count())
}

func testDiscardedBatch(t *testing.T, f *fixture) {
	f.put(user(0, "kept", 1))

	b, err := f.store.NewBatch()
	require.NoError(t, err)
	id, err := f.eng.Put(b, f.user, user(0, "dropped", 2))
	require.NoError(t, err)
	require.NoError(t, b.Close())

	assert.Equal(t, uint64(1), f.count())
	f.view(func(r kv.Reader) {
		_, err := f.eng.Get(r, f.user, id)
		require.ErrorIs(t, err, ErrNotFound)
	})

	// The discarded identifier is not reissued.
	assert.Greater(t, f.put(user(0, "next", 3)), id)
}

func prop(t *testing.T, ent *schema.Entity, name string) *schema.Property {
	t.Helper()
	p, ok := ent.PropertyByName(name)
	require.True(t, ok)
	return p
}

func TestCompression(t *testing.T) {
	for _, c := range []codec.Compression{codec.CompressionNone, codec.CompressionLZ4, codec.CompressionZSTD} {
		t.Run(c.String(), func(t *testing.T) {
			store, err := pebblekv.Open("db", pebblekv.Options{FS: vfs.NewMem()})
			require.NoError(t, err)
			defer store.Close() //nolint:errcheck

			ent := userEntity(t)
			eng, err := Open(store, []*schema.Entity{ent}, WithCompression(c))
			require.NoError(t, err)
			f := &fixture{t: t, store: store, eng: eng, user: ent}

			rec := user(0, "compressible", 1).Set("bio", model.String(strings.Repeat("abc", 200)))
			id := f.put(rec)
			f.view(func(r kv.Reader) {
				got, err := eng.Get(r, ent, id)
				require.NoError(t, err)
				assert.Equal(t, rec.Get("bio"), got.Get("bio"))
			})
		})
	}
}

func TestReopen(t *testing.T) {
	for _, be := range backends {
		t.Run(be.name, func(t *testing.T) {
			dir := t.TempDir()

			store := be.open(t, dir)
			ent := userEntity(t)
			eng, err := Open(store, []*schema.Entity{ent})
			require.NoError(t, err)
			f := &fixture{t: t, store: store, eng: eng, user: ent}
			f.put(user(0, "a", 1))
			f.put(user(0, "b", 2))
			require.NoError(t, store.Close())

			store = be.open(t, dir)
			defer store.Close() //nolint:errcheck
			ent = userEntity(t)
			eng, err = Open(store, []*schema.Entity{ent})
			require.NoError(t, err)
			f = &fixture{t: t, store: store, eng: eng, user: ent}

			assert.Equal(t, uint64(2), f.count())
			assert.Equal(t, uint64(3), f.put(user(0, "c", 3)))
		})
	}
}

func TestSchemaEvolution(t *testing.T) {
	base := func(extra ...schema.Property) []schema.Property {
		return append([]schema.Property{
			schema.NewProperty("id", 1, schema.Int64, schema.ID),
			schema.NewProperty("name", 2, schema.String, schema.Unique),
			schema.NewProperty("age", 3, schema.Int64),
		}, extra...)
	}

	tests := []struct {
		name     string
		next     func() (*schema.Entity, error)
		mismatch bool
	}{
		{
			name: "unchanged",
			next: func() (*schema.Entity, error) { return schema.NewEntity("User", 1, base()...) },
		},
		{
			name: "added_property",
			next: func() (*schema.Entity, error) {
				return schema.NewEntity("User", 1, base(schema.NewProperty("email", 4, schema.String, schema.Indexed))...)
			},
		},
		{
			name: "removed_property",
			next: func() (*schema.Entity, error) {
				return schema.NewEntity("User", 1, base()[:2]...)
			},
		},
		{
			name: "renamed_entity",
			next: func() (*schema.Entity, error) { return schema.NewEntity("Person", 1, base()...) },
			mismatch: true,
		},
		{
			name: "renamed_property",
			next: func() (*schema.Entity, error) {
				p := base()
				p[2] = schema.NewProperty("years", 3, schema.Int64)
				return schema.NewEntity("User", 1, p...)
			},
			mismatch: true,
		},
		{
			name: "changed_type",
			next: func() (*schema.Entity, error) {
				p := base()
				p[2] = schema.NewProperty("age", 3, schema.Double)
				return schema.NewEntity("User", 1, p...)
			},
			mismatch: true,
		},
		{
			name: "changed_flags",
			next: func() (*schema.Entity, error) {
				p := base()
				p[1] = schema.NewProperty("name", 2, schema.String)
				return schema.NewEntity("User", 1, p...)
			},
			mismatch: true,
		},
		{
			name: "changed_identifier",
			next: func() (*schema.Entity, error) {
				p := base()
				p[0] = schema.NewProperty("key", 9, schema.Int64, schema.ID)
				return schema.NewEntity("User", 1, p...)
			},
			mismatch: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			store, err := logkv.Open(dir, logkv.Options{})
			require.NoError(t, err)
			defer store.Close() //nolint:errcheck

			first, err := schema.NewEntity("User", 1, base()...)
			require.NoError(t, err)
			_, err = Open(store, []*schema.Entity{first})
			require.NoError(t, err)

			next, err := tc.next()
			require.NoError(t, err)
			_, err = Open(store, []*schema.Entity{next})
			if tc.mismatch {
				require.ErrorIs(t, err, ErrSchemaMismatch)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestRetiredPropertyID(t *testing.T) {
	store, err := pebblekv.Open("db", pebblekv.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck

	v1 := schema.MustEntity("User", 1,
		schema.NewProperty("id", 1, schema.Int64, schema.ID),
		schema.NewProperty("nick", 2, schema.String))
	eng, err := Open(store, []*schema.Entity{v1})
	require.NoError(t, err)
	f := &fixture{t: t, store: store, eng: eng, user: v1}
	id := f.put(model.NewRecord(0).Set("nick", model.String("bobby")))

	v2 := schema.MustEntity("User", 1, schema.NewProperty("id", 1, schema.Int64, schema.ID))
	eng, err = Open(store, []*schema.Entity{v2})
	require.NoError(t, err)
	f.view(func(r kv.Reader) {
		got, err := eng.Get(r, v2, id)
		require.NoError(t, err)
		assert.Empty(t, got.Values, "values of retired properties are dropped")
	})

	v3 := schema.MustEntity("User", 1,
		schema.NewProperty("id", 1, schema.Int64, schema.ID),
		schema.NewProperty("nick", 2, schema.String))
	_, err = Open(store, []*schema.Entity{v3})
	require.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestOpenRejectsDuplicates(t *testing.T) {
	store, err := pebblekv.Open("db", pebblekv.Options{FS: vfs.NewMem()})
	require.NoError(t, err)
	defer store.Close() //nolint:errcheck

	a := schema.MustEntity("A", 1, schema.NewProperty("id", 1, schema.Int64, schema.ID))
	b := schema.MustEntity("B", 1, schema.NewProperty("id", 1, schema.Int64, schema.ID))
	_, err = Open(store, []*schema.Entity{a, b})
	require.ErrorIs(t, err, schema.ErrInvalidSchema)

	_, err = Open(store, nil)
	require.ErrorIs(t, err, schema.ErrInvalidSchema)
}
