package query

import (
	"iter"
	"slices"
	"testing"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/boxdb/model"
	"github.com/hupe1980/boxdb/schema"
)

var user = schema.MustEntity("User", 1,
	schema.NewProperty("id", 1, schema.Int64, schema.ID),
	schema.NewProperty("name", 2, schema.String, schema.Indexed),
	schema.NewProperty("email", 3, schema.String, schema.Unique),
	schema.NewProperty("age", 4, schema.Int64),
	schema.NewProperty("score", 5, schema.Double),
	schema.NewProperty("active", 6, schema.Bool),
)

// memSource is an in-memory Source with a naive index.
type memSource struct {
	ent     *schema.Entity
	records map[uint64]*model.Record
	lookups int
}

func (m *memSource) Entity() *schema.Entity { return m.ent }

func (m *memSource) ids() []uint64 {
	ids := make([]uint64, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (m *memSource) All() iter.Seq2[*model.Record, error] {
	return func(yield func(*model.Record, error) bool) {
		for _, id := range m.ids() {
			if !yield(m.records[id].Clone(), nil) {
				return
			}
		}
	}
}

func (m *memSource) Fetch(ids *roaring64.Bitmap) iter.Seq2[*model.Record, error] {
	return func(yield func(*model.Record, error) bool) {
		it := ids.Iterator()
		for it.HasNext() {
			rec, ok := m.records[it.Next()]
			if !ok {
				continue
			}
			if !yield(rec.Clone(), nil) {
				return
			}
		}
	}
}

func (m *memSource) Lookup(p *schema.Property, v model.Value) (*roaring64.Bitmap, error) {
	m.lookups++
	ids := roaring64.New()
	for id, rec := range m.records {
		if rec.Get(p.Name()).Equal(v) {
			ids.Add(id)
		}
	}
	return ids, nil
}

func (m *memSource) Remove(id uint64) error {
	delete(m.records, id)
	return nil
}

func newSource() *memSource {
	recs := []*model.Record{
		model.NewRecord(1).Set("name", model.String("Alice")).Set("email", model.String("a@x")).
			Set("age", model.Int(30)).Set("score", model.Double(1.5)).Set("active", model.Bool(true)),
		model.NewRecord(2).Set("name", model.String("Bob")).Set("email", model.String("b@x")).
			Set("age", model.Int(25)).Set("active", model.Bool(false)),
		model.NewRecord(3).Set("name", model.String("alice")).Set("age", model.Int(30)),
		model.NewRecord(4).Set("name", model.String("Carol")).Set("email", model.String("c@x")),
		model.NewRecord(5).Set("age", model.Int(40)),
	}
	src := &memSource{ent: user, records: make(map[uint64]*model.Record)}
	for _, r := range recs {
		src.records[r.ID] = r
	}
	return src
}

func build(t *testing.T, b *Builder) *Query {
	t.Helper()
	q, err := b.Build()
	require.NoError(t, err)
	return q
}

func findIDs(t *testing.T, q *Query, src Source) []uint64 {
	t.Helper()
	ids, err := q.FindIDs(src)
	require.NoError(t, err)
	return ids
}

func TestCaseSensitivity(t *testing.T) {
	src := newSource()

	q := build(t, New(user).Where(Equal("name", model.String("Alice"))))
	assert.Equal(t, []uint64{1}, findIDs(t, q, src))

	q = build(t, New(user).Where(Equal("name", model.String("Alice"), CaseInsensitive())))
	assert.Equal(t, []uint64{1, 3}, findIDs(t, q, src))
}

func TestConditions(t *testing.T) {
	tests := []struct {
		name  string
		conds []Condition
		want  []uint64
	}{
		{"equal", []Condition{Equal("name", model.String("Bob"))}, []uint64{2}},
		{"not_equal_includes_null", []Condition{NotEqual("name", model.String("Alice"))}, []uint64{2, 3, 4, 5}},
		{"not_equal_fold", []Condition{NotEqual("name", model.String("ALICE"), CaseInsensitive())}, []uint64{2, 4, 5}},
		{"less", []Condition{Less("age", model.Int(30))}, []uint64{2}},
		{"less_or_equal", []Condition{LessOrEqual("age", model.Int(30))}, []uint64{1, 2, 3}},
		{"greater", []Condition{Greater("age", model.Int(30))}, []uint64{5}},
		{"greater_or_equal", []Condition{GreaterOrEqual("age", model.Int(30))}, []uint64{1, 3, 5}},
		{"between_inclusive", []Condition{Between("age", model.Int(25), model.Int(30))}, []uint64{1, 2, 3}},
		{"between_empty", []Condition{Between("age", model.Int(31), model.Int(39))}, nil},
		{"in", []Condition{In("name", []model.Value{model.String("Bob"), model.String("Carol")})}, []uint64{2, 4}},
		{"in_fold", []Condition{In("name", []model.Value{model.String("ALICE")}, CaseInsensitive())}, []uint64{1, 3}},
		{"starts_with", []Condition{StartsWith("name", "A")}, []uint64{1}},
		{"starts_with_fold", []Condition{StartsWith("name", "a", CaseInsensitive())}, []uint64{1, 3}},
		{"ends_with", []Condition{EndsWith("name", "ol")}, []uint64{4}},
		{"contains", []Condition{Contains("name", "li")}, []uint64{1, 3}},
		{"contains_fold", []Condition{Contains("name", "LI", CaseInsensitive())}, []uint64{1, 3}},
		{"is_null", []Condition{IsNull("age")}, []uint64{4}},
		{"not_null", []Condition{NotNull("email")}, []uint64{1, 2, 4}},
		{"identifier_equal", []Condition{Equal("id", model.Int(3))}, []uint64{3}},
		{"identifier_in_missing", []Condition{In("id", []model.Value{model.Int(2), model.Int(9)})}, []uint64{2}},
		{"identifier_range", []Condition{Greater("id", model.Int(3))}, []uint64{4, 5}},
		{"bool", []Condition{Equal("active", model.Bool(true))}, []uint64{1}},
		{"double", []Condition{Greater("score", model.Double(1.0))}, []uint64{1}},
		{"and", []Condition{Equal("name", model.String("alice"), CaseInsensitive()), Equal("age", model.Int(30))}, []uint64{1, 3}},
		{"and_disjoint", []Condition{Equal("name", model.String("Alice")), Equal("email", model.String("b@x"))}, nil},
		{"no_conditions", nil, []uint64{1, 2, 3, 4, 5}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			q := build(t, New(user).Where(tc.conds...))
			ids := findIDs(t, q, newSource())
			if tc.want == nil {
				assert.Empty(t, ids)
				return
			}
			assert.Equal(t, tc.want, ids)
		})
	}
}

func TestOrdering(t *testing.T) {
	tests := []struct {
		name string
		b    func() *Builder
		want []uint64
	}{
		{"ascending_nulls_first", func() *Builder { return New(user).OrderBy("age") }, []uint64{4, 2, 1, 3, 5}},
		{"descending_nulls_first", func() *Builder { return New(user).OrderBy("age", Descending) }, []uint64{4, 5, 1, 3, 2}},
		{"descending_nulls_last", func() *Builder { return New(user).OrderBy("age", Descending, NullsLast) }, []uint64{5, 1, 3, 2, 4}},
		{"ascending_nulls_last", func() *Builder { return New(user).OrderBy("age", NullsLast) }, []uint64{2, 1, 3, 5, 4}},
		{"secondary_key", func() *Builder { return New(user).OrderBy("age").OrderBy("name", Descending) }, []uint64{4, 2, 3, 1, 5}},
		{"identifier_descending", func() *Builder { return New(user).OrderBy("id", Descending) }, []uint64{5, 4, 3, 2, 1}},
		{"filtered", func() *Builder {
			return New(user).Where(NotNull("name")).OrderBy("name")
		}, []uint64{1, 2, 4, 3}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, findIDs(t, build(t, tc.b()), newSource()))
		})
	}
}

func TestPaging(t *testing.T) {
	src := newSource()

	q := build(t, New(user).OrderBy("age").Offset(1).Limit(2))
	assert.Equal(t, []uint64{2, 1}, findIDs(t, q, src))

	q = build(t, New(user).Offset(10))
	recs, err := q.Find(src)
	require.NoError(t, err)
	assert.Empty(t, recs)

	q = build(t, New(user).Limit(3))
	recs, err = q.Find(src)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "Alice", recs[0].Get("name").StringValue())
}

func TestFirst(t *testing.T) {
	src := newSource()

	rec, err := build(t, New(user).OrderBy("age", Descending, NullsLast)).First(src)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, uint64(5), rec.ID)

	rec, err = build(t, New(user).Offset(2)).First(src)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, uint64(3), rec.ID)

	rec, err = build(t, New(user).Where(Equal("name", model.String("Zed")))).First(src)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestCount(t *testing.T) {
	n, err := build(t, New(user).Where(NotNull("age")).Limit(1)).Count(newSource())
	require.NoError(t, err)
	assert.Equal(t, uint64(4), n)
}

func TestRemove(t *testing.T) {
	src := newSource()

	n, err := build(t, New(user).Where(Equal("age", model.Int(30))).Limit(1)).Remove(src)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), n)
	assert.Equal(t, []uint64{2, 4, 5}, src.ids())
}

func TestDistinct(t *testing.T) {
	src := newSource()

	vals, err := build(t, New(user)).Distinct(src, "age")
	require.NoError(t, err)
	assert.Equal(t, []model.Value{model.Int(25), model.Int(30), model.Int(40)}, vals)

	vals, err = build(t, New(user).Where(StartsWith("name", "a", CaseInsensitive()))).Distinct(src, "name")
	require.NoError(t, err)
	assert.Equal(t, []model.Value{model.String("Alice"), model.String("alice")}, vals)

	_, err = build(t, New(user)).Distinct(src, "nope")
	require.ErrorIs(t, err, ErrInvalidQuery)
}

func TestPlannerMatchesFullScan(t *testing.T) {
	tests := []struct {
		name    string
		conds   []Condition
		lookups int
	}{
		{"indexed_equal", []Condition{Equal("name", model.String("Alice"))}, 1},
		{"unique_equal", []Condition{Equal("email", model.String("b@x"))}, 1},
		{"indexed_in", []Condition{In("name", []model.Value{model.String("Bob"), model.String("alice")})}, 2},
		{"intersection_empty", []Condition{Equal("name", model.String("Alice")), Equal("email", model.String("b@x"))}, 2},
		{"index_plus_filter", []Condition{Equal("name", model.String("alice")), Greater("age", model.Int(10))}, 1},
		{"identifier", []Condition{Equal("id", model.Int(2)), Equal("name", model.String("Bob"))}, 1},
		{"fold_not_indexed", []Condition{Equal("name", model.String("alice"), CaseInsensitive())}, 0},
		{"unindexed", []Condition{Equal("age", model.Int(30))}, 0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			full := build(t, New(user).Where(tc.conds...).OrderBy("age", Descending))
			full.fullScan = true
			want := findIDs(t, full, newSource())

			src := newSource()
			got := findIDs(t, build(t, New(user).Where(tc.conds...).OrderBy("age", Descending)), src)

			assert.Equal(t, want, got)
			assert.Equal(t, tc.lookups, src.lookups)
		})
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name string
		b    *Builder
	}{
		{"unknown_property", New(user).Where(Equal("nope", model.Int(1)))},
		{"wrong_kind", New(user).Where(Equal("age", model.String("x")))},
		{"null_value", New(user).Where(Equal("name", model.Null()))},
		{"string_op_on_int", New(user).Where(StartsWith("age", "1"))},
		{"fold_on_int", New(user).Where(Equal("age", model.Int(1), CaseInsensitive()))},
		{"between_arity", New(user).Where(Condition{Property: "age", Op: OpBetween, Values: []model.Value{model.Int(1)}})},
		{"in_empty", New(user).Where(In("name", nil))},
		{"unknown_op", New(user).Where(Condition{Property: "age", Op: 99})},
		{"negative_limit", New(user).Limit(-1)},
		{"negative_offset", New(user).Offset(-1)},
		{"order_unknown", New(user).OrderBy("nope")},
		{"nil_entity", New(nil)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.b.Build()
			require.ErrorIs(t, err, ErrInvalidQuery)
		})
	}
}

func TestLifecycle(t *testing.T) {
	b := New(user)
	q := build(t, b)
	_, err := b.Build()
	require.ErrorIs(t, err, ErrAlreadyBuilt)

	src := newSource()
	_, err = q.Find(src)
	require.NoError(t, err)
	_, err = q.Find(src)
	require.ErrorIs(t, err, ErrAlreadyExecuted)
	_, err = q.Count(src)
	require.ErrorIs(t, err, ErrAlreadyExecuted)

	other := schema.MustEntity("Other", 2, schema.NewProperty("id", 1, schema.Int64, schema.ID))
	_, err = build(t, New(user)).Find(&memSource{ent: other})
	require.ErrorIs(t, err, ErrInvalidQuery)

	assert.Equal(t, user, build(t, New(user)).Entity())
}
