package query

import (
	"fmt"
	"iter"
	"slices"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/boxdb/model"
	"github.com/hupe1980/boxdb/schema"
)

// Source is what a query reads from and, for Remove, writes to.
type Source interface {
	Entity() *schema.Entity
	// All yields every record in ascending identifier order.
	All() iter.Seq2[*model.Record, error]
	// Fetch yields the records for ids in ascending order, skipping ids
	// that do not exist.
	Fetch(ids *roaring64.Bitmap) iter.Seq2[*model.Record, error]
	// Lookup returns the identifiers whose indexed property p equals v.
	Lookup(p *schema.Property, v model.Value) (*roaring64.Bitmap, error)
	Remove(id uint64) error
}

// Query is a built query. It runs once.
type Query struct {
	ent    *schema.Entity
	preds  []predicate
	orders []ordering
	offset int
	limit  int

	executed atomic.Bool
	// fullScan disables index lookups.
	fullScan bool
}

// Entity returns the entity the query was built for.
func (q *Query) Entity() *schema.Entity { return q.ent }

func (q *Query) begin(src Source) error {
	if !q.executed.CompareAndSwap(false, true) {
		return ErrAlreadyExecuted
	}
	if src == nil {
		return fmt.Errorf("%w: nil source", ErrInvalidQuery)
	}
	if src.Entity() != q.ent {
		return fmt.Errorf("%w: query for %s run against %s", ErrInvalidQuery, q.ent.Name(), src.Entity().Name())
	}
	return nil
}

// candidates intersects the index lookups of the indexable predicates.
// A nil bitmap means no predicate could use an index.
func (q *Query) candidates(src Source) (*roaring64.Bitmap, error) {
	if q.fullScan {
		return nil, nil
	}

	var set *roaring64.Bitmap
	for i := range q.preds {
		p := &q.preds[i]
		if !p.indexable() {
			continue
		}

		ids := roaring64.New()
		for _, v := range p.values {
			if p.prop.IsID() {
				if n, _ := v.AsInt(); n > 0 {
					ids.Add(uint64(n))
				}
				continue
			}
			found, err := src.Lookup(p.prop, v)
			if err != nil {
				return nil, err
			}
			ids.Or(found)
		}

		if set == nil {
			set = ids
		} else {
			set.And(ids)
		}
		if set.IsEmpty() {
			break
		}
	}
	return set, nil
}

func (q *Query) matches(rec *model.Record) bool {
	for i := range q.preds {
		if !q.preds[i].match(rec) {
			return false
		}
	}
	return true
}

// scan yields the matching records in ascending identifier order.
func (q *Query) scan(src Source) iter.Seq2[*model.Record, error] {
	return func(yield func(*model.Record, error) bool) {
		set, err := q.candidates(src)
		if err != nil {
			yield(nil, err)
			return
		}

		var records iter.Seq2[*model.Record, error]
		if set != nil {
			records = src.Fetch(set)
		} else {
			records = src.All()
		}

		for rec, err := range records {
			if err != nil {
				yield(nil, err)
				return
			}
			if q.matches(rec) && !yield(rec, nil) {
				return
			}
		}
	}
}

func (q *Query) collect(src Source) ([]*model.Record, error) {
	var out []*model.Record
	for rec, err := range q.scan(src) {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	q.sort(out)
	return out, nil
}

func (q *Query) sort(recs []*model.Record) {
	if len(q.orders) == 0 {
		return
	}
	slices.SortStableFunc(recs, func(a, b *model.Record) int {
		for _, o := range q.orders {
			if c := o.compare(a, b); c != 0 {
				return c
			}
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
}

func (o ordering) compare(a, b *model.Record) int {
	va, vb := propertyValue(o.prop, a), propertyValue(o.prop, b)
	an, bn := va.IsNull(), vb.IsNull()
	if an || bn {
		if an == bn {
			return 0
		}
		c := -1
		if an == (o.flags&NullsLast != 0) {
			c = 1
		}
		return c
	}
	c := model.Compare(va, vb)
	if o.flags&Descending != 0 {
		c = -c
	}
	return c
}

func (q *Query) page(recs []*model.Record) []*model.Record {
	if q.offset >= len(recs) {
		return nil
	}
	recs = recs[q.offset:]
	if q.limit > 0 && q.limit < len(recs) {
		recs = recs[:q.limit]
	}
	return recs
}

// Find returns the matching records after ordering, offset and limit.
func (q *Query) Find(src Source) ([]*model.Record, error) {
	if err := q.begin(src); err != nil {
		return nil, err
	}
	recs, err := q.collect(src)
	if err != nil {
		return nil, err
	}
	return q.page(recs), nil
}

// FindIDs is like Find but returns identifiers only.
func (q *Query) FindIDs(src Source) ([]uint64, error) {
	if err := q.begin(src); err != nil {
		return nil, err
	}
	recs, err := q.collect(src)
	if err != nil {
		return nil, err
	}
	recs = q.page(recs)
	ids := make([]uint64, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	return ids, nil
}

// First returns the first matching record after ordering and offset, or nil
// when nothing matches.
func (q *Query) First(src Source) (*model.Record, error) {
	if err := q.begin(src); err != nil {
		return nil, err
	}

	if len(q.orders) == 0 {
		skip := q.offset
		for rec, err := range q.scan(src) {
			if err != nil {
				return nil, err
			}
			if skip > 0 {
				skip--
				continue
			}
			return rec, nil
		}
		return nil, nil
	}

	recs, err := q.collect(src)
	if err != nil {
		return nil, err
	}
	if recs = q.page(recs); len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// Count returns the number of matching records. Offset and limit are ignored.
func (q *Query) Count(src Source) (uint64, error) {
	if err := q.begin(src); err != nil {
		return 0, err
	}
	var n uint64
	for _, err := range q.scan(src) {
		if err != nil {
			return 0, err
		}
		n++
	}
	return n, nil
}

// Remove deletes every matching record and returns how many were removed.
// Offset and limit are ignored. The source must be writable.
func (q *Query) Remove(src Source) (uint64, error) {
	if err := q.begin(src); err != nil {
		return 0, err
	}

	var ids []uint64
	for rec, err := range q.scan(src) {
		if err != nil {
			return 0, err
		}
		ids = append(ids, rec.ID)
	}

	var n uint64
	for _, id := range ids {
		if err := src.Remove(id); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Distinct returns the distinct non-null values of prop among the matching
// records in natural order. Offset and limit are ignored.
func (q *Query) Distinct(src Source, prop string) ([]model.Value, error) {
	p, ok := q.ent.PropertyByName(prop)
	if !ok {
		return nil, fmt.Errorf("%w: %s has no property %q", ErrInvalidQuery, q.ent.Name(), prop)
	}
	if err := q.begin(src); err != nil {
		return nil, err
	}

	var out []model.Value
	for rec, err := range q.scan(src) {
		if err != nil {
			return nil, err
		}
		v := propertyValue(p, rec)
		if v.IsNull() {
			continue
		}
		out = append(out, v)
	}
	slices.SortFunc(out, model.Compare)
	return slices.CompactFunc(out, func(a, b model.Value) bool { return model.Compare(a, b) == 0 }), nil
}
