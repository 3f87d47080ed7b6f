package boxdb

import (
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/boxdb/internal/engine"
	"github.com/hupe1980/boxdb/internal/kv"
	"github.com/hupe1980/boxdb/model"
	"github.com/hupe1980/boxdb/query"
	"github.com/hupe1980/boxdb/schema"
)

// Cursor reads and writes the records of one entity within a transaction.
// It is valid until the transaction ends; afterwards every operation fails
// with ErrTxDone.
//
// Cursor implements query.Source, so built queries can run against it
// directly.
type Cursor struct {
	tx  *Tx
	ent *schema.Entity
}

var _ query.Source = (*Cursor)(nil)

var errNilQuery = fmt.Errorf("%w: nil query", ErrInvalidArgument)

// Entity returns the entity of the cursor.
func (c *Cursor) Entity() *schema.Entity { return c.ent }

// Get returns the record with id, or ErrNotFound.
func (c *Cursor) Get(id uint64) (*model.Record, error) {
	start := time.Now()
	var rec *model.Record
	err := c.tx.do(func(r kv.Reader) error {
		var err error
		rec, err = c.tx.s.engine.Get(r, c.ent, id)
		return err
	})
	c.tx.s.opts.metricsCollector.RecordGet(time.Since(start), err)
	return rec, err
}

// Put inserts or replaces rec and returns its identifier. A zero rec.ID
// assigns the next identifier, which is stored back into rec.ID. A unique
// constraint violation rolls the transaction back.
func (c *Cursor) Put(rec *model.Record) (uint64, error) {
	start := time.Now()
	var id uint64
	err := c.put(rec, &id)
	c.tx.s.opts.metricsCollector.RecordPut(time.Since(start), err)
	return id, err
}

func (c *Cursor) put(rec *model.Record, id *uint64) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidArgument)
	}
	return c.tx.write(func(b kv.Batch) error {
		var err error
		if *id, err = c.tx.s.engine.Put(b, c.ent, rec); err != nil {
			return err
		}
		rec.ID = *id
		return nil
	})
}

// Remove deletes the record with id. A missing record returns ErrNotFound
// and leaves the transaction usable.
func (c *Cursor) Remove(id uint64) error {
	start := time.Now()
	err := c.tx.write(func(b kv.Batch) error {
		return c.tx.s.engine.Remove(b, c.ent, id)
	})
	c.tx.s.opts.metricsCollector.RecordRemove(time.Since(start), err)
	return err
}

// Count returns the number of records visible to the transaction.
func (c *Cursor) Count() (uint64, error) {
	var n uint64
	err := c.tx.do(func(r kv.Reader) error {
		var err error
		n, err = c.tx.s.engine.Count(r, c.ent)
		return err
	})
	return n, err
}

// All yields every record visible to the transaction in ascending
// identifier order. The loop body may use the transaction.
func (c *Cursor) All() iter.Seq2[*model.Record, error] {
	return c.tx.pull(func(r kv.Reader) iter.Seq2[*model.Record, error] {
		return c.tx.s.engine.Scan(r, c.ent)
	})
}

// Fetch yields the records for ids in ascending order, skipping ids that do
// not exist.
func (c *Cursor) Fetch(ids *roaring64.Bitmap) iter.Seq2[*model.Record, error] {
	return c.tx.pull(func(r kv.Reader) iter.Seq2[*model.Record, error] {
		return func(yield func(*model.Record, error) bool) {
			if ids == nil {
				return
			}
			it := ids.Iterator()
			for it.HasNext() {
				rec, err := c.tx.s.engine.Get(r, c.ent, it.Next())
				if errors.Is(err, engine.ErrNotFound) {
					continue
				}
				if !yield(rec, err) || err != nil {
					return
				}
			}
		}
	})
}

// Lookup returns the identifiers of records whose indexed property p
// equals v.
func (c *Cursor) Lookup(p *schema.Property, v model.Value) (*roaring64.Bitmap, error) {
	var ids *roaring64.Bitmap
	err := c.tx.do(func(r kv.Reader) error {
		var err error
		ids, err = c.tx.s.engine.Lookup(r, c.ent, p, v)
		return err
	})
	return ids, err
}

// Find runs q and returns the matching records.
func (c *Cursor) Find(q *query.Query) ([]*model.Record, error) {
	if q == nil {
		return nil, errNilQuery
	}
	start := time.Now()
	recs, err := q.Find(c)
	err = translateError(err)
	c.tx.s.opts.metricsCollector.RecordQuery(len(recs), time.Since(start), err)
	return recs, err
}

// FindIDs runs q and returns the identifiers of the matching records.
func (c *Cursor) FindIDs(q *query.Query) ([]uint64, error) {
	if q == nil {
		return nil, errNilQuery
	}
	start := time.Now()
	ids, err := q.FindIDs(c)
	err = translateError(err)
	c.tx.s.opts.metricsCollector.RecordQuery(len(ids), time.Since(start), err)
	return ids, err
}

// First runs q and returns its first record, or nil if nothing matches.
func (c *Cursor) First(q *query.Query) (*model.Record, error) {
	if q == nil {
		return nil, errNilQuery
	}
	start := time.Now()
	rec, err := q.First(c)
	err = translateError(err)
	n := 0
	if rec != nil {
		n = 1
	}
	c.tx.s.opts.metricsCollector.RecordQuery(n, time.Since(start), err)
	return rec, err
}

// CountMatching runs q and returns the number of matching records.
func (c *Cursor) CountMatching(q *query.Query) (uint64, error) {
	if q == nil {
		return 0, errNilQuery
	}
	start := time.Now()
	n, err := q.Count(c)
	err = translateError(err)
	c.tx.s.opts.metricsCollector.RecordQuery(int(n), time.Since(start), err) //nolint:gosec
	return n, err
}

// RemoveMatching removes every record matching q and returns how many were
// removed. It needs the write transaction.
func (c *Cursor) RemoveMatching(q *query.Query) (uint64, error) {
	if q == nil {
		return 0, errNilQuery
	}
	start := time.Now()
	n, err := q.Remove(c)
	err = translateError(err)
	c.tx.s.opts.metricsCollector.RecordQuery(int(n), time.Since(start), err) //nolint:gosec
	return n, err
}

// Distinct runs q and returns the distinct non-null values of prop among
// the matching records, in ascending order.
func (c *Cursor) Distinct(q *query.Query, prop string) ([]model.Value, error) {
	if q == nil {
		return nil, errNilQuery
	}
	start := time.Now()
	vals, err := q.Distinct(c, prop)
	err = translateError(err)
	c.tx.s.opts.metricsCollector.RecordQuery(len(vals), time.Since(start), err)
	return vals, err
}
