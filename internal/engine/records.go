package engine

import (
	"bytes"
	"errors"
	"fmt"
	"iter"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/boxdb/codec"
	"github.com/hupe1980/boxdb/internal/conv"
	"github.com/hupe1980/boxdb/internal/keys"
	"github.com/hupe1980/boxdb/internal/kv"
	"github.com/hupe1980/boxdb/model"
	"github.com/hupe1980/boxdb/schema"
)

// Put inserts or replaces rec and returns its identifier. A zero rec.ID
// allocates the next identifier; a non-zero one upserts and raises the
// sequence to at least that value. rec.ID is not modified.
func (e *Engine) Put(b kv.Batch, ent *schema.Entity, rec *model.Record) (uint64, error) {
	st, err := e.state(ent)
	if err != nil {
		return 0, err
	}
	if err := ent.Validate(rec); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	id := rec.ID
	var seq uint64
	if id == 0 {
		if id, err = st.next(); err != nil {
			return 0, err
		}
		seq = id
	} else {
		seq = st.observe(id)
	}

	old, err := e.get(b, ent, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return 0, err
	}

	// Check every unique value before writing anything.
	for _, p := range ent.IndexedProperties() {
		if !p.IsUnique() {
			continue
		}
		v := rec.Get(p.Name())
		if v.IsNull() {
			continue
		}
		owner, err := readUint64(b, keys.Unique(ent.ID(), p.ID(), v))
		if err != nil {
			return 0, err
		}
		if owner != 0 && owner != id {
			return 0, &ConstraintError{Entity: ent.Name(), Property: p.Name(), Value: v, ConflictID: owner}
		}
	}

	if err := e.updateIndexes(b, ent, id, old, rec); err != nil {
		return 0, err
	}

	data, err := codec.Compress(codec.EncodeRecord(ent, rec), e.compression)
	if err != nil {
		return 0, err
	}
	if err := b.Put(keys.Record(ent.ID(), id), data); err != nil {
		return 0, err
	}
	if err := b.Put(keys.Sequence(ent.ID()), keys.PutUint64(seq)); err != nil {
		return 0, err
	}
	if old == nil {
		if err := e.addCount(b, ent, 1); err != nil {
			return 0, err
		}
	}
	return id, nil
}

// updateIndexes moves the index and unique entries of id from old to rec.
// Either side may be nil.
func (e *Engine) updateIndexes(b kv.Batch, ent *schema.Entity, id uint64, old, rec *model.Record) error {
	for _, p := range ent.IndexedProperties() {
		var ov, nv model.Value
		if old != nil {
			ov = old.Get(p.Name())
		}
		if rec != nil {
			nv = rec.Get(p.Name())
		}
		if bytes.Equal(keys.Value(nil, ov), keys.Value(nil, nv)) {
			continue
		}

		if !ov.IsNull() {
			if err := b.Delete(keys.Index(ent.ID(), p.ID(), ov, id)); err != nil {
				return err
			}
			if p.IsUnique() {
				if err := b.Delete(keys.Unique(ent.ID(), p.ID(), ov)); err != nil {
					return err
				}
			}
		}
		if !nv.IsNull() {
			if err := b.Put(keys.Index(ent.ID(), p.ID(), nv, id), nil); err != nil {
				return err
			}
			if p.IsUnique() {
				if err := b.Put(keys.Unique(ent.ID(), p.ID(), nv), keys.PutUint64(id)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (e *Engine) addCount(b kv.Batch, ent *schema.Entity, delta int) error {
	key := keys.Count(ent.ID())
	n, err := readUint64(b, key)
	if err != nil {
		return err
	}
	next, err := conv.AddDelta(n, delta)
	if err != nil {
		return fmt.Errorf("%w: record counter of %s: %w", ErrCorrupt, ent.Name(), err)
	}
	return b.Put(key, keys.PutUint64(next))
}

// Get returns the record with the given identifier.
func (e *Engine) Get(r kv.Reader, ent *schema.Entity, id uint64) (*model.Record, error) {
	if _, err := e.state(ent); err != nil {
		return nil, err
	}
	return e.get(r, ent, id)
}

func (e *Engine) get(r kv.Reader, ent *schema.Entity, id uint64) (*model.Record, error) {
	if id == 0 {
		return nil, fmt.Errorf("%w: %s id 0", ErrNotFound, ent.Name())
	}
	raw, err := r.Get(keys.Record(ent.ID(), id))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s id %d", ErrNotFound, ent.Name(), id)
	}
	if err != nil {
		return nil, err
	}
	return decode(ent, id, raw)
}

func decode(ent *schema.Entity, id uint64, raw []byte) (*model.Record, error) {
	data, err := codec.Decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s id %d: %w", ErrCorrupt, ent.Name(), id, err)
	}
	rec, err := codec.DecodeRecord(ent, id, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s id %d: %w", ErrCorrupt, ent.Name(), id, err)
	}
	return rec, nil
}

// Remove deletes the record with the given identifier and its index entries.
func (e *Engine) Remove(b kv.Batch, ent *schema.Entity, id uint64) error {
	if _, err := e.state(ent); err != nil {
		return err
	}
	old, err := e.get(b, ent, id)
	if err != nil {
		return err
	}
	if err := e.updateIndexes(b, ent, id, old, nil); err != nil {
		return err
	}
	if err := b.Delete(keys.Record(ent.ID(), id)); err != nil {
		return err
	}
	return e.addCount(b, ent, -1)
}

// Count returns the number of live records visible to r.
func (e *Engine) Count(r kv.Reader, ent *schema.Entity) (uint64, error) {
	if _, err := e.state(ent); err != nil {
		return 0, err
	}
	return readUint64(r, keys.Count(ent.ID()))
}

// Scan yields the records visible to r in ascending identifier order.
// Iteration stops at the first error.
func (e *Engine) Scan(r kv.Reader, ent *schema.Entity) iter.Seq2[*model.Record, error] {
	return func(yield func(*model.Record, error) bool) {
		if _, err := e.state(ent); err != nil {
			yield(nil, err)
			return
		}
		prefix := keys.RecordPrefix(ent.ID())
		it, err := r.NewIterator(prefix, keys.PrefixEnd(prefix))
		if err != nil {
			yield(nil, err)
			return
		}
		defer it.Close() //nolint:errcheck

		for it.Next() {
			key := it.Key()
			id, err := keys.RecordID(key)
			if err != nil {
				yield(nil, fmt.Errorf("%w: %w", ErrCorrupt, err))
				return
			}
			raw, err := it.Value()
			if err != nil {
				yield(nil, err)
				return
			}
			rec, err := decode(ent, id, raw)
			if !yield(rec, err) || err != nil {
				return
			}
		}
		if err := it.Error(); err != nil {
			yield(nil, err)
		}
	}
}

// Lookup returns the identifiers of records whose indexed property p equals v.
func (e *Engine) Lookup(r kv.Reader, ent *schema.Entity, p *schema.Property, v model.Value) (*roaring64.Bitmap, error) {
	if _, err := e.state(ent); err != nil {
		return nil, err
	}
	if q, ok := ent.PropertyByID(p.ID()); !ok || q != p {
		return nil, fmt.Errorf("%w: %s has no property %s", ErrInvalidArgument, ent.Name(), p)
	}
	if !p.IsIndexed() {
		return nil, fmt.Errorf("%w: %s.%s is not indexed", ErrInvalidArgument, ent.Name(), p.Name())
	}

	ids := roaring64.New()
	if v.IsNull() {
		return ids, nil
	}

	prefix := keys.IndexPrefix(ent.ID(), p.ID(), v)
	it, err := r.NewIterator(prefix, keys.PrefixEnd(prefix))
	if err != nil {
		return nil, err
	}
	defer it.Close() //nolint:errcheck

	for it.Next() {
		key := it.Key()
		// The prefix ends with the value terminator, so only exact matches
		// followed by an 8-byte identifier belong to v.
		if len(key) != len(prefix)+8 {
			continue
		}
		id, err := keys.IndexID(key)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		ids.Add(id)
	}
	return ids, it.Error()
}
