package boxdb

import (
	"context"
	"fmt"

	"github.com/hupe1980/boxdb/model"
	"github.com/hupe1980/boxdb/query"
	"github.com/hupe1980/boxdb/schema"
)

// Binding maps a Go type onto the records of one entity.
type Binding[T model.HasIdentifier] interface {
	Entity() *schema.Entity
	ToRecord(obj T) *model.Record
	FromRecord(rec *model.Record) (T, error)
}

// Box is a typed view of one entity. Every method runs in its own
// transaction; use Store.Update with a Cursor to group writes.
type Box[T model.HasIdentifier] struct {
	s       *Store
	binding Binding[T]
	ent     *schema.Entity
}

// NewBox binds b to s. The binding's entity must be declared in s.
func NewBox[T model.HasIdentifier](s *Store, b Binding[T]) (*Box[T], error) {
	ent := b.Entity()
	if ent == nil {
		return nil, fmt.Errorf("%w: binding has no entity", ErrInvalidArgument)
	}
	if got, ok := s.Entity(ent.Name()); !ok || got != ent {
		return nil, fmt.Errorf("%w: entity %s is not part of this store", ErrInvalidArgument, ent.Name())
	}
	return &Box[T]{s: s, binding: b, ent: ent}, nil
}

// Entity returns the bound entity.
func (b *Box[T]) Entity() *schema.Entity { return b.ent }

// Put stores obj and returns its identifier. A zero identifier is assigned
// and written back into obj after the commit.
func (b *Box[T]) Put(ctx context.Context, obj T) (uint64, error) {
	ids, err := b.PutMany(ctx, obj)
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// PutMany stores objs in one transaction.
func (b *Box[T]) PutMany(ctx context.Context, objs ...T) ([]uint64, error) {
	ids := make([]uint64, len(objs))
	err := b.s.Update(ctx, func(tx *Tx) error {
		cur, err := tx.Cursor(b.ent)
		if err != nil {
			return err
		}
		for i, obj := range objs {
			rec := b.binding.ToRecord(obj)
			if rec == nil {
				return fmt.Errorf("%w: binding returned no record", ErrInvalidArgument)
			}
			rec.ID = obj.Identifier()
			if ids[i], err = cur.Put(rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, obj := range objs {
		obj.SetIdentifier(ids[i])
	}
	return ids, nil
}

// Get returns the object with id, or ErrNotFound.
func (b *Box[T]) Get(id uint64) (T, error) {
	var obj T
	err := b.s.View(func(tx *Tx) error {
		cur, err := tx.Cursor(b.ent)
		if err != nil {
			return err
		}
		rec, err := cur.Get(id)
		if err != nil {
			return err
		}
		obj, err = b.decode(rec)
		return err
	})
	return obj, err
}

// Remove deletes the object with id.
func (b *Box[T]) Remove(ctx context.Context, id uint64) error {
	return b.s.Update(ctx, func(tx *Tx) error {
		cur, err := tx.Cursor(b.ent)
		if err != nil {
			return err
		}
		return cur.Remove(id)
	})
}

// All returns every object in ascending identifier order.
func (b *Box[T]) All() ([]T, error) {
	var out []T
	err := b.s.View(func(tx *Tx) error {
		cur, err := tx.Cursor(b.ent)
		if err != nil {
			return err
		}
		for rec, err := range cur.All() {
			if err != nil {
				return err
			}
			obj, err := b.decode(rec)
			if err != nil {
				return err
			}
			out = append(out, obj)
		}
		return nil
	})
	return out, err
}

// Count returns the number of stored objects.
func (b *Box[T]) Count() (uint64, error) {
	return b.s.Count(b.ent)
}

// Query runs q and returns the matching objects.
func (b *Box[T]) Query(q *query.Query) ([]T, error) {
	var out []T
	err := b.s.View(func(tx *Tx) error {
		cur, err := tx.Cursor(b.ent)
		if err != nil {
			return err
		}
		recs, err := cur.Find(q)
		if err != nil {
			return err
		}
		out = make([]T, 0, len(recs))
		for _, rec := range recs {
			obj, err := b.decode(rec)
			if err != nil {
				return err
			}
			out = append(out, obj)
		}
		return nil
	})
	return out, err
}

func (b *Box[T]) decode(rec *model.Record) (T, error) {
	obj, err := b.binding.FromRecord(rec)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("%w: decode %s id %d: %w", ErrInvalidArgument, b.ent.Name(), rec.ID, err)
	}
	return obj, nil
}
