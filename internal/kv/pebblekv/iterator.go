package pebblekv

import (
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/hupe1980/boxdb/internal/kv"
)

type iterator struct {
	iter    *pebble.Iterator
	started bool
	closed  bool
}

func newIterator(r pebble.Reader, start, end []byte) (*iterator, error) {
	it, err := r.NewIter(&pebble.IterOptions{
		LowerBound: start,
		UpperBound: end,
	})
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	return &iterator{iter: it}, nil
}

func (it *iterator) Next() bool {
	if it.closed {
		return false
	}
	if !it.started {
		it.started = true
		return it.iter.First()
	}
	return it.iter.Next()
}

func (it *iterator) Key() []byte {
	return append([]byte(nil), it.iter.Key()...)
}

func (it *iterator) Value() ([]byte, error) {
	if !it.Valid() {
		return nil, kv.ErrNotFound
	}
	val, err := it.iter.ValueAndErr()
	if err != nil {
		return nil, fmt.Errorf("read iterator value: %w", err)
	}
	return append([]byte(nil), val...), nil
}

func (it *iterator) Valid() bool {
	return !it.closed && it.started && it.iter.Valid()
}

func (it *iterator) Error() error {
	return it.iter.Error()
}

func (it *iterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.iter.Close()
}
