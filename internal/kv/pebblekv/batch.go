package pebblekv

import (
	"sync/atomic"

	"github.com/cockroachdb/pebble"

	"github.com/hupe1980/boxdb/internal/kv"
)

type batch struct {
	s     *Store
	batch *pebble.Batch
	done  atomic.Bool
}

func (b *batch) Get(key []byte) ([]byte, error) {
	if b.done.Load() {
		return nil, kv.ErrBatchDone
	}
	return get(b.batch, key)
}

func (b *batch) NewIterator(start, end []byte) (kv.Iterator, error) {
	if b.done.Load() {
		return nil, kv.ErrBatchDone
	}
	return newIterator(b.batch, start, end)
}

func (b *batch) Put(key, value []byte) error {
	if b.done.Load() {
		return kv.ErrBatchDone
	}
	return b.batch.Set(key, value, nil)
}

func (b *batch) Delete(key []byte) error {
	if b.done.Load() {
		return kv.ErrBatchDone
	}
	return b.batch.Delete(key, nil)
}

func (b *batch) Commit() error {
	if !b.done.CompareAndSwap(false, true) {
		return kv.ErrBatchDone
	}
	defer b.s.releaseBatch()

	err := b.batch.Commit(b.s.writeOpts)
	if cerr := b.batch.Close(); err == nil {
		err = cerr
	}
	return err
}

func (b *batch) Close() error {
	if !b.done.CompareAndSwap(false, true) {
		return nil
	}
	defer b.s.releaseBatch()
	return b.batch.Close()
}
