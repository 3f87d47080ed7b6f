package logkv

import (
	"bytes"
	"slices"
	"sort"

	"github.com/hupe1980/boxdb/internal/kv"
	"github.com/hupe1980/boxdb/internal/wal"
)

type pending struct {
	value   []byte
	deleted bool
}

// batch buffers writes over the index as of lsn.
type batch struct {
	s    *Store
	lsn  uint64
	ops  map[string]pending
	keys []string // sorted keys of ops
	done bool
}

func newBatch(s *Store, lsn uint64) *batch {
	return &batch{s: s, lsn: lsn, ops: make(map[string]pending)}
}

func (b *batch) record(key []byte, p pending) {
	k := string(key)
	if _, ok := b.ops[k]; !ok {
		i := sort.SearchStrings(b.keys, k)
		b.keys = slices.Insert(b.keys, i, k)
	}
	b.ops[k] = p
}

func (b *batch) Put(key, value []byte) error {
	if b.done {
		return kv.ErrBatchDone
	}
	b.record(key, pending{value: bytes.Clone(value)})
	return nil
}

func (b *batch) Delete(key []byte) error {
	if b.done {
		return kv.ErrBatchDone
	}
	b.record(key, pending{deleted: true})
	return nil
}

func (b *batch) Get(key []byte) ([]byte, error) {
	if b.done {
		return nil, kv.ErrBatchDone
	}
	if p, ok := b.ops[string(key)]; ok {
		if p.deleted {
			return nil, kv.ErrNotFound
		}
		return bytes.Clone(p.value), nil
	}
	v, ok := b.s.index.Get(key, b.lsn)
	if !ok {
		return nil, kv.ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (b *batch) NewIterator(start, end []byte) (kv.Iterator, error) {
	if b.done {
		return nil, kv.ErrBatchDone
	}

	lo := sort.SearchStrings(b.keys, string(start))
	hi := len(b.keys)
	if end != nil {
		hi = sort.SearchStrings(b.keys, string(end))
	}
	overlay := make([]overlayEntry, 0, max(hi-lo, 0))
	for _, k := range b.keys[lo:max(hi, lo)] {
		p := b.ops[k]
		overlay = append(overlay, overlayEntry{key: []byte(k), value: p.value, deleted: p.deleted})
	}
	return newIterator(b.s.index.Scan(start, end, b.lsn), overlay), nil
}

// Commit writes all buffered operations as one frame. Deletes of keys absent
// from the base state are dropped.
func (b *batch) Commit() error {
	if b.done {
		return kv.ErrBatchDone
	}
	b.done = true

	ops := make([]wal.Op, 0, len(b.keys))
	for _, k := range b.keys {
		p := b.ops[k]
		if p.deleted {
			if _, live := b.s.index.Get([]byte(k), b.lsn); !live {
				continue
			}
			ops = append(ops, wal.Op{Type: wal.OpDelete, Key: []byte(k)})
			continue
		}
		ops = append(ops, wal.Op{Type: wal.OpSet, Key: []byte(k), Value: p.value})
	}
	return b.s.commit(ops)
}

func (b *batch) Close() error {
	if b.done {
		return nil
	}
	b.done = true
	b.s.abort()
	return nil
}
