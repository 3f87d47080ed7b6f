// Package kv defines the ordered key-value contract the record engine is
// written against. Two backends implement it: logkv (a single append-only log
// with an in-memory MVCC index) and pebblekv (an LSM tree).
package kv

import (
	"context"
	"errors"
)

var (
	ErrClosed    = errors.New("kv: store is closed")
	ErrNotFound  = errors.New("kv: key not found")
	ErrBatchDone = errors.New("kv: batch already committed or closed")
	ErrBusy      = errors.New("kv: a write batch is already open")
)

// Reader provides point lookups and ordered range iteration.
type Reader interface {
	// Get returns the value of key or ErrNotFound. The returned slice is owned
	// by the caller.
	Get(key []byte) ([]byte, error)
	// NewIterator iterates keys in [start, end) in ascending order.
	// A nil end means no upper bound.
	NewIterator(start, end []byte) (Iterator, error)
}

// Snapshot is a consistent read-only view as of its creation.
// Snapshots must be closed after use.
type Snapshot interface {
	Reader
	Close() error
}

// Batch is a pending write set over the state at creation time. Reads on the
// batch observe its own writes. All operations in a batch are committed
// atomically.
type Batch interface {
	Reader
	Put(key []byte, value []byte) error
	Delete(key []byte) error
	Commit() error
	// Close discards an uncommitted batch. Closing twice is not an error.
	Close() error
}

// Iterator provides sequential access over a range of key-value pairs.
// The first call to Next positions the iterator at the first key.
// Iterators must be closed after use.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() ([]byte, error)
	Valid() bool
	Error() error
	Close() error
}

// Store is a storage backend.
type Store interface {
	NewSnapshot() (Snapshot, error)
	// NewBatch opens the write batch. At most one batch is open at a time.
	NewBatch() (Batch, error)
	// SizeOnDisk reports the bytes used by the backend's files.
	SizeOnDisk() (int64, error)
	// Compact reclaims space held by overwritten and deleted keys.
	Compact(ctx context.Context) error
	Close() error
}
