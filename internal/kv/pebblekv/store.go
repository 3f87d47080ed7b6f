// Package pebblekv implements the kv contract on top of a Pebble LSM tree.
package pebblekv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/hupe1980/boxdb/internal/conv"
	"github.com/hupe1980/boxdb/internal/kv"
	"github.com/hupe1980/boxdb/internal/wal"
)

// Options configures the Pebble backend.
type Options struct {
	// FS overrides the filesystem. vfs.NewMem() gives an in-memory store.
	FS         vfs.FS
	Durability wal.Durability
	Logger     *slog.Logger
	// CacheSize is the block cache size in bytes. 0 uses 8 MiB.
	CacheSize int64
}

// Store implements kv.Store.
type Store struct {
	db        *pebble.DB
	writeOpts *pebble.WriteOptions

	mu        sync.Mutex
	batchOpen bool
	closed    bool
}

var _ kv.Store = (*Store)(nil)

// Open opens or creates a Pebble database in dir.
func Open(dir string, opts Options) (*Store, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 8 << 20
	}

	cache := pebble.NewCache(opts.CacheSize)
	defer cache.Unref()

	po := &pebble.Options{
		Cache:        cache,
		MemTableSize: 4 << 20,
		Logger:       newLogger(opts.Logger),
	}
	if opts.FS != nil {
		po.FS = opts.FS
	}

	db, err := pebble.Open(dir, po)
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}

	wo := pebble.NoSync
	if opts.Durability == wal.DurabilitySync {
		wo = pebble.Sync
	}
	return &Store{db: db, writeOpts: wo}, nil
}

// NewSnapshot implements kv.Store.
func (s *Store) NewSnapshot() (kv.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, kv.ErrClosed
	}
	return &snapshot{snap: s.db.NewSnapshot()}, nil
}

// NewBatch implements kv.Store. The batch is indexed so reads on it observe
// its own writes over the latest committed state.
func (s *Store) NewBatch() (kv.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, kv.ErrClosed
	}
	if s.batchOpen {
		return nil, kv.ErrBusy
	}
	s.batchOpen = true
	return &batch{s: s, batch: s.db.NewIndexedBatch()}, nil
}

func (s *Store) releaseBatch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchOpen = false
}

// SizeOnDisk implements kv.Store.
func (s *Store) SizeOnDisk() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, kv.ErrClosed
	}
	return conv.Uint64ToInt64(s.db.Metrics().DiskSpaceUsage())
}

// Compact flushes memtables and compacts the full key space.
func (s *Store) Compact(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return kv.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Flush(); err != nil {
		return err
	}
	return s.db.Compact([]byte{0x00}, []byte{0xff, 0xff}, true)
}

// Close implements kv.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kv.ErrClosed
	}
	s.closed = true
	return s.db.Close()
}

func get(r pebble.Reader, key []byte) ([]byte, error) {
	value, closer, err := r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close() //nolint:errcheck

	return append([]byte(nil), value...), nil
}

type snapshot struct {
	snap *pebble.Snapshot
	mu   sync.Mutex
	done bool
}

func (sn *snapshot) Get(key []byte) ([]byte, error) {
	if sn.isDone() {
		return nil, kv.ErrClosed
	}
	return get(sn.snap, key)
}

func (sn *snapshot) NewIterator(start, end []byte) (kv.Iterator, error) {
	if sn.isDone() {
		return nil, kv.ErrClosed
	}
	return newIterator(sn.snap, start, end)
}

func (sn *snapshot) isDone() bool {
	sn.mu.Lock()
	defer sn.mu.Unlock()
	return sn.done
}

func (sn *snapshot) Close() error {
	sn.mu.Lock()
	defer sn.mu.Unlock()
	if sn.done {
		return nil
	}
	sn.done = true
	return sn.snap.Close()
}
