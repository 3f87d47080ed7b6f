package boxdb

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hupe1980/boxdb/internal/engine"
	"github.com/hupe1980/boxdb/internal/kv"
	"github.com/hupe1980/boxdb/internal/kv/logkv"
	"github.com/hupe1980/boxdb/internal/kv/pebblekv"
	"github.com/hupe1980/boxdb/internal/lockfile"
	"github.com/hupe1980/boxdb/internal/resource"
	"github.com/hupe1980/boxdb/schema"
)

// Store is an open object store. It is safe for concurrent use.
//
// A store admits one write transaction at a time and any number of read
// transactions, each reading a consistent snapshot.
type Store struct {
	dir    string
	opts   options
	lock   *lockfile.Lock
	kv     kv.Store
	engine *engine.Engine
	rc     *resource.Controller

	// mu guards closed. Operations hold it shared, Close exclusively.
	mu     sync.RWMutex
	closed bool

	txMu sync.Mutex
	txs  map[*Tx]struct{}
}

// Open opens or creates the store in dir for the given entities.
//
// Each entity is checked against the property table stored by earlier
// opens; a conflicting declaration fails with ErrSchemaMismatch. Another
// process holding the directory fails with ErrInvalidState.
func Open(dir string, entities []*schema.Entity, optFns ...Option) (*Store, error) {
	o := applyOptions(optFns)
	ctx := context.Background()

	s, err := open(ctx, dir, entities, o)
	o.logger.LogOpen(ctx, dir, o.backend, len(entities), err)
	if err != nil {
		return nil, translateError(err)
	}
	return s, nil
}

func open(ctx context.Context, dir string, entities []*schema.Entity, o options) (*Store, error) {
	s := &Store{
		dir:  dir,
		opts: o,
		rc: resource.NewController(resource.Config{
			MaxBackgroundWorkers: int64(o.backgroundWorkers),
			IOLimitBytesPerSec:   o.backgroundIOLimit,
		}),
		txs: make(map[*Tx]struct{}),
	}

	switch o.backend {
	case BackendLog:
		lock, err := lockfile.Acquire(dir)
		if err != nil {
			return nil, err
		}
		store, err := logkv.Open(dir, logkv.Options{
			FS:                  o.fs,
			Durability:          o.durability.wal(),
			Logger:              o.logger.Logger,
			CompactionThreshold: o.compactionThreshold,
		})
		if err != nil {
			return nil, errors.Join(err, lock.Release())
		}
		stats := store.Recovery()
		o.logger.LogRecovery(ctx, stats.Frames, stats.LastLSN, stats.TruncatedBytes)
		s.lock, s.kv = lock, store
	case BackendPebble:
		// Pebble guards its directory with its own LOCK file.
		store, err := pebblekv.Open(dir, pebblekv.Options{
			FS:         o.pebbleFS,
			Durability: o.durability.wal(),
			Logger:     o.logger.Logger,
			CacheSize:  o.cacheSize,
		})
		if err != nil {
			return nil, err
		}
		s.kv = store
	default:
		return nil, ErrInvalidArgument
	}

	eng, err := engine.Open(s.kv, entities,
		engine.WithLogger(o.logger.Logger),
		engine.WithCompression(o.compression),
	)
	if err != nil {
		return nil, errors.Join(err, s.closeBackend())
	}
	s.engine = eng
	return s, nil
}

func (s *Store) closeBackend() error {
	err := s.kv.Close()
	if s.lock != nil {
		err = errors.Join(err, s.lock.Release())
	}
	return err
}

// Dir returns the directory the store was opened in.
func (s *Store) Dir() string { return s.dir }

// Backend returns the storage engine in use.
func (s *Store) Backend() Backend { return s.opts.backend }

// Entities returns the declared entities in declaration order.
func (s *Store) Entities() []*schema.Entity { return s.engine.Entities() }

// Entity returns the declared entity called name.
func (s *Store) Entity(name string) (*schema.Entity, bool) { return s.engine.Entity(name) }

// BeginRead starts a read-only transaction over a snapshot of the latest
// committed state.
func (s *Store) BeginRead() (*Tx, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	snap, err := s.kv.NewSnapshot()
	if err != nil {
		return nil, translateError(err)
	}
	tx := newTx(s, false)
	tx.snap = snap
	s.register(tx)
	return tx, nil
}

// BeginWrite starts the write transaction. It waits while another write
// transaction is open, until ctx is done.
func (s *Store) BeginWrite(ctx context.Context) (*Tx, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if err := s.rc.AcquireWriter(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.rc.ReleaseWriter()
		return nil, ErrClosed
	}

	batch, err := s.kv.NewBatch()
	if err != nil {
		s.rc.ReleaseWriter()
		return nil, translateError(err)
	}
	tx := newTx(s, true)
	tx.batch = batch
	s.register(tx)
	return tx, nil
}

// View runs fn in a read transaction. The transaction is always released.
func (s *Store) View(fn func(tx *Tx) error) error {
	tx, err := s.BeginRead()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck
	return fn(tx)
}

// Update runs fn in a write transaction and commits it if fn returns nil.
// The transaction is rolled back if fn fails or panics.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.BeginWrite(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Count returns the number of committed records of ent.
func (s *Store) Count(ent *schema.Entity) (uint64, error) {
	var n uint64
	err := s.View(func(tx *Tx) error {
		cur, err := tx.Cursor(ent)
		if err != nil {
			return err
		}
		n, err = cur.Count()
		return err
	})
	return n, err
}

// SizeOnDisk returns the bytes used by the store's files.
func (s *Store) SizeOnDisk() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	n, err := s.kv.SizeOnDisk()
	return n, translateError(err)
}

// Compact reclaims space held by overwritten and removed records. It waits
// for the write transaction to finish and blocks new ones while it runs.
func (s *Store) Compact(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.rc.AcquireBackground(ctx); err != nil {
		return err
	}
	defer s.rc.ReleaseBackground()
	if err := s.rc.AcquireWriter(ctx); err != nil {
		return err
	}
	defer s.rc.ReleaseWriter()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	before, beforeErr := s.kv.SizeOnDisk()
	err := s.kv.Compact(ctx)
	after, afterErr := s.kv.SizeOnDisk()
	if beforeErr != nil || afterErr != nil {
		s.opts.logger.WarnContext(ctx, "size on disk unavailable",
			"error", errors.Join(beforeErr, afterErr),
		)
		if beforeErr != nil {
			before = -1
		}
		if afterErr != nil {
			after = -1
		}
	}
	s.opts.logger.LogCompact(ctx, before, after, err)
	return translateError(err)
}

// Close ends every open transaction and closes the store. Ending those
// transactions afterwards reports ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.closed = true

	s.txMu.Lock()
	open := make([]*Tx, 0, len(s.txs))
	for tx := range s.txs {
		open = append(open, tx)
	}
	s.txMu.Unlock()

	for _, tx := range open {
		tx.abort(ErrClosed)
	}

	start := time.Now()
	err := s.closeBackend()
	s.opts.logger.Info("store closed",
		"dir", s.dir,
		"aborted_transactions", len(open),
		"duration", time.Since(start),
	)
	return translateError(err)
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *Store) register(tx *Tx) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.txs[tx] = struct{}{}
}

func (s *Store) forget(tx *Tx) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	delete(s.txs, tx)
}
