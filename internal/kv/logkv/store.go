// Package logkv is the native storage backend: every committed batch is one
// checksummed frame in a single append-only file, and all live keys are held
// in an in-memory MVCC index rebuilt by replaying that file at open.
package logkv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/hupe1980/boxdb/internal/fs"
	"github.com/hupe1980/boxdb/internal/kv"
	"github.com/hupe1980/boxdb/internal/mvcc"
	"github.com/hupe1980/boxdb/internal/wal"
)

// ErrCorrupt is returned when the log is intact but its frames are out of order.
var ErrCorrupt = errors.New("logkv: corrupt log")

// FileName is the name of the log inside the store directory.
const FileName = "store.log"

// pruneEvery is the number of commits between version pruning passes.
const pruneEvery = 128

// Options configures the log backend.
type Options struct {
	FS         fs.FileSystem
	Durability wal.Durability
	Logger     *slog.Logger
	// CompactionThreshold triggers an automatic compaction after a commit
	// once the log exceeds this many bytes and is more than twice the size
	// of the live data. 0 disables automatic compaction.
	CompactionThreshold int64
}

// RecoveryStats describes the replay performed by Open.
type RecoveryStats struct {
	Frames         int
	LastLSN        uint64
	TruncatedBytes int64
}

// Store implements kv.Store.
type Store struct {
	dir  string
	path string
	opts Options

	mu        sync.Mutex
	log       *wal.WAL
	index     *mvcc.Index
	lsn       uint64
	snaps     map[uint64]int
	batchOpen bool
	commits   int
	closed    bool
	recovery  RecoveryStats
}

var _ kv.Store = (*Store)(nil)

// Open opens or creates the log in dir and replays it.
func Open(dir string, opts Options) (*Store, error) {
	if opts.FS == nil {
		opts.FS = fs.Default
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if err := opts.FS.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &Store{
		dir:   dir,
		path:  filepath.Join(dir, FileName),
		opts:  opts,
		index: mvcc.New(),
		snaps: make(map[uint64]int),
	}

	log, err := wal.Open(opts.FS, s.path, wal.Options{Durability: opts.Durability})
	if err != nil {
		return nil, err
	}
	s.log = log

	if err := s.replay(); err != nil {
		_ = log.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) replay() error {
	r, err := s.log.Reader()
	if err != nil {
		return err
	}
	defer r.Close()

	for {
		f, err := r.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if !wal.IsTorn(err) {
				return err
			}
			torn := s.log.Size() - r.Offset()
			s.opts.Logger.Warn("truncating torn log tail",
				slog.String("path", s.path),
				slog.Int64("offset", r.Offset()),
				slog.Int64("bytes", torn),
				slog.String("cause", err.Error()))
			if err := s.log.TruncateTo(r.Offset()); err != nil {
				return fmt.Errorf("truncate torn tail: %w", err)
			}
			s.recovery.TruncatedBytes = torn
			break
		}

		if f.LSN < s.lsn {
			return fmt.Errorf("%w: lsn %d after %d", ErrCorrupt, f.LSN, s.lsn)
		}
		s.index.Apply(f.LSN, toMutations(f.Ops))
		s.lsn = f.LSN
		s.recovery.Frames++
	}

	s.recovery.LastLSN = s.lsn
	s.index.Prune(s.lsn)
	return nil
}

func toMutations(ops []wal.Op) []mvcc.Mutation {
	muts := make([]mvcc.Mutation, len(ops))
	for i, op := range ops {
		muts[i] = mvcc.Mutation{Key: op.Key, Value: op.Value, Delete: op.Type == wal.OpDelete}
	}
	return muts
}

// Recovery returns what Open found in the log.
func (s *Store) Recovery() RecoveryStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recovery
}

// LSN returns the last committed LSN.
func (s *Store) LSN() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lsn
}

// NewSnapshot implements kv.Store.
func (s *Store) NewSnapshot() (kv.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, kv.ErrClosed
	}
	s.snaps[s.lsn]++
	return &snapshot{s: s, lsn: s.lsn}, nil
}

func (s *Store) releaseSnapshot(lsn uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snaps[lsn]--; s.snaps[lsn] <= 0 {
		delete(s.snaps, lsn)
	}
}

// horizon returns the oldest LSN any open snapshot or batch reads at.
// Requires mu.
func (s *Store) horizon() uint64 {
	oldest := s.lsn
	for lsn := range s.snaps {
		oldest = min(oldest, lsn)
	}
	return oldest
}

// NewBatch implements kv.Store.
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
	return newBatch(s, s.lsn), nil
}

// commit appends ops as one frame and publishes them. Requires an open batch.
func (s *Store) commit(ops []wal.Op) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchOpen = false

	if s.closed {
		return kv.ErrClosed
	}
	if len(ops) == 0 {
		return nil
	}

	lsn := s.lsn + 1
	if _, err := s.log.Append(&wal.Frame{LSN: lsn, Ops: ops}); err != nil {
		return err
	}
	s.index.Apply(lsn, toMutations(ops))
	s.lsn = lsn

	s.commits++
	if s.commits%pruneEvery == 0 {
		s.index.Prune(s.horizon())
	}

	if t := s.opts.CompactionThreshold; t > 0 {
		size := s.log.Size()
		if size > t && size > 2*(s.index.LiveBytes()+wal.HeaderSize) {
			if err := s.compactLocked(context.Background()); err != nil {
				// The commit itself is durable; a failed compaction only
				// leaves the old log in place.
				s.opts.Logger.Warn("automatic compaction failed", slog.String("error", err.Error()))
			}
		}
	}
	return nil
}

func (s *Store) abort() {
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
	return s.log.Size(), nil
}

// Close implements kv.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kv.ErrClosed
	}
	s.closed = true
	return s.log.Close()
}

type snapshot struct {
	s    *Store
	lsn  uint64
	once sync.Once
	done bool
}

func (sn *snapshot) Get(key []byte) ([]byte, error) {
	if sn.done {
		return nil, kv.ErrClosed
	}
	v, ok := sn.s.index.Get(key, sn.lsn)
	if !ok {
		return nil, kv.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (sn *snapshot) NewIterator(start, end []byte) (kv.Iterator, error) {
	if sn.done {
		return nil, kv.ErrClosed
	}
	return newIterator(sn.s.index.Scan(start, end, sn.lsn), nil), nil
}

func (sn *snapshot) Close() error {
	sn.once.Do(func() {
		sn.done = true
		sn.s.releaseSnapshot(sn.lsn)
	})
	return nil
}
