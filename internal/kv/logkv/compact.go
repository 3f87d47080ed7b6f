package logkv

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hupe1980/boxdb/internal/fs"
	"github.com/hupe1980/boxdb/internal/kv"
	"github.com/hupe1980/boxdb/internal/wal"
)

// compactChunk bounds the body of one frame written by compaction.
const compactChunk = 4 << 20

// Compact rewrites the live key set into a fresh log and atomically replaces
// the old one. Open snapshots are unaffected because they read from memory.
func (s *Store) Compact(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return kv.ErrClosed
	}
	if s.batchOpen {
		return kv.ErrBusy
	}
	return s.compactLocked(ctx)
}

// compactLocked requires mu.
func (s *Store) compactLocked(ctx context.Context) error {
	start := time.Now()
	before := s.log.Size()
	tmpPath := s.path + ".compact"

	tmp, err := wal.Open(s.opts.FS, tmpPath, wal.Options{Durability: wal.DurabilityAsync, Truncate: true})
	if err != nil {
		return err
	}
	cleanup := func(cause error) error {
		_ = tmp.Close()
		_ = s.opts.FS.Remove(tmpPath)
		return cause
	}

	// Every chunk carries the current LSN so replay resumes numbering after it.
	frame := &wal.Frame{LSN: s.lsn}
	size := 0
	flush := func() error {
		if len(frame.Ops) == 0 {
			return nil
		}
		if _, err := tmp.Append(frame); err != nil {
			return err
		}
		frame = &wal.Frame{LSN: s.lsn}
		size = 0
		return nil
	}

	for k, v := range s.index.Scan(nil, nil, s.lsn) {
		if err := ctx.Err(); err != nil {
			return cleanup(err)
		}
		frame.Ops = append(frame.Ops, wal.Op{Type: wal.OpSet, Key: k, Value: v})
		size += len(k) + len(v)
		if size >= compactChunk {
			if err := flush(); err != nil {
				return cleanup(err)
			}
		}
	}
	if err := flush(); err != nil {
		return cleanup(err)
	}
	if s.lsn > 0 && tmp.Size() == wal.HeaderSize {
		// Keep the LSN even when every key was deleted.
		if _, err := tmp.Append(&wal.Frame{LSN: s.lsn}); err != nil {
			return cleanup(err)
		}
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.opts.FS.Remove(tmpPath)
		return err
	}

	if err := s.opts.FS.Rename(tmpPath, s.path); err != nil {
		_ = s.opts.FS.Remove(tmpPath)
		return fmt.Errorf("install compacted log: %w", err)
	}
	if err := fs.SyncDir(s.opts.FS, s.dir); err != nil {
		return err
	}

	next, err := wal.Open(s.opts.FS, s.path, wal.Options{Durability: s.opts.Durability})
	if err != nil {
		// The compacted file is in place but cannot be reopened; further
		// commits would be lost, so refuse them.
		s.closed = true
		_ = s.log.Close()
		return fmt.Errorf("reopen compacted log: %w", err)
	}
	_ = s.log.Close()
	s.log = next
	s.index.Prune(s.horizon())

	s.opts.Logger.Info("log compacted",
		slog.Int64("before_bytes", before),
		slog.Int64("after_bytes", next.Size()),
		slog.Duration("duration", time.Since(start)))
	return nil
}
