package boxdb

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/hupe1980/boxdb/internal/kv"
	"github.com/hupe1980/boxdb/model"
	"github.com/hupe1980/boxdb/schema"
)

// Tx is a transaction. A read transaction sees the snapshot taken when it
// began; the write transaction additionally sees its own writes.
//
// A Tx is safe for concurrent use, but its operations are serialized.
// Commit or Rollback must be called to release it.
type Tx struct {
	s        *Store
	writable bool
	start    time.Time

	mu    sync.Mutex
	snap  kv.Snapshot
	batch kv.Batch
	done  bool
	cause error

	iters map[*trackedIterator]struct{}
	pulls map[*pull]struct{}
}

func newTx(s *Store, writable bool) *Tx {
	return &Tx{
		s:        s,
		writable: writable,
		start:    time.Now(),
		iters:    make(map[*trackedIterator]struct{}),
		pulls:    make(map[*pull]struct{}),
	}
}

// Writable reports whether tx is the write transaction.
func (tx *Tx) Writable() bool { return tx.writable }

// Cursor returns a cursor over ent. ent must be one of the entities the
// store was opened with.
func (tx *Tx) Cursor(ent *schema.Entity) (*Cursor, error) {
	if ent == nil {
		return nil, fmt.Errorf("%w: nil entity", ErrInvalidArgument)
	}
	if got, ok := tx.s.engine.Entity(ent.Name()); !ok || got != ent {
		return nil, fmt.Errorf("%w: entity %s is not part of this store", ErrInvalidArgument, ent.Name())
	}

	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.checkLocked(); err != nil {
		return nil, err
	}
	return &Cursor{tx: tx, ent: ent}, nil
}

// Commit makes the writes of tx durable and visible, then ends tx. A failed
// commit rolls tx back. On a read transaction Commit returns ErrReadOnly and
// leaves tx open.
func (tx *Tx) Commit() error {
	err := tx.commit()
	if !errors.Is(err, ErrReadOnly) {
		d := time.Since(tx.start)
		tx.s.opts.metricsCollector.RecordCommit(d, err)
		tx.s.opts.logger.LogCommit(context.Background(), d, err)
	}
	return err
}

func (tx *Tx) commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return tx.doneErrLocked()
	}
	if !tx.writable {
		return ErrReadOnly
	}

	// Iterators must not outlive the batch.
	tx.releaseIteratorsLocked()
	if err := tx.batch.Commit(); err != nil {
		err = translateError(err)
		_ = tx.endLocked(err)
		return err
	}
	return translateError(tx.endLocked(nil))
}

// Rollback discards the writes of tx and ends it. Rolling back an ended
// transaction is a no-op, unless it was ended by closing the store, which
// is reported as ErrClosed.
func (tx *Tx) Rollback() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		if errors.Is(tx.cause, ErrClosed) {
			return ErrClosed
		}
		return nil
	}
	err := tx.endLocked(nil)
	tx.s.opts.metricsCollector.RecordRollback(time.Since(tx.start), nil)
	tx.s.opts.logger.LogRollback(context.Background(), tx.writable, nil)
	return translateError(err)
}

// abort ends tx on behalf of the store.
func (tx *Tx) abort(cause error) {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return
	}
	_ = tx.endLocked(cause)
}

// endLocked releases every resource of tx. cause is recorded so later
// operations can report why the transaction ended.
func (tx *Tx) endLocked(cause error) error {
	tx.done = true
	tx.cause = cause
	tx.releaseIteratorsLocked()

	var err error
	if tx.snap != nil {
		err = tx.snap.Close()
	}
	if tx.batch != nil {
		err = tx.batch.Close()
		tx.s.rc.ReleaseWriter()
	}
	tx.s.forget(tx)

	if cause != nil {
		tx.s.opts.metricsCollector.RecordRollback(time.Since(tx.start), cause)
		tx.s.opts.logger.LogRollback(context.Background(), tx.writable, cause)
	}
	return err
}

func (tx *Tx) releaseIteratorsLocked() {
	// Stopping a pull unwinds its scan, which closes its iterators.
	for p := range tx.pulls {
		delete(tx.pulls, p)
		p.stop()
	}
	for it := range tx.iters {
		_ = it.Close()
	}
}

func (tx *Tx) doneErrLocked() error {
	if tx.cause != nil {
		return fmt.Errorf("%w: %w", ErrTxDone, tx.cause)
	}
	return ErrTxDone
}

func (tx *Tx) checkLocked() error {
	if tx.done {
		return tx.doneErrLocked()
	}
	return nil
}

func (tx *Tx) checkWritableLocked() error {
	if err := tx.checkLocked(); err != nil {
		return err
	}
	if !tx.writable {
		return ErrReadOnly
	}
	return nil
}

// failLocked translates err. Constraint violations and backend failures
// roll the transaction back; other errors leave it usable.
func (tx *Tx) failLocked(err error) error {
	err = translateError(err)
	if errors.Is(err, ErrConstraintViolation) || errors.Is(err, ErrIOFailure) {
		_ = tx.endLocked(err)
	}
	return err
}

// readerLocked returns the view operations read from. Iterators opened on
// it are closed when tx ends.
func (tx *Tx) readerLocked() kv.Reader {
	if tx.batch != nil {
		return &trackingReader{tx: tx, r: tx.batch}
	}
	return &trackingReader{tx: tx, r: tx.snap}
}

// do runs fn under the transaction lock.
func (tx *Tx) do(fn func(r kv.Reader) error) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.checkLocked(); err != nil {
		return err
	}
	if err := fn(tx.readerLocked()); err != nil {
		return tx.failLocked(err)
	}
	return nil
}

// write runs fn on the batch under the transaction lock.
func (tx *Tx) write(fn func(b kv.Batch) error) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if err := tx.checkWritableLocked(); err != nil {
		return err
	}
	if err := fn(tx.batch); err != nil {
		return tx.failLocked(err)
	}
	return nil
}

type pull struct {
	stop func()
}

// pull exposes seq as an iterator that takes the transaction lock only
// while it advances, so the loop body may use the transaction too.
func (tx *Tx) pull(seq func(r kv.Reader) iter.Seq2[*model.Record, error]) iter.Seq2[*model.Record, error] {
	return func(yield func(*model.Record, error) bool) {
		tx.mu.Lock()
		if err := tx.checkLocked(); err != nil {
			tx.mu.Unlock()
			yield(nil, err)
			return
		}
		next, stop := iter.Pull2(seq(tx.readerLocked()))
		p := &pull{stop: stop}
		tx.pulls[p] = struct{}{}
		tx.mu.Unlock()

		defer func() {
			tx.mu.Lock()
			defer tx.mu.Unlock()
			if _, ok := tx.pulls[p]; ok {
				delete(tx.pulls, p)
				stop()
			}
		}()

		for {
			tx.mu.Lock()
			if err := tx.checkLocked(); err != nil {
				tx.mu.Unlock()
				yield(nil, err)
				return
			}
			rec, err, ok := next()
			if err != nil {
				err = tx.failLocked(err)
			}
			tx.mu.Unlock()

			if !ok {
				return
			}
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

// trackingReader registers iterators with their transaction. Callers hold
// tx.mu, including scans driven through a pull.
type trackingReader struct {
	tx *Tx
	r  kv.Reader
}

func (t *trackingReader) Get(key []byte) ([]byte, error) {
	return t.r.Get(key)
}

func (t *trackingReader) NewIterator(start, end []byte) (kv.Iterator, error) {
	it, err := t.r.NewIterator(start, end)
	if err != nil {
		return nil, err
	}
	ti := &trackedIterator{Iterator: it, tx: t.tx}
	t.tx.iters[ti] = struct{}{}
	return ti, nil
}

type trackedIterator struct {
	kv.Iterator
	tx     *Tx
	closed bool
}

func (it *trackedIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	delete(it.tx.iters, it)
	return it.Iterator.Close()
}
