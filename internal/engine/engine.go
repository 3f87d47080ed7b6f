package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/hupe1980/boxdb/codec"
	"github.com/hupe1980/boxdb/internal/keys"
	"github.com/hupe1980/boxdb/internal/kv"
	"github.com/hupe1980/boxdb/schema"
)

// Engine maps records of declared entities onto a kv.Store.
type Engine struct {
	store       kv.Store
	logger      *slog.Logger
	compression codec.Compression

	entities []*entityState
	byID     map[uint32]*entityState
	byName   map[string]*entityState
}

type entityState struct {
	entity *schema.Entity

	mu  sync.Mutex
	seq uint64 // highest identifier issued or observed
}

// next issues a fresh identifier.
func (s *entityState) next() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seq == math.MaxUint64 {
		return 0, fmt.Errorf("%w: identifier space of %s exhausted", ErrInvalidArgument, s.entity.Name())
	}
	s.seq++
	return s.seq, nil
}

// observe raises the sequence to at least id and returns the new value.
func (s *entityState) observe(id uint64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = max(s.seq, id)
	return s.seq
}

func (s *entityState) current() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithCompression sets the compression applied to new record values.
// Existing values are read regardless of how they were compressed.
func WithCompression(c codec.Compression) Option {
	return func(e *Engine) {
		e.compression = c
	}
}

// Open registers entities against store. Each entity's property table is
// compared with the stored one and the merged table is written back.
func Open(store kv.Store, entities []*schema.Entity, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:  store,
		logger: slog.New(slog.DiscardHandler),
		byID:   make(map[uint32]*entityState, len(entities)),
		byName: make(map[string]*entityState, len(entities)),
	}
	for _, opt := range opts {
		opt(e)
	}

	if len(entities) == 0 {
		return nil, fmt.Errorf("%w: no entities declared", schema.ErrInvalidSchema)
	}
	for _, ent := range entities {
		if ent == nil {
			return nil, fmt.Errorf("%w: nil entity", schema.ErrInvalidSchema)
		}
		if _, dup := e.byID[ent.ID()]; dup {
			return nil, fmt.Errorf("%w: duplicate entity id %d", schema.ErrInvalidSchema, ent.ID())
		}
		if _, dup := e.byName[ent.Name()]; dup {
			return nil, fmt.Errorf("%w: duplicate entity name %q", schema.ErrInvalidSchema, ent.Name())
		}
		st := &entityState{entity: ent}
		e.entities = append(e.entities, st)
		e.byID[ent.ID()] = st
		e.byName[ent.Name()] = st
	}

	if err := e.loadSchemas(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) loadSchemas() error {
	snap, err := e.store.NewSnapshot()
	if err != nil {
		return err
	}
	defer snap.Close() //nolint:errcheck

	type update struct {
		eid    uint32
		stored *storedEntity
	}
	var updates []update

	for _, st := range e.entities {
		ent := st.entity

		stored, err := readStored(snap, ent.ID())
		if err != nil {
			return err
		}
		merged, changed, err := reconcile(stored, ent)
		if err != nil {
			return err
		}
		if changed {
			updates = append(updates, update{eid: ent.ID(), stored: merged})
			e.logger.Info("property table stored",
				slog.String("entity", ent.Name()),
				slog.Int("properties", len(merged.Properties)),
				slog.Bool("created", stored == nil))
		}

		seq, err := readUint64(snap, keys.Sequence(ent.ID()))
		if err != nil {
			return err
		}
		st.seq = seq
	}

	if len(updates) == 0 {
		return nil
	}

	b, err := e.store.NewBatch()
	if err != nil {
		return err
	}
	defer b.Close() //nolint:errcheck

	for _, u := range updates {
		data, err := codec.Default.Marshal(u.stored)
		if err != nil {
			return err
		}
		if err := b.Put(keys.Schema(u.eid), data); err != nil {
			return err
		}
	}
	return b.Commit()
}

// Store returns the underlying kv store.
func (e *Engine) Store() kv.Store { return e.store }

// Entities returns the registered entities in registration order.
func (e *Engine) Entities() []*schema.Entity {
	out := make([]*schema.Entity, len(e.entities))
	for i, st := range e.entities {
		out[i] = st.entity
	}
	return out
}

// Entity looks up a registered entity by name.
func (e *Engine) Entity(name string) (*schema.Entity, bool) {
	st, ok := e.byName[name]
	if !ok {
		return nil, false
	}
	return st.entity, true
}

// Sequence returns the highest identifier issued or observed for ent in
// this process.
func (e *Engine) Sequence(ent *schema.Entity) (uint64, error) {
	st, err := e.state(ent)
	if err != nil {
		return 0, err
	}
	return st.current(), nil
}

func (e *Engine) state(ent *schema.Entity) (*entityState, error) {
	if ent == nil {
		return nil, fmt.Errorf("%w: nil entity", ErrUnknownEntity)
	}
	st, ok := e.byID[ent.ID()]
	if !ok || st.entity != ent {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, ent)
	}
	return st, nil
}

func readUint64(r kv.Reader, key []byte) (uint64, error) {
	raw, err := r.Get(key)
	if errors.Is(err, kv.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := keys.Uint64(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return v, nil
}
