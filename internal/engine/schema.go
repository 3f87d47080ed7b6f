package engine

import (
	"errors"
	"fmt"

	"github.com/hupe1980/boxdb/codec"
	"github.com/hupe1980/boxdb/internal/keys"
	"github.com/hupe1980/boxdb/internal/kv"
	"github.com/hupe1980/boxdb/schema"
)

const storedSchemaVersion = 1

type storedProperty struct {
	Name    string       `json:"name"`
	ID      uint32       `json:"id"`
	Type    string       `json:"type"`
	Flags   schema.Flags `json:"flags"`
	Retired bool         `json:"retired,omitempty"`
}

// storedEntity is the persisted property table. Retired properties stay in
// the table so their ids are never handed out again.
type storedEntity struct {
	Version    int              `json:"version"`
	Name       string           `json:"name"`
	ID         uint32           `json:"id"`
	Properties []storedProperty `json:"properties"`
}

func readStored(r kv.Reader, eid uint32) (*storedEntity, error) {
	raw, err := r.Get(keys.Schema(eid))
	if errors.Is(err, kv.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var se storedEntity
	if err := codec.Default.Unmarshal(raw, &se); err != nil {
		return nil, fmt.Errorf("%w: property table of entity %d: %w", ErrCorrupt, eid, err)
	}
	if se.Version != storedSchemaVersion {
		return nil, fmt.Errorf("%w: property table version %d", ErrSchemaMismatch, se.Version)
	}
	return &se, nil
}

func toStored(p *schema.Property) storedProperty {
	return storedProperty{Name: p.Name(), ID: p.ID(), Type: p.Type().String(), Flags: p.Flags()}
}

// reconcile merges the declared entity into the stored table. It reports
// whether the table changed and fails on incompatible changes.
func reconcile(stored *storedEntity, ent *schema.Entity) (*storedEntity, bool, error) {
	if stored == nil {
		se := &storedEntity{Version: storedSchemaVersion, Name: ent.Name(), ID: ent.ID()}
		for _, p := range ent.AllProperties() {
			se.Properties = append(se.Properties, toStored(p))
		}
		return se, true, nil
	}

	mismatch := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", ErrSchemaMismatch, ent.Name(), fmt.Sprintf(format, args...))
	}

	if stored.Name != ent.Name() {
		return nil, false, mismatch("entity id %d is stored as %q", ent.ID(), stored.Name)
	}

	merged := &storedEntity{Version: storedSchemaVersion, Name: stored.Name, ID: stored.ID}
	merged.Properties = append(merged.Properties, stored.Properties...)
	changed := false

	byID := make(map[uint32]int, len(merged.Properties))
	for i, sp := range merged.Properties {
		byID[sp.ID] = i
		if sp.Flags.Has(schema.ID) && !sp.Retired && sp.ID != ent.IDProperty().ID() {
			return nil, false, mismatch("identifier property changed from %q(%d) to %q(%d)",
				sp.Name, sp.ID, ent.IDProperty().Name(), ent.IDProperty().ID())
		}
	}

	for _, p := range ent.AllProperties() {
		i, ok := byID[p.ID()]
		if !ok {
			merged.Properties = append(merged.Properties, toStored(p))
			changed = true
			continue
		}
		sp := merged.Properties[i]
		switch {
		case sp.Retired:
			return nil, false, mismatch("property id %d (%q) was retired and cannot be reused", sp.ID, sp.Name)
		case sp.Name != p.Name():
			return nil, false, mismatch("property id %d renamed from %q to %q", sp.ID, sp.Name, p.Name())
		case sp.Type != p.Type().String():
			return nil, false, mismatch("property %q changed type from %s to %s", p.Name(), sp.Type, p.Type())
		case sp.Flags != p.Flags():
			return nil, false, mismatch("property %q changed flags from %s to %s", p.Name(), sp.Flags, p.Flags())
		}
	}

	for i, sp := range merged.Properties {
		if sp.Retired {
			continue
		}
		if _, declared := ent.PropertyByID(sp.ID); !declared {
			merged.Properties[i].Retired = true
			changed = true
		}
	}
	return merged, changed, nil
}
