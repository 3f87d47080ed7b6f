package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/boxdb/model"
)

var (
	// ErrInvalidSchema is returned when an entity declaration is malformed.
	ErrInvalidSchema = errors.New("invalid schema")

	// ErrInvalidValue is returned when a record does not fit its entity.
	ErrInvalidValue = errors.New("invalid value")
)

// Flags are property attributes.
type Flags uint8

const (
	// ID marks the identifier property. Exactly one per entity.
	ID Flags = 1 << iota
	// Unique rejects two live records with the same non-null value.
	Unique
	// Indexed maintains a secondary index for equality lookups.
	Indexed
)

// Has reports whether all bits of f2 are set.
func (f Flags) Has(f2 Flags) bool { return f&f2 == f2 }

func (f Flags) String() string {
	var parts []string
	if f.Has(ID) {
		parts = append(parts, "id")
	}
	if f.Has(Unique) {
		parts = append(parts, "unique")
	}
	if f.Has(Indexed) {
		parts = append(parts, "indexed")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Property describes one typed field of an entity.
// Properties are immutable once their entity is built.
type Property struct {
	name    string
	id      uint32
	typ     Type
	flags   Flags
	ordinal int
}

// NewProperty declares a property. The ordinal is assigned by NewEntity.
func NewProperty(name string, id uint32, typ Type, flags ...Flags) Property {
	var f Flags
	for _, fl := range flags {
		f |= fl
	}
	return Property{name: name, id: id, typ: typ, flags: f}
}

// Name returns the property name.
func (p *Property) Name() string { return p.name }

// ID returns the stable property id.
func (p *Property) ID() uint32 { return p.id }

// Type returns the semantic type.
func (p *Property) Type() Type { return p.typ }

// Flags returns the attribute bits.
func (p *Property) Flags() Flags { return p.flags }

// Ordinal returns the declaration index.
func (p *Property) Ordinal() int { return p.ordinal }

// IsID reports whether this is the identifier property.
func (p *Property) IsID() bool { return p.flags.Has(ID) }

// IsUnique reports whether values must be unique.
func (p *Property) IsUnique() bool { return p.flags.Has(Unique) }

// IsIndexed reports whether the property has a secondary index. Unique
// properties are always indexed.
func (p *Property) IsIndexed() bool { return p.flags.Has(Indexed) || p.flags.Has(Unique) }

func (p *Property) String() string {
	return fmt.Sprintf("%s(%d %s %s)", p.name, p.id, p.typ, p.flags)
}

// Entity is the property table of one record type.
type Entity struct {
	name   string
	id     uint32
	props  []*Property
	byName map[string]*Property
	byID   map[uint32]*Property
	idProp *Property
}

// NewEntity builds an entity from its declaration.
func NewEntity(name string, id uint32, props ...Property) (*Entity, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: entity name is empty", ErrInvalidSchema)
	}
	if id == 0 {
		return nil, fmt.Errorf("%w: entity %q has id 0", ErrInvalidSchema, name)
	}

	e := &Entity{
		name:   name,
		id:     id,
		props:  make([]*Property, 0, len(props)),
		byName: make(map[string]*Property, len(props)),
		byID:   make(map[uint32]*Property, len(props)),
	}

	for i := range props {
		p := props[i]
		p.ordinal = i

		if p.name == "" {
			return nil, fmt.Errorf("%w: entity %q: property %d has no name", ErrInvalidSchema, name, i)
		}
		if p.id == 0 {
			return nil, fmt.Errorf("%w: entity %q: property %q has id 0", ErrInvalidSchema, name, p.name)
		}
		if !p.typ.Valid() {
			return nil, fmt.Errorf("%w: entity %q: property %q has unknown type", ErrInvalidSchema, name, p.name)
		}
		if _, dup := e.byName[p.name]; dup {
			return nil, fmt.Errorf("%w: entity %q: duplicate property name %q", ErrInvalidSchema, name, p.name)
		}
		if other, dup := e.byID[p.id]; dup {
			return nil, fmt.Errorf("%w: entity %q: property id %d used by %q and %q", ErrInvalidSchema, name, p.id, other.name, p.name)
		}

		if p.IsID() {
			if e.idProp != nil {
				return nil, fmt.Errorf("%w: entity %q: more than one identifier (%q, %q)", ErrInvalidSchema, name, e.idProp.name, p.name)
			}
			if p.typ != Int64 {
				return nil, fmt.Errorf("%w: entity %q: identifier %q must be int64", ErrInvalidSchema, name, p.name)
			}
			if p.flags&(Unique|Indexed) != 0 {
				return nil, fmt.Errorf("%w: entity %q: identifier %q cannot be unique or indexed", ErrInvalidSchema, name, p.name)
			}
		}

		pp := &p
		e.props = append(e.props, pp)
		e.byName[p.name] = pp
		e.byID[p.id] = pp
		if pp.IsID() {
			e.idProp = pp
		}
	}

	if e.idProp == nil {
		return nil, fmt.Errorf("%w: entity %q has no identifier property", ErrInvalidSchema, name)
	}

	return e, nil
}

// MustEntity is like NewEntity but panics on error.
// It is intended for package-level declarations.
func MustEntity(name string, id uint32, props ...Property) *Entity {
	e, err := NewEntity(name, id, props...)
	if err != nil {
		panic(err)
	}
	return e
}

// Name returns the entity name.
func (e *Entity) Name() string { return e.name }

// ID returns the stable entity id.
func (e *Entity) ID() uint32 { return e.id }

// AllProperties returns the properties in declaration order.
// The returned slice must not be modified.
func (e *Entity) AllProperties() []*Property { return e.props }

// IDProperty returns the identifier property.
func (e *Entity) IDProperty() *Property { return e.idProp }

// PropertyByName looks up a property by name.
func (e *Entity) PropertyByName(name string) (*Property, bool) {
	p, ok := e.byName[name]
	return p, ok
}

// PropertyByID looks up a property by id.
func (e *Entity) PropertyByID(id uint32) (*Property, bool) {
	p, ok := e.byID[id]
	return p, ok
}

// IndexedProperties returns the unique and indexed properties in declaration order.
func (e *Entity) IndexedProperties() []*Property {
	var out []*Property
	for _, p := range e.props {
		if p.IsIndexed() {
			out = append(out, p)
		}
	}
	return out
}

func (e *Entity) String() string {
	return fmt.Sprintf("%s(%d)", e.name, e.id)
}

// Validate checks that every value of r names a known, non-identifier
// property and has the property's kind.
func (e *Entity) Validate(r *model.Record) error {
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidValue)
	}
	for name, v := range r.Values {
		p, ok := e.byName[name]
		if !ok {
			return fmt.Errorf("%w: %s has no property %q", ErrInvalidValue, e.name, name)
		}
		if p.IsID() {
			return fmt.Errorf("%w: %s.%s is the identifier; set Record.ID instead", ErrInvalidValue, e.name, name)
		}
		if !p.typ.Accepts(v) {
			return fmt.Errorf("%w: %s.%s expects %s, got %s", ErrInvalidValue, e.name, name, p.typ, v.Kind())
		}
	}
	return nil
}
