package model

import (
	"maps"
	"slices"
)

// HasIdentifier is implemented by anything carrying a store-assigned id.
//
// The store assigns the id on insert when Identifier returns 0.
type HasIdentifier interface {
	Identifier() uint64
	SetIdentifier(id uint64)
}

// Record is one decoded instance of an entity.
//
// Values is keyed by property name and never contains the identifier property.
// A missing key reads as Null.
type Record struct {
	ID     uint64
	Values map[string]Value
}

var _ HasIdentifier = (*Record)(nil)

// NewRecord creates an empty record with the given id.
func NewRecord(id uint64) *Record {
	return &Record{ID: id, Values: make(map[string]Value)}
}

// Identifier implements HasIdentifier.
func (r *Record) Identifier() uint64 { return r.ID }

// SetIdentifier implements HasIdentifier.
func (r *Record) SetIdentifier(id uint64) { r.ID = id }

// Get returns the value of a property, or Null if it is not set.
func (r *Record) Get(name string) Value {
	if r == nil || r.Values == nil {
		return Value{}
	}
	return r.Values[name]
}

// Set assigns a property value. Setting Null removes the property.
func (r *Record) Set(name string, v Value) *Record {
	if v.IsNull() {
		delete(r.Values, name)
		return r
	}
	if r.Values == nil {
		r.Values = make(map[string]Value)
	}
	r.Values[name] = v
	return r
}

// Names returns the set property names in lexical order.
func (r *Record) Names() []string {
	return slices.Sorted(maps.Keys(r.Values))
}

// Clone returns a deep copy.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := &Record{ID: r.ID, Values: make(map[string]Value, len(r.Values))}
	for k, v := range r.Values {
		out.Values[k] = v.clone()
	}
	return out
}

// Equal reports whether both records have the same id and property values.
// Explicit Null entries compare equal to missing ones.
func (r *Record) Equal(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.ID != o.ID {
		return false
	}
	for k, v := range r.Values {
		if !v.Equal(o.Get(k)) {
			return false
		}
	}
	for k, v := range o.Values {
		if !v.Equal(r.Get(k)) {
			return false
		}
	}
	return true
}
