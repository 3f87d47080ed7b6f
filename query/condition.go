package query

import (
	"fmt"
	"strings"

	"github.com/hupe1980/boxdb/model"
	"github.com/hupe1980/boxdb/schema"
)

// Op is a condition operator.
type Op uint8

const (
	OpEqual Op = iota + 1
	OpNotEqual
	OpLess
	OpLessOrEqual
	OpGreater
	OpGreaterOrEqual
	OpBetween
	OpIn
	OpStartsWith
	OpEndsWith
	OpContains
	OpIsNull
	OpNotNull
)

// String returns the operator name.
func (op Op) String() string {
	switch op {
	case OpEqual:
		return "eq"
	case OpNotEqual:
		return "ne"
	case OpLess:
		return "lt"
	case OpLessOrEqual:
		return "lte"
	case OpGreater:
		return "gt"
	case OpGreaterOrEqual:
		return "gte"
	case OpBetween:
		return "between"
	case OpIn:
		return "in"
	case OpStartsWith:
		return "startsWith"
	case OpEndsWith:
		return "endsWith"
	case OpContains:
		return "contains"
	case OpIsNull:
		return "isNull"
	case OpNotNull:
		return "notNull"
	default:
		return "invalid"
	}
}

// Condition is one predicate on a property. Conditions are resolved against
// the entity when the query is built.
type Condition struct {
	Property string
	Op       Op
	Values   []model.Value
	// Fold compares strings case-insensitively.
	Fold bool
}

// ConditionOption modifies a condition.
type ConditionOption func(*Condition)

// CaseInsensitive makes a string condition ignore case.
func CaseInsensitive() ConditionOption {
	return func(c *Condition) { c.Fold = true }
}

func newCondition(prop string, op Op, values []model.Value, opts []ConditionOption) Condition {
	c := Condition{Property: prop, Op: op, Values: values}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Equal matches records whose property equals v.
func Equal(prop string, v model.Value, opts ...ConditionOption) Condition {
	return newCondition(prop, OpEqual, []model.Value{v}, opts)
}

// NotEqual matches records whose property differs from v, including records
// where it is null.
func NotEqual(prop string, v model.Value, opts ...ConditionOption) Condition {
	return newCondition(prop, OpNotEqual, []model.Value{v}, opts)
}

// Less matches values strictly below v.
func Less(prop string, v model.Value, opts ...ConditionOption) Condition {
	return newCondition(prop, OpLess, []model.Value{v}, opts)
}

// LessOrEqual matches values at or below v.
func LessOrEqual(prop string, v model.Value, opts ...ConditionOption) Condition {
	return newCondition(prop, OpLessOrEqual, []model.Value{v}, opts)
}

// Greater matches values strictly above v.
func Greater(prop string, v model.Value, opts ...ConditionOption) Condition {
	return newCondition(prop, OpGreater, []model.Value{v}, opts)
}

// GreaterOrEqual matches values at or above v.
func GreaterOrEqual(prop string, v model.Value, opts ...ConditionOption) Condition {
	return newCondition(prop, OpGreaterOrEqual, []model.Value{v}, opts)
}

// Between matches values in [lo, hi].
func Between(prop string, lo, hi model.Value, opts ...ConditionOption) Condition {
	return newCondition(prop, OpBetween, []model.Value{lo, hi}, opts)
}

// In matches values equal to any of values.
func In(prop string, values []model.Value, opts ...ConditionOption) Condition {
	return newCondition(prop, OpIn, values, opts)
}

// StartsWith matches strings with the given prefix.
func StartsWith(prop, prefix string, opts ...ConditionOption) Condition {
	return newCondition(prop, OpStartsWith, []model.Value{model.String(prefix)}, opts)
}

// EndsWith matches strings with the given suffix.
func EndsWith(prop, suffix string, opts ...ConditionOption) Condition {
	return newCondition(prop, OpEndsWith, []model.Value{model.String(suffix)}, opts)
}

// Contains matches strings containing sub.
func Contains(prop, sub string, opts ...ConditionOption) Condition {
	return newCondition(prop, OpContains, []model.Value{model.String(sub)}, opts)
}

// IsNull matches records where the property is not set.
func IsNull(prop string) Condition {
	return Condition{Property: prop, Op: OpIsNull}
}

// NotNull matches records where the property is set.
func NotNull(prop string) Condition {
	return Condition{Property: prop, Op: OpNotNull}
}

// predicate is a Condition resolved against an entity.
type predicate struct {
	prop   *schema.Property
	op     Op
	values []model.Value
	fold   bool
}

func compile(ent *schema.Entity, c Condition) (predicate, error) {
	p, ok := ent.PropertyByName(c.Property)
	if !ok {
		return predicate{}, fmt.Errorf("%w: %s has no property %q", ErrInvalidQuery, ent.Name(), c.Property)
	}

	want := 1
	switch c.Op {
	case OpBetween:
		want = 2
	case OpIn:
		want = -1
	case OpIsNull, OpNotNull:
		want = 0
	case OpEqual, OpNotEqual, OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual,
		OpStartsWith, OpEndsWith, OpContains:
	default:
		return predicate{}, fmt.Errorf("%w: unknown operator %d", ErrInvalidQuery, c.Op)
	}
	if want >= 0 && len(c.Values) != want {
		return predicate{}, fmt.Errorf("%w: %s on %q takes %d values, got %d", ErrInvalidQuery, c.Op, p.Name(), want, len(c.Values))
	}
	if want < 0 && len(c.Values) == 0 {
		return predicate{}, fmt.Errorf("%w: %s on %q needs at least one value", ErrInvalidQuery, c.Op, p.Name())
	}

	isString := p.Type() == schema.String
	switch c.Op {
	case OpStartsWith, OpEndsWith, OpContains:
		if !isString {
			return predicate{}, fmt.Errorf("%w: %s needs a string property, %q is %s", ErrInvalidQuery, c.Op, p.Name(), p.Type())
		}
	}
	if c.Fold && !isString {
		return predicate{}, fmt.Errorf("%w: case-insensitive %s on non-string property %q", ErrInvalidQuery, c.Op, p.Name())
	}

	kind := p.Type().Kind()
	values := make([]model.Value, len(c.Values))
	for i, v := range c.Values {
		if v.IsNull() {
			return predicate{}, fmt.Errorf("%w: %s on %q with null; use IsNull", ErrInvalidQuery, c.Op, p.Name())
		}
		if v.Kind() != kind {
			return predicate{}, fmt.Errorf("%w: %q is %s, got %s value", ErrInvalidQuery, p.Name(), p.Type(), v.Kind())
		}
		if c.Fold {
			v = model.String(strings.ToLower(v.StringValue()))
		}
		values[i] = v
	}

	return predicate{prop: p, op: c.Op, values: values, fold: c.Fold}, nil
}

// value reads the property from rec; the identifier comes from rec.ID.
func (p *predicate) value(rec *model.Record) model.Value {
	return propertyValue(p.prop, rec)
}

func propertyValue(p *schema.Property, rec *model.Record) model.Value {
	if p.IsID() {
		return model.Int(int64(rec.ID)) //nolint:gosec
	}
	return rec.Get(p.Name())
}

func (p *predicate) match(rec *model.Record) bool {
	v := p.value(rec)

	switch p.op {
	case OpIsNull:
		return v.IsNull()
	case OpNotNull:
		return !v.IsNull()
	case OpNotEqual:
		return v.IsNull() || p.compare(v, p.values[0]) != 0
	}

	if v.IsNull() {
		return false
	}
	if p.fold {
		v = model.String(strings.ToLower(v.StringValue()))
	}

	switch p.op {
	case OpEqual:
		return model.Compare(v, p.values[0]) == 0
	case OpLess:
		return model.Compare(v, p.values[0]) < 0
	case OpLessOrEqual:
		return model.Compare(v, p.values[0]) <= 0
	case OpGreater:
		return model.Compare(v, p.values[0]) > 0
	case OpGreaterOrEqual:
		return model.Compare(v, p.values[0]) >= 0
	case OpBetween:
		return model.Compare(v, p.values[0]) >= 0 && model.Compare(v, p.values[1]) <= 0
	case OpIn:
		for _, want := range p.values {
			if model.Compare(v, want) == 0 {
				return true
			}
		}
		return false
	case OpStartsWith:
		return strings.HasPrefix(v.StringValue(), p.values[0].StringValue())
	case OpEndsWith:
		return strings.HasSuffix(v.StringValue(), p.values[0].StringValue())
	case OpContains:
		return strings.Contains(v.StringValue(), p.values[0].StringValue())
	default:
		return false
	}
}

func (p *predicate) compare(v, want model.Value) int {
	if p.fold {
		v = model.String(strings.ToLower(v.StringValue()))
	}
	return model.Compare(v, want)
}

// indexable reports whether the predicate can be answered by Lookup.
func (p *predicate) indexable() bool {
	if p.fold {
		return false
	}
	if p.op != OpEqual && p.op != OpIn {
		return false
	}
	return p.prop.IsIndexed() || p.prop.IsID()
}
