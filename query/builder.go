package query

import (
	"errors"
	"fmt"

	"github.com/hupe1980/boxdb/schema"
)

var (
	// ErrInvalidQuery is returned by Build for conditions or orderings that do
	// not fit the entity, and when a query runs against a source of another
	// entity.
	ErrInvalidQuery = errors.New("query: invalid query")

	// ErrAlreadyBuilt is returned when Build is called twice on one Builder.
	ErrAlreadyBuilt = errors.New("query: builder already built")

	// ErrAlreadyExecuted is returned when a Query is executed a second time.
	ErrAlreadyExecuted = errors.New("query: already executed")
)

// Flag modifies an ordering.
type Flag uint8

const (
	// Descending reverses the natural order of the property.
	Descending Flag = 1 << iota
	// NullsLast moves records without a value to the end.
	NullsLast
)

type ordering struct {
	prop  *schema.Property
	flags Flag
}

type orderSpec struct {
	prop  string
	flags Flag
}

// Builder assembles a query. It is not safe for concurrent use.
type Builder struct {
	ent    *schema.Entity
	conds  []Condition
	orders []orderSpec
	offset int
	limit  int
	built  bool
}

// New starts a query over ent.
func New(ent *schema.Entity) *Builder {
	return &Builder{ent: ent}
}

// Where adds conditions. All conditions must hold for a record to match.
func (b *Builder) Where(conds ...Condition) *Builder {
	b.conds = append(b.conds, conds...)
	return b
}

// OrderBy adds a sort key. Earlier keys take precedence.
func (b *Builder) OrderBy(prop string, flags ...Flag) *Builder {
	var f Flag
	for _, fl := range flags {
		f |= fl
	}
	b.orders = append(b.orders, orderSpec{prop: prop, flags: f})
	return b
}

// Offset skips the first n results of Find, FindIDs and First.
func (b *Builder) Offset(n int) *Builder {
	b.offset = n
	return b
}

// Limit caps the results of Find and FindIDs. 0 means no limit.
func (b *Builder) Limit(n int) *Builder {
	b.limit = n
	return b
}

// Build validates the query against the entity.
func (b *Builder) Build() (*Query, error) {
	if b.built {
		return nil, ErrAlreadyBuilt
	}
	b.built = true

	if b.ent == nil {
		return nil, fmt.Errorf("%w: nil entity", ErrInvalidQuery)
	}
	if b.offset < 0 || b.limit < 0 {
		return nil, fmt.Errorf("%w: negative offset or limit", ErrInvalidQuery)
	}

	q := &Query{ent: b.ent, offset: b.offset, limit: b.limit}
	for _, c := range b.conds {
		p, err := compile(b.ent, c)
		if err != nil {
			return nil, err
		}
		q.preds = append(q.preds, p)
	}
	for _, o := range b.orders {
		p, ok := b.ent.PropertyByName(o.prop)
		if !ok {
			return nil, fmt.Errorf("%w: cannot order by unknown property %q", ErrInvalidQuery, o.prop)
		}
		q.orders = append(q.orders, ordering{prop: p, flags: o.flags})
	}
	return q, nil
}
