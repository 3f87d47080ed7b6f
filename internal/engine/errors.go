package engine

import (
	"errors"
	"fmt"

	"github.com/hupe1980/boxdb/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument is returned for records that do not fit their entity.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrUnknownEntity is returned for entities the engine was not opened with.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrSchemaMismatch is returned by Open when a declared property table
	// conflicts with the one stored.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrCorrupt is returned when stored bytes cannot be decoded.
	ErrCorrupt = errors.New("data corruption detected")

	// ErrConstraint is the sentinel matched by every *ConstraintError.
	ErrConstraint = errors.New("constraint violation")
)

// ConstraintError reports a unique value already owned by another record.
type ConstraintError struct {
	Entity     string
	Property   string
	Value      model.Value
	ConflictID uint64
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("unique constraint %s.%s: value %s already used by id %d",
		e.Entity, e.Property, e.Value, e.ConflictID)
}

// Is reports whether target is ErrConstraint.
func (e *ConstraintError) Is(target error) bool { return target == ErrConstraint }
