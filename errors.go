package boxdb

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/boxdb/internal/engine"
	"github.com/hupe1980/boxdb/internal/kv"
	"github.com/hupe1980/boxdb/internal/lockfile"
	"github.com/hupe1980/boxdb/query"
	"github.com/hupe1980/boxdb/schema"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("boxdb: not found")

	// ErrConstraintViolation is returned when a unique property value is
	// already owned by another record. Use errors.As with *ConstraintError
	// for the details.
	ErrConstraintViolation = errors.New("boxdb: constraint violation")

	// ErrInvalidState is returned for operations that are not allowed in the
	// current state of a store, transaction or query.
	ErrInvalidState = errors.New("boxdb: invalid state")

	// ErrIOFailure is returned when the storage backend fails. The
	// transaction that observed it is rolled back.
	ErrIOFailure = errors.New("boxdb: i/o failure")

	// ErrSchemaMismatch is returned by Open when a declared entity conflicts
	// with the one stored in the directory.
	ErrSchemaMismatch = errors.New("boxdb: schema mismatch")

	// ErrInvalidArgument is returned for malformed records, entities and
	// queries.
	ErrInvalidArgument = errors.New("boxdb: invalid argument")
)

var (
	// ErrReadOnly is returned by write operations on a read transaction.
	ErrReadOnly = fmt.Errorf("%w: transaction is read-only", ErrInvalidState)

	// ErrTxDone is returned by operations on a committed or rolled back
	// transaction.
	ErrTxDone = fmt.Errorf("%w: transaction has ended", ErrInvalidState)

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = fmt.Errorf("%w: store is closed", ErrInvalidState)
)

// ConstraintError describes a unique constraint violation.
type ConstraintError = engine.ConstraintError

var publicErrors = []error{
	ErrNotFound,
	ErrConstraintViolation,
	ErrInvalidState,
	ErrIOFailure,
	ErrSchemaMismatch,
	ErrInvalidArgument,
}

func isPublic(err error) bool {
	for _, target := range publicErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// translateError maps internal errors onto the exported sentinels. The cause
// stays reachable through errors.Is and errors.As.
func translateError(err error) error {
	if err == nil || isPublic(err) {
		return err
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, engine.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, engine.ErrConstraint):
		return fmt.Errorf("%w: %w", ErrConstraintViolation, err)
	case errors.Is(err, engine.ErrSchemaMismatch):
		return fmt.Errorf("%w: %w", ErrSchemaMismatch, err)
	case errors.Is(err, engine.ErrInvalidArgument),
		errors.Is(err, engine.ErrUnknownEntity),
		errors.Is(err, schema.ErrInvalidSchema),
		errors.Is(err, schema.ErrInvalidValue),
		errors.Is(err, query.ErrInvalidQuery):
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	case errors.Is(err, kv.ErrClosed):
		return fmt.Errorf("%w: %w", ErrClosed, err)
	case errors.Is(err, kv.ErrBusy),
		errors.Is(err, kv.ErrBatchDone),
		errors.Is(err, query.ErrAlreadyBuilt),
		errors.Is(err, query.ErrAlreadyExecuted),
		errors.Is(err, lockfile.ErrLocked):
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}

	// Corruption and everything the backends report.
	return fmt.Errorf("%w: %w", ErrIOFailure, err)
}
