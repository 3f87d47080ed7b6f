package conv

import (
	"errors"
	"fmt"
	"math"
)

// ErrOverflow is returned when a value does not fit the target type.
var ErrOverflow = errors.New("integer overflow")

// Uint64ToUint32 converts v, failing when it exceeds math.MaxUint32.
func Uint64ToUint32(v uint64) (uint32, error) {
	if v > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d does not fit uint32", ErrOverflow, v)
	}
	return uint32(v), nil
}

// Uint64ToInt64 converts v, failing when it exceeds math.MaxInt64.
func Uint64ToInt64(v uint64) (int64, error) {
	if v > math.MaxInt64 {
		return 0, fmt.Errorf("%w: %d does not fit int64", ErrOverflow, v)
	}
	return int64(v), nil
}

// Uint64ToInt converts v, failing when it exceeds math.MaxInt.
func Uint64ToInt(v uint64) (int, error) {
	if v > uint64(math.MaxInt) {
		return 0, fmt.Errorf("%w: %d does not fit int", ErrOverflow, v)
	}
	return int(v), nil
}

// AddDelta returns n+delta, failing when the result would leave the uint64
// range.
func AddDelta(n uint64, delta int) (uint64, error) {
	if delta >= 0 {
		d := uint64(delta)
		if n > math.MaxUint64-d {
			return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, n, delta)
		}
		return n + d, nil
	}
	// -(delta+1)+1 avoids overflowing on math.MinInt.
	d := uint64(-(delta + 1)) + 1
	if n < d {
		return 0, fmt.Errorf("%w: %d - %d", ErrOverflow, n, d)
	}
	return n - d, nil
}
