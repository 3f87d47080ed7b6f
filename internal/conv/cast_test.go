package conv

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUint64ToUint32(t *testing.T) {
	got, err := Uint64ToUint32(math.MaxUint32)
	require.NoError(t, err)
	assert.Equal(t, uint32(math.MaxUint32), got)

	_, err = Uint64ToUint32(math.MaxUint32 + 1)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestUint64ToInt64(t *testing.T) {
	got, err := Uint64ToInt64(math.MaxInt64)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), got)

	_, err = Uint64ToInt64(math.MaxInt64 + 1)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestUint64ToInt(t *testing.T) {
	got, err := Uint64ToInt(42)
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	_, err = Uint64ToInt(math.MaxUint64)
	require.ErrorIs(t, err, ErrOverflow)
}

func TestAddDelta(t *testing.T) {
	tests := []struct {
		name  string
		n     uint64
		delta int
		want  uint64
		err   bool
	}{
		{name: "increment", n: 1, delta: 1, want: 2},
		{name: "decrement", n: 5, delta: -5, want: 0},
		{name: "underflow", n: 0, delta: -1, err: true},
		{name: "overflow", n: math.MaxUint64, delta: 1, err: true},
		{name: "min int", n: math.MaxUint64, delta: math.MinInt, want: math.MaxUint64 - uint64(math.MaxInt) - 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := AddDelta(tc.n, tc.delta)
			if tc.err {
				require.ErrorIs(t, err, ErrOverflow)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
