package resource

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Writer(t *testing.T) {
	c := NewController(Config{})

	require.NoError(t, c.AcquireWriter(t.Context()))
	assert.False(t, c.TryAcquireWriter())

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, c.AcquireWriter(ctx), context.DeadlineExceeded)

	var wg sync.WaitGroup
	acquired := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := c.AcquireWriter(context.Background()); err == nil {
			close(acquired)
			c.ReleaseWriter()
		}
	}()

	c.ReleaseWriter()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiting writer was not admitted")
	}
	wg.Wait()

	assert.True(t, c.TryAcquireWriter())
	c.ReleaseWriter()
}

func TestController_Background(t *testing.T) {
	c := NewController(Config{MaxBackgroundWorkers: 2})

	require.NoError(t, c.AcquireBackground(t.Context()))
	require.NoError(t, c.AcquireBackground(t.Context()))
	assert.False(t, c.TryAcquireBackground())

	c.ReleaseBackground()
	assert.True(t, c.TryAcquireBackground())
	c.ReleaseBackground()
	c.ReleaseBackground()

	assert.Equal(t, int64(1), NewController(Config{}).Config().MaxBackgroundWorkers)
}

func TestController_IO(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1000})

	// Larger than the burst is split rather than rejected.
	require.NoError(t, c.AcquireIO(t.Context(), 1500))
	assert.False(t, c.TryAcquireIO(1000))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	require.Error(t, c.AcquireIO(ctx, 1000))

	unlimited := NewController(Config{})
	assert.True(t, unlimited.TryAcquireIO(1<<40))
	require.NoError(t, unlimited.AcquireIO(t.Context(), 1<<30))
}

func TestController_NilSafe(t *testing.T) {
	var c *Controller

	require.NoError(t, c.AcquireWriter(t.Context()))
	assert.True(t, c.TryAcquireWriter())
	c.ReleaseWriter()
	require.NoError(t, c.AcquireBackground(t.Context()))
	assert.True(t, c.TryAcquireBackground())
	c.ReleaseBackground()
	require.NoError(t, c.AcquireIO(t.Context(), 100))
	assert.True(t, c.TryAcquireIO(100))
	assert.Equal(t, Config{}, c.Config())
}

func TestRateLimitedWriter(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 10000})

	var buf bytes.Buffer
	w := NewRateLimitedWriter(t.Context(), &buf, c)

	n, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", buf.String())
}

func TestRateLimitedReader(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 10000})

	r := NewRateLimitedReader(t.Context(), bytes.NewReader([]byte("hello world")), c)

	buf := make([]byte, 5)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))
}

func TestRateLimitedReader_ContextCanceled(t *testing.T) {
	c := NewController(Config{IOLimitBytesPerSec: 1})
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	r := NewRateLimitedReader(ctx, bytes.NewReader([]byte("hello world")), c)

	_, err := r.Read(make([]byte, 1000))
	require.ErrorIs(t, err, context.Canceled)
}
