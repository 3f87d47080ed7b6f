package mvcc

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func set(k, v string) Mutation { return Mutation{Key: []byte(k), Value: []byte(v)} }
func del(k string) Mutation    { return Mutation{Key: []byte(k), Delete: true} }

func collect(idx *Index, lower, upper []byte, lsn uint64) []string {
	var out []string
	for k, v := range idx.Scan(lower, upper, lsn) {
		out = append(out, string(k)+"="+string(v))
	}
	return out
}

func TestIndexBasic(t *testing.T) {
	idx := New()

	_, ok := idx.Get([]byte("a"), 10)
	assert.False(t, ok)

	idx.Apply(10, []Mutation{set("a", "1")})

	v, ok := idx.Get([]byte("a"), 10)
	require.True(t, ok)
	assert.Equal(t, "1", string(v))

	_, ok = idx.Get([]byte("a"), 9)
	assert.False(t, ok, "older snapshot must not see the write")

	idx.Apply(15, []Mutation{set("a", "2")})
	v, _ = idx.Get([]byte("a"), 10)
	assert.Equal(t, "1", string(v))
	v, _ = idx.Get([]byte("a"), 15)
	assert.Equal(t, "2", string(v))

	idx.Apply(20, []Mutation{del("a")})
	_, ok = idx.Get([]byte("a"), 20)
	assert.False(t, ok)
	v, ok = idx.Get([]byte("a"), 19)
	require.True(t, ok)
	assert.Equal(t, "2", string(v))

	assert.Equal(t, 0, idx.Len())
}

func TestIndexScanOrder(t *testing.T) {
	idx := New()
	idx.Apply(1, []Mutation{set("b", "2"), set("d", "4"), set("a", "1")})
	idx.Apply(2, []Mutation{set("c", "3"), del("d")})

	assert.Equal(t, []string{"a=1", "b=2", "c=3"}, collect(idx, nil, nil, 2))
	assert.Equal(t, []string{"a=1", "b=2", "d=4"}, collect(idx, nil, nil, 1))
	assert.Equal(t, []string{"b=2", "c=3"}, collect(idx, []byte("b"), []byte("d"), 2))

	n := 0
	for range idx.Scan(nil, nil, 2) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestIndexSameCommitTwice(t *testing.T) {
	idx := New()
	idx.Apply(1, []Mutation{set("k", "1"), set("k", "2")})
	v, _ := idx.Get([]byte("k"), 1)
	assert.Equal(t, "2", string(v))
	assert.Equal(t, 1, idx.Len())

	idx.Apply(2, []Mutation{set("n", "x"), del("n"), del("missing")})
	_, ok := idx.Get([]byte("n"), 2)
	assert.False(t, ok)
	assert.Equal(t, 1, idx.Len())
	assert.Equal(t, int64(2), idx.LiveBytes())
}

func TestIndexDeltaMerge(t *testing.T) {
	idx := New()
	total := deltaLimit*3 + 7
	for i := total - 1; i >= 0; i-- {
		idx.Apply(uint64(total-i), []Mutation{set(fmt.Sprintf("k%05d", i), "v")})
	}
	assert.Equal(t, total, idx.Len())
	assert.Equal(t, total, idx.Entries())

	keys := collect(idx, nil, nil, uint64(total))
	require.Len(t, keys, total)
	for i := 1; i < len(keys); i++ {
		assert.Less(t, keys[i-1], keys[i])
	}
}

func TestIndexPrune(t *testing.T) {
	idx := New()
	idx.Apply(1, []Mutation{set("a", "1"), set("b", "1")})
	idx.Apply(2, []Mutation{set("a", "2"), del("b")})
	idx.Apply(3, []Mutation{set("a", "3")})

	idx.Prune(2)

	v, ok := idx.Get([]byte("a"), 2)
	require.True(t, ok)
	assert.Equal(t, "2", string(v))
	_, ok = idx.Get([]byte("a"), 1)
	assert.False(t, ok, "versions older than the prune horizon are gone")

	v, _ = idx.Get([]byte("a"), 3)
	assert.Equal(t, "3", string(v))
	assert.Equal(t, 1, idx.Entries(), "deleted key removed")
	assert.Equal(t, []string{"a=3"}, collect(idx, nil, nil, 3))
}

func TestIndexConcurrentReaders(t *testing.T) {
	idx := New()
	idx.Apply(1, []Mutation{set("base", "0")})

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				v, ok := idx.Get([]byte("base"), 1)
				if !ok || string(v) != "0" {
					t.Error("snapshot read changed")
					return
				}
				for range idx.Scan(nil, nil, 1) {
				}
			}
		}()
	}

	for i := 2; i < 500; i++ {
		idx.Apply(uint64(i), []Mutation{set(fmt.Sprintf("k%d", i), "v"), set("base", "x")})
	}
	close(stop)
	wg.Wait()
}
