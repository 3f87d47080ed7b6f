package mvcc

import (
	"bytes"
	"iter"
	"slices"
	"sync"
	"sync/atomic"
)

// deltaLimit bounds the size of the copy-on-write delta before it is merged
// into the base table.
const deltaLimit = 1024

// Mutation is one key change applied at a commit LSN.
type Mutation struct {
	Key    []byte
	Value  []byte
	Delete bool
}

type version struct {
	lsn     uint64
	value   []byte
	deleted bool
	next    atomic.Pointer[version]
}

type entry struct {
	key  []byte
	head atomic.Pointer[version]
}

// visible returns the newest version with lsn <= snapshotLSN.
func (e *entry) visible(snapshotLSN uint64) *version {
	for v := e.head.Load(); v != nil; v = v.next.Load() {
		if v.lsn <= snapshotLSN {
			return v
		}
	}
	return nil
}

// table is an immutable view of the key set: a large sorted base plus a small
// sorted delta of keys not in base.
type table struct {
	base  []*entry
	delta []*entry
}

func search(s []*entry, key []byte) (int, bool) {
	return slices.BinarySearchFunc(s, key, func(e *entry, k []byte) int {
		return bytes.Compare(e.key, k)
	})
}

func (t *table) find(key []byte) *entry {
	if i, ok := search(t.base, key); ok {
		return t.base[i]
	}
	if i, ok := search(t.delta, key); ok {
		return t.delta[i]
	}
	return nil
}

// Index is an ordered, multi-version key/value index.
//
// Reads are wait-free: they load the current table and walk version chains
// through atomic pointers. Writes are serialized by an internal mutex. Each
// key keeps a chain of versions ordered by descending LSN so a reader sees
// the state as of its snapshot LSN.
type Index struct {
	mu        sync.Mutex
	tbl       atomic.Pointer[table]
	live      atomic.Int64
	liveBytes atomic.Int64
}

// New creates an empty index.
func New() *Index {
	idx := &Index{}
	idx.tbl.Store(&table{})
	return idx
}

// Get returns the value of key visible at snapshotLSN.
func (idx *Index) Get(key []byte, snapshotLSN uint64) ([]byte, bool) {
	e := idx.tbl.Load().find(key)
	if e == nil {
		return nil, false
	}
	v := e.visible(snapshotLSN)
	if v == nil || v.deleted {
		return nil, false
	}
	return v.value, true
}

// Apply installs all mutations at lsn. LSNs must not decrease across calls;
// a key written again at the same LSN replaces its previous version.
func (idx *Index) Apply(lsn uint64, muts []Mutation) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	t := idx.tbl.Load()
	var added []*entry
	pending := make(map[string]*entry)

	for _, m := range muts {
		e := t.find(m.Key)
		if e == nil {
			e = pending[string(m.Key)]
		}
		if e == nil {
			if m.Delete {
				continue
			}
			e = &entry{key: bytes.Clone(m.Key)}
			pending[string(m.Key)] = e
			added = append(added, e)
		}
		idx.install(e, lsn, m)
	}

	if len(added) > 0 {
		slices.SortFunc(added, func(a, b *entry) int { return bytes.Compare(a.key, b.key) })
		idx.tbl.Store(insertEntries(t, added))
	}
}

func (idx *Index) install(e *entry, lsn uint64, m Mutation) {
	head := e.head.Load()
	wasLive := head != nil && !head.deleted
	if !wasLive && m.Delete {
		return
	}

	if wasLive {
		idx.live.Add(-1)
		idx.liveBytes.Add(-int64(len(e.key) + len(head.value)))
	}

	v := &version{lsn: lsn, deleted: m.Delete}
	if !m.Delete {
		v.value = bytes.Clone(m.Value)
		idx.live.Add(1)
		idx.liveBytes.Add(int64(len(e.key) + len(v.value)))
	}

	if head != nil && head.lsn == lsn {
		// Same commit touched the key twice; replace the head.
		v.next.Store(head.next.Load())
	} else {
		v.next.Store(head)
	}
	e.head.Store(v)
}

func insertEntries(t *table, added []*entry) *table {
	delta := mergeSorted(t.delta, added)
	if len(delta) > deltaLimit {
		return &table{base: mergeSorted(t.base, delta)}
	}
	return &table{base: t.base, delta: delta}
}

func mergeSorted(a, b []*entry) []*entry {
	out := make([]*entry, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if bytes.Compare(a[i].key, b[j].key) < 0 {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	return append(out, b[j:]...)
}

// Scan iterates the keys in [lower, upper) visible at snapshotLSN in
// ascending order. A nil upper means no upper bound.
//
// Yielded slices must not be modified.
func (idx *Index) Scan(lower, upper []byte, snapshotLSN uint64) iter.Seq2[[]byte, []byte] {
	return func(yield func([]byte, []byte) bool) {
		t := idx.tbl.Load()
		i, _ := search(t.base, lower)
		j, _ := search(t.delta, lower)

		for i < len(t.base) || j < len(t.delta) {
			var e *entry
			switch {
			case j >= len(t.delta):
				e = t.base[i]
				i++
			case i >= len(t.base):
				e = t.delta[j]
				j++
			case bytes.Compare(t.base[i].key, t.delta[j].key) < 0:
				e = t.base[i]
				i++
			default:
				e = t.delta[j]
				j++
			}

			if upper != nil && bytes.Compare(e.key, upper) >= 0 {
				return
			}
			v := e.visible(snapshotLSN)
			if v == nil || v.deleted {
				continue
			}
			if !yield(e.key, v.value) {
				return
			}
		}
	}
}

// Prune drops versions no snapshot at or after minLSN can observe, and
// removes keys whose visible state at minLSN is deleted with no newer
// versions.
func (idx *Index) Prune(minLSN uint64) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	t := idx.tbl.Load()
	prune := func(e *entry) bool {
		v := e.visible(minLSN)
		if v == nil {
			return false
		}
		v.next.Store(nil)
		return v.deleted && e.head.Load() == v
	}

	var dead map[*entry]struct{}
	for _, s := range [][]*entry{t.base, t.delta} {
		for _, e := range s {
			if prune(e) {
				if dead == nil {
					dead = make(map[*entry]struct{})
				}
				dead[e] = struct{}{}
			}
		}
	}
	if len(dead) == 0 {
		return
	}

	keep := func(s []*entry) []*entry {
		out := make([]*entry, 0, len(s))
		for _, e := range s {
			if _, ok := dead[e]; !ok {
				out = append(out, e)
			}
		}
		return out
	}
	idx.tbl.Store(&table{base: mergeSorted(keep(t.base), keep(t.delta))})
}

// Len returns the number of live keys at the latest LSN.
func (idx *Index) Len() int { return int(idx.live.Load()) }

// LiveBytes returns the total key and value size of live keys at the latest LSN.
func (idx *Index) LiveBytes() int64 { return idx.liveBytes.Load() }

// Entries returns the number of keys tracked, including deleted keys not yet
// pruned.
func (idx *Index) Entries() int {
	t := idx.tbl.Load()
	return len(t.base) + len(t.delta)
}
