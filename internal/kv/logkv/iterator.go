package logkv

import (
	"bytes"
	"iter"

	"github.com/hupe1980/boxdb/internal/kv"
)

type overlayEntry struct {
	key     []byte
	value   []byte
	deleted bool
}

// iterator merges an index scan with a sorted batch overlay. Overlay entries
// shadow index entries with the same key.
type iterator struct {
	next func() ([]byte, []byte, bool)
	stop func()

	baseKey, baseVal []byte
	baseOK           bool
	overlay          []overlayEntry

	key, val []byte
	valid    bool
	closed   bool
}

var _ kv.Iterator = (*iterator)(nil)

func newIterator(base iter.Seq2[[]byte, []byte], overlay []overlayEntry) *iterator {
	next, stop := iter.Pull2(base)
	it := &iterator{next: next, stop: stop, overlay: overlay}
	it.advanceBase()
	return it
}

func (it *iterator) advanceBase() {
	it.baseKey, it.baseVal, it.baseOK = it.next()
}

func (it *iterator) Next() bool {
	if it.closed {
		return false
	}
	for {
		hasOverlay := len(it.overlay) > 0
		if !it.baseOK && !hasOverlay {
			it.valid = false
			return false
		}

		var c int
		switch {
		case !hasOverlay:
			c = -1
		case !it.baseOK:
			c = 1
		default:
			c = bytes.Compare(it.baseKey, it.overlay[0].key)
		}

		if c < 0 {
			it.key, it.val, it.valid = it.baseKey, it.baseVal, true
			it.advanceBase()
			return true
		}

		o := it.overlay[0]
		it.overlay = it.overlay[1:]
		if c == 0 {
			it.advanceBase()
		}
		if o.deleted {
			continue
		}
		it.key, it.val, it.valid = o.key, o.value, true
		return true
	}
}

func (it *iterator) Key() []byte {
	return bytes.Clone(it.key)
}

func (it *iterator) Value() ([]byte, error) {
	if !it.valid {
		return nil, kv.ErrNotFound
	}
	return bytes.Clone(it.val), nil
}

func (it *iterator) Valid() bool { return it.valid && !it.closed }

func (it *iterator) Error() error { return nil }

func (it *iterator) Close() error {
	if !it.closed {
		it.closed = true
		it.valid = false
		it.stop()
	}
	return nil
}
