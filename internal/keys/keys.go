// Package keys defines the ordered key layout shared by all KV backends.
//
//	m|eid               stored property table
//	q|eid               last issued identifier
//	c|eid               live record count
//	r|eid|id            record bytes
//	u|eid|pid|value     unique value -> id
//	i|eid|pid|value|id  index entry (empty value)
//
// Integers are big-endian so byte order equals numeric order. Values are
// encoded with [Value]; index keys end with the 8-byte id.
package keys

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/hupe1980/boxdb/model"
)

// Key prefixes.
const (
	PrefixSchema   byte = 'm'
	PrefixSequence byte = 'q'
	PrefixCount    byte = 'c'
	PrefixRecord   byte = 'r'
	PrefixUnique   byte = 'u'
	PrefixIndex    byte = 'i'
)

// ErrMalformed is returned when a key does not have the expected layout.
var ErrMalformed = errors.New("keys: malformed key")

func entityKey(prefix byte, eid uint32, extra int) []byte {
	k := make([]byte, 0, 5+extra)
	k = append(k, prefix)
	return binary.BigEndian.AppendUint32(k, eid)
}

// Schema returns the key of an entity's stored property table.
func Schema(eid uint32) []byte { return entityKey(PrefixSchema, eid, 0) }

// Sequence returns the key of an entity's identifier sequence.
func Sequence(eid uint32) []byte { return entityKey(PrefixSequence, eid, 0) }

// Count returns the key of an entity's live record counter.
func Count(eid uint32) []byte { return entityKey(PrefixCount, eid, 0) }

// Record returns the key of one record.
func Record(eid uint32, id uint64) []byte {
	return binary.BigEndian.AppendUint64(entityKey(PrefixRecord, eid, 8), id)
}

// RecordPrefix returns the prefix shared by all records of an entity.
func RecordPrefix(eid uint32) []byte { return entityKey(PrefixRecord, eid, 0) }

// RecordID extracts the identifier from a record key.
func RecordID(key []byte) (uint64, error) {
	if len(key) != 13 || key[0] != PrefixRecord {
		return 0, ErrMalformed
	}
	return binary.BigEndian.Uint64(key[5:]), nil
}

// Unique returns the key holding the owner of a unique value.
func Unique(eid, pid uint32, v model.Value) []byte {
	k := entityKey(PrefixUnique, eid, 4+16)
	k = binary.BigEndian.AppendUint32(k, pid)
	return Value(k, v)
}

// IndexPrefix returns the prefix of all index entries for one value.
func IndexPrefix(eid, pid uint32, v model.Value) []byte {
	k := entityKey(PrefixIndex, eid, 4+16+8)
	k = binary.BigEndian.AppendUint32(k, pid)
	return Value(k, v)
}

// Index returns the key of one index entry.
func Index(eid, pid uint32, v model.Value, id uint64) []byte {
	return binary.BigEndian.AppendUint64(IndexPrefix(eid, pid, v), id)
}

// IndexID extracts the identifier from an index key.
func IndexID(key []byte) (uint64, error) {
	if len(key) < 18 || key[0] != PrefixIndex {
		return 0, ErrMalformed
	}
	return binary.BigEndian.Uint64(key[len(key)-8:]), nil
}

// Value appends an order-preserving encoding of v to dst:
// a kind byte, then big-endian ints with the sign bit flipped, doubles in
// IEEE total-order form, and strings/bytes with 0x00 escaped as 0x00 0xff and
// terminated by 0x00 0x01.
func Value(dst []byte, v model.Value) []byte {
	dst = append(dst, byte(v.Kind()))
	switch v.Kind() {
	case model.KindInt:
		i, _ := v.AsInt()
		dst = binary.BigEndian.AppendUint64(dst, uint64(i)^(1<<63))
	case model.KindBool:
		b, _ := v.AsBool()
		if b {
			dst = append(dst, 1)
		} else {
			dst = append(dst, 0)
		}
	case model.KindDouble:
		f, _ := v.AsDouble()
		// model.Compare treats -0 and +0 as equal and orders NaN first, so
		// both collapse to a single key.
		if math.IsNaN(f) {
			dst = binary.BigEndian.AppendUint64(dst, 0)
			break
		}
		if f == 0 {
			f = 0
		}
		bits := math.Float64bits(f)
		if bits&(1<<63) != 0 {
			bits = ^bits
		} else {
			bits |= 1 << 63
		}
		dst = binary.BigEndian.AppendUint64(dst, bits)
	case model.KindString:
		s, _ := v.AsString()
		dst = appendEscaped(dst, []byte(s))
	case model.KindBytes:
		b, _ := v.AsBytes()
		dst = appendEscaped(dst, b)
	}
	return dst
}

func appendEscaped(dst, b []byte) []byte {
	for _, c := range b {
		if c == 0 {
			dst = append(dst, 0, 0xff)
			continue
		}
		dst = append(dst, c)
	}
	return append(dst, 0, 1)
}

// PrefixEnd returns the smallest key greater than every key with the given
// prefix, or nil if there is none.
func PrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

// PutUint64 encodes a counter or sequence value.
func PutUint64(v uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, v)
}

// Uint64 decodes a counter or sequence value.
func Uint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, ErrMalformed
	}
	return binary.BigEndian.Uint64(b), nil
}
