package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hupe1980/boxdb/internal/conv"
	"github.com/hupe1980/boxdb/model"
	"github.com/hupe1980/boxdb/schema"
)

// Record format versions.
const (
	recordV1 byte = 1
)

// EncodeRecord serializes the non-null values of r in property declaration
// order:
//
//	[version][uvarint n] n * ([uvarint propertyID][kind][payload])
//
// The identifier is not part of the payload; it lives in the key.
// Callers validate r against e beforehand; unknown names are skipped.
func EncodeRecord(e *schema.Entity, r *model.Record) []byte {
	props := e.AllProperties()
	n := 0
	for _, p := range props {
		if !r.Get(p.Name()).IsNull() {
			n++
		}
	}

	buf := make([]byte, 0, 16+n*16)
	buf = append(buf, recordV1)
	buf = binary.AppendUvarint(buf, uint64(n))
	for _, p := range props {
		v := r.Get(p.Name())
		if v.IsNull() {
			continue
		}
		buf = binary.AppendUvarint(buf, uint64(p.ID()))
		buf = AppendValue(buf, v)
	}
	return buf
}

// DecodeRecord parses bytes produced by EncodeRecord. Values of property ids
// no longer declared by e are dropped.
func DecodeRecord(e *schema.Entity, id uint64, data []byte) (*model.Record, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty record", ErrCorrupt)
	}
	if data[0] != recordV1 {
		return nil, fmt.Errorf("%w: unknown record version %d", ErrCorrupt, data[0])
	}
	data = data[1:]

	n, k := binary.Uvarint(data)
	if k <= 0 || n > uint64(len(data)) {
		return nil, fmt.Errorf("%w: bad value count", ErrCorrupt)
	}
	data = data[k:]

	rec := &model.Record{ID: id, Values: make(map[string]model.Value, n)}
	for i := uint64(0); i < n; i++ {
		raw, k := binary.Uvarint(data)
		if k <= 0 {
			return nil, fmt.Errorf("%w: bad property id", ErrCorrupt)
		}
		pid, err := conv.Uint64ToUint32(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: property id: %w", ErrCorrupt, err)
		}
		data = data[k:]

		v, rest, err := ReadValue(data)
		if err != nil {
			return nil, err
		}
		data = rest

		if p, ok := e.PropertyByID(pid); ok && !p.IsID() {
			rec.Values[p.Name()] = v
		}
	}
	if len(data) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(data))
	}
	return rec, nil
}

// AppendValue appends the tagged binary form of v to dst.
func AppendValue(dst []byte, v model.Value) []byte {
	dst = append(dst, byte(v.Kind()))
	switch v.Kind() {
	case model.KindInt:
		i, _ := v.AsInt()
		dst = binary.AppendVarint(dst, i)
	case model.KindBool:
		b, _ := v.AsBool()
		if b {
			dst = append(dst, 1)
		} else {
			dst = append(dst, 0)
		}
	case model.KindDouble:
		f, _ := v.AsDouble()
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(f))
	case model.KindString:
		s, _ := v.AsString()
		dst = binary.AppendUvarint(dst, uint64(len(s)))
		dst = append(dst, s...)
	case model.KindBytes:
		b, _ := v.AsBytes()
		dst = binary.AppendUvarint(dst, uint64(len(b)))
		dst = append(dst, b...)
	}
	return dst
}

// ReadValue decodes one value written by AppendValue and returns the rest.
func ReadValue(data []byte) (model.Value, []byte, error) {
	if len(data) == 0 {
		return model.Value{}, nil, fmt.Errorf("%w: missing value kind", ErrCorrupt)
	}
	kind := model.Kind(data[0])
	data = data[1:]

	switch kind {
	case model.KindNull:
		return model.Null(), data, nil
	case model.KindInt:
		i, k := binary.Varint(data)
		if k <= 0 {
			return model.Value{}, nil, fmt.Errorf("%w: bad int", ErrCorrupt)
		}
		return model.Int(i), data[k:], nil
	case model.KindBool:
		if len(data) < 1 || data[0] > 1 {
			return model.Value{}, nil, fmt.Errorf("%w: bad bool", ErrCorrupt)
		}
		return model.Bool(data[0] == 1), data[1:], nil
	case model.KindDouble:
		if len(data) < 8 {
			return model.Value{}, nil, fmt.Errorf("%w: short double", ErrCorrupt)
		}
		return model.Double(math.Float64frombits(binary.LittleEndian.Uint64(data))), data[8:], nil
	case model.KindString, model.KindBytes:
		l, k := binary.Uvarint(data)
		if k <= 0 || l > uint64(len(data)-k) {
			return model.Value{}, nil, fmt.Errorf("%w: bad %s length", ErrCorrupt, kind)
		}
		payload := data[k : k+int(l)]
		rest := data[k+int(l):]
		if kind == model.KindString {
			return model.String(string(payload)), rest, nil
		}
		return model.Bytes(payload), rest, nil
	default:
		return model.Value{}, nil, fmt.Errorf("%w: unknown kind %d", ErrCorrupt, kind)
	}
}
