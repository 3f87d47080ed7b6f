package model

import (
	"bytes"
	"cmp"
	"encoding/base64"
	"strconv"
)

// Kind identifies the concrete type stored in a Value.
type Kind uint8

const (
	// KindNull represents an absent value.
	KindNull Kind = iota
	// KindInt represents a signed 64-bit integer.
	KindInt
	// KindString represents a UTF-8 string.
	KindString
	// KindBool represents a boolean.
	KindBool
	// KindDouble represents a 64-bit float.
	KindDouble
	// KindBytes represents an opaque byte slice.
	KindBytes
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	case KindBool:
		return "bool"
	case KindDouble:
		return "double"
	case KindBytes:
		return "bytes"
	default:
		return "invalid"
	}
}

// Value is one typed property value.
//
// The zero Value is Null. Values are compared and hashed without reflection.
//
// NOTE: This is also used for persistence; keep the kind numbering stable.
type Value struct {
	kind Kind
	i64  int64
	f64  float64
	s    string
	b    []byte
}

// Null returns a null Value.
func Null() Value { return Value{} }

// Int returns an int64 Value.
func Int(v int64) Value { return Value{kind: KindInt, i64: v} }

// String returns a string Value.
func String(v string) Value { return Value{kind: KindString, s: v} }

// Bool returns a boolean Value.
func Bool(v bool) Value {
	if v {
		return Value{kind: KindBool, i64: 1}
	}
	return Value{kind: KindBool}
}

// Double returns a float64 Value.
func Double(v float64) Value { return Value{kind: KindDouble, f64: v} }

// Bytes returns a bytes Value. The slice is copied.
func Bytes(v []byte) Value {
	if v == nil {
		v = []byte{}
	}
	return Value{kind: KindBytes, b: bytes.Clone(v)}
}

// Kind returns the kind of the value.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is Null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// AsInt returns the int64 value if Kind is KindInt.
func (v Value) AsInt() (int64, bool) {
	if v.kind != KindInt {
		return 0, false
	}
	return v.i64, true
}

// AsString returns the string value if Kind is KindString.
func (v Value) AsString() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.s, true
}

// AsBool returns the boolean value if Kind is KindBool.
func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.i64 == 1, true
}

// AsDouble returns the float64 value if Kind is KindDouble.
func (v Value) AsDouble() (float64, bool) {
	if v.kind != KindDouble {
		return 0, false
	}
	return v.f64, true
}

// AsBytes returns the byte slice if Kind is KindBytes.
// The returned slice must not be modified.
func (v Value) AsBytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return v.b, true
}

// StringValue returns the string value if Kind is KindString, otherwise empty string.
func (v Value) StringValue() string {
	if v.kind == KindString {
		return v.s
	}
	return ""
}

// Equal reports whether two values have the same kind and content.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	return Compare(v, o) == 0
}

// Compare orders two values.
//
// Null sorts before everything else. Values of different kinds are ordered by
// kind. Doubles use a total order with NaN sorting first.
func Compare(a, b Value) int {
	if a.kind != b.kind {
		return cmp.Compare(a.kind, b.kind)
	}
	switch a.kind {
	case KindNull:
		return 0
	case KindInt, KindBool:
		return cmp.Compare(a.i64, b.i64)
	case KindDouble:
		return cmp.Compare(a.f64, b.f64)
	case KindString:
		return cmp.Compare(a.s, b.s)
	case KindBytes:
		return bytes.Compare(a.b, b.b)
	default:
		return 0
	}
}

// String renders the value for logs and CLI output.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindInt:
		return strconv.FormatInt(v.i64, 10)
	case KindString:
		return strconv.Quote(v.s)
	case KindBool:
		return strconv.FormatBool(v.i64 == 1)
	case KindDouble:
		return strconv.FormatFloat(v.f64, 'g', -1, 64)
	case KindBytes:
		return "b64:" + base64.StdEncoding.EncodeToString(v.b)
	default:
		return "invalid"
	}
}

// Interface returns the value as a plain Go value (nil, int64, string, bool,
// float64 or []byte). Useful for JSON rendering.
func (v Value) Interface() any {
	switch v.kind {
	case KindInt:
		return v.i64
	case KindString:
		return v.s
	case KindBool:
		return v.i64 == 1
	case KindDouble:
		return v.f64
	case KindBytes:
		return v.b
	default:
		return nil
	}
}

func (v Value) clone() Value {
	if v.kind == KindBytes {
		v.b = bytes.Clone(v.b)
	}
	return v
}
