package schema

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/hupe1980/boxdb/model"
)

// Type is the semantic type of a property.
//
// NOTE: Type values are persisted in the stored property table; keep stable.
type Type uint8

const (
	// Int64 is a signed 64-bit integer.
	Int64 Type = iota + 1
	// String is a UTF-8 string.
	String
	// Bool is a boolean.
	Bool
	// Double is a 64-bit float.
	Double
	// Bytes is an opaque byte slice.
	Bytes
)

// String returns the declaration name of the type.
func (t Type) String() string {
	switch t {
	case Int64:
		return "int64"
	case String:
		return "string"
	case Bool:
		return "bool"
	case Double:
		return "double"
	case Bytes:
		return "bytes"
	default:
		return "unknown"
	}
}

// Kind returns the value kind a property of this type holds.
func (t Type) Kind() model.Kind {
	switch t {
	case Int64:
		return model.KindInt
	case String:
		return model.KindString
	case Bool:
		return model.KindBool
	case Double:
		return model.KindDouble
	case Bytes:
		return model.KindBytes
	default:
		return model.KindNull
	}
}

// Accepts reports whether v may be stored in a property of this type.
// Null is accepted by every type.
func (t Type) Accepts(v model.Value) bool {
	return v.IsNull() || v.Kind() == t.Kind()
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	return t >= Int64 && t <= Bytes
}

// ParseType parses a declaration name such as "int64" or "STRING".
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int64", "int", "long":
		return Int64, nil
	case "string":
		return String, nil
	case "bool", "boolean":
		return Bool, nil
	case "double", "float64", "float":
		return Double, nil
	case "bytes", "byte[]":
		return Bytes, nil
	default:
		return 0, fmt.Errorf("%w: unknown property type %q", ErrInvalidSchema, s)
	}
}

// ParseValue converts the textual form of a value into a Value of type t.
// Bytes are given base64-encoded. The literal "null" yields Null.
func (t Type) ParseValue(s string) (model.Value, error) {
	if s == "null" {
		return model.Null(), nil
	}
	switch t {
	case Int64:
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return model.Value{}, fmt.Errorf("%w: %q is not an int64", ErrInvalidValue, s)
		}
		return model.Int(i), nil
	case String:
		return model.String(s), nil
	case Bool:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return model.Value{}, fmt.Errorf("%w: %q is not a bool", ErrInvalidValue, s)
		}
		return model.Bool(b), nil
	case Double:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Value{}, fmt.Errorf("%w: %q is not a double", ErrInvalidValue, s)
		}
		return model.Double(f), nil
	case Bytes:
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return model.Value{}, fmt.Errorf("%w: %q is not base64", ErrInvalidValue, s)
		}
		return model.Bytes(b), nil
	default:
		return model.Value{}, fmt.Errorf("%w: unknown type %d", ErrInvalidValue, t)
	}
}
