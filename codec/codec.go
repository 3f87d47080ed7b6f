// Package codec turns records and metadata into bytes.
//
// A stored record starts with a format version and a compression mode.
// Decoders refuse versions they do not know. Metadata (property tables,
// backup manifests) goes through a named [Codec].
package codec

import "fmt"

// Codec serializes metadata documents. It must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName looks up a codec by the value its Name method returns.
func ByName(name string) (Codec, bool) {
	switch name {
	case "go-json":
		return GoJSON{}, true
	case "json":
		return JSON{}, true
	default:
		return nil, false
	}
}

// MustMarshal panics on error. A nil c uses Default.
func MustMarshal(c Codec, v any) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("codec %s marshal failed: %w", c.Name(), err))
	}
	return b
}
