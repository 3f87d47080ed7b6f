package codec

import gojson "github.com/goccy/go-json"

// GoJSON encodes metadata with github.com/goccy/go-json. Its output is
// interchangeable with JSON, so either codec reads what the other wrote.
type GoJSON struct{}

// Marshal encodes v.
func (GoJSON) Marshal(v any) ([]byte, error) { return gojson.Marshal(v) }

// Unmarshal decodes data into v.
func (GoJSON) Unmarshal(data []byte, v any) error { return gojson.Unmarshal(data, v) }

// Name returns "go-json".
func (GoJSON) Name() string { return "go-json" }
