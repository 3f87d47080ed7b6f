package codec

import (
	"encoding/json"
)

// JSON encodes metadata with encoding/json.
type JSON struct{}

// Marshal encodes v.
func (JSON) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

// Unmarshal decodes data into v.
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// Name returns "json".
func (JSON) Name() string { return "json" }

// Default encodes stored property tables, backup manifests and CLI output.
var Default Codec = GoJSON{}
