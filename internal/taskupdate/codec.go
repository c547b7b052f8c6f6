package taskupdate

import (
	"encoding/json"
)

// jsonCodec lets connect carry plain Go structs. It registers under the
// "json" name, so clients and handlers speak application/connect+json.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
