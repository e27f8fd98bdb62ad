package taskqueue

import (
	"encoding/json"

	"github.com/bytedance/sonic"
)

// Encoder defines the interface for task record and payload serialization.
type Encoder interface {
	Encode(any) ([]byte, error)
	Decode([]byte, any) error
}

// JSONEncoder is the default Encoder. Encoding uses the standard library;
// decoding uses sonic, which dominates the hot dequeue path.
type JSONEncoder struct{}

func (JSONEncoder) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (JSONEncoder) Decode(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}
