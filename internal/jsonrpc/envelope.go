package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeEnvelope decodes a serialized response into its generic map form.
// A literal null decodes to a nil map.
func DecodeEnvelope(data []byte) (map[string]any, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("decode envelope: empty payload")
	}
	var env map[string]any
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// Normalize converts a response into the generic envelope shape produced by
// DecodeEnvelope, so synthetic and engine-produced responses look the same.
func Normalize(resp *Response) (map[string]any, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal response: %w", err)
	}
	return DecodeEnvelope(data)
}
