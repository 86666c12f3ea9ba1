package jsonrpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ID is a JSON-RPC request identifier. Both string and number forms are
// accepted; the original form is preserved when the ID is echoed back.
type ID struct {
	value   string
	numeric bool
	set     bool
}

// StringID returns an ID carrying the given string.
func StringID(s string) ID {
	return ID{value: s, set: true}
}

// String returns the identifier in textual form, or "" when absent.
func (id ID) String() string {
	return id.value
}

// IsNumber reports whether the identifier was sent as a JSON number.
func (id ID) IsNumber() bool {
	return id.numeric
}

// IsZero reports whether the identifier is absent or null.
func (id ID) IsZero() bool {
	return !id.set
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	if !id.set {
		return []byte("null"), nil
	}
	if id.numeric {
		return []byte(id.value), nil
	}
	return json.Marshal(id.value)
}

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ID{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*id = ID{value: n.String(), numeric: true, set: true}
	return nil
}
