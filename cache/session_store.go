package cache

import (
	"encoding/json"
	"fmt"
)

// EncodeValue serializes a session attribute value for byte-oriented stores.
func EncodeValue(value any) ([]byte, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session attribute: %w", err)
	}
	return b, nil
}

// DecodeValue deserializes a session attribute value into out.
func DecodeValue(b []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("failed to unmarshal session attribute: %w", err)
	}
	return nil
}
