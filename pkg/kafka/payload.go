package kafka

import (
	"fmt"
	"math"
)

// Helpers for reading envelope data payloads. JSON numbers arrive as
// float64; producers written in other stacks may also send numeric strings
// or alternative key names, so each helper accepts fallback keys.

// Int64Field returns the first present key as an int64.
func Int64Field(data map[string]any, keys ...string) (int64, error) {
	for _, key := range keys {
		v, ok := data[key]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			if n != math.Trunc(n) {
				return 0, fmt.Errorf("field %q: %v is not an integer", key, n)
			}
			return int64(n), nil
		case int64:
			return n, nil
		case int:
			return int64(n), nil
		default:
			return 0, fmt.Errorf("field %q: unexpected type %T", key, v)
		}
	}
	return 0, fmt.Errorf("missing field %q", keys[0])
}

// StringField returns the first present key as a string.
func StringField(data map[string]any, keys ...string) (string, error) {
	for _, key := range keys {
		v, ok := data[key]
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("field %q: unexpected type %T", key, v)
		}
		return s, nil
	}
	return "", fmt.Errorf("missing field %q", keys[0])
}

// OptStringField returns the key's value as *string, or nil when absent or
// null.
func OptStringField(data map[string]any, keys ...string) *string {
	for _, key := range keys {
		if v, ok := data[key]; ok {
			if s, ok := v.(string); ok {
				return &s
			}
		}
	}
	return nil
}

// OptIntField returns the key's value as *int, or nil when absent, null, or
// not numeric.
func OptIntField(data map[string]any, keys ...string) *int {
	for _, key := range keys {
		if v, ok := data[key]; ok {
			if n, ok := v.(float64); ok && n == math.Trunc(n) {
				i := int(n)
				return &i
			}
		}
	}
	return nil
}
