package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/portalql/internal/esquery"
)

// marshalDefinition converts a definition document to canonical JSON TEXT
// for storage. Keys are sorted and strings NFC normalized, so equal
// definitions are stored byte-identically.
func marshalDefinition(def json.RawMessage) (string, error) {
	if len(def) == 0 {
		return "{}", nil
	}
	var v any
	if err := json.Unmarshal(def, &v); err != nil {
		return "", fmt.Errorf("marshal definition: %w", err)
	}
	data, err := esquery.Marshal(normalizeNumbers(v))
	if err != nil {
		return "", fmt.Errorf("marshal definition: %w", err)
	}
	return string(data), nil
}

// unmarshalDefinition returns stored TEXT as a raw JSON document.
func unmarshalDefinition(data string) json.RawMessage {
	if data == "" {
		return json.RawMessage("{}")
	}
	return json.RawMessage(data)
}

// normalizeNumbers converts integral float64 values to int64 so they encode
// without a fractional part.
func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, elem := range val {
			val[k] = normalizeNumbers(elem)
		}
		return val
	case []any:
		for i, elem := range val {
			val[i] = normalizeNumbers(elem)
		}
		return val
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
		return val
	default:
		return v
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
