package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ParseToolInput decodes fully accumulated tool input JSON. Only JSON objects
// are accepted; anything else is an error the caller reports and drops.
func ParseToolInput(raw string) (map[string]any, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty json", ErrMalformedToolInput)
	}
	input := map[string]any{}
	if err := json.Unmarshal([]byte(trimmed), &input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedToolInput, err)
	}
	return input, nil
}

// MarshalToolInput serializes tool input and guarantees a non-empty JSON object payload.
func MarshalToolInput(input any) (json.RawMessage, error) {
	if input == nil {
		return json.RawMessage("{}"), nil
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 || string(raw) == "null" {
		return json.RawMessage("{}"), nil
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("tool input is not valid json")
	}
	return raw, nil
}
