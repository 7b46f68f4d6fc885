package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ToolJSONSchema is the object schema shape every provider sends for tool
// input: a type plus top-level properties and required names.
type ToolJSONSchema struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Required   []string       `json:"required"`
}

func emptyObjectSchema() ToolJSONSchema {
	return ToolJSONSchema{Type: "object", Properties: map[string]any{}}
}

// NewToolFromStruct builds an MCP tool descriptor whose input schema is
// reflected from params, a struct value or pointer to one.
func NewToolFromStruct(name, description string, params any) (*mcp.Tool, error) {
	t := reflect.TypeOf(params)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: tool %q params must be a struct, got %T", ErrInvalidRequest, name, params)
	}

	reflector := jsonschema.Reflector{DoNotReference: true}
	raw, err := json.Marshal(reflector.ReflectFromType(t))
	if err != nil {
		return nil, fmt.Errorf("reflect schema for tool %q: %w", name, err)
	}
	schema, err := DecodeToolJSONSchema(json.RawMessage(raw))
	if err != nil {
		return nil, err
	}
	normalized, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("encode schema for tool %q: %w", name, err)
	}
	return &mcp.Tool{Name: name, Description: description, InputSchema: json.RawMessage(normalized)}, nil
}

// DecodeToolJSONSchema normalizes a tool input schema given as raw JSON, a
// string, or any value that marshals to a JSON object. A missing schema is an
// empty object schema; a type other than object is rejected.
func DecodeToolJSONSchema(value any) (ToolJSONSchema, error) {
	var raw []byte
	switch v := value.(type) {
	case nil:
		return emptyObjectSchema(), nil
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return ToolJSONSchema{}, fmt.Errorf("%w: marshal tool schema: %v", ErrInvalidRequest, err)
		}
		raw = encoded
	}

	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return emptyObjectSchema(), nil
	}

	schema := emptyObjectSchema()
	schema.Type = ""
	if err := json.Unmarshal(raw, &schema); err != nil {
		return ToolJSONSchema{}, fmt.Errorf("%w: invalid tool schema json: %v", ErrInvalidRequest, err)
	}
	switch schema.Type {
	case "":
		schema.Type = "object"
	case "object":
	default:
		return ToolJSONSchema{}, fmt.Errorf("%w: tool schema type %q, want object", ErrInvalidRequest, schema.Type)
	}
	if schema.Properties == nil {
		schema.Properties = map[string]any{}
	}
	return schema, nil
}
