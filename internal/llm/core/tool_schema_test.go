package core

import (
	"encoding/json"
	"errors"
	"testing"
)

// TestNewToolFromStruct validates happy-path schema reflection for a struct input.
func TestNewToolFromStruct(t *testing.T) {
	type input struct {
		Path string `json:"path" jsonschema:"required"`
	}

	tool, err := NewToolFromStruct("Read", "Read file", input{})
	if err != nil {
		t.Fatalf("NewToolFromStruct() error = %v", err)
	}
	if tool.Name != "Read" {
		t.Fatalf("name mismatch: got %q want %q", tool.Name, "Read")
	}
	raw, ok := tool.InputSchema.(json.RawMessage)
	if !ok {
		t.Fatalf("InputSchema type = %T, want json.RawMessage", tool.InputSchema)
	}
	if !json.Valid(raw) {
		t.Fatalf("schema is not valid json: %s", string(raw))
	}

	schema, err := DecodeToolJSONSchema(tool.InputSchema)
	if err != nil {
		t.Fatalf("DecodeToolJSONSchema() error = %v", err)
	}
	if _, ok := schema.Properties["path"]; !ok {
		t.Fatalf("expected path property, got %#v", schema.Properties)
	}
	if len(schema.Required) != 1 || schema.Required[0] != "path" {
		t.Fatalf("Required = %v, want [path]", schema.Required)
	}
}

// TestNewToolFromStructRejectsNonStruct guards against unsupported schema input types.
func TestNewToolFromStructRejectsNonStruct(t *testing.T) {
	if _, err := NewToolFromStruct("Read", "Read file", 42); err == nil {
		t.Fatalf("expected error for non-struct schema input")
	}
}

func TestDecodeToolJSONSchema(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		schema    any
		wantProps int
		wantErr   bool
	}{
		{name: "nil", schema: nil},
		{name: "null string", schema: "null"},
		{name: "missing type defaults to object", schema: `{"properties":{"q":{"type":"string"}}}`, wantProps: 1},
		{name: "map value", schema: map[string]any{"type": "object", "properties": map[string]any{"a": map[string]any{}, "b": map[string]any{}}}, wantProps: 2},
		{name: "raw bytes", schema: []byte(`{"type":"object"}`)},
		{name: "non-object type", schema: json.RawMessage(`{"type":"array"}`), wantErr: true},
		{name: "invalid json", schema: "{", wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := DecodeToolJSONSchema(tc.schema)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidRequest) {
					t.Fatalf("expected ErrInvalidRequest, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeToolJSONSchema() error = %v", err)
			}
			if got.Type != "object" {
				t.Fatalf("Type = %q, want object", got.Type)
			}
			if got.Properties == nil {
				t.Fatalf("Properties must never be nil")
			}
			if len(got.Properties) != tc.wantProps {
				t.Fatalf("len(Properties) = %d, want %d", len(got.Properties), tc.wantProps)
			}
		})
	}
}
