package core

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseToolInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    map[string]any
		wantErr bool
		errIs   error
	}{
		{
			name: "object",
			raw:  `{"a":1}`,
			want: map[string]any{"a": float64(1)},
		},
		{
			name: "padded empty object",
			raw:  "  {}  ",
			want: map[string]any{},
		},
		{
			name:    "empty",
			raw:     "   ",
			wantErr: true,
			errIs:   ErrMalformedToolInput,
		},
		{
			name:    "truncated",
			raw:     "{invalid",
			wantErr: true,
			errIs:   ErrMalformedToolInput,
		},
		{
			name:    "array",
			raw:     `[1,2]`,
			wantErr: true,
			errIs:   ErrMalformedToolInput,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseToolInput(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				if tc.errIs != nil && !errors.Is(err, tc.errIs) {
					t.Fatalf("expected error to wrap %v, got %v", tc.errIs, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseToolInput() error = %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("ParseToolInput() = %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestMarshalToolInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input any
		want  string
	}{
		{name: "nil", input: nil, want: "{}"},
		{name: "nil map", input: map[string]any(nil), want: "{}"},
		{name: "object", input: map[string]any{"path": "a.go"}, want: `{"path":"a.go"}`},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got, err := MarshalToolInput(tc.input)
			if err != nil {
				t.Fatalf("MarshalToolInput() error = %v", err)
			}
			if string(got) != tc.want {
				t.Fatalf("MarshalToolInput() = %s, want %s", got, tc.want)
			}
		})
	}
}
