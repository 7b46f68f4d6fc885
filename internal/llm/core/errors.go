package core

import "errors"

var (
	// ErrInvalidRequest indicates missing or malformed provider request input.
	ErrInvalidRequest = errors.New("invalid llm request")
	// ErrMissingAPIKey indicates missing provider API key.
	ErrMissingAPIKey = errors.New("missing api key")
	// ErrMalformedToolInput marks accumulated tool-use input that is not a JSON
	// object. Decoders drop such calls instead of failing the stream.
	ErrMalformedToolInput = errors.New("malformed tool input")
)
