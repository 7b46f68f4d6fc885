package bedrock

import "strings"

// Model is a known Converse model id.
type Model struct {
	ID   string
	Name string
}

// Models lists the cross-region inference profiles offered by default.
func Models() []Model {
	return []Model{
		{ID: "us.anthropic.claude-opus-4-20250514-v1:0", Name: "Claude Opus 4 (US)"},
		{ID: "us.anthropic.claude-sonnet-4-20250514-v1:0", Name: "Claude Sonnet 4 (US)"},
		{ID: "us.anthropic.claude-3-7-sonnet-20250219-v1:0", Name: "Claude 3.7 Sonnet (US)"},
	}
}

const defaultEmbeddingDimensions = 1536

// EmbeddingDimensions returns the vector size for an embedding model id.
func EmbeddingDimensions(modelID string) int {
	id := strings.ToLower(modelID)
	switch {
	case strings.Contains(id, "titan-embed"):
		return 1536
	case strings.Contains(id, "cohere.embed"):
		return 1024
	default:
		return defaultEmbeddingDimensions
	}
}
