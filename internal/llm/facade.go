package llm

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	anthropicprovider "converse/internal/llm/providers/anthropic"
	"converse/internal/llm/providers/bedrock"
	mockprovider "converse/internal/llm/providers/mock"

	"converse/internal/llm/core"
)

type (
	// Provider is the public streaming provider contract.
	Provider = core.Provider

	// Request and Stream describe one model turn.
	Request     = core.Request
	Stream      = core.Stream
	RetryPolicy = core.RetryPolicy

	// Chunk aliases define the canonical stream protocol.
	Chunk      = core.Chunk
	ChunkType  = core.ChunkType
	StopReason = core.StopReason
	Usage      = core.Usage

	// Conversation-model aliases.
	Role        = core.Role
	ChatMessage = core.ChatMessage
	ImageRef    = core.ImageRef
	Message     = core.Message
	Part        = core.Part

	// Tool-call aliases.
	ToolCall     = core.ToolCall
	ToolResponse = core.ToolResponse
	ToolStatus   = core.ToolStatus
	TurnOutput   = core.TurnOutput

	// Bedrock* aliases expose the Converse provider.
	BedrockConfig      = bedrock.Config
	BedrockCredentials = bedrock.Credentials
	BedrockProvider    = bedrock.Provider
	BedrockModel       = bedrock.Model

	// Anthropic* aliases expose provider-specific configuration and implementation.
	AnthropicConfig   = anthropicprovider.Config
	AnthropicProvider = anthropicprovider.Provider

	// MockProvider replays scripted chunk turns for tests.
	MockProvider = mockprovider.Provider
)

const (
	ChunkTextStart        = core.ChunkTextStart
	ChunkTextDelta        = core.ChunkTextDelta
	ChunkToolCallCreated  = core.ChunkToolCallCreated
	ChunkResponseComplete = core.ChunkResponseComplete

	RoleUser      = core.RoleUser
	RoleAssistant = core.RoleAssistant
	RoleSystem    = core.RoleSystem

	ToolStatusPending = core.ToolStatusPending
	ToolStatusDone    = core.ToolStatusDone
	ToolStatusError   = core.ToolStatusError

	ToolResultSuccess = core.ToolResultSuccess
	ToolResultError   = core.ToolResultError
)

var (
	// ErrInvalidRequest indicates malformed canonical request payloads.
	ErrInvalidRequest = core.ErrInvalidRequest
	// ErrMissingAPIKey indicates missing Anthropic API credentials.
	ErrMissingAPIKey = core.ErrMissingAPIKey
	// ErrMalformedToolInput marks tool input that was not a JSON object.
	ErrMalformedToolInput = core.ErrMalformedToolInput
	// ErrMissingRegion and ErrMissingCredentials report incomplete AWS settings.
	ErrMissingRegion      = bedrock.ErrMissingRegion
	ErrMissingCredentials = bedrock.ErrMissingCredentials
)

// CollectTurn drains a stream into its text, tool calls and final usage.
func CollectTurn(stream *Stream) (TurnOutput, Usage, error) {
	return core.CollectTurn(stream)
}

// CloneMessages copies a message list so callers can append without aliasing.
func CloneMessages(messages []Message) []Message {
	return core.CloneMessages(messages)
}

// FindTool resolves a tool call against the offered tool descriptors.
func FindTool(call ToolCall, tools []*mcp.Tool) (*mcp.Tool, bool) {
	return bedrock.FindTool(call, tools)
}

// ToToolResponse builds the pending executor record for a tool call.
func ToToolResponse(call ToolCall, tool *mcp.Tool) ToolResponse {
	return bedrock.ToToolResponse(call, tool)
}

// BedrockModels lists the known Converse model ids.
func BedrockModels() []BedrockModel {
	return bedrock.Models()
}

// NewBedrockProvider validates credentials and constructs a Converse provider.
func NewBedrockProvider(cfg BedrockConfig) (*BedrockProvider, error) {
	return bedrock.New(cfg)
}

// NewAnthropicProvider constructs an Anthropic provider with normalized defaults.
func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	return anthropicprovider.New(cfg)
}
