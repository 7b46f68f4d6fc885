package core

import (
	"context"
	"iter"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Provider turns a canonical request into a lazy canonical chunk sequence and
// knows how to carry tool results into the next recursive turn.
type Provider interface {
	Stream(ctx context.Context, req *Request) (*Stream, error)
	ToolResultMessage(resp ToolResponse, result *mcp.CallToolResult) (Message, bool)
	Reconcile(prior []Message, out TurnOutput, results []Message) []Message
}

// RetryPolicy configures retry/backoff behavior for retryable failures.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// Request is the provider-agnostic request for one model turn.
type Request struct {
	Model       string
	System      string
	Messages    []ChatMessage
	Tools       []*mcp.Tool
	MaxTokens   int
	Temperature *float64
	TopP        *float64
	// Stream defaults to true when nil.
	Stream *bool
	// Override, when non-empty, replaces the converted Messages verbatim. It is
	// set on recursive tool-use turns to resend the exact prior message list.
	Override []Message
	Timeout  time.Duration
}

// Streaming reports whether the request asks for a streamed reply.
func (r *Request) Streaming() bool {
	return r == nil || r.Stream == nil || *r.Stream
}

// Stream is a started model turn.
type Stream struct {
	// Messages is the message list actually sent, used to build the next turn.
	Messages []Message
	// Chunks yields canonical chunks; it may be ranged over once. Ending the
	// range for any reason releases the underlying transport.
	Chunks  iter.Seq2[Chunk, error]
	Timeout time.Duration
	// Release frees the transport when Chunks is never ranged over. Providers
	// that hold nothing between Stream and the first pull leave it nil.
	Release func() error
}

// Close releases the transport behind s. Callers that do not range over
// Chunks must call it; calling it after ranging is a no-op.
func (s *Stream) Close() error {
	if s == nil || s.Release == nil {
		return nil
	}
	return s.Release()
}

// ChunkType identifies canonical chunk variants.
type ChunkType string

const (
	ChunkTextStart        ChunkType = "text.start"
	ChunkTextDelta        ChunkType = "text.delta"
	ChunkToolCallCreated  ChunkType = "tool_call.created"
	ChunkResponseComplete ChunkType = "response.complete"
)

// StopReason is the vendor-reported reason a turn ended, passed through as-is.
type StopReason string

// ToolCall is a fully materialized tool invocation.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	ToolUseID string         `json:"tool_use_id"`
	Input     map[string]any `json:"input"`
}

// Clone copies the call so consumers may mutate Input freely.
func (c ToolCall) Clone() ToolCall {
	cloned := c
	if c.Input != nil {
		cloned.Input = make(map[string]any, len(c.Input))
		for k, v := range c.Input {
			cloned.Input[k] = v
		}
	}
	return cloned
}

// Chunk is the vendor-agnostic unit emitted by decoders.
type Chunk struct {
	Type       ChunkType
	Text       string
	ToolCalls  []ToolCall
	Usage      *Usage
	StopReason StopReason
}

// ToolStatus tracks an executor-facing tool call record.
type ToolStatus string

const (
	ToolStatusPending ToolStatus = "pending"
	ToolStatusDone    ToolStatus = "done"
	ToolStatusError   ToolStatus = "error"
)

// ToolResponse is handed to the tool executor and comes back with its status set.
type ToolResponse struct {
	ID         string
	ToolName   string
	Arguments  map[string]any
	Status     ToolStatus
	ToolUseID  string
	ToolCallID string
}

// TurnOutput is what a single model turn produced.
type TurnOutput struct {
	Text      string
	ToolCalls []ToolCall
}

// PlainText reports whether the turn is a text-only answer.
func (o TurnOutput) PlainText() bool {
	return len(o.ToolCalls) == 0 && o.Text != ""
}
