package mockprovider

import (
	"context"
	"iter"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"converse/internal/llm/core"
	"converse/internal/llm/providers/bedrock"
)

// Provider replays scripted chunk turns for deterministic tests. Each Stream
// call consumes the next turn; tool results and reconciliation follow the
// Converse rules.
type Provider struct {
	Turns [][]core.Chunk
	Delay time.Duration

	mu       sync.Mutex
	next     int
	requests []core.Request
}

var _ core.Provider = (*Provider)(nil)

// Stream records req and returns the next scripted turn. Once the script is
// exhausted it replays an empty completion.
func (m *Provider) Stream(ctx context.Context, req *core.Request) (*core.Stream, error) {
	m.mu.Lock()
	var script []core.Chunk
	if m.next < len(m.Turns) {
		script = m.Turns[m.next]
	} else {
		script = []core.Chunk{core.ResponseCompleteChunk(core.Usage{}, "end_turn")}
	}
	m.next++
	if req != nil {
		m.requests = append(m.requests, *req)
	}
	m.mu.Unlock()

	var messages []core.Message
	if req != nil {
		payload, err := (&bedrock.Builder{}).Build(req)
		if err != nil {
			return nil, err
		}
		messages = payload.Messages
	}

	return &core.Stream{Messages: messages, Chunks: m.replay(ctx, script)}, nil
}

func (m *Provider) replay(ctx context.Context, script []core.Chunk) iter.Seq2[core.Chunk, error] {
	return func(yield func(core.Chunk, error) bool) {
		for _, chunk := range script {
			if m.Delay > 0 {
				if err := core.SleepContext(ctx, m.Delay); err != nil {
					yield(core.Chunk{}, err)
					return
				}
			}
			if err := ctx.Err(); err != nil {
				yield(core.Chunk{}, err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// Requests returns a copy of every request seen so far.
func (m *Provider) Requests() []core.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.Request(nil), m.requests...)
}

func (m *Provider) ToolResultMessage(resp core.ToolResponse, result *mcp.CallToolResult) (core.Message, bool) {
	return bedrock.ToolResultMessage(resp, result)
}

func (m *Provider) Reconcile(prior []core.Message, out core.TurnOutput, results []core.Message) []core.Message {
	if msg, ok := bedrock.AssistantToolUse(out); ok {
		return bedrock.Reconcile(append(core.CloneMessages(prior), msg), core.TurnOutput{}, results)
	}
	return bedrock.Reconcile(prior, out, results)
}
