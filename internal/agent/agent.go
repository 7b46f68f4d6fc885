package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"converse/internal/llm"
	"converse/internal/tools"
)

const defaultMaxTurns = 50

const (
	maxToolResultContentLen = 10_000
	toolResultHeadLen       = 4_000
	toolResultTailLen       = 4_000
	toolResultTruncateMark  = "\n...[truncated]...\n"
)

var (
	// ErrProviderRequired indicates missing LLM provider dependency.
	ErrProviderRequired = errors.New("provider is required")
	// ErrAgentBusy indicates an attempt to start a new run while one is active.
	ErrAgentBusy = errors.New("agent is already running")
	// ErrRequestRequired indicates missing run request.
	ErrRequestRequired = errors.New("request is required")
	// ErrMaxTurnsExceeded indicates the loop reached the configured turn limit.
	ErrMaxTurnsExceeded = errors.New("max turns exceeded")
)

// EventType identifies agent event variants.
type EventType string

const (
	// EventChunk forwards one provider chunk.
	EventChunk EventType = "chunk"
	// EventToolCall is emitted before a tool runs.
	EventToolCall EventType = "tool_call"
	// EventToolResult carries the executed tool's status and output.
	EventToolResult EventType = "tool_result"
	// EventTurnComplete closes one model turn with its collected output.
	EventTurnComplete EventType = "turn_complete"
)

// Event is one step of an agent run.
type Event struct {
	Type   EventType
	Turn   int
	Chunk  llm.Chunk
	Tool   *llm.ToolResponse
	Result *mcp.CallToolResult
	Output llm.TurnOutput
	Usage  llm.Usage
}

// Config configures Agent creation.
type Config struct {
	Provider     llm.Provider
	ToolRegistry *tools.Registry
	MaxTurns     int
	Logger       *slog.Logger
}

// Agent runs the recursive model/tool loop: stream a turn, execute the tool
// calls it produced, reconcile the results into the history and stream again
// with that history until the model answers with text only.
type Agent struct {
	provider     llm.Provider
	toolRegistry *tools.Registry
	maxTurns     int
	logger       *slog.Logger

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	history []llm.Message
}

// New creates an agent with explicit dependencies.
func New(cfg Config) (*Agent, error) {
	if cfg.Provider == nil {
		return nil, ErrProviderRequired
	}

	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Agent{
		provider:     cfg.Provider,
		toolRegistry: cfg.ToolRegistry,
		maxTurns:     maxTurns,
		logger:       logger,
		state:        StateIdle,
	}, nil
}

// Run returns the event sequence of one conversation. The run starts when the
// sequence is ranged over; breaking out of the loop cancels it. When req has
// no tools the registry's descriptors are offered.
func (a *Agent) Run(ctx context.Context, req *llm.Request) (iter.Seq2[Event, error], error) {
	if req == nil {
		return nil, ErrRequestRequired
	}
	request := cloneRequest(req)
	if len(request.Tools) == 0 && a.toolRegistry != nil {
		request.Tools = a.toolRegistry.Descriptors()
	}

	return func(yield func(Event, error) bool) {
		runCtx, err := a.begin(ctx)
		if err != nil {
			yield(Event{}, err)
			return
		}
		defer a.finishRun()

		if err := a.loop(runCtx, request, yield); err != nil && !errors.Is(err, errConsumerStopped) {
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				a.setState(StateError)
			}
			yield(Event{}, err)
		}
	}, nil
}

var errConsumerStopped = errors.New("agent: consumer stopped")

func (a *Agent) loop(ctx context.Context, request *llm.Request, yield func(Event, error) bool) error {
	emit := func(ev Event) error {
		if !yield(ev, nil) {
			return errConsumerStopped
		}
		return nil
	}

	for turn := 0; turn < a.maxTurns; turn++ {
		a.setState(StateStreaming)
		stream, err := a.provider.Stream(ctx, request)
		if err != nil {
			return fmt.Errorf("turn %d: %w", turn, err)
		}

		var out llm.TurnOutput
		var usage llm.Usage
		for chunk, err := range stream.Chunks {
			if err != nil {
				return fmt.Errorf("turn %d: %w", turn, err)
			}
			switch chunk.Type {
			case llm.ChunkTextDelta:
				out.Text += chunk.Text
			case llm.ChunkToolCallCreated:
				out.ToolCalls = append(out.ToolCalls, chunk.ToolCalls...)
			case llm.ChunkResponseComplete:
				if chunk.Usage != nil {
					usage = *chunk.Usage
				}
			}
			if err := emit(Event{Type: EventChunk, Turn: turn, Chunk: chunk}); err != nil {
				return err
			}
		}
		if err := emit(Event{Type: EventTurnComplete, Turn: turn, Output: out, Usage: usage}); err != nil {
			return err
		}

		if len(out.ToolCalls) == 0 {
			a.setHistory(a.provider.Reconcile(stream.Messages, out, nil))
			return nil
		}

		results, err := a.runTools(ctx, turn, request, out.ToolCalls, emit)
		if err != nil {
			return err
		}
		next := a.provider.Reconcile(stream.Messages, out, results)
		a.setHistory(next)
		request.Override = next
	}

	return ErrMaxTurnsExceeded
}

// runTools executes calls in order and converts each result into a tool
// result message. Results without a correlation id are dropped.
func (a *Agent) runTools(
	ctx context.Context,
	turn int,
	request *llm.Request,
	calls []llm.ToolCall,
	emit func(Event) error,
) ([]llm.Message, error) {
	a.setState(StateToolExecuting)

	results := make([]llm.Message, 0, len(calls))
	for _, call := range calls {
		tool, found := llm.FindTool(call, request.Tools)
		resp := llm.ToToolResponse(call, tool)
		if err := emit(Event{Type: EventToolCall, Turn: turn, Tool: &resp}); err != nil {
			return nil, err
		}

		var result *mcp.CallToolResult
		switch {
		case !found || a.toolRegistry == nil:
			a.logger.Warn("model requested unknown tool", "tool", call.Name, "tool_use_id", call.ToolUseID)
			resp.Status = llm.ToolStatusError
			result = &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("tool %q is not available", call.Name)}},
				IsError: true,
			}
		default:
			resp, result = a.toolRegistry.Execute(ctx, resp)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		truncateToolResult(result)

		if err := emit(Event{Type: EventToolResult, Turn: turn, Tool: &resp, Result: result}); err != nil {
			return nil, err
		}
		if msg, ok := a.provider.ToolResultMessage(resp, result); ok {
			results = append(results, msg)
		}
	}
	return results, nil
}

// Cancel requests cancellation of the current run, if any.
func (a *Agent) Cancel() {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// State returns the current agent state.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// History returns the message list of the last completed turn, ready to be
// sent as the next request's Override.
func (a *Agent) History() []llm.Message {
	a.mu.Lock()
	defer a.mu.Unlock()
	return llm.CloneMessages(a.history)
}

func (a *Agent) begin(ctx context.Context) (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.Busy() {
		return nil, ErrAgentBusy
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.state = StateStreaming
	return runCtx, nil
}

func (a *Agent) finishRun() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
	}
	a.cancel = nil
	if a.state != StateError {
		a.state = StateIdle
	}
}

func (a *Agent) setState(next State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = next
}

func (a *Agent) setHistory(messages []llm.Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = llm.CloneMessages(messages)
}

func truncateToolResult(result *mcp.CallToolResult) {
	if result == nil {
		return
	}
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			text.Text = truncateToolResultContent(text.Text)
		}
	}
}

func truncateToolResultContent(content string) string {
	if len(content) <= maxToolResultContentLen {
		return content
	}
	return content[:toolResultHeadLen] + toolResultTruncateMark + content[len(content)-toolResultTailLen:]
}

func cloneRequest(req *llm.Request) *llm.Request {
	cloned := *req
	cloned.Messages = append([]llm.ChatMessage(nil), req.Messages...)
	cloned.Tools = append([]*mcp.Tool(nil), req.Tools...)
	cloned.Override = llm.CloneMessages(req.Override)
	if req.Temperature != nil {
		value := *req.Temperature
		cloned.Temperature = &value
	}
	if req.TopP != nil {
		value := *req.TopP
		cloned.TopP = &value
	}
	return &cloned
}
