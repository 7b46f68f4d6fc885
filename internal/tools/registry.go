package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"converse/internal/llm/core"
)

var (
	ErrToolRequired          = errors.New("tool is required")
	ErrToolNameRequired      = errors.New("tool name is required")
	ErrToolAlreadyRegistered = errors.New("tool already registered")
	ErrToolNotFound          = errors.New("tool not found")
)

// Tool is the runtime contract for all built-in tools. Descriptor is what the
// model sees; Execute receives the decoded tool input.
type Tool interface {
	Descriptor() *mcp.Tool
	Execute(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error)
}

// Registry stores tools by name and executes them by lookup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry constructs a tool registry and registers initial tools.
func NewRegistry(initial ...Tool) *Registry {
	r := &Registry{
		tools: make(map[string]Tool, len(initial)),
	}
	for _, tool := range initial {
		_ = r.Register(tool)
	}
	return r
}

// Register inserts a tool by its descriptor name.
func (r *Registry) Register(tool Tool) error {
	if tool == nil || tool.Descriptor() == nil {
		return ErrToolRequired
	}
	name := strings.TrimSpace(tool.Descriptor().Name)
	if name == "" {
		return ErrToolNameRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrToolAlreadyRegistered, name)
	}
	r.tools[name] = tool
	r.order = append(r.order, name)
	return nil
}

// Get returns a registered tool by name.
func (r *Registry) Get(name string) (Tool, error) {
	lookup := strings.TrimSpace(name)
	if lookup == "" {
		return nil, ErrToolNameRequired
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[lookup]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, lookup)
	}
	return tool, nil
}

// Descriptors lists tool descriptors in registration order.
func (r *Registry) Descriptors() []*mcp.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*mcp.Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Descriptor())
	}
	return out
}

// Execute resolves the named tool and runs it. Failures never escape as
// errors: they come back as an error result with resp.Status set to error so
// the model can see what went wrong.
func (r *Registry) Execute(ctx context.Context, resp core.ToolResponse) (core.ToolResponse, *mcp.CallToolResult) {
	tool, err := r.Get(resp.ToolName)
	if err != nil {
		resp.Status = core.ToolStatusError
		return resp, errorResult(err)
	}

	result, err := tool.Execute(ctx, resp.Arguments)
	switch {
	case err != nil:
		resp.Status = core.ToolStatusError
		return resp, errorResult(err)
	case result == nil:
		resp.Status = core.ToolStatusDone
		return resp, &mcp.CallToolResult{}
	case result.IsError:
		resp.Status = core.ToolStatusError
	default:
		resp.Status = core.ToolStatusDone
	}
	return resp, result
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func errorResult(err error) *mcp.CallToolResult {
	result := textResult(err.Error())
	result.IsError = true
	return result
}
