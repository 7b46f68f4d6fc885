package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const writeToolName = "write"

type writeParams struct {
	Path    string `json:"path" jsonschema:"description=Path of the file to write"`
	Content string `json:"content" jsonschema:"description=Full file content"`
}

// WriteTool writes whole-file content inside the workspace.
type WriteTool struct {
	workspaceRoot string
	descriptor    *mcp.Tool
}

// NewWriteTool constructs the write tool.
func NewWriteTool(workspaceRoot string) WriteTool {
	return WriteTool{
		workspaceRoot: workspaceRoot,
		descriptor: mustDescriptor(writeToolName,
			"Write full file content to disk, creating parent directories when needed.",
			writeParams{}),
	}
}

func (w WriteTool) Descriptor() *mcp.Tool { return w.descriptor }

func (w WriteTool) Execute(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var input writeParams
	if err := decodeArgs(args, &input); err != nil {
		return nil, fmt.Errorf("decode write params: %w", err)
	}
	if strings.TrimSpace(input.Path) == "" {
		return nil, errors.New("path is required")
	}

	path, err := resolveWorkspacePath(w.workspaceRoot, input.Path, true)
	if err != nil {
		return nil, fmt.Errorf("resolve write path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir parent for %s: %w", input.Path, err)
	}
	if err := os.WriteFile(path, []byte(input.Content), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", input.Path, err)
	}

	return textResult(fmt.Sprintf("Wrote %d bytes to %s", len(input.Content), input.Path)), nil
}
