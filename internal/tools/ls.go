package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	lsToolName     = "ls"
	defaultLsLimit = 500
)

type lsParams struct {
	Path  string `json:"path,omitempty" jsonschema:"description=Directory to list (default: current directory)"`
	Limit *int   `json:"limit,omitempty" jsonschema:"description=Maximum number of entries to return (default: 500)"`
}

// LsTool lists directory contents.
type LsTool struct {
	workspaceRoot string
	descriptor    *mcp.Tool
}

// NewLsTool constructs the ls tool.
func NewLsTool(workspaceRoot string) LsTool {
	return LsTool{
		workspaceRoot: workspaceRoot,
		descriptor: mustDescriptor(lsToolName, fmt.Sprintf(
			"List directory contents sorted alphabetically, with '/' suffix for directories. Includes dotfiles. At most %d entries are returned by default.",
			defaultLsLimit,
		), lsParams{}),
	}
}

func (l LsTool) Descriptor() *mcp.Tool { return l.descriptor }

func (l LsTool) Execute(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var input lsParams
	if err := decodeArgs(args, &input); err != nil {
		return nil, fmt.Errorf("decode ls params: %w", err)
	}
	pathArg := strings.TrimSpace(input.Path)
	if pathArg == "" {
		pathArg = "."
	}
	limit := defaultLsLimit
	if input.Limit != nil {
		if *input.Limit <= 0 {
			return nil, errors.New("limit must be > 0")
		}
		limit = *input.Limit
	}

	dirPath, err := resolveWorkspacePath(l.workspaceRoot, pathArg, false)
	if err != nil {
		return nil, fmt.Errorf("resolve ls path: %w", err)
	}
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read directory %s: %w", pathArg, err)
	}
	if len(entries) == 0 {
		return textResult("(empty directory)"), nil
	}
	sort.Slice(entries, func(i, j int) bool {
		return strings.ToLower(entries[i].Name()) < strings.ToLower(entries[j].Name())
	})

	names := make([]string, 0, min(len(entries), limit))
	for _, entry := range entries[:min(len(entries), limit)] {
		name := entry.Name()
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}

	output := strings.Join(names, "\n")
	if len(entries) > limit {
		output += fmt.Sprintf("\n\n[%d entries limit reached. Use limit=%d for more]", limit, limit*2)
	}
	return textResult(output), nil
}
