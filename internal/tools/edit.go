package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var (
	ErrEditOldTextNotFound  = errors.New("old text not found in file")
	ErrEditOldTextNotUnique = errors.New("old text matched multiple times; set replace_all to true")
)

const editToolName = "edit"

type editParams struct {
	Path       string `json:"path" jsonschema:"description=Path of the file to edit"`
	Old        string `json:"old" jsonschema:"description=Exact text to replace"`
	New        string `json:"new" jsonschema:"description=Replacement text"`
	ReplaceAll bool   `json:"replace_all,omitempty" jsonschema:"description=Replace every occurrence"`
}

// EditTool performs string replacement in an existing file.
type EditTool struct {
	workspaceRoot string
	descriptor    *mcp.Tool
}

// NewEditTool constructs the edit tool.
func NewEditTool(workspaceRoot string) EditTool {
	return EditTool{
		workspaceRoot: workspaceRoot,
		descriptor: mustDescriptor(editToolName,
			"Replace text in an existing file using str_replace semantics.",
			editParams{}),
	}
}

func (e EditTool) Descriptor() *mcp.Tool { return e.descriptor }

func (e EditTool) Execute(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var input editParams
	if err := decodeArgs(args, &input); err != nil {
		return nil, fmt.Errorf("decode edit params: %w", err)
	}
	if strings.TrimSpace(input.Path) == "" {
		return nil, errors.New("path is required")
	}
	if input.Old == "" {
		return nil, errors.New("old is required")
	}

	path, err := resolveWorkspacePath(e.workspaceRoot, input.Path, false)
	if err != nil {
		return nil, fmt.Errorf("resolve edit path: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", input.Path, err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", input.Path, err)
	}

	original := string(raw)
	occurrences := strings.Count(original, input.Old)
	if occurrences == 0 {
		return nil, ErrEditOldTextNotFound
	}
	if occurrences > 1 && !input.ReplaceAll {
		return nil, ErrEditOldTextNotUnique
	}

	replaced := 1
	if input.ReplaceAll {
		replaced = occurrences
	}
	updated := strings.Replace(original, input.Old, input.New, replaced)
	if err := os.WriteFile(path, []byte(updated), info.Mode()); err != nil {
		return nil, fmt.Errorf("write %s: %w", input.Path, err)
	}

	return textResult(fmt.Sprintf("Replaced %d occurrence(s) in %s", replaced, input.Path)), nil
}
