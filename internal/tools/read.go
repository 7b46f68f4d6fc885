package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"converse/internal/media"
)

const readToolName = "read"

type readParams struct {
	Path   string `json:"path" jsonschema:"description=Path to the file to read (relative or absolute)"`
	Offset *int   `json:"offset,omitempty" jsonschema:"description=Line number to start reading from (1-indexed)"`
	Limit  *int   `json:"limit,omitempty" jsonschema:"description=Maximum number of lines to read"`
}

// ReadTool reads text files and images inside the workspace.
type ReadTool struct {
	workspaceRoot string
	maxLines      int
	maxBytes      int
	descriptor    *mcp.Tool
}

// NewReadTool constructs the read tool rooted at workspaceRoot; empty means the
// working directory.
func NewReadTool(workspaceRoot string) ReadTool {
	return ReadTool{
		workspaceRoot: workspaceRoot,
		maxLines:      defaultMaxLines,
		maxBytes:      defaultMaxBytes,
		descriptor: mustDescriptor(readToolName, fmt.Sprintf(
			"Read the contents of a file. Supports text files and images (jpg, png, gif, webp). Text output is truncated to %d lines or %dKB (whichever is hit first). Use offset/limit for large files.",
			defaultMaxLines,
			defaultMaxBytes/1024,
		), readParams{}),
	}
}

func (r ReadTool) Descriptor() *mcp.Tool { return r.descriptor }

func (r ReadTool) Execute(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var input readParams
	if err := decodeArgs(args, &input); err != nil {
		return nil, fmt.Errorf("decode read params: %w", err)
	}
	pathArg := strings.TrimSpace(input.Path)
	if pathArg == "" {
		return nil, errors.New("path is required")
	}

	path, err := resolveWorkspacePath(r.workspaceRoot, pathArg, false)
	if err != nil {
		return nil, fmt.Errorf("resolve read path: %w", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", pathArg, err)
	}

	if mimeType, ok := imageMimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		if _, err := media.FromBytes(mimeType, raw); err != nil {
			return nil, fmt.Errorf("read image %s: %w", pathArg, err)
		}
		return &mcp.CallToolResult{Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("Read image file [%s]", mimeType)},
			&mcp.ImageContent{Data: raw, MIMEType: mimeType},
		}}, nil
	}

	text, err := r.selectLines(string(raw), pathArg, input)
	if err != nil {
		return nil, err
	}
	return textResult(text), nil
}

// selectLines applies offset/limit and the output budget, appending a
// continuation hint when content was cut.
func (r ReadTool) selectLines(content, pathArg string, input readParams) (string, error) {
	allLines := strings.Split(content, "\n")
	totalFileLines := len(allLines)

	startLine := 1
	if input.Offset != nil {
		startLine = max(1, *input.Offset)
	}
	if startLine > totalFileLines {
		return "", fmt.Errorf("offset %d is beyond end of file (%d lines total)", startLine, totalFileLines)
	}

	selected := allLines[startLine-1:]
	userLimitedLines := -1
	if input.Limit != nil {
		if *input.Limit < 0 {
			return "", errors.New("limit must be >= 0")
		}
		selected = selected[:min(*input.Limit, len(selected))]
		userLimitedLines = len(selected)
	}

	truncation := truncateHead(strings.Join(selected, "\n"), truncationOptions{
		MaxLines: r.maxLines,
		MaxBytes: r.maxBytes,
	})

	switch {
	case truncation.FirstLineExceedsLimit:
		return fmt.Sprintf(
			"[Line %d is %s, exceeds %s limit]",
			startLine,
			formatSize(len(selected[0])),
			formatSize(r.maxBytes),
		), nil
	case truncation.Truncated:
		endLine := startLine + truncation.OutputLines - 1
		return truncation.Content + fmt.Sprintf(
			"\n\n[Showing lines %d-%d of %d. Use offset=%d to continue]",
			startLine, endLine, totalFileLines, endLine+1,
		), nil
	case userLimitedLines >= 0 && startLine-1+userLimitedLines < totalFileLines:
		next := startLine + userLimitedLines
		return truncation.Content + fmt.Sprintf(
			"\n\n[%d more lines in file. Use offset=%d to continue]",
			totalFileLines-next+1, next,
		), nil
	default:
		return truncation.Content, nil
	}
}

var imageMimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}
