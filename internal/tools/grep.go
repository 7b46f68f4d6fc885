package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	grepToolName     = "grep"
	defaultGrepLimit = 100
	grepMaxLineLen   = 500
)

type grepParams struct {
	Pattern    string `json:"pattern" jsonschema:"description=Search pattern (regex or literal string)"`
	Path       string `json:"path,omitempty" jsonschema:"description=Directory or file to search (default: current directory)"`
	Glob       string `json:"glob,omitempty" jsonschema:"description=Only search files whose name matches this glob, e.g. '*.go'"`
	IgnoreCase bool   `json:"ignoreCase,omitempty" jsonschema:"description=Case-insensitive search (default: false)"`
	Literal    bool   `json:"literal,omitempty" jsonschema:"description=Treat pattern as a literal string instead of a regex (default: false)"`
	Context    *int   `json:"context,omitempty" jsonschema:"description=Lines to show before and after each match (default: 0)"`
	Limit      *int   `json:"limit,omitempty" jsonschema:"description=Maximum number of matches to return (default: 100)"`
}

type grepMatch struct {
	file string
	line int
}

// GrepTool searches file content by pattern.
type GrepTool struct {
	workspaceRoot string
	descriptor    *mcp.Tool
}

// NewGrepTool constructs the grep tool.
func NewGrepTool(workspaceRoot string) GrepTool {
	return GrepTool{
		workspaceRoot: workspaceRoot,
		descriptor: mustDescriptor(grepToolName, fmt.Sprintf(
			"Search file contents for a pattern. Returns matching lines with file paths and line numbers. Output is truncated to %d matches or %s. Long lines are truncated to %d chars.",
			defaultGrepLimit, formatSize(defaultMaxBytes), grepMaxLineLen,
		), grepParams{}),
	}
}

func (g GrepTool) Descriptor() *mcp.Tool { return g.descriptor }

func (g GrepTool) Execute(ctx context.Context, args map[string]any) (*mcp.CallToolResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var input grepParams
	if err := decodeArgs(args, &input); err != nil {
		return nil, fmt.Errorf("decode grep params: %w", err)
	}
	pattern := strings.TrimSpace(input.Pattern)
	if pattern == "" {
		return nil, errors.New("pattern is required")
	}
	pathArg := strings.TrimSpace(input.Path)
	if pathArg == "" {
		pathArg = "."
	}
	contextLines := 0
	if input.Context != nil {
		if *input.Context < 0 {
			return nil, errors.New("context must be >= 0")
		}
		contextLines = *input.Context
	}
	limit := defaultGrepLimit
	if input.Limit != nil {
		if *input.Limit <= 0 {
			return nil, errors.New("limit must be > 0")
		}
		limit = *input.Limit
	}

	expr := pattern
	if input.Literal {
		expr = regexp.QuoteMeta(expr)
	}
	if input.IgnoreCase {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}

	searchPath, err := resolveWorkspacePath(g.workspaceRoot, pathArg, false)
	if err != nil {
		return nil, fmt.Errorf("resolve grep path: %w", err)
	}
	info, err := os.Stat(searchPath)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", pathArg, err)
	}

	files, err := collectGrepFiles(ctx, searchPath, info.IsDir())
	if err != nil {
		return nil, err
	}

	display := func(file string) string {
		if !info.IsDir() {
			return filepath.Base(file)
		}
		if rel, err := filepath.Rel(searchPath, file); err == nil {
			return filepath.ToSlash(rel)
		}
		return file
	}

	glob := strings.TrimSpace(input.Glob)
	matches := make([]grepMatch, 0, min(limit, 64))
	fileLines := make(map[string][]string, len(files))

scan:
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if glob != "" {
			if ok, _ := filepath.Match(glob, filepath.Base(file)); !ok {
				continue
			}
		}
		raw, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		lines := strings.Split(strings.ReplaceAll(string(raw), "\r\n", "\n"), "\n")
		fileLines[file] = lines
		for idx, line := range lines {
			if !re.MatchString(line) {
				continue
			}
			matches = append(matches, grepMatch{file: file, line: idx + 1})
			if len(matches) >= limit {
				break scan
			}
		}
	}

	if len(matches) == 0 {
		return textResult("No matches found"), nil
	}

	out := make([]string, 0, len(matches)*(1+2*contextLines))
	linesTruncated := false
	for _, match := range matches {
		lines := fileLines[match.file]
		name := display(match.file)
		start := max(1, match.line-contextLines)
		end := min(len(lines), match.line+contextLines)
		for n := start; n <= end; n++ {
			text := lines[n-1]
			if len(text) > grepMaxLineLen {
				text = text[:grepMaxLineLen] + "..."
				linesTruncated = true
			}
			if n == match.line {
				out = append(out, fmt.Sprintf("%s:%d: %s", name, n, text))
			} else {
				out = append(out, fmt.Sprintf("%s-%d- %s", name, n, text))
			}
		}
	}

	truncation := truncateHead(strings.Join(out, "\n"), truncationOptions{MaxLines: len(out) + 1, MaxBytes: defaultMaxBytes})
	output := truncation.Content

	var notices []string
	if len(matches) >= limit {
		notices = append(notices, fmt.Sprintf("%d matches limit reached. Use limit=%d for more, or refine pattern", limit, limit*2))
	}
	if truncation.Truncated {
		notices = append(notices, fmt.Sprintf("%s limit reached", formatSize(defaultMaxBytes)))
	}
	if linesTruncated {
		notices = append(notices, fmt.Sprintf("Some lines truncated to %d chars. Use read tool to see full lines", grepMaxLineLen))
	}
	if len(notices) > 0 {
		output += "\n\n[" + strings.Join(notices, ". ") + "]"
	}
	return textResult(output), nil
}

func collectGrepFiles(ctx context.Context, searchPath string, isDir bool) ([]string, error) {
	if !isDir {
		return []string{searchPath}, nil
	}

	var files []string
	err := filepath.WalkDir(searchPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != searchPath && (d.Name() == ".git" || d.Name() == "node_modules") {
				return filepath.SkipDir
			}
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("grep walk: %w", err)
	}
	return files, nil
}
