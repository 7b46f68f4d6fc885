package tools

import (
	"fmt"
	"strings"
)

const (
	defaultMaxLines = 2000
	defaultMaxBytes = 50 * 1024
)

type truncationResult struct {
	Content               string
	Truncated             bool
	TotalLines            int
	OutputLines           int
	FirstLineExceedsLimit bool
}

type truncationOptions struct {
	MaxLines int
	MaxBytes int
}

func formatSize(bytes int) string {
	switch {
	case bytes < 1024:
		return fmt.Sprintf("%dB", bytes)
	case bytes < 1024*1024:
		return fmt.Sprintf("%.1fKB", float64(bytes)/1024.0)
	default:
		return fmt.Sprintf("%.1fMB", float64(bytes)/(1024.0*1024.0))
	}
}

// truncateHead keeps whole lines from the start until either limit is hit.
func truncateHead(content string, options truncationOptions) truncationResult {
	maxLines := options.MaxLines
	if maxLines <= 0 {
		maxLines = defaultMaxLines
	}
	maxBytes := options.MaxBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxBytes
	}

	lines := strings.Split(content, "\n")
	totalLines := len(lines)
	if totalLines <= maxLines && len(content) <= maxBytes {
		return truncationResult{Content: content, TotalLines: totalLines, OutputLines: totalLines}
	}
	if len(lines[0]) > maxBytes {
		return truncationResult{Truncated: true, TotalLines: totalLines, FirstLineExceedsLimit: true}
	}

	kept := make([]string, 0, min(totalLines, maxLines))
	used := 0
	for i, line := range lines {
		if i >= maxLines {
			break
		}
		size := len(line)
		if i > 0 {
			size++
		}
		if used+size > maxBytes {
			break
		}
		kept = append(kept, line)
		used += size
	}

	return truncationResult{
		Content:     strings.Join(kept, "\n"),
		Truncated:   true,
		TotalLines:  totalLines,
		OutputLines: len(kept),
	}
}
