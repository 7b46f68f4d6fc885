package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"converse/internal/agent"
	"converse/internal/llm"
	"converse/internal/tools"
)

type runOptions struct {
	Prompt   string
	System   string
	Images   []string
	NoStream bool
	Model    string
	MaxTurns int
	Registry *tools.Registry

	MaxTokens   int
	Temperature *float64
	TopP        *float64
	Timeout     time.Duration

	Logger *slog.Logger
}

// run executes one agent conversation, writing text deltas to out as they
// arrive.
func run(ctx context.Context, provider llm.Provider, opts runOptions, out io.Writer) error {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ag, err := agent.New(agent.Config{
		Provider:     provider,
		ToolRegistry: opts.Registry,
		MaxTurns:     opts.MaxTurns,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("create agent: %w", err)
	}

	events, err := ag.Run(ctx, buildRequest(opts))
	if err != nil {
		return err
	}

	var usage llm.Usage
	var reason llm.StopReason
	for ev, err := range events {
		if err != nil {
			return err
		}
		switch ev.Type {
		case agent.EventChunk:
			switch ev.Chunk.Type {
			case llm.ChunkTextDelta:
				if _, err := io.WriteString(out, ev.Chunk.Text); err != nil {
					return err
				}
			case llm.ChunkResponseComplete:
				reason = ev.Chunk.StopReason
			}
		case agent.EventToolCall:
			logger.Info("tool call", "tool", ev.Tool.ToolName, "tool_use_id", ev.Tool.ToolUseID)
		case agent.EventToolResult:
			logger.Info("tool result", "tool", ev.Tool.ToolName, "status", ev.Tool.Status)
		case agent.EventTurnComplete:
			usage = addUsage(usage, ev.Usage)
			logger.Debug("turn complete", "turn", ev.Turn, "tool_calls", len(ev.Output.ToolCalls))
		}
	}
	if _, err := io.WriteString(out, "\n"); err != nil {
		return err
	}
	logger.Info("conversation complete",
		"prompt_tokens", usage.PromptTokens,
		"completion_tokens", usage.CompletionTokens,
		"stop_reason", reason,
		"messages", len(ag.History()),
	)
	return nil
}

func buildRequest(opts runOptions) *llm.Request {
	msg := llm.ChatMessage{Role: llm.RoleUser, Text: opts.Prompt}
	for _, image := range opts.Images {
		image = strings.TrimSpace(image)
		if image == "" {
			continue
		}
		if strings.HasPrefix(image, "data:") {
			msg.Images = append(msg.Images, llm.ImageRef{URL: image})
			continue
		}
		msg.Images = append(msg.Images, llm.ImageRef{Path: image})
	}

	req := &llm.Request{
		Model:       opts.Model,
		System:      opts.System,
		Messages:    []llm.ChatMessage{msg},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		Timeout:     opts.Timeout,
	}
	if opts.NoStream {
		stream := false
		req.Stream = &stream
	}
	return req
}

func addUsage(total, turn llm.Usage) llm.Usage {
	return llm.Usage{
		PromptTokens:     total.PromptTokens + turn.PromptTokens,
		CompletionTokens: total.CompletionTokens + turn.CompletionTokens,
		TotalTokens:      total.TotalTokens + turn.TotalTokens,
	}
}
