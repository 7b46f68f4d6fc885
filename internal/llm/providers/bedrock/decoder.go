package bedrock

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"strings"

	"converse/internal/llm/core"
	"converse/internal/metrics"
)

// RawEvent is one Converse stream event. Members are dispatched by presence
// and more than one may be set on the same event.
type RawEvent struct {
	MessageStart      *MessageStartEvent
	ContentBlockStart *ContentBlockStartEvent
	ContentBlockDelta *ContentBlockDeltaEvent
	ContentBlockStop  *ContentBlockStopEvent
	MessageStop       *MessageStopEvent
	Metadata          *MetadataEvent
}

type MessageStartEvent struct {
	Role core.Role
}

// ToolUseStart opens a tool-use block.
type ToolUseStart struct {
	ToolUseID string
	Name      string
}

type ContentBlockStartEvent struct {
	BlockIndex *int
	ToolUse    *ToolUseStart
}

// ContentBlockDeltaEvent carries either a text fragment or a tool input JSON
// fragment.
type ContentBlockDeltaEvent struct {
	BlockIndex *int
	Text       *string
	ToolInput  *string
}

type ContentBlockStopEvent struct {
	BlockIndex *int
}

type MessageStopEvent struct {
	StopReason core.StopReason
}

type TokenUsage struct {
	InputTokens  *int
	OutputTokens *int
}

type MetadataEvent struct {
	Usage *TokenUsage
}

// EventSource yields raw events in arrival order. Next returns io.EOF once
// the stream ends normally.
type EventSource interface {
	Next(ctx context.Context) (RawEvent, error)
	Close() error
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

func WithLogger(logger *slog.Logger) DecoderOption {
	return func(d *Decoder) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) DecoderOption {
	return func(d *Decoder) {
		d.metrics = m
	}
}

// Decoder is the per-stream state machine turning raw events into canonical
// chunks. It is not safe for concurrent use and must not be reused across
// streams.
type Decoder struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	textStarted bool
	// jsonBuffer is shared by all block indices. Converse delivers one tool's
	// input fragments at a time, so interleaved tool blocks would mix here.
	jsonBuffer strings.Builder
	pending    map[int]*core.ToolCall

	stopReason core.StopReason
	completed  bool
}

func NewDecoder(opts ...DecoderOption) *Decoder {
	d := &Decoder{
		logger:  slog.Default(),
		pending: make(map[int]*core.ToolCall),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Done reports whether the terminal chunk has been produced.
func (d *Decoder) Done() bool {
	return d.completed
}

// Handle applies one raw event and returns the chunks it produced, in order.
// Events arriving after the terminal chunk are ignored.
func (d *Decoder) Handle(ev RawEvent) []core.Chunk {
	if d.completed {
		return nil
	}
	var out []core.Chunk

	if ev.MessageStart != nil {
		out = d.startText(out)
	}

	if start := ev.ContentBlockStart; start != nil && start.ToolUse != nil {
		idx := blockIndex(start.BlockIndex)
		d.pending[idx] = &core.ToolCall{
			ID:        start.ToolUse.ToolUseID,
			Name:      start.ToolUse.Name,
			ToolUseID: start.ToolUse.ToolUseID,
			Input:     map[string]any{},
		}
		d.logger.Debug("tool use started", "tool_use_id", start.ToolUse.ToolUseID, "name", start.ToolUse.Name, "block_index", idx)
	}

	if delta := ev.ContentBlockDelta; delta != nil {
		if delta.ToolInput != nil && *delta.ToolInput != "" {
			d.jsonBuffer.WriteString(*delta.ToolInput)
		}
		if delta.Text != nil && *delta.Text != "" {
			out = d.startText(out)
			out = append(out, core.TextDeltaChunk(*delta.Text))
		}
	}

	if stop := ev.ContentBlockStop; stop != nil {
		if chunk, ok := d.finishBlock(blockIndex(stop.BlockIndex)); ok {
			out = append(out, chunk)
		}
	}

	if ev.MessageStop != nil {
		d.stopReason = ev.MessageStop.StopReason
	}

	if ev.Metadata != nil {
		out = append(out, d.complete(ev.Metadata.Usage))
	}
	return out
}

// Finish closes a stream that ended without metadata so the terminal chunk is
// still produced exactly once.
func (d *Decoder) Finish() []core.Chunk {
	if d.completed {
		return nil
	}
	return []core.Chunk{d.complete(nil)}
}

func (d *Decoder) startText(out []core.Chunk) []core.Chunk {
	if d.textStarted {
		return out
	}
	d.textStarted = true
	return append(out, core.TextStartChunk())
}

func (d *Decoder) finishBlock(idx int) (core.Chunk, bool) {
	call, ok := d.pending[idx]
	if !ok {
		return core.Chunk{}, false
	}
	delete(d.pending, idx)
	if d.jsonBuffer.Len() == 0 {
		return core.Chunk{}, false
	}

	raw := d.jsonBuffer.String()
	d.jsonBuffer.Reset()
	input, err := core.ParseToolInput(raw)
	if err != nil {
		d.logger.Error("dropping tool call with malformed input",
			"tool_use_id", call.ToolUseID,
			"name", call.Name,
			"block_index", idx,
			"error", err,
		)
		d.metrics.DroppedToolCall(providerName)
		return core.Chunk{}, false
	}
	call.Input = input
	d.logger.Debug("tool call created", "tool_use_id", call.ToolUseID, "name", call.Name)
	return core.ToolCallCreatedChunk(*call), true
}

func (d *Decoder) complete(usage *TokenUsage) core.Chunk {
	d.completed = true
	var prompt, completion int
	if usage != nil {
		prompt = derefInt(usage.InputTokens)
		completion = derefInt(usage.OutputTokens)
	}
	return core.ResponseCompleteChunk(core.NewUsage(prompt, completion), d.stopReason)
}

// Decode lazily converts src into canonical chunks. Each range over the
// returned sequence pulls one raw event at a time with a fresh Decoder, and
// src is closed when the range ends for any reason. A transport error is
// yielded once and ends the sequence.
func Decode(ctx context.Context, src EventSource, opts ...DecoderOption) iter.Seq2[core.Chunk, error] {
	return func(yield func(core.Chunk, error) bool) {
		defer src.Close()
		d := NewDecoder(opts...)
		for {
			ev, err := src.Next(ctx)
			if errors.Is(err, io.EOF) {
				for _, chunk := range d.Finish() {
					if !yield(chunk, nil) {
						return
					}
				}
				return
			}
			if err != nil {
				yield(core.Chunk{}, err)
				return
			}
			d.logger.Debug("bedrock raw event", "event", describeEvent(ev))
			for _, chunk := range d.Handle(ev) {
				if !yield(chunk, nil) {
					return
				}
			}
			if d.Done() {
				return
			}
		}
	}
}

// Response is a complete non-streaming Converse reply.
type Response struct {
	Content    []ResponseBlock
	StopReason core.StopReason
	Usage      *TokenUsage
}

// ResponseBlock holds either Text or ToolUse.
type ResponseBlock struct {
	Text    *string
	ToolUse *ToolUseBlock
}

type ToolUseBlock struct {
	ToolUseID string
	Name      string
	Input     map[string]any
}

// DecodeResponse replays a one-shot reply through the same chunk contract:
// the joined text as a single delta, any tool uses, then the terminal chunk.
func DecodeResponse(resp *Response) iter.Seq2[core.Chunk, error] {
	return func(yield func(core.Chunk, error) bool) {
		if resp == nil {
			yield(core.ResponseCompleteChunk(core.Usage{}, ""), nil)
			return
		}

		var text strings.Builder
		var calls []core.ToolCall
		for _, block := range resp.Content {
			if block.Text != nil {
				text.WriteString(*block.Text)
			}
			if tu := block.ToolUse; tu != nil {
				input := tu.Input
				if input == nil {
					input = map[string]any{}
				}
				calls = append(calls, core.ToolCall{
					ID:        tu.ToolUseID,
					Name:      tu.Name,
					ToolUseID: tu.ToolUseID,
					Input:     input,
				})
			}
		}

		if text.Len() > 0 {
			if !yield(core.TextStartChunk(), nil) {
				return
			}
			if !yield(core.TextDeltaChunk(text.String()), nil) {
				return
			}
		}
		if len(calls) > 0 {
			if !yield(core.ToolCallCreatedChunk(calls...), nil) {
				return
			}
		}
		var prompt, completion int
		if resp.Usage != nil {
			prompt = derefInt(resp.Usage.InputTokens)
			completion = derefInt(resp.Usage.OutputTokens)
		}
		yield(core.ResponseCompleteChunk(core.NewUsage(prompt, completion), resp.StopReason), nil)
	}
}

func blockIndex(idx *int) int {
	if idx == nil {
		return 0
	}
	return *idx
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

func describeEvent(ev RawEvent) string {
	var kinds []string
	if ev.MessageStart != nil {
		kinds = append(kinds, "messageStart")
	}
	if ev.ContentBlockStart != nil {
		kinds = append(kinds, "contentBlockStart")
	}
	if ev.ContentBlockDelta != nil {
		kinds = append(kinds, "contentBlockDelta")
	}
	if ev.ContentBlockStop != nil {
		kinds = append(kinds, "contentBlockStop")
	}
	if ev.MessageStop != nil {
		kinds = append(kinds, "messageStop")
	}
	if ev.Metadata != nil {
		kinds = append(kinds, "metadata")
	}
	return strings.Join(kinds, ",")
}
