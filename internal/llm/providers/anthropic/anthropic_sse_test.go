package anthropicprovider

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"converse/internal/llm/core"
)

const (
	sseMessageStart = `event: message_start
data: {"type":"message_start","message":{"usage":{"input_tokens":10,"output_tokens":0,"cache_read_input_tokens":0,"cache_creation_input_tokens":0}}}

`
	sseTextBlockStart = `event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

`
	sseMessageDelta = `event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":""},"usage":{"input_tokens":10,"output_tokens":2,"cache_read_input_tokens":0,"cache_creation_input_tokens":0}}

`
	sseMessageStop = `event: message_stop
data: {"type":"message_stop"}

`
)

func sseTextDelta(text string) string {
	return fmt.Sprintf(`event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":%q}}

`, text)
}

// writeSSE writes events as one flushed server-sent event stream.
func writeSSE(t *testing.T, w http.ResponseWriter, events ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	flusher, ok := w.(http.Flusher)
	if !ok {
		t.Errorf("response writer does not implement flusher")
		return
	}
	for _, chunk := range events {
		_, _ = fmt.Fprint(w, chunk)
		flusher.Flush()
	}
}

func userRequest(text string) *core.Request {
	return &core.Request{
		Model:     "claude-sonnet-4-20250514",
		MaxTokens: 128,
		Messages:  []core.ChatMessage{core.NewUserMessage(text)},
	}
}

// collectChunks drains the stream, returning chunks seen before the first error.
func collectChunks(stream *core.Stream) ([]core.Chunk, error) {
	var chunks []core.Chunk
	for chunk, err := range stream.Chunks {
		if err != nil {
			return chunks, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

// TestStreamEmitsTextDeltaAndComplete verifies basic text streaming emits start, delta and completion chunks.
func TestStreamEmitsTextDeltaAndComplete(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSSE(t, w, sseMessageStart, sseTextBlockStart, sseTextDelta("hi"), sseMessageDelta, sseMessageStop)
	}))
	defer server.Close()

	p := New(Config{
		APIKey:  "test-key",
		BaseURL: server.URL,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stream, err := p.Stream(ctx, userRequest("hello"))
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if len(stream.Messages) != 1 || stream.Messages[0].Text() != "hello" {
		t.Fatalf("unexpected sent messages: %+v", stream.Messages)
	}

	chunks, err := collectChunks(stream)
	if err != nil {
		t.Fatalf("stream error = %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("chunk count = %d, want 3: %+v", len(chunks), chunks)
	}
	if chunks[0].Type != core.ChunkTextStart {
		t.Fatalf("first chunk = %q, want text start", chunks[0].Type)
	}
	if chunks[1].Type != core.ChunkTextDelta || chunks[1].Text != "hi" {
		t.Fatalf("unexpected delta chunk: %+v", chunks[1])
	}
	done := chunks[2]
	if done.Type != core.ChunkResponseComplete {
		t.Fatalf("last chunk = %q, want response complete", done.Type)
	}
	if done.StopReason != "end_turn" {
		t.Fatalf("stop reason = %q, want end_turn", done.StopReason)
	}
	if done.Usage == nil || *done.Usage != core.NewUsage(10, 2) {
		t.Fatalf("unexpected usage: %+v", done.Usage)
	}
}

func TestStreamRequiresAPIKey(t *testing.T) {
	t.Parallel()

	p := New(Config{})
	if _, err := p.Stream(context.Background(), userRequest("hello")); err != core.ErrMissingAPIKey {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestStreamStopsWhenConsumerBreaks(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeSSE(t, w, sseMessageStart, sseTextBlockStart, sseTextDelta("a"), sseTextDelta("b"), sseMessageDelta, sseMessageStop)
	}))
	defer server.Close()

	p := New(Config{APIKey: "test-key", BaseURL: server.URL})
	stream, err := p.Stream(context.Background(), userRequest("hello"))
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	var seen int
	for chunk, err := range stream.Chunks {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		seen++
		if chunk.Type == core.ChunkTextDelta {
			break
		}
	}
	if seen != 2 {
		t.Fatalf("expected to stop after the first delta, saw %d chunks", seen)
	}
}
