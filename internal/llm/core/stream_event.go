package core

// TextStartChunk marks the beginning of a text run.
func TextStartChunk() Chunk {
	return Chunk{Type: ChunkTextStart}
}

// TextDeltaChunk carries one verbatim text fragment.
func TextDeltaChunk(text string) Chunk {
	return Chunk{Type: ChunkTextDelta, Text: text}
}

// ToolCallCreatedChunk announces materialized tool calls.
func ToolCallCreatedChunk(calls ...ToolCall) Chunk {
	cloned := make([]ToolCall, 0, len(calls))
	for _, call := range calls {
		cloned = append(cloned, call.Clone())
	}
	return Chunk{Type: ChunkToolCallCreated, ToolCalls: cloned}
}

// ResponseCompleteChunk is the terminal chunk of a turn.
func ResponseCompleteChunk(usage Usage, reason StopReason) Chunk {
	return Chunk{Type: ChunkResponseComplete, Usage: usage.Clone(), StopReason: reason}
}

// CollectTurn drains a chunk sequence into the turn output and final usage.
// It stops at the first error.
func CollectTurn(stream *Stream) (TurnOutput, Usage, error) {
	var out TurnOutput
	var usage Usage
	if stream == nil || stream.Chunks == nil {
		return out, usage, nil
	}
	for chunk, err := range stream.Chunks {
		if err != nil {
			return out, usage, err
		}
		switch chunk.Type {
		case ChunkTextDelta:
			out.Text += chunk.Text
		case ChunkToolCallCreated:
			for _, call := range chunk.ToolCalls {
				out.ToolCalls = append(out.ToolCalls, call.Clone())
			}
		case ChunkResponseComplete:
			if chunk.Usage != nil {
				usage = *chunk.Usage
			}
		}
	}
	return out, usage, nil
}
