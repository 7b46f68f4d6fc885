package core

import "testing"

func TestMessageTextJoinsTextParts(t *testing.T) {
	t.Parallel()

	msg := Message{
		Role: RoleAssistant,
		Content: []Part{
			TextPart("Hi"),
			ImageContent(ImageFormatPNG, []byte{1}),
			TextPart(" there"),
		},
	}
	if got := msg.Text(); got != "Hi there" {
		t.Fatalf("Text() = %q, want %q", got, "Hi there")
	}
}

func TestChatMessagePrimaryTextTrims(t *testing.T) {
	t.Parallel()

	if got := NewUserMessage("  hello \n").PrimaryText(); got != "hello" {
		t.Fatalf("PrimaryText() = %q, want %q", got, "hello")
	}
}

func TestNewUsageSumsTotal(t *testing.T) {
	t.Parallel()

	usage := NewUsage(10, 3)
	if usage.TotalTokens != 13 {
		t.Fatalf("TotalTokens = %d, want 13", usage.TotalTokens)
	}
	cloned := usage.Clone()
	cloned.PromptTokens = 99
	if usage.PromptTokens != 10 {
		t.Fatalf("Clone() aliased the source usage")
	}
}

func TestCloneMessagesDoesNotAlias(t *testing.T) {
	t.Parallel()

	src := []Message{{Role: RoleUser, Content: []Part{TextPart("a")}}}
	cloned := CloneMessages(src)
	cloned[0].Content[0] = TextPart("b")
	cloned[0].Content = append(cloned[0].Content, TextPart("c"))

	if src[0].Content[0].Text != "a" || len(src[0].Content) != 1 {
		t.Fatalf("source mutated: %#v", src)
	}
	if CloneMessages(nil) != nil {
		t.Fatalf("CloneMessages(nil) should be nil")
	}
}

func TestRequestStreamingDefaultsTrue(t *testing.T) {
	t.Parallel()

	off := false
	if !(&Request{}).Streaming() {
		t.Fatalf("nil Stream should default to streaming")
	}
	if (&Request{Stream: &off}).Streaming() {
		t.Fatalf("explicit false should disable streaming")
	}
}

func TestTurnOutputPlainText(t *testing.T) {
	t.Parallel()

	if (TurnOutput{}).PlainText() {
		t.Fatalf("empty output is not plain text")
	}
	if !(TurnOutput{Text: "ok"}).PlainText() {
		t.Fatalf("text-only output should be plain text")
	}
	if (TurnOutput{Text: "ok", ToolCalls: []ToolCall{{ID: "t1"}}}).PlainText() {
		t.Fatalf("output with tool calls is not plain text")
	}
}

func TestStreamCloseCallsReleaseWhenSet(t *testing.T) {
	t.Parallel()

	var nilStream *Stream
	if err := nilStream.Close(); err != nil {
		t.Fatalf("nil Stream.Close() error = %v", err)
	}
	if err := (&Stream{}).Close(); err != nil {
		t.Fatalf("Stream.Close() without Release error = %v", err)
	}

	released := 0
	s := &Stream{Release: func() error { released++; return nil }}
	if err := s.Close(); err != nil {
		t.Fatalf("Stream.Close() error = %v", err)
	}
	if released != 1 {
		t.Fatalf("released = %d, want 1", released)
	}
}
