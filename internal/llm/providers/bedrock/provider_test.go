package bedrock

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"converse/internal/llm/core"
	"converse/internal/metrics"
)

type recordingTransport struct {
	reply    *Reply
	err      error
	payloads []*RequestPayload
}

func (r *recordingTransport) Send(_ context.Context, payload *RequestPayload) (*Reply, error) {
	r.payloads = append(r.payloads, payload)
	return r.reply, r.err
}

func TestCredentialsValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, testCredentials.Validate())

	err := Credentials{AccessKeyID: "a", SecretAccessKey: "s"}.Validate()
	require.ErrorIs(t, err, ErrMissingRegion)
	require.Contains(t, err.Error(), "region")

	err = Credentials{Region: "us-east-1", AccessKeyID: "a"}.Validate()
	require.ErrorIs(t, err, ErrMissingCredentials)
	require.Contains(t, err.Error(), "credentials")
	require.Contains(t, err.Error(), "secret_access_key")
	require.NotContains(t, strings.ToLower(err.Error()), "region")

	err = Credentials{Region: "us-east-1"}.Validate()
	require.ErrorIs(t, err, ErrMissingCredentials)
	require.Contains(t, err.Error(), "access_key_id")
}

func TestNewFailsFastOnConfiguration(t *testing.T) {
	t.Parallel()

	transport := &recordingTransport{}
	_, err := New(Config{Credentials: Credentials{AccessKeyID: "a", SecretAccessKey: "s"}, Transport: transport})
	require.ErrorIs(t, err, ErrMissingRegion)

	_, err = New(Config{Credentials: Credentials{Region: "eu-west-1", AccessKeyID: "a"}, Transport: transport})
	require.ErrorIs(t, err, ErrMissingCredentials)
	require.Empty(t, transport.payloads)
}

func TestProviderStreamReturnsSentMessagesAndChunks(t *testing.T) {
	t.Parallel()

	src := &sliceSource{events: []RawEvent{
		{MessageStart: &MessageStartEvent{}},
		textDelta("Hi"),
		{MessageStop: &MessageStopEvent{StopReason: "end_turn"}},
		metadata(10, 3),
	}}
	transport := &recordingTransport{reply: &Reply{Events: src}}
	m := metrics.New()
	p, err := New(Config{Credentials: testCredentials, Transport: transport, Metrics: m})
	require.NoError(t, err)

	stream, err := p.Stream(context.Background(), &core.Request{
		Model:    "m",
		Messages: []core.ChatMessage{{Role: core.RoleSystem, Text: "ctx"}, core.NewUserMessage("hello")},
	})
	require.NoError(t, err)
	require.Len(t, transport.payloads, 1)
	require.Equal(t, transport.payloads[0].Messages, stream.Messages)
	require.Equal(t, core.RoleUser, stream.Messages[0].Role)

	out, usage, err := core.CollectTurn(stream)
	require.NoError(t, err)
	require.Equal(t, "Hi", out.Text)
	require.Equal(t, core.NewUsage(10, 3), usage)
	require.True(t, src.closed)
}

func TestProviderStreamCloseReleasesUnconsumedStream(t *testing.T) {
	t.Parallel()

	src := &sliceSource{events: []RawEvent{textDelta("never read")}}
	p, err := New(Config{Credentials: testCredentials, Transport: &recordingTransport{reply: &Reply{Events: src}}})
	require.NoError(t, err)

	stream, err := p.Stream(context.Background(), &core.Request{Model: "m", Messages: []core.ChatMessage{core.NewUserMessage("hi")}})
	require.NoError(t, err)
	require.False(t, src.closed)

	require.NoError(t, stream.Close())
	require.True(t, src.closed)
	require.Zero(t, src.pulled)
}

func TestProviderStreamCloseWithoutEventsIsNoop(t *testing.T) {
	t.Parallel()

	p, err := New(Config{Credentials: testCredentials, Transport: &recordingTransport{reply: &Reply{Response: &Response{}}}})
	require.NoError(t, err)

	stream, err := p.Stream(context.Background(), &core.Request{Model: "m"})
	require.NoError(t, err)
	require.NoError(t, stream.Close())
}

func TestProviderStreamSendError(t *testing.T) {
	t.Parallel()

	boom := errors.New("unauthorized")
	p, err := New(Config{Credentials: testCredentials, Transport: &recordingTransport{err: boom}})
	require.NoError(t, err)

	_, err = p.Stream(context.Background(), &core.Request{Model: "m"})
	require.ErrorIs(t, err, boom)

	_, err = p.Stream(context.Background(), nil)
	require.ErrorIs(t, err, core.ErrInvalidRequest)
}

func TestProviderRecursiveTurn(t *testing.T) {
	t.Parallel()

	transport := &recordingTransport{reply: &Reply{Response: &Response{Content: []ResponseBlock{{Text: ptr("done")}}}}}
	p, err := New(Config{Credentials: testCredentials, Transport: transport})
	require.NoError(t, err)

	prior := []core.Message{userText("what is a?")}
	out := core.TurnOutput{ToolCalls: []core.ToolCall{{ID: "t1", ToolUseID: "t1", Name: "lookup", Input: map[string]any{"a": 1.0}}}}
	resp := ToToolResponse(out.ToolCalls[0], &mcp.Tool{Name: "lookup"})
	result, ok := p.ToolResultMessage(resp, &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: "1"}}})
	require.True(t, ok)

	next := p.Reconcile(prior, out, []core.Message{result})
	require.Len(t, next, 3)
	require.Equal(t, core.RoleAssistant, next[1].Role)
	require.Equal(t, core.PartToolUse, next[1].Content[0].Type)
	require.Equal(t, "t1", next[2].Content[0].ToolResult.ToolUseID)
	require.Len(t, prior, 1)

	stream, err := p.Stream(context.Background(), &core.Request{Model: "m", Override: next})
	require.NoError(t, err)
	require.Equal(t, next, transport.payloads[0].Messages)

	text, _, err := core.CollectTurn(stream)
	require.NoError(t, err)
	require.Equal(t, "done", text.Text)

	final := p.Reconcile(stream.Messages, text, nil)
	require.Len(t, final, 4)
	require.Equal(t, "done", final[3].Text())
}
