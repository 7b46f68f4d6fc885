package bedrock

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"converse/internal/llm/core"
)

var testCredentials = Credentials{Region: "us-east-1", AccessKeyID: "AKID", SecretAccessKey: "SECRET"}

type fakeReader struct {
	events chan types.ConverseStreamOutput
	err    error
	closed bool
}

func newFakeReader(events ...types.ConverseStreamOutput) *fakeReader {
	ch := make(chan types.ConverseStreamOutput, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return &fakeReader{events: ch}
}

func (r *fakeReader) Events() <-chan types.ConverseStreamOutput { return r.events }
func (r *fakeReader) Close() error                             { r.closed = true; return nil }
func (r *fakeReader) Err() error                               { return r.err }

type fakeAPI struct {
	converseErrs []error
	streamErrs   []error
	reader       *fakeReader
	output       *bedrockruntime.ConverseOutput
	calls        int
	streamInput  *bedrockruntime.ConverseStreamInput
	deadline     bool
}

func (f *fakeAPI) Converse(ctx context.Context, in *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error) {
	f.calls++
	_, f.deadline = ctx.Deadline()
	if len(f.converseErrs) > 0 {
		err := f.converseErrs[0]
		f.converseErrs = f.converseErrs[1:]
		return nil, err
	}
	return f.output, nil
}

func (f *fakeAPI) ConverseStream(ctx context.Context, in *bedrockruntime.ConverseStreamInput) (StreamReader, error) {
	f.calls++
	f.streamInput = in
	_, f.deadline = ctx.Deadline()
	if len(f.streamErrs) > 0 {
		err := f.streamErrs[0]
		f.streamErrs = f.streamErrs[1:]
		return nil, err
	}
	return f.reader, nil
}

func streamPayload() *RequestPayload {
	return &RequestPayload{
		ModelID:     "m",
		Messages:    []core.Message{{Role: core.RoleUser, Content: []core.Part{core.TextPart("hi")}}},
		System:      "sys",
		MaxTokens:   DefaultMaxTokens,
		Temperature: 0.7,
		TopP:        1,
		Stream:      true,
		Timeout:     time.Minute,
	}
}

func TestSDKTransportStreamsSDKEvents(t *testing.T) {
	t.Parallel()

	reader := newFakeReader(
		&types.ConverseStreamOutputMemberMessageStart{Value: types.MessageStartEvent{Role: types.ConversationRoleAssistant}},
		&types.ConverseStreamOutputMemberContentBlockDelta{Value: types.ContentBlockDeltaEvent{
			ContentBlockIndex: aws.Int32(0),
			Delta:             &types.ContentBlockDeltaMemberText{Value: "Hi"},
		}},
		&types.ConverseStreamOutputMemberContentBlockStop{Value: types.ContentBlockStopEvent{ContentBlockIndex: aws.Int32(0)}},
		&types.ConverseStreamOutputMemberContentBlockStart{Value: types.ContentBlockStartEvent{
			ContentBlockIndex: aws.Int32(1),
			Start:             &types.ContentBlockStartMemberToolUse{Value: types.ToolUseBlockStart{Name: aws.String("lookup"), ToolUseId: aws.String("t1")}},
		}},
		&types.ConverseStreamOutputMemberContentBlockDelta{Value: types.ContentBlockDeltaEvent{
			ContentBlockIndex: aws.Int32(1),
			Delta:             &types.ContentBlockDeltaMemberToolUse{Value: types.ToolUseBlockDelta{Input: aws.String(`{"a":`)}},
		}},
		&types.ConverseStreamOutputMemberContentBlockDelta{Value: types.ContentBlockDeltaEvent{
			ContentBlockIndex: aws.Int32(1),
			Delta:             &types.ContentBlockDeltaMemberToolUse{Value: types.ToolUseBlockDelta{Input: aws.String(`1}`)}},
		}},
		&types.ConverseStreamOutputMemberContentBlockStop{Value: types.ContentBlockStopEvent{ContentBlockIndex: aws.Int32(1)}},
		&types.ConverseStreamOutputMemberMessageStop{Value: types.MessageStopEvent{StopReason: types.StopReasonToolUse}},
		&types.ConverseStreamOutputMemberMetadata{Value: types.ConverseStreamMetadataEvent{
			Usage: &types.TokenUsage{InputTokens: aws.Int32(10), OutputTokens: aws.Int32(3), TotalTokens: aws.Int32(13)},
		}},
	)
	api := &fakeAPI{reader: reader}
	transport := &SDKTransport{API: api}

	reply, err := transport.Send(context.Background(), streamPayload())
	require.NoError(t, err)
	require.NotNil(t, reply.Events)
	require.True(t, api.deadline)
	require.Equal(t, "m", aws.ToString(api.streamInput.ModelId))
	require.Len(t, api.streamInput.System, 1)
	require.Nil(t, api.streamInput.ToolConfig)
	require.Equal(t, int32(DefaultMaxTokens), aws.ToInt32(api.streamInput.InferenceConfig.MaxTokens))

	var chunks []core.Chunk
	for chunk, err := range Decode(context.Background(), reply.Events) {
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
	require.Equal(t, []core.ChunkType{
		core.ChunkTextStart,
		core.ChunkTextDelta,
		core.ChunkToolCallCreated,
		core.ChunkResponseComplete,
	}, chunkTypes(chunks))
	require.Equal(t, map[string]any{"a": float64(1)}, chunks[2].ToolCalls[0].Input)
	require.Equal(t, core.StopReason("tool_use"), chunks[3].StopReason)
	require.Equal(t, 13, chunks[3].Usage.TotalTokens)
	require.True(t, reader.closed)
}

func TestSDKTransportStreamErrorSurfaces(t *testing.T) {
	t.Parallel()

	reader := newFakeReader(&types.ConverseStreamOutputMemberMessageStart{Value: types.MessageStartEvent{}})
	reader.err = errors.New("stream broke")
	reply, err := (&SDKTransport{API: &fakeAPI{reader: reader}}).Send(context.Background(), streamPayload())
	require.NoError(t, err)

	var gotErr error
	for _, err := range Decode(context.Background(), reply.Events) {
		if err != nil {
			gotErr = err
		}
	}
	require.ErrorContains(t, gotErr, "stream broke")
}

func TestSDKTransportRetriesThrottlingBeforeStream(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		streamErrs: []error{&smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}},
		reader:     newFakeReader(),
	}
	transport := &SDKTransport{API: api, Retry: core.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}}

	reply, err := transport.Send(context.Background(), streamPayload())
	require.NoError(t, err)
	require.NotNil(t, reply.Events)
	require.Equal(t, 2, api.calls)
	require.NoError(t, reply.Events.Close())
}

func TestSDKTransportLogsRetryOnlyWhenAnotherAttemptFollows(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	throttled := &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}
	api := &fakeAPI{streamErrs: []error{throttled, throttled}}
	transport := &SDKTransport{
		API:    api,
		Retry:  core.RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Logger: slog.New(slog.NewTextHandler(&logs, nil)),
	}

	_, err := transport.Send(context.Background(), streamPayload())
	require.ErrorIs(t, err, throttled)
	require.Equal(t, 2, api.calls)
	require.Equal(t, 1, bytes.Count(logs.Bytes(), []byte("retrying")))
	require.Equal(t, 1, bytes.Count(logs.Bytes(), []byte("retries exhausted")))
}

func TestSDKTransportRetriesDisabledLogsNoRetry(t *testing.T) {
	t.Parallel()

	var logs bytes.Buffer
	throttled := &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}
	api := &fakeAPI{streamErrs: []error{throttled}}
	transport := &SDKTransport{
		API:    api,
		Retry:  core.RetryPolicy{MaxRetries: -1},
		Logger: slog.New(slog.NewTextHandler(&logs, nil)),
	}

	_, err := transport.Send(context.Background(), streamPayload())
	require.ErrorIs(t, err, throttled)
	require.Equal(t, 1, api.calls)
	require.NotContains(t, logs.String(), "retrying")
}

func TestStreamSourceCloseIsIdempotent(t *testing.T) {
	t.Parallel()

	reader := newFakeReader()
	canceled := 0
	src := &streamSource{reader: reader, cancel: func() { canceled++ }}

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
	require.True(t, reader.closed)
	require.Equal(t, 1, canceled)
}

func TestSDKTransportDoesNotRetryValidationErrors(t *testing.T) {
	t.Parallel()

	validation := &smithy.GenericAPIError{Code: "ValidationException", Message: "bad"}
	api := &fakeAPI{converseErrs: []error{validation}}
	payload := streamPayload()
	payload.Stream = false

	_, err := (&SDKTransport{API: api}).Send(context.Background(), payload)
	require.ErrorIs(t, err, validation)
	require.Equal(t, 1, api.calls)
}

// TestSDKTransportConverseOverHTTP drives the real SDK client against a local
// Converse endpoint.
func TestSDKTransportConverseOverHTTP(t *testing.T) {
	t.Parallel()

	type seen struct {
		path string
		body map[string]any
	}
	requests := make(chan seen, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		requests <- seen{path: r.URL.Path, body: body}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"output": {"message": {"role": "assistant", "content": [
				{"text": "Hello"},
				{"toolUse": {"toolUseId": "t1", "name": "lookup", "input": {"a": 1}}}
			]}},
			"stopReason": "tool_use",
			"usage": {"inputTokens": 5, "outputTokens": 2, "totalTokens": 7},
			"metrics": {"latencyMs": 12}
		}`)
	}))
	defer srv.Close()

	provider, err := New(Config{Credentials: testCredentials, Endpoint: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)

	off := false
	stream, err := provider.Stream(context.Background(), &core.Request{
		Model:    "test-model",
		System:   "be brief",
		Messages: []core.ChatMessage{core.NewUserMessage("hi")},
		Tools:    []*mcp.Tool{{Name: "lookup", Description: "find", InputSchema: map[string]any{"type": "object", "properties": map[string]any{"a": map[string]any{"type": "integer"}}}}},
		Stream:   &off,
	})
	require.NoError(t, err)

	out, usage, err := core.CollectTurn(stream)
	require.NoError(t, err)
	require.Equal(t, "Hello", out.Text)
	require.Len(t, out.ToolCalls, 1)
	require.Equal(t, core.ToolCall{ID: "t1", Name: "lookup", ToolUseID: "t1", Input: map[string]any{"a": float64(1)}}, out.ToolCalls[0])
	require.Equal(t, core.NewUsage(5, 2), usage)

	req := <-requests
	require.Equal(t, "/model/test-model/converse", req.path)
	inference, ok := req.body["inferenceConfig"].(map[string]any)
	require.True(t, ok, "inferenceConfig missing: %v", req.body)
	require.Equal(t, float64(DefaultMaxTokens), inference["maxTokens"])
	require.NotNil(t, req.body["toolConfig"])
	require.NotNil(t, req.body["system"])
}
