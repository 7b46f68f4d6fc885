package anthropicprovider

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"

	"converse/internal/llm/core"
	"converse/internal/metrics"
)

const providerName = "anthropic"

// errStopped is returned by emit when the consumer stopped ranging.
var errStopped = errors.New("anthropic stream: consumer stopped")

// Config configures the Anthropic provider.
type Config struct {
	APIKey     string
	BaseURL    string
	Version    string
	HTTPClient *http.Client
	Retry      core.RetryPolicy
	Images     ImageLoader
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
}

// Provider is a thin wrapper around the official anthropic-sdk-go client.
type Provider struct {
	apiKey  string
	retry   core.RetryPolicy
	images  ImageLoader
	logger  *slog.Logger
	metrics *metrics.Metrics

	client anthropic.Client
}

var _ core.Provider = (*Provider)(nil)

// New constructs a provider with sane defaults.
func New(cfg Config) *Provider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	version := strings.TrimSpace(cfg.Version)

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	clientOptions := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0), // explicit retry behavior in this package
	}
	if baseURL != "" {
		clientOptions = append(clientOptions, option.WithBaseURL(baseURL))
	}
	if version != "" {
		clientOptions = append(clientOptions, option.WithHeader("anthropic-version", version))
	}

	return &Provider{
		apiKey:  apiKey,
		retry:   core.NormalizeRetryPolicy(cfg.Retry),
		images:  cfg.Images,
		logger:  logger,
		metrics: cfg.Metrics,
		client:  anthropic.NewClient(clientOptions...),
	}
}

// Stream prepares a Messages API streaming request. Nothing is sent until the
// returned chunk sequence is ranged over.
func (p *Provider) Stream(ctx context.Context, req *core.Request) (*core.Stream, error) {
	if p == nil {
		return nil, fmt.Errorf("anthropic provider is nil")
	}
	if p.apiKey == "" {
		return nil, core.ErrMissingAPIKey
	}
	if req == nil {
		return nil, fmt.Errorf("%w: request is nil", core.ErrInvalidRequest)
	}

	messages := core.CloneMessages(req.Override)
	if len(messages) == 0 {
		messages = p.convertMessages(req.Messages)
	}
	params, err := toAnthropicSDKParams(req, messages)
	if err != nil {
		return nil, err
	}

	logger := p.logger.With("provider", providerName, "request_id", uuid.NewString(), "model", req.Model)
	return &core.Stream{
		Messages: messages,
		Chunks:   p.chunks(ctx, params, req.Timeout, logger),
		Timeout:  req.Timeout,
	}, nil
}

func (p *Provider) chunks(ctx context.Context, params anthropic.MessageNewParams, timeout time.Duration, logger *slog.Logger) iter.Seq2[core.Chunk, error] {
	return func(yield func(core.Chunk, error) bool) {
		streamCtx := ctx
		if timeout > 0 {
			var cancel context.CancelFunc
			streamCtx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		started := time.Now()
		status := "ok"
		defer func() {
			p.metrics.ObserveStream(providerName, status, time.Since(started))
		}()

		emit := func(chunk core.Chunk) error {
			p.metrics.ObserveChunk(providerName, string(chunk.Type))
			if !yield(chunk, nil) {
				return errStopped
			}
			return nil
		}

		state := &streamState{logger: logger, metrics: p.metrics}
		err := p.streamWithRetry(streamCtx, params, emit, state)
		switch {
		case err == nil:
			logger.Info("anthropic turn complete",
				"prompt_tokens", state.usage.PromptTokens,
				"completion_tokens", state.usage.CompletionTokens,
				"stop_reason", state.reason,
			)
		case errors.Is(err, errStopped):
			status = "canceled"
		default:
			status = "error"
			logger.Error("anthropic stream failed", "error", err)
			yield(core.Chunk{}, fmt.Errorf("anthropic stream: %w", err))
		}
	}
}

// streamState tracks incremental response state across one logical stream request.
type streamState struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	usage            core.Usage
	reason           core.StopReason
	emittedVisible   bool
	startEmitted     bool
	emittedDone      bool
	toolAccumulators map[int]*toolCallAccumulator
}

// toolCallAccumulator incrementally reconstructs chunked JSON tool arguments.
type toolCallAccumulator struct {
	id   string
	name string
	buf  strings.Builder
}

// streamWithRetry retries failed streams only when no visible output has been emitted yet.
func (p *Provider) streamWithRetry(
	ctx context.Context,
	params anthropic.MessageNewParams,
	emit func(core.Chunk) error,
	state *streamState,
) error {
	attempt := 0
	for {
		attemptErr := p.streamOnce(ctx, params, emit, state)
		if attemptErr == nil {
			return nil
		}
		if errors.Is(attemptErr, errStopped) ||
			errors.Is(attemptErr, context.Canceled) || errors.Is(attemptErr, context.DeadlineExceeded) {
			return attemptErr
		}
		if !core.IsRetryableError(attemptErr) || state.emittedVisible || attempt >= p.retry.MaxRetries {
			return attemptErr
		}

		delay := core.ComputeBackoffDelay(p.retry, attempt)
		state.logger.Warn("retrying anthropic stream", "attempt", attempt+1, "delay", delay, "error", attemptErr)
		if err := core.SleepContext(ctx, delay); err != nil {
			return err
		}
		attempt++
	}
}

// streamOnce consumes one SDK stream and emits canonical chunks.
func (p *Provider) streamOnce(
	ctx context.Context,
	params anthropic.MessageNewParams,
	emit func(core.Chunk) error,
	state *streamState,
) error {
	stream := p.client.Messages.NewStreaming(ctx, params)
	defer func() {
		_ = stream.Close()
	}()

	state.toolAccumulators = map[int]*toolCallAccumulator{}

	for stream.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := state.handle(stream.Current(), emit); err != nil {
			return err
		}
		if state.emittedDone {
			return nil
		}
	}

	if err := stream.Err(); err != nil {
		wrapped := fmt.Errorf("anthropic sdk stream: %w", err)
		if isRetryableProviderError(err) {
			return core.MarkRetryable(wrapped)
		}
		return wrapped
	}

	if state.emittedDone {
		return nil
	}

	return core.MarkRetryable(errors.New("anthropic stream ended without message_stop"))
}

// handle maps one raw Anthropic stream event into canonical chunks.
func (s *streamState) handle(event anthropic.MessageStreamEventUnion, emit func(core.Chunk) error) error {
	switch variant := event.AsAny().(type) {
	case anthropic.MessageStartEvent:
		applyStartUsage(&s.usage, variant.Message.Usage)
		return s.textStart(emit)

	case anthropic.ContentBlockStartEvent:
		switch block := variant.ContentBlock.AsAny().(type) {
		case anthropic.TextBlock:
			return s.text(block.Text, emit)
		case anthropic.ToolUseBlock:
			acc := &toolCallAccumulator{id: block.ID, name: block.Name}
			if rawInput, err := core.MarshalToolInput(block.Input); err == nil && string(rawInput) != "{}" {
				_, _ = acc.buf.Write(rawInput)
			}
			s.toolAccumulators[int(variant.Index)] = acc
			s.emittedVisible = true
		}
		return nil

	case anthropic.ContentBlockDeltaEvent:
		switch delta := variant.Delta.AsAny().(type) {
		case anthropic.TextDelta:
			return s.text(delta.Text, emit)
		case anthropic.InputJSONDelta:
			acc, ok := s.toolAccumulators[int(variant.Index)]
			if !ok {
				s.logger.Warn("tool input delta without tool start", "index", variant.Index)
				return nil
			}
			_, _ = acc.buf.WriteString(delta.PartialJSON)
			s.emittedVisible = true
		}
		return nil

	case anthropic.ContentBlockStopEvent:
		acc, ok := s.toolAccumulators[int(variant.Index)]
		if !ok {
			return nil
		}
		delete(s.toolAccumulators, int(variant.Index))

		raw := acc.buf.String()
		if strings.TrimSpace(raw) == "" {
			raw = "{}"
		}
		input, err := core.ParseToolInput(raw)
		if err != nil {
			s.logger.Error("dropping tool call with unparseable input", "tool", acc.name, "tool_use_id", acc.id, "error", err)
			s.metrics.DroppedToolCall(providerName)
			return nil
		}
		return emit(core.ToolCallCreatedChunk(core.ToolCall{
			ID:        acc.id,
			Name:      acc.name,
			ToolUseID: acc.id,
			Input:     input,
		}))

	case anthropic.MessageDeltaEvent:
		if variant.Delta.StopReason != "" {
			s.reason = core.StopReason(variant.Delta.StopReason)
		}
		applyDeltaUsage(&s.usage, variant.Usage)
		return nil

	case anthropic.MessageStopEvent:
		s.emittedDone = true
		return emit(core.ResponseCompleteChunk(s.usage, s.reason))
	}

	return nil
}

func (s *streamState) textStart(emit func(core.Chunk) error) error {
	if s.startEmitted {
		return nil
	}
	s.startEmitted = true
	return emit(core.TextStartChunk())
}

func (s *streamState) text(text string, emit func(core.Chunk) error) error {
	if text == "" {
		return nil
	}
	if err := s.textStart(emit); err != nil {
		return err
	}
	s.emittedVisible = true
	return emit(core.TextDeltaChunk(text))
}
