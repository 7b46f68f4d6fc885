package bedrock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"converse/internal/llm/core"
)

// Transport sends a built payload to the vendor.
type Transport interface {
	Send(ctx context.Context, payload *RequestPayload) (*Reply, error)
}

// Reply holds Response for one-shot calls or Events for streamed ones.
type Reply struct {
	Response *Response
	Events   EventSource
}

// StreamReader is the event stream returned by ConverseStream.
type StreamReader interface {
	Events() <-chan types.ConverseStreamOutput
	Close() error
	Err() error
}

// ConverseAPI is the subset of the Bedrock runtime client the transport uses.
type ConverseAPI interface {
	Converse(ctx context.Context, in *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, in *bedrockruntime.ConverseStreamInput) (StreamReader, error)
}

// ClientAPI adapts *bedrockruntime.Client to ConverseAPI.
type ClientAPI struct {
	Client *bedrockruntime.Client
}

func (c ClientAPI) Converse(ctx context.Context, in *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error) {
	return c.Client.Converse(ctx, in)
}

func (c ClientAPI) ConverseStream(ctx context.Context, in *bedrockruntime.ConverseStreamInput) (StreamReader, error) {
	out, err := c.Client.ConverseStream(ctx, in)
	if err != nil {
		return nil, err
	}
	return out.GetStream(), nil
}

// SDKTransport sends payloads through the Converse API. Retryable failures
// are retried with backoff only before any event has been handed out.
type SDKTransport struct {
	API    ConverseAPI
	Retry  core.RetryPolicy
	Logger *slog.Logger
}

func (t *SDKTransport) Send(ctx context.Context, payload *RequestPayload) (*Reply, error) {
	if payload == nil {
		return nil, fmt.Errorf("%w: payload is nil", core.ErrInvalidRequest)
	}
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Same limits core.Retry applies; classify uses them to spot the last attempt.
	policy := core.NormalizeRetryPolicy(t.Retry)
	cancel := context.CancelFunc(func() {})
	if payload.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, payload.Timeout)
	}

	if !payload.Stream {
		defer cancel()
		var out *bedrockruntime.ConverseOutput
		err := core.Retry(ctx, t.Retry, func(attempt int) error {
			var err error
			out, err = t.API.Converse(ctx, converseInput(payload))
			return classify(logger, policy, attempt, err)
		})
		if err != nil {
			return nil, fmt.Errorf("bedrock converse: %w", err)
		}
		return &Reply{Response: responseFromSDK(out, logger)}, nil
	}

	var reader StreamReader
	err := core.Retry(ctx, t.Retry, func(attempt int) error {
		var err error
		reader, err = t.API.ConverseStream(ctx, converseStreamInput(payload))
		return classify(logger, policy, attempt, err)
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("bedrock converse stream: %w", err)
	}
	return &Reply{Events: &streamSource{reader: reader, cancel: cancel}}, nil
}

var retryableCodes = map[string]bool{
	"ThrottlingException":         true,
	"InternalServerException":     true,
	"ServiceUnavailableException": true,
	"ModelTimeoutException":       true,
	"ModelNotReadyException":      true,
}

// classify marks throttling and transient service errors retryable. The
// retry warning is logged only when policy leaves another attempt.
func classify(logger *slog.Logger, policy core.RetryPolicy, attempt int, err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) || !retryableCodes[apiErr.ErrorCode()] {
		return err
	}
	if attempt < policy.MaxRetries {
		logger.Warn("bedrock request failed, retrying", "attempt", attempt+1, "code", apiErr.ErrorCode())
	} else {
		logger.Error("bedrock request failed, retries exhausted", "attempts", attempt+1, "code", apiErr.ErrorCode())
	}
	return core.MarkRetryable(err)
}

// streamSource owns the SDK reader and the request timeout until Close.
type streamSource struct {
	reader StreamReader
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

func (s *streamSource) Next(ctx context.Context) (RawEvent, error) {
	for {
		select {
		case <-ctx.Done():
			return RawEvent{}, ctx.Err()
		case ev, ok := <-s.reader.Events():
			if !ok {
				if err := s.reader.Err(); err != nil {
					return RawEvent{}, fmt.Errorf("bedrock stream: %w", err)
				}
				return RawEvent{}, io.EOF
			}
			if raw, ok := rawEventFromSDK(ev); ok {
				return raw, nil
			}
		}
	}
}

// Close may be called more than once; only the first call reaches the reader.
func (s *streamSource) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.reader.Close()
		s.cancel()
	})
	return s.closeErr
}
