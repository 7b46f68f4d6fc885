package bedrock

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"converse/internal/llm/core"
	"converse/internal/metrics"
)

const providerName = "bedrock"

var (
	// ErrMissingRegion indicates the region is not configured.
	ErrMissingRegion = errors.New("aws region is required")
	// ErrMissingCredentials indicates the access key pair is incomplete.
	ErrMissingCredentials = errors.New("aws credentials are required")
)

// Credentials is the static key material used to sign requests.
type Credentials struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Validate checks presence only. The region is reported first.
func (c Credentials) Validate() error {
	if strings.TrimSpace(c.Region) == "" {
		return fmt.Errorf("%w: configure region or AWS_REGION", ErrMissingRegion)
	}
	var missing []string
	if strings.TrimSpace(c.AccessKeyID) == "" {
		missing = append(missing, "access_key_id")
	}
	if strings.TrimSpace(c.SecretAccessKey) == "" {
		missing = append(missing, "secret_access_key")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: configure %s", ErrMissingCredentials, strings.Join(missing, " and "))
	}
	return nil
}

// Config configures a Bedrock provider.
type Config struct {
	Credentials Credentials
	// Endpoint overrides the regional runtime endpoint.
	Endpoint   string
	HTTPClient *http.Client
	Retry      core.RetryPolicy
	// Transport replaces the SDK transport when set.
	Transport Transport
	Images    ImageLoader
	Logger    *slog.Logger
	Metrics   *metrics.Metrics
}

// Provider streams Converse turns as canonical chunks.
type Provider struct {
	builder   Builder
	transport Transport
	results   ResultConverter
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

var _ core.Provider = (*Provider)(nil)

// New validates credentials and wires the transport. No network call is made.
func New(cfg Config) (*Provider, error) {
	if err := cfg.Credentials.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &SDKTransport{
			API:    ClientAPI{Client: newClient(cfg)},
			Retry:  cfg.Retry,
			Logger: logger,
		}
	}

	return &Provider{
		builder:   Builder{Images: cfg.Images, Logger: logger, Metrics: cfg.Metrics},
		transport: transport,
		results:   ResultConverter{Logger: logger, Metrics: cfg.Metrics},
		logger:    logger,
		metrics:   cfg.Metrics,
	}, nil
}

func newClient(cfg Config) *bedrockruntime.Client {
	creds := cfg.Credentials
	opts := bedrockruntime.Options{
		Region:      creds.Region,
		Credentials: credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
		Retryer:     aws.NopRetryer{},
	}
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
	}
	if cfg.HTTPClient != nil {
		opts.HTTPClient = cfg.HTTPClient
	}
	return bedrockruntime.New(opts)
}

// Stream builds and sends one turn. The returned Stream carries the exact
// messages sent so the caller can reconcile the next recursive turn.
func (p *Provider) Stream(ctx context.Context, req *core.Request) (*core.Stream, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request is nil", core.ErrInvalidRequest)
	}
	logger := p.logger.With("provider", providerName, "request_id", uuid.NewString(), "model", req.Model)

	builder := p.builder
	builder.Logger = logger
	payload, err := builder.Build(req)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	logger.Debug("sending converse request",
		"messages", len(payload.Messages),
		"tools", len(payload.Tools),
		"stream", payload.Stream,
		"recursive", len(req.Override) > 0,
	)
	reply, err := p.transport.Send(ctx, payload)
	if err != nil {
		p.metrics.ObserveStream(providerName, "error", time.Since(started))
		logger.Error("converse request failed", "error", err)
		return nil, err
	}

	var chunks iter.Seq2[core.Chunk, error]
	var release func() error
	switch {
	case reply != nil && reply.Events != nil:
		chunks = Decode(ctx, reply.Events, WithLogger(logger), WithMetrics(p.metrics))
		release = reply.Events.Close
	case reply != nil:
		chunks = DecodeResponse(reply.Response)
	default:
		chunks = DecodeResponse(nil)
	}

	return &core.Stream{
		Messages: payload.Messages,
		Chunks:   p.observe(chunks, started, logger),
		Timeout:  payload.Timeout,
		Release:  release,
	}, nil
}

// observe counts chunks and records the outcome once the sequence ends.
func (p *Provider) observe(chunks iter.Seq2[core.Chunk, error], started time.Time, logger *slog.Logger) iter.Seq2[core.Chunk, error] {
	return func(yield func(core.Chunk, error) bool) {
		status := "canceled"
		defer func() {
			p.metrics.ObserveStream(providerName, status, time.Since(started))
		}()
		for chunk, err := range chunks {
			if err != nil {
				status = "error"
				logger.Error("converse stream failed", "error", err)
				yield(chunk, err)
				return
			}
			p.metrics.ObserveChunk(providerName, string(chunk.Type))
			if chunk.Type == core.ChunkResponseComplete {
				status = "ok"
				if chunk.Usage != nil {
					logger.Info("converse turn complete",
						"prompt_tokens", chunk.Usage.PromptTokens,
						"completion_tokens", chunk.Usage.CompletionTokens,
						"stop_reason", chunk.StopReason,
					)
				}
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

func (p *Provider) ToolResultMessage(resp core.ToolResponse, result *mcp.CallToolResult) (core.Message, bool) {
	return p.results.ToolResultMessage(resp, result)
}

// Reconcile keeps the Converse history valid: a tool-calling turn is recorded
// as an assistant tool-use message ahead of its results.
func (p *Provider) Reconcile(prior []core.Message, out core.TurnOutput, results []core.Message) []core.Message {
	if msg, ok := AssistantToolUse(out); ok {
		return Reconcile(append(core.CloneMessages(prior), msg), core.TurnOutput{}, results)
	}
	return Reconcile(prior, out, results)
}
