package bedrock

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"converse/internal/llm/core"
	"converse/internal/media"
	"converse/internal/metrics"
)

const (
	// DefaultMaxTokens is used when a request leaves MaxTokens unset.
	DefaultMaxTokens   = 4096
	defaultTemperature = 0.7
	defaultTopP        = 1.0

	// EmptyContentPlaceholder stands in for content the Converse API would
	// reject as empty.
	EmptyContentPlaceholder = "[Empty message]"
	// ImageFailedPlaceholder replaces images whose data could not be decoded.
	ImageFailedPlaceholder = "[Image processing failed]"
)

// ImagePlaceholder is the text substituted for an image outside the allow-list.
func ImagePlaceholder(mimeType string) string {
	return fmt.Sprintf("[Image: %s]", mimeType)
}

// ImageLoader resolves an application image reference into allow-listed bytes.
// A *media.UnsupportedFormatError becomes the MIME placeholder; any other
// error becomes ImageFailedPlaceholder.
type ImageLoader interface {
	LoadImage(ref core.ImageRef) (core.ImagePart, error)
}

// RequestPayload is the vendor request for one Converse call. It is owned by a
// single request and not modified after Send.
type RequestPayload struct {
	ModelID     string
	Messages    []core.Message
	System      string
	MaxTokens   int
	Temperature float64
	TopP        float64
	Stream      bool
	// Tools is nil when no tools apply; Converse rejects an empty tool config.
	Tools   []ToolSpec
	Timeout time.Duration
}

// Builder converts canonical requests into Converse payloads.
type Builder struct {
	Images  ImageLoader
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Build turns req into a payload. A non-empty req.Override replaces the
// converted message list verbatim.
func (b *Builder) Build(req *core.Request) (*RequestPayload, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request is nil", core.ErrInvalidRequest)
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return nil, fmt.Errorf("%w: model is required", core.ErrInvalidRequest)
	}

	payload := &RequestPayload{
		ModelID:     model,
		System:      req.System,
		MaxTokens:   req.MaxTokens,
		Temperature: defaultTemperature,
		TopP:        defaultTopP,
		Stream:      req.Streaming(),
		Tools:       ToVendorTools(req.Tools),
		Timeout:     req.Timeout,
	}
	if payload.MaxTokens <= 0 {
		payload.MaxTokens = DefaultMaxTokens
	}
	if payload.MaxTokens > math.MaxInt32 {
		return nil, fmt.Errorf("%w: max tokens %d exceeds %d", core.ErrInvalidRequest, payload.MaxTokens, math.MaxInt32)
	}
	if req.Temperature != nil {
		payload.Temperature = *req.Temperature
	}
	if req.TopP != nil {
		payload.TopP = *req.TopP
	}

	if len(req.Override) > 0 {
		payload.Messages = core.CloneMessages(req.Override)
		return payload, nil
	}
	payload.Messages = make([]core.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		payload.Messages = append(payload.Messages, b.ConvertMessage(msg))
	}
	return payload, nil
}

// ConvertMessage maps one application message to its canonical vendor form.
// The result always has at least one content part.
func (b *Builder) ConvertMessage(msg core.ChatMessage) core.Message {
	role := msg.Role
	if role != core.RoleAssistant {
		role = core.RoleUser
	}

	parts := make([]core.Part, 0, 1+len(msg.Images))
	if text := msg.PrimaryText(); text != "" {
		parts = append(parts, core.TextPart(text))
	}
	for _, ref := range msg.Images {
		parts = append(parts, b.imagePart(ref))
	}
	if len(parts) == 0 {
		parts = append(parts, core.TextPart(EmptyContentPlaceholder))
	}
	return core.Message{Role: role, Content: parts}
}

func (b *Builder) imagePart(ref core.ImageRef) core.Part {
	loader := b.Images
	if loader == nil {
		loader = media.Loader{}
	}
	img, err := loader.LoadImage(ref)
	if err == nil {
		return core.ImageContent(img.Format, img.Bytes)
	}
	return core.TextPart(imageErrorText(b.logger(), b.Metrics, err))
}

func (b *Builder) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

// imageErrorText picks the placeholder for a failed image and reports it.
func imageErrorText(logger *slog.Logger, m *metrics.Metrics, err error) string {
	var unsupported *media.UnsupportedFormatError
	if errors.As(err, &unsupported) {
		logger.Warn("image format not supported, using placeholder", "mime", unsupported.MIME)
		m.ImagePlaceholder("unsupported")
		return ImagePlaceholder(unsupported.MIME)
	}
	logger.Error("image processing failed, using placeholder", "error", err)
	m.ImagePlaceholder("failed")
	return ImageFailedPlaceholder
}
