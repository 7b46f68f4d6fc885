package anthropicprovider

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"converse/internal/llm/core"
	"converse/internal/media"
)

// defaultMaxTokens is used when callers do not provide an explicit token budget.
const defaultMaxTokens = 1024

const (
	emptyContentPlaceholder = "[Empty message]"
	imageFailedPlaceholder  = "[Image processing failed]"
)

// ImageLoader resolves an application image reference into allow-listed bytes.
type ImageLoader interface {
	LoadImage(ref core.ImageRef) (core.ImagePart, error)
}

// convertMessages maps application messages to canonical ones. System
// messages are sent as user turns; the system prompt travels separately.
func (p *Provider) convertMessages(messages []core.ChatMessage) []core.Message {
	loader := p.images
	if loader == nil {
		loader = media.Loader{}
	}

	out := make([]core.Message, 0, len(messages))
	for _, msg := range messages {
		role := msg.Role
		if role != core.RoleAssistant {
			role = core.RoleUser
		}
		parts := make([]core.Part, 0, 1+len(msg.Images))
		if text := msg.PrimaryText(); text != "" {
			parts = append(parts, core.TextPart(text))
		}
		for _, ref := range msg.Images {
			img, err := loader.LoadImage(ref)
			if err == nil {
				parts = append(parts, core.ImageContent(img.Format, img.Bytes))
				continue
			}
			parts = append(parts, core.TextPart(p.imageErrorText(err)))
		}
		if len(parts) == 0 {
			parts = append(parts, core.TextPart(emptyContentPlaceholder))
		}
		out = append(out, core.Message{Role: role, Content: parts})
	}
	return out
}

func (p *Provider) imageErrorText(err error) string {
	var unsupported *media.UnsupportedFormatError
	if errors.As(err, &unsupported) {
		p.metrics.ImagePlaceholder("unsupported")
		return fmt.Sprintf("[Image: %s]", unsupported.MIME)
	}
	p.logger.Error("image processing failed, using placeholder", "provider", providerName, "error", err)
	p.metrics.ImagePlaceholder("failed")
	return imageFailedPlaceholder
}

// toAnthropicSDKParams validates and converts a canonical request into SDK params.
func toAnthropicSDKParams(req *core.Request, messages []core.Message) (anthropic.MessageNewParams, error) {
	if req == nil {
		return anthropic.MessageNewParams{}, fmt.Errorf("%w: request is nil", core.ErrInvalidRequest)
	}
	if strings.TrimSpace(req.Model) == "" {
		return anthropic.MessageNewParams{}, fmt.Errorf("%w: model is required", core.ErrInvalidRequest)
	}

	sdkMessages, err := toSDKMessages(messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  sdkMessages,
	}

	if strings.TrimSpace(req.System) != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = anthropic.Float(*req.TopP)
	}
	if len(req.Tools) > 0 {
		tools, err := toSDKTools(req.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
	}

	return params, nil
}

// toSDKMessages converts canonical conversation messages into Anthropic SDK messages.
func toSDKMessages(messages []core.Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(messages))
	for _, msg := range messages {
		blocks, err := toSDKBlocks(msg.Content)
		if err != nil {
			return nil, err
		}
		if len(blocks) == 0 {
			continue
		}
		switch msg.Role {
		case core.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		case core.RoleUser:
			out = append(out, anthropic.NewUserMessage(blocks...))
		default:
			return nil, fmt.Errorf("%w: unsupported role %q", core.ErrInvalidRequest, msg.Role)
		}
	}
	return out, nil
}

// toSDKBlocks maps canonical parts one to one. Empty text parts are skipped.
func toSDKBlocks(parts []core.Part) ([]anthropic.ContentBlockParamUnion, error) {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(parts))
	for _, part := range parts {
		switch part.Type {
		case core.PartText:
			if part.Text == "" {
				continue
			}
			blocks = append(blocks, anthropic.NewTextBlock(part.Text))
		case core.PartImage:
			if part.Image == nil {
				continue
			}
			blocks = append(blocks, anthropic.NewImageBlockBase64(
				"image/"+string(part.Image.Format),
				base64.StdEncoding.EncodeToString(part.Image.Bytes),
			))
		case core.PartToolUse:
			if part.ToolUse == nil || strings.TrimSpace(part.ToolUse.ID) == "" {
				continue
			}
			input := part.ToolUse.Input
			if input == nil {
				input = map[string]any{}
			}
			blocks = append(blocks, anthropic.NewToolUseBlock(part.ToolUse.ID, input, part.ToolUse.Name))
		case core.PartToolResult:
			tr := part.ToolResult
			if tr == nil {
				continue
			}
			if strings.TrimSpace(tr.ToolUseID) == "" {
				return nil, fmt.Errorf("%w: tool result missing tool_use_id", core.ErrInvalidRequest)
			}
			blocks = append(blocks, anthropic.NewToolResultBlock(tr.ToolUseID, toolResultText(tr.Content), tr.Status == core.ToolResultError))
		}
	}
	return blocks, nil
}

// toSDKTools converts MCP tool descriptors into Anthropic SDK tool definitions.
func toSDKTools(tools []*mcp.Tool) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		if tool == nil {
			continue
		}
		schema, err := core.DecodeToolJSONSchema(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("decode tool schema for %q: %w", tool.Name, err)
		}
		inputSchema := anthropic.ToolInputSchemaParam{
			Properties: schema.Properties,
			Required:   schema.Required,
		}
		toolParam := anthropic.ToolParam{
			Name:        tool.Name,
			InputSchema: inputSchema,
		}
		if strings.TrimSpace(tool.Description) != "" {
			toolParam.Description = anthropic.String(tool.Description)
		}

		out = append(out, anthropic.ToolUnionParam{OfTool: &toolParam})
	}
	return out, nil
}
