package bedrock

import (
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"converse/internal/llm/core"
)

func converseInput(p *RequestPayload) *bedrockruntime.ConverseInput {
	return &bedrockruntime.ConverseInput{
		ModelId:         aws.String(p.ModelID),
		Messages:        sdkMessages(p.Messages),
		System:          sdkSystem(p.System),
		InferenceConfig: sdkInference(p),
		ToolConfig:      sdkToolConfig(p.Tools),
	}
}

func converseStreamInput(p *RequestPayload) *bedrockruntime.ConverseStreamInput {
	return &bedrockruntime.ConverseStreamInput{
		ModelId:         aws.String(p.ModelID),
		Messages:        sdkMessages(p.Messages),
		System:          sdkSystem(p.System),
		InferenceConfig: sdkInference(p),
		ToolConfig:      sdkToolConfig(p.Tools),
	}
}

func sdkSystem(system string) []types.SystemContentBlock {
	if strings.TrimSpace(system) == "" {
		return nil
	}
	return []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: system}}
}

func sdkInference(p *RequestPayload) *types.InferenceConfiguration {
	return &types.InferenceConfiguration{
		MaxTokens:   aws.Int32(int32(p.MaxTokens)),
		Temperature: aws.Float32(float32(p.Temperature)),
		TopP:        aws.Float32(float32(p.TopP)),
	}
}

func sdkToolConfig(specs []ToolSpec) *types.ToolConfiguration {
	if len(specs) == 0 {
		return nil
	}
	tools := make([]types.Tool, 0, len(specs))
	for _, spec := range specs {
		ts := types.ToolSpecification{
			Name:        aws.String(spec.Name),
			InputSchema: &types.ToolInputSchemaMemberJson{Value: document.NewLazyDocument(spec.InputSchema.Document())},
		}
		if spec.Description != "" {
			ts.Description = aws.String(spec.Description)
		}
		tools = append(tools, &types.ToolMemberToolSpec{Value: ts})
	}
	return &types.ToolConfiguration{Tools: tools}
}

func sdkMessages(messages []core.Message) []types.Message {
	out := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		role := types.ConversationRoleUser
		if msg.Role == core.RoleAssistant {
			role = types.ConversationRoleAssistant
		}
		blocks := make([]types.ContentBlock, 0, len(msg.Content))
		for _, part := range msg.Content {
			if block, ok := sdkContentBlock(part); ok {
				blocks = append(blocks, block)
			}
		}
		if len(blocks) == 0 {
			blocks = append(blocks, &types.ContentBlockMemberText{Value: EmptyContentPlaceholder})
		}
		out = append(out, types.Message{Role: role, Content: blocks})
	}
	return out
}

func sdkContentBlock(part core.Part) (types.ContentBlock, bool) {
	switch part.Type {
	case core.PartText:
		text := part.Text
		if text == "" {
			text = EmptyContentPlaceholder
		}
		return &types.ContentBlockMemberText{Value: text}, true
	case core.PartImage:
		if part.Image == nil {
			return nil, false
		}
		return &types.ContentBlockMemberImage{Value: sdkImage(*part.Image)}, true
	case core.PartToolUse:
		if part.ToolUse == nil {
			return nil, false
		}
		input := part.ToolUse.Input
		if input == nil {
			input = map[string]any{}
		}
		return &types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
			ToolUseId: aws.String(part.ToolUse.ID),
			Name:      aws.String(part.ToolUse.Name),
			Input:     document.NewLazyDocument(input),
		}}, true
	case core.PartToolResult:
		if part.ToolResult == nil {
			return nil, false
		}
		return &types.ContentBlockMemberToolResult{Value: sdkToolResult(*part.ToolResult)}, true
	default:
		return nil, false
	}
}

func sdkImage(img core.ImagePart) types.ImageBlock {
	return types.ImageBlock{
		Format: types.ImageFormat(img.Format),
		Source: &types.ImageSourceMemberBytes{Value: img.Bytes},
	}
}

func sdkToolResult(result core.ToolResultPart) types.ToolResultBlock {
	content := make([]types.ToolResultContentBlock, 0, len(result.Content))
	for _, item := range result.Content {
		switch item.Type {
		case core.ToolResultItemImage:
			if item.Image != nil {
				content = append(content, &types.ToolResultContentBlockMemberImage{Value: sdkImage(*item.Image)})
			}
		case core.ToolResultItemJSON:
			content = append(content, &types.ToolResultContentBlockMemberJson{Value: document.NewLazyDocument(item.JSON)})
		default:
			text := item.Text
			if text == "" {
				text = EmptyContentPlaceholder
			}
			content = append(content, &types.ToolResultContentBlockMemberText{Value: text})
		}
	}
	if len(content) == 0 {
		content = append(content, &types.ToolResultContentBlockMemberText{Value: EmptyContentPlaceholder})
	}
	block := types.ToolResultBlock{
		ToolUseId: aws.String(result.ToolUseID),
		Content:   content,
	}
	if result.Status != "" {
		block.Status = types.ToolResultStatus(result.Status)
	}
	return block
}

// responseFromSDK maps a one-shot Converse reply. Tool uses whose input cannot
// be decoded are dropped and logged, like malformed streamed input.
func responseFromSDK(out *bedrockruntime.ConverseOutput, logger *slog.Logger) *Response {
	resp := &Response{
		StopReason: core.StopReason(out.StopReason),
		Usage:      tokenUsage(out.Usage),
	}
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return resp
	}
	for _, block := range msg.Value.Content {
		switch b := block.(type) {
		case *types.ContentBlockMemberText:
			text := b.Value
			resp.Content = append(resp.Content, ResponseBlock{Text: &text})
		case *types.ContentBlockMemberToolUse:
			input, err := documentInput(b.Value.Input)
			if err != nil {
				logger.Error("dropping tool call with malformed input",
					"tool_use_id", aws.ToString(b.Value.ToolUseId),
					"name", aws.ToString(b.Value.Name),
					"error", err,
				)
				continue
			}
			resp.Content = append(resp.Content, ResponseBlock{ToolUse: &ToolUseBlock{
				ToolUseID: aws.ToString(b.Value.ToolUseId),
				Name:      aws.ToString(b.Value.Name),
				Input:     input,
			}})
		}
	}
	return resp
}

// documentInput goes through JSON so numbers come back as float64 like the
// streamed path, not as document.Number.
func documentInput(doc document.Interface) (map[string]any, error) {
	if doc == nil {
		return map[string]any{}, nil
	}
	raw, err := doc.MarshalSmithyDocument()
	if err != nil {
		return nil, err
	}
	return core.ParseToolInput(string(raw))
}

// rawEventFromSDK maps one stream union member. Members the decoder has no use
// for report false.
func rawEventFromSDK(ev types.ConverseStreamOutput) (RawEvent, bool) {
	switch v := ev.(type) {
	case *types.ConverseStreamOutputMemberMessageStart:
		return RawEvent{MessageStart: &MessageStartEvent{Role: core.Role(v.Value.Role)}}, true
	case *types.ConverseStreamOutputMemberContentBlockStart:
		start := &ContentBlockStartEvent{BlockIndex: intPtr(v.Value.ContentBlockIndex)}
		if tu, ok := v.Value.Start.(*types.ContentBlockStartMemberToolUse); ok {
			start.ToolUse = &ToolUseStart{
				ToolUseID: aws.ToString(tu.Value.ToolUseId),
				Name:      aws.ToString(tu.Value.Name),
			}
		}
		return RawEvent{ContentBlockStart: start}, true
	case *types.ConverseStreamOutputMemberContentBlockDelta:
		delta := &ContentBlockDeltaEvent{BlockIndex: intPtr(v.Value.ContentBlockIndex)}
		switch d := v.Value.Delta.(type) {
		case *types.ContentBlockDeltaMemberText:
			text := d.Value
			delta.Text = &text
		case *types.ContentBlockDeltaMemberToolUse:
			delta.ToolInput = d.Value.Input
		default:
			return RawEvent{}, false
		}
		return RawEvent{ContentBlockDelta: delta}, true
	case *types.ConverseStreamOutputMemberContentBlockStop:
		return RawEvent{ContentBlockStop: &ContentBlockStopEvent{BlockIndex: intPtr(v.Value.ContentBlockIndex)}}, true
	case *types.ConverseStreamOutputMemberMessageStop:
		return RawEvent{MessageStop: &MessageStopEvent{StopReason: core.StopReason(v.Value.StopReason)}}, true
	case *types.ConverseStreamOutputMemberMetadata:
		return RawEvent{Metadata: &MetadataEvent{Usage: tokenUsage(v.Value.Usage)}}, true
	default:
		return RawEvent{}, false
	}
}

func tokenUsage(u *types.TokenUsage) *TokenUsage {
	if u == nil {
		return nil
	}
	return &TokenUsage{
		InputTokens:  intPtr(u.InputTokens),
		OutputTokens: intPtr(u.OutputTokens),
	}
}

func intPtr(v *int32) *int {
	if v == nil {
		return nil
	}
	n := int(*v)
	return &n
}
