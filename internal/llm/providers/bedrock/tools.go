package bedrock

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"converse/internal/llm/core"
	"converse/internal/media"
	"converse/internal/metrics"
)

// ToolSpec is the Converse tool specification derived from an MCP tool.
type ToolSpec struct {
	Name        string
	Description string
	InputSchema ToolInputSchema
}

// ToolInputSchema keeps only the object shape Converse needs: property types,
// property descriptions and the required list.
type ToolInputSchema struct {
	Properties map[string]PropertySpec
	Required   []string
}

// PropertySpec is one schema property. Type is copied as-is from the source
// schema, so it may be a string or a list of strings.
type PropertySpec struct {
	Type        any
	Description string
}

// Document renders the schema as the JSON object sent to Converse.
func (s ToolInputSchema) Document() map[string]any {
	props := make(map[string]any, len(s.Properties))
	for name, prop := range s.Properties {
		p := map[string]any{"type": prop.Type}
		if prop.Description != "" {
			p["description"] = prop.Description
		}
		props[name] = p
	}
	required := make([]any, 0, len(s.Required))
	for _, r := range s.Required {
		required = append(required, r)
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}

// ToVendorTools maps MCP tools to Converse tool specs. It returns nil when no
// tools apply. Schema features other than property type and description are
// dropped.
func ToVendorTools(tools []*mcp.Tool) []ToolSpec {
	var specs []ToolSpec
	for _, tool := range tools {
		if tool == nil || tool.Name == "" {
			continue
		}
		specs = append(specs, ToolSpec{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: convertSchema(tool.InputSchema),
		})
	}
	return specs
}

func convertSchema(schema any) ToolInputSchema {
	out := ToolInputSchema{Properties: map[string]PropertySpec{}, Required: []string{}}

	var raw []byte
	switch v := schema.(type) {
	case nil:
		return out
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return out
		}
		raw = encoded
	}

	var decoded struct {
		Properties map[string]any `json:"properties"`
		Required   []string       `json:"required"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return out
	}
	for name, value := range decoded.Properties {
		prop := PropertySpec{Type: "string"}
		if obj, ok := value.(map[string]any); ok {
			if t, ok := obj["type"]; ok && t != nil {
				prop.Type = t
			}
			if desc, ok := obj["description"].(string); ok {
				prop.Description = desc
			}
		}
		out.Properties[name] = prop
	}
	if decoded.Required != nil {
		out.Required = decoded.Required
	}
	return out
}

// FindTool resolves call against tools by exact name.
func FindTool(call core.ToolCall, tools []*mcp.Tool) (*mcp.Tool, bool) {
	for _, tool := range tools {
		if tool != nil && tool.Name == call.Name {
			return tool, true
		}
	}
	return nil, false
}

// ToToolResponse builds the pending executor record for a resolved call.
func ToToolResponse(call core.ToolCall, tool *mcp.Tool) core.ToolResponse {
	id := call.ID
	if id == "" {
		id = call.ToolUseID
	}
	args := call.Input
	if args == nil {
		args = map[string]any{}
	}
	name := call.Name
	if tool != nil {
		name = tool.Name
	}
	return core.ToolResponse{
		ID:         id,
		ToolName:   name,
		Arguments:  args,
		Status:     core.ToolStatusPending,
		ToolUseID:  call.ToolUseID,
		ToolCallID: call.ToolUseID,
	}
}

// ErrNoCorrelationID is reported when a tool result has neither a tool use id
// nor a tool call id.
var ErrNoCorrelationID = errors.New("tool result has no tool use id")

// ResultConverter turns executor results into user-role tool result messages.
type ResultConverter struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// ToolResultMessage converts one executor result. It reports false when resp
// carries no correlation id; callers skip such results.
func (c ResultConverter) ToolResultMessage(resp core.ToolResponse, result *mcp.CallToolResult) (core.Message, bool) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := resp.ToolUseID
	if id == "" {
		id = resp.ToolCallID
	}
	if id == "" {
		logger.Warn("skipping tool result", "tool", resp.ToolName, "error", ErrNoCorrelationID)
		return core.Message{}, false
	}

	status := core.ToolResultSuccess
	if resp.Status == core.ToolStatusError || (result != nil && result.IsError) {
		status = core.ToolResultError
	}

	var items []core.ToolResultItem
	if result != nil {
		for _, content := range result.Content {
			items = append(items, c.resultItem(logger, content))
		}
		if len(items) == 0 {
			if obj, ok := structuredObject(result.StructuredContent); ok {
				items = append(items, core.ToolResultItem{Type: core.ToolResultItemJSON, JSON: obj})
			}
		}
	}
	if len(items) == 0 {
		items = append(items, textItem(""))
	}

	return core.Message{
		Role: core.RoleUser,
		Content: []core.Part{{
			Type: core.PartToolResult,
			ToolResult: &core.ToolResultPart{
				ToolUseID: id,
				Content:   items,
				Status:    status,
			},
		}},
	}, true
}

// ToolResultMessage converts with the default logger and no metrics.
func ToolResultMessage(resp core.ToolResponse, result *mcp.CallToolResult) (core.Message, bool) {
	return ResultConverter{}.ToolResultMessage(resp, result)
}

func (c ResultConverter) resultItem(logger *slog.Logger, content mcp.Content) core.ToolResultItem {
	switch v := content.(type) {
	case *mcp.TextContent:
		return textItem(v.Text)
	case *mcp.ImageContent:
		img, err := media.FromBytes(v.MIMEType, v.Data)
		if err != nil {
			return textItem(imageErrorText(logger, c.Metrics, err))
		}
		return core.ToolResultItem{Type: core.ToolResultItemImage, Image: &img}
	default:
		raw, err := json.Marshal(content)
		if err != nil {
			return textItem(fmt.Sprintf("%v", content))
		}
		return textItem(string(raw))
	}
}

func textItem(text string) core.ToolResultItem {
	if text == "" {
		text = EmptyContentPlaceholder
	}
	return core.ToolResultItem{Type: core.ToolResultItemText, Text: text}
}

func structuredObject(v any) (map[string]any, bool) {
	if v == nil {
		return nil, false
	}
	if obj, ok := v.(map[string]any); ok {
		return obj, true
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}
