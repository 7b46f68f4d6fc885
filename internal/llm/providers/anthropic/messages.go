package anthropicprovider

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"converse/internal/llm/core"
)

// ToolResultMessage wraps executor output as a user tool_result message. The
// Messages API only carries text here, so non-text content is rendered inline.
func (p *Provider) ToolResultMessage(resp core.ToolResponse, result *mcp.CallToolResult) (core.Message, bool) {
	id := resp.ToolUseID
	if id == "" {
		id = resp.ToolCallID
	}
	if id == "" {
		p.logger.Warn("skipping tool result without tool use id", "provider", providerName, "tool", resp.ToolName)
		return core.Message{}, false
	}

	status := core.ToolResultSuccess
	if resp.Status == core.ToolStatusError || (result != nil && result.IsError) {
		status = core.ToolResultError
	}

	var items []core.ToolResultItem
	if result != nil {
		for _, content := range result.Content {
			items = append(items, core.ToolResultItem{Type: core.ToolResultItemText, Text: contentText(content)})
		}
		if len(items) == 0 && result.StructuredContent != nil {
			if raw, err := json.Marshal(result.StructuredContent); err == nil {
				items = append(items, core.ToolResultItem{Type: core.ToolResultItemText, Text: string(raw)})
			}
		}
	}

	return core.Message{
		Role: core.RoleUser,
		Content: []core.Part{{
			Type:       core.PartToolResult,
			ToolResult: &core.ToolResultPart{ToolUseID: id, Content: items, Status: status},
		}},
	}, true
}

// Reconcile appends the assistant turn, including its tool_use blocks, and
// then the tool results.
func (p *Provider) Reconcile(prior []core.Message, out core.TurnOutput, results []core.Message) []core.Message {
	messages := make([]core.Message, 0, len(prior)+1+len(results))
	messages = append(messages, prior...)

	parts := make([]core.Part, 0, 1+len(out.ToolCalls))
	if out.Text != "" {
		parts = append(parts, core.TextPart(out.Text))
	}
	for _, call := range out.ToolCalls {
		id := call.ToolUseID
		if id == "" {
			id = call.ID
		}
		parts = append(parts, core.Part{
			Type:    core.PartToolUse,
			ToolUse: &core.ToolUsePart{ID: id, Name: call.Name, Input: call.Input},
		})
	}
	if len(parts) > 0 {
		messages = append(messages, core.Message{Role: core.RoleAssistant, Content: parts})
	}
	return append(messages, results...)
}

func contentText(content mcp.Content) string {
	switch v := content.(type) {
	case *mcp.TextContent:
		return v.Text
	case *mcp.ImageContent:
		return fmt.Sprintf("[Image: %s]", v.MIMEType)
	default:
		raw, err := json.Marshal(content)
		if err != nil {
			return fmt.Sprintf("%v", content)
		}
		return string(raw)
	}
}

// toolResultText flattens result items into the single text block the SDK
// helper accepts.
func toolResultText(items []core.ToolResultItem) string {
	texts := make([]string, 0, len(items))
	for _, item := range items {
		switch item.Type {
		case core.ToolResultItemText:
			texts = append(texts, item.Text)
		case core.ToolResultItemImage:
			if item.Image != nil {
				texts = append(texts, fmt.Sprintf("[Image: image/%s]", item.Image.Format))
			}
		case core.ToolResultItemJSON:
			if raw, err := json.Marshal(item.JSON); err == nil {
				texts = append(texts, string(raw))
			}
		}
	}
	text := strings.Join(texts, "\n")
	if text == "" {
		return emptyContentPlaceholder
	}
	return text
}
