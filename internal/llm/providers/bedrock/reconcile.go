package bedrock

import "converse/internal/llm/core"

// Reconcile builds the message list for the next recursive turn: prior
// messages, then the assistant text when out is a plain text answer, then the
// tool result messages. Relative order inside each group is preserved.
func Reconcile(prior []core.Message, out core.TurnOutput, results []core.Message) []core.Message {
	messages := make([]core.Message, 0, len(prior)+1+len(results))
	messages = append(messages, prior...)
	if out.PlainText() {
		messages = append(messages, core.Message{
			Role:    core.RoleAssistant,
			Content: []core.Part{core.TextPart(out.Text)},
		})
	}
	return append(messages, results...)
}

// AssistantToolUse renders a tool-calling turn as the assistant message that
// must precede its tool results. It reports false when out has no tool calls.
func AssistantToolUse(out core.TurnOutput) (core.Message, bool) {
	if len(out.ToolCalls) == 0 {
		return core.Message{}, false
	}
	parts := make([]core.Part, 0, 1+len(out.ToolCalls))
	if out.Text != "" {
		parts = append(parts, core.TextPart(out.Text))
	}
	for _, call := range out.ToolCalls {
		input := call.Input
		if input == nil {
			input = map[string]any{}
		}
		id := call.ToolUseID
		if id == "" {
			id = call.ID
		}
		parts = append(parts, core.Part{
			Type:    core.PartToolUse,
			ToolUse: &core.ToolUsePart{ID: id, Name: call.Name, Input: input},
		})
	}
	return core.Message{Role: core.RoleAssistant, Content: parts}, true
}
