package anthropicprovider

import (
	anthropic "github.com/anthropics/anthropic-sdk-go"

	"converse/internal/llm/core"
)

// applyStartUsage records message_start counters. Cached input counts toward the prompt.
func applyStartUsage(dst *core.Usage, usage anthropic.Usage) {
	prompt := int(usage.InputTokens + usage.CacheReadInputTokens + usage.CacheCreationInputTokens)
	*dst = core.NewUsage(prompt, int(usage.OutputTokens))
}

// applyDeltaUsage folds cumulative message_delta counters into dst.
func applyDeltaUsage(dst *core.Usage, usage anthropic.MessageDeltaUsage) {
	prompt := dst.PromptTokens
	if total := int(usage.InputTokens + usage.CacheReadInputTokens + usage.CacheCreationInputTokens); total > 0 {
		prompt = total
	}
	*dst = core.NewUsage(prompt, int(usage.OutputTokens))
}
