package core

import "strings"

// Role identifies the message author.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleSystem only appears on application messages; vendors carry the system
	// prompt out of band.
	RoleSystem Role = "system"
)

// ImageRef points at an image attached to an application message.
// Exactly one of Path (file-backed) or URL (inline data: URI) is expected.
type ImageRef struct {
	Path string `json:"path,omitempty"`
	URL  string `json:"url,omitempty"`
}

// ChatMessage is the application-level conversation record handed to providers.
type ChatMessage struct {
	Role   Role       `json:"role"`
	Text   string     `json:"text,omitempty"`
	Images []ImageRef `json:"images,omitempty"`
}

// NewUserMessage builds a user chat message with plain text.
func NewUserMessage(text string) ChatMessage {
	return ChatMessage{Role: RoleUser, Text: text}
}

// PrimaryText returns the trimmed message text.
func (m ChatMessage) PrimaryText() string {
	return strings.TrimSpace(m.Text)
}

// PartType identifies canonical content part variants.
type PartType string

const (
	PartText       PartType = "text"
	PartImage      PartType = "image"
	PartToolUse    PartType = "tool_use"
	PartToolResult PartType = "tool_result"
)

// ImageFormat is one of the vendor allow-listed image formats.
type ImageFormat string

const (
	ImageFormatPNG  ImageFormat = "png"
	ImageFormatJPEG ImageFormat = "jpeg"
	ImageFormatGIF  ImageFormat = "gif"
	ImageFormatWebP ImageFormat = "webp"
)

// ImagePart carries decoded image bytes.
type ImagePart struct {
	Format ImageFormat `json:"format"`
	Bytes  []byte      `json:"bytes"`
}

// ToolUsePart is a model-issued tool invocation echoed back in history.
type ToolUsePart struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// ToolResultStatus reports the outcome of a tool execution.
type ToolResultStatus string

const (
	ToolResultSuccess ToolResultStatus = "success"
	ToolResultError   ToolResultStatus = "error"
)

// ToolResultItemType identifies tool result content variants.
type ToolResultItemType string

const (
	ToolResultItemText  ToolResultItemType = "text"
	ToolResultItemImage ToolResultItemType = "image"
	ToolResultItemJSON  ToolResultItemType = "json"
)

// ToolResultItem is one entry of a tool result payload.
type ToolResultItem struct {
	Type  ToolResultItemType `json:"type"`
	Text  string             `json:"text,omitempty"`
	Image *ImagePart         `json:"image,omitempty"`
	JSON  map[string]any     `json:"json,omitempty"`
}

// ToolResultPart correlates tool output with the originating tool use.
type ToolResultPart struct {
	ToolUseID string           `json:"tool_use_id"`
	Content   []ToolResultItem `json:"content"`
	Status    ToolResultStatus `json:"status,omitempty"`
}

// Part is a tagged content variant keyed by Type.
type Part struct {
	Type       PartType        `json:"type"`
	Text       string          `json:"text,omitempty"`
	Image      *ImagePart      `json:"image,omitempty"`
	ToolUse    *ToolUsePart    `json:"tool_use,omitempty"`
	ToolResult *ToolResultPart `json:"tool_result,omitempty"`
}

// TextPart builds a text part.
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// ImageContent builds an image part.
func ImageContent(format ImageFormat, data []byte) Part {
	return Part{Type: PartImage, Image: &ImagePart{Format: format, Bytes: data}}
}

// Message is the canonical provider-facing conversation record.
// Content is never empty once built by a payload builder.
type Message struct {
	Role    Role   `json:"role"`
	Content []Part `json:"content"`
}

// Text concatenates all text parts of the message.
func (m Message) Text() string {
	var b strings.Builder
	for _, part := range m.Content {
		if part.Type == PartText {
			b.WriteString(part.Text)
		}
	}
	return b.String()
}

// Usage tracks provider token accounting for one turn.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NewUsage builds a usage record whose total is the sum of both buckets.
func NewUsage(prompt, completion int) Usage {
	return Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// Clone returns a copy safe to share as pointer payload.
func (u Usage) Clone() *Usage {
	copied := u
	return &copied
}

// CloneMessages deep-copies the slice headers of a message list so callers can
// append without aliasing the source.
func CloneMessages(messages []Message) []Message {
	if len(messages) == 0 {
		return nil
	}
	cloned := make([]Message, 0, len(messages))
	for _, msg := range messages {
		cloned = append(cloned, Message{
			Role:    msg.Role,
			Content: append([]Part(nil), msg.Content...),
		})
	}
	return cloned
}
