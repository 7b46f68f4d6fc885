package bedrock

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"converse/internal/llm/core"
	"converse/internal/media"
)

type stubLoader map[string]struct {
	part core.ImagePart
	err  error
}

func (s stubLoader) LoadImage(ref core.ImageRef) (core.ImagePart, error) {
	r, ok := s[ref.Path]
	if !ok {
		return core.ImagePart{}, errors.New("unknown image")
	}
	return r.part, r.err
}

func TestBuildDefaults(t *testing.T) {
	t.Parallel()

	b := &Builder{}
	payload, err := b.Build(&core.Request{
		Model:    "anthropic.claude",
		System:   "be brief",
		Messages: []core.ChatMessage{core.NewUserMessage("hi")},
		Timeout:  30 * time.Second,
	})
	require.NoError(t, err)
	require.Equal(t, "anthropic.claude", payload.ModelID)
	require.Equal(t, "be brief", payload.System)
	require.Equal(t, DefaultMaxTokens, payload.MaxTokens)
	require.Equal(t, 0.7, payload.Temperature)
	require.Equal(t, 1.0, payload.TopP)
	require.True(t, payload.Stream)
	require.Nil(t, payload.Tools)
	require.Equal(t, 30*time.Second, payload.Timeout)
}

func TestBuildHonoursExplicitSampling(t *testing.T) {
	t.Parallel()

	temp, topP, off := 0.0, 0.5, false
	payload, err := (&Builder{}).Build(&core.Request{
		Model:       "m",
		MaxTokens:   128,
		Temperature: &temp,
		TopP:        &topP,
		Stream:      &off,
	})
	require.NoError(t, err)
	require.Equal(t, 128, payload.MaxTokens)
	require.Equal(t, 0.0, payload.Temperature)
	require.Equal(t, 0.5, payload.TopP)
	require.False(t, payload.Stream)
}

func TestBuildRequiresModel(t *testing.T) {
	t.Parallel()

	_, err := (&Builder{}).Build(&core.Request{})
	require.ErrorIs(t, err, core.ErrInvalidRequest)
	_, err = (&Builder{}).Build(nil)
	require.ErrorIs(t, err, core.ErrInvalidRequest)
}

func TestBuildRejectsMaxTokensBeyondInt32(t *testing.T) {
	t.Parallel()

	_, err := (&Builder{}).Build(&core.Request{Model: "m", MaxTokens: math.MaxInt32 + 1})
	require.ErrorIs(t, err, core.ErrInvalidRequest)
	require.ErrorContains(t, err, "max tokens")

	payload, err := (&Builder{}).Build(&core.Request{Model: "m", MaxTokens: math.MaxInt32})
	require.NoError(t, err)
	require.Equal(t, math.MaxInt32, payload.MaxTokens)
}

func TestBuildOverrideRoundTrip(t *testing.T) {
	t.Parallel()

	override := []core.Message{
		{Role: core.RoleUser, Content: []core.Part{core.TextPart("first")}},
		{Role: core.RoleAssistant, Content: []core.Part{{
			Type:    core.PartToolUse,
			ToolUse: &core.ToolUsePart{ID: "t1", Name: "lookup", Input: map[string]any{"a": 1.0}},
		}}},
	}
	b := &Builder{}

	payload, err := b.Build(&core.Request{
		Model:    "m",
		Messages: []core.ChatMessage{core.NewUserMessage("ignored")},
		Override: override,
	})
	require.NoError(t, err)
	require.Equal(t, override, payload.Messages)

	for _, empty := range [][]core.Message{nil, {}} {
		payload, err = b.Build(&core.Request{
			Model:    "m",
			Messages: []core.ChatMessage{core.NewUserMessage("fresh")},
			Override: empty,
		})
		require.NoError(t, err)
		require.Equal(t, []core.Message{{Role: core.RoleUser, Content: []core.Part{core.TextPart("fresh")}}}, payload.Messages)
	}
}

func TestConvertMessageIsIdempotent(t *testing.T) {
	t.Parallel()

	b := &Builder{Images: stubLoader{
		"a.png": {part: core.ImagePart{Format: core.ImageFormatPNG, Bytes: []byte{1, 2}}},
	}}
	msg := core.ChatMessage{Role: core.RoleUser, Text: "  look  ", Images: []core.ImageRef{{Path: "a.png"}}}

	first := b.ConvertMessage(msg)
	second := b.ConvertMessage(msg)
	require.Equal(t, first, second)
	require.Equal(t, []core.Part{
		core.TextPart("look"),
		core.ImageContent(core.ImageFormatPNG, []byte{1, 2}),
	}, first.Content)
}

func TestConvertMessageEmptyGetsPlaceholder(t *testing.T) {
	t.Parallel()

	for _, msg := range []core.ChatMessage{
		{Role: core.RoleUser},
		{Role: core.RoleAssistant, Text: " \n\t "},
	} {
		got := (&Builder{}).ConvertMessage(msg)
		require.Len(t, got.Content, 1)
		require.Equal(t, core.PartText, got.Content[0].Type)
		require.NotEmpty(t, got.Content[0].Text)
	}
}

func TestConvertMessageSystemBecomesUser(t *testing.T) {
	t.Parallel()

	got := (&Builder{}).ConvertMessage(core.ChatMessage{Role: core.RoleSystem, Text: "rules"})
	require.Equal(t, core.RoleUser, got.Role)

	got = (&Builder{}).ConvertMessage(core.ChatMessage{Role: core.RoleAssistant, Text: "ok"})
	require.Equal(t, core.RoleAssistant, got.Role)
}

func TestConvertMessageImagePlaceholders(t *testing.T) {
	t.Parallel()

	b := &Builder{Images: stubLoader{
		"pic.bmp": {err: &media.UnsupportedFormatError{MIME: "image/bmp"}},
		"bad.png": {err: media.ErrDecode},
	}}
	got := b.ConvertMessage(core.ChatMessage{
		Role:   core.RoleUser,
		Images: []core.ImageRef{{Path: "pic.bmp"}, {Path: "bad.png"}},
	})
	require.Equal(t, []core.Part{
		core.TextPart("[Image: image/bmp]"),
		core.TextPart(ImageFailedPlaceholder),
	}, got.Content)
}

func TestBuildMapsTools(t *testing.T) {
	t.Parallel()

	payload, err := (&Builder{}).Build(&core.Request{
		Model: "m",
		Tools: []*mcp.Tool{{Name: "lookup", Description: "find", InputSchema: map[string]any{"type": "object"}}},
	})
	require.NoError(t, err)
	require.Len(t, payload.Tools, 1)
	require.Equal(t, "lookup", payload.Tools[0].Name)
}
