package tools

import (
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"converse/internal/llm/core"
)

// decodeArgs maps decoded tool input onto a typed parameter struct.
func decodeArgs(args map[string]any, target any) error {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}

// mustDescriptor reflects a static parameter struct; failure is a programming error.
func mustDescriptor(name, description string, params any) *mcp.Tool {
	tool, err := core.NewToolFromStruct(name, description, params)
	if err != nil {
		panic(fmt.Sprintf("tools: build %s descriptor: %v", name, err))
	}
	return tool
}
