package tools

// Builtins returns a registry with the file tools rooted at workspaceRoot.
// Mutating tools are left out when readOnly is set.
func Builtins(workspaceRoot string, readOnly bool) *Registry {
	reg := NewRegistry(NewReadTool(workspaceRoot), NewLsTool(workspaceRoot), NewGrepTool(workspaceRoot))
	if !readOnly {
		_ = reg.Register(NewWriteTool(workspaceRoot))
		_ = reg.Register(NewEditTool(workspaceRoot))
	}
	return reg
}
