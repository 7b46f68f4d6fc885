package agent

// State is the runtime status of the agent loop.
type State string

const (
	// StateIdle accepts a new run.
	StateIdle State = "idle"
	// StateStreaming is pulling chunks for a model turn.
	StateStreaming State = "streaming"
	// StateToolExecuting is running the tool calls of the last turn.
	StateToolExecuting State = "tool_executing"
	// StateError is left after a failed run; a new run may start from it.
	StateError State = "error"
)

// Busy reports whether a run is in progress.
func (s State) Busy() bool {
	return s == StateStreaming || s == StateToolExecuting
}
