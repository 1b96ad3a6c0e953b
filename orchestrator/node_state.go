package orchestrator

import "fmt"

// NodeState is the outcome of a node execution: either success or an error
// carrying a reason. The zero value is a success.
type NodeState struct {
	failed bool
	reason string
}

// Success returns the successful NodeState.
func Success() NodeState {
	return NodeState{}
}

// Failure returns an error NodeState with the given reason.
func Failure(reason string) NodeState {
	return NodeState{failed: true, reason: reason}
}

// Failuref returns an error NodeState with a formatted reason.
func Failuref(format string, args ...any) NodeState {
	return Failure(fmt.Sprintf(format, args...))
}

// IsSuccess reports whether the state is the success variant.
func (s NodeState) IsSuccess() bool {
	return !s.failed
}

// Reason returns the failure reason, or "" for success.
func (s NodeState) Reason() string {
	return s.reason
}

func (s NodeState) String() string {
	if !s.failed {
		return "success"
	}
	return "error: " + s.reason
}
