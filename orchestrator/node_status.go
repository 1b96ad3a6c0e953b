package orchestrator

import (
	"encoding/json"
	"fmt"
)

// NodeStatus is the per-run execution status of a registered node.
type NodeStatus int

const (
	// NotStarted indicates the node was never dispatched in this run.
	NotStarted NodeStatus = iota

	// Running indicates the node is currently executing.
	Running

	// Completed indicates the node executed and returned success.
	Completed

	// Failed indicates the node returned an error or panicked.
	Failed

	// Skipped indicates the node was already in the checkpoint ledger.
	Skipped

	// Blocked indicates an ancestor failed so the node can never run.
	Blocked
)

var nodeStatusNames = map[NodeStatus]string{
	NotStarted: "not_started",
	Running:    "running",
	Completed:  "completed",
	Failed:     "failed",
	Skipped:    "skipped",
	Blocked:    "blocked",
}

// String returns a human-readable representation of the NodeStatus
func (s NodeStatus) String() string {
	if name, ok := nodeStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsTerminal returns true if the status can no longer change within the run.
func (s NodeStatus) IsTerminal() bool {
	return s == Completed || s == Failed || s == Skipped || s == Blocked
}

// MarshalJSON encodes the status as its string name.
func (s NodeStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a status from its string name.
func (s *NodeStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	for status, n := range nodeStatusNames {
		if n == name {
			*s = status
			return nil
		}
	}
	return fmt.Errorf("unknown node status %q", name)
}
