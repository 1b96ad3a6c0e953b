package runner

import (
	"time"

	"github.com/nomis52/nodeflow/history"
)

// RunState represents whether a run is in progress.
type RunState int

const (
	// StateIdle indicates no run is in progress.
	StateIdle RunState = iota
	// StateRunning indicates a run is in progress.
	StateRunning
)

// String returns the string representation of the run state.
func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s RunState) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// Status describes the current or last run.
type Status struct {
	State   RunState `json:"state"`
	RunID   string   `json:"run_id,omitempty"`
	Trigger string   `json:"trigger,omitempty"`
	// StartedAt is nil if no run has occurred.
	StartedAt *time.Time `json:"started_at,omitempty"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	// Success is nil while the first run is in progress.
	Success *bool  `json:"success,omitempty"`
	Reason  string `json:"reason,omitempty"`
	// Error is set when the run could not be prepared.
	Error string               `json:"error,omitempty"`
	Nodes []history.NodeResult `json:"nodes,omitempty"`
}
