package orchestrator

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// FailurePolicy decides which failure is reported in ExecutionResult.Reason
// and LastNode when several nodes fail in one run.
type FailurePolicy int

const (
	// LastFailureWins reports the failure observed most recently.
	LastFailureWins FailurePolicy = iota

	// FirstFailureWins reports the first failure observed.
	FirstFailureWins
)

func (p FailurePolicy) String() string {
	switch p {
	case LastFailureWins:
		return "last"
	case FirstFailureWins:
		return "first"
	default:
		return "unknown"
	}
}

// ParseFailurePolicy parses "last" or "first". The empty string selects
// LastFailureWins.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(s) {
	case "", "last":
		return LastFailureWins, nil
	case "first":
		return FirstFailureWins, nil
	default:
		return 0, fmt.Errorf("unknown failure policy %q", s)
	}
}

// NodeRecord is what happened to one node during a run.
type NodeRecord struct {
	ID        NodeID     `json:"id,omitempty"`
	Name      string     `json:"name"`
	Status    NodeStatus `json:"status"`
	Reason    string     `json:"reason,omitempty"`
	StartTime time.Time  `json:"start_time,omitempty"`
	EndTime   time.Time  `json:"end_time,omitempty"`
}

// Duration returns how long the node ran, or zero if it did not finish.
func (r *NodeRecord) Duration() time.Duration {
	if r.StartTime.IsZero() || r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// NodeFailure is a single node failure.
type NodeFailure struct {
	ID     NodeID `json:"id"`
	Node   string `json:"node"`
	Reason string `json:"reason"`
}

// ExecutionResult is produced once per run and is not modified afterwards.
//
// Node failures are reported here rather than as an error from Run: check
// Success before relying on the state.
type ExecutionResult struct {
	Context *ExecutionContext

	// Success is true when no node failed and the run was not cancelled.
	Success bool

	// Reason is the failure reason selected by the FailurePolicy.
	Reason string

	// LastNode is the node that most recently completed or failed. Nodes
	// skipped because they were already checkpointed do not update it.
	LastNode Node

	// Nodes holds a record for every registered node. Under SequentialIdentity
	// nodes that were never dispatched have no identity and are keyed by
	// "pending-<registration index>".
	Nodes map[NodeID]*NodeRecord

	// Failures lists every failure in the order it was observed.
	Failures []NodeFailure

	StartedAt time.Time
	EndedAt   time.Time
}

// HasReason reports whether a failure reason was recorded.
func (r *ExecutionResult) HasReason() bool {
	return r.Reason != ""
}

// Duration returns the wall time of the run.
func (r *ExecutionResult) Duration() time.Duration {
	return r.EndedAt.Sub(r.StartedAt)
}

// Records returns all node records ordered by start time. Nodes that never
// started come last, ordered by name.
func (r *ExecutionResult) Records() []*NodeRecord {
	records := make([]*NodeRecord, 0, len(r.Nodes))
	for _, rec := range r.Nodes {
		records = append(records, rec)
	}
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		switch {
		case a.StartTime.IsZero() != b.StartTime.IsZero():
			return !a.StartTime.IsZero()
		case !a.StartTime.Equal(b.StartTime):
			return a.StartTime.Before(b.StartTime)
		default:
			return a.Name < b.Name
		}
	})
	return records
}

// Record returns the record for the node with the given name.
func (r *ExecutionResult) Record(name string) (*NodeRecord, bool) {
	for _, rec := range r.Nodes {
		if rec.Name == name {
			return rec, true
		}
	}
	return nil, false
}

func undispatchedKey(index int) NodeID {
	return NodeID(fmt.Sprintf("pending-%d", index))
}
