// Package history keeps a record of past runs, including the checkpoint
// ledger needed to resume a failed run.
package history

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nomis52/nodeflow/logging"
	"github.com/nomis52/nodeflow/orchestrator"
	"github.com/nomis52/nodeflow/status"
)

// ErrRunNotFound is returned by Get for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// Store manages persistence of run history.
type Store interface {
	// Runs returns summaries of the stored runs, most recent first.
	Runs() []Summary
	// Get returns the run with the given ID.
	Get(id string) (Run, error)
	// Save persists a run.
	Save(Run) error
	// LatestLedger returns the checkpoint ledger of the most recent run if
	// that run failed, together with its ID.
	LatestLedger() (string, *orchestrator.Ledger, bool)
}

// Run is everything recorded about one run. ResumedFrom is the ID of the
// failed run whose ledger seeded this one.
type Run struct {
	ID          string                     `json:"id"`
	Trigger     string                     `json:"trigger"`
	ResumedFrom string                     `json:"resumed_from,omitempty"`
	StartedAt   time.Time                  `json:"started_at"`
	EndedAt     time.Time                  `json:"ended_at"`
	Success     bool                       `json:"success"`
	Reason      string                     `json:"reason,omitempty"`
	LastNode    string                     `json:"last_node,omitempty"`
	Error       string                     `json:"error,omitempty"`
	Executed    *orchestrator.Ledger       `json:"executed"`
	Failures    []orchestrator.NodeFailure `json:"failures,omitempty"`
	Nodes       []NodeResult               `json:"nodes"`
}

// NodeResult is the record of one node with the logs it produced and its
// last status message.
type NodeResult struct {
	orchestrator.NodeRecord
	Message string             `json:"message,omitempty"`
	Logs    []logging.LogEntry `json:"logs,omitempty"`
}

// Summary is a condensed view of a Run.
type Summary struct {
	ID          string    `json:"id"`
	Trigger     string    `json:"trigger"`
	ResumedFrom string    `json:"resumed_from,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at"`
	Success     bool      `json:"success"`
	Reason      string    `json:"reason,omitempty"`
	NodeCount   int       `json:"node_count"`
	Checkpoints int       `json:"checkpoints"`
}

// NewID returns a new random run ID.
func NewID() string {
	return uuid.NewString()
}

// Summary condenses r.
func (r Run) Summary() Summary {
	checkpoints := 0
	if r.Executed != nil {
		checkpoints = r.Executed.Len()
	}
	return Summary{
		ID:          r.ID,
		Trigger:     r.Trigger,
		ResumedFrom: r.ResumedFrom,
		StartedAt:   r.StartedAt,
		EndedAt:     r.EndedAt,
		Success:     r.Success,
		Reason:      r.Reason,
		NodeCount:   len(r.Nodes),
		Checkpoints: checkpoints,
	}
}

// FromResult builds a Run from an orchestrator result. Node logs and status
// messages are taken from collector and board when they are not nil. A node's
// logs include the lines the orchestrator wrote about it (executing, completed,
// failed) in addition to those written by the node body.
func FromResult(id, trigger string, result *orchestrator.ExecutionResult, collector *logging.LogCollector, board *status.Board) Run {
	run := Run{
		ID:        id,
		Trigger:   trigger,
		StartedAt: result.StartedAt,
		EndedAt:   result.EndedAt,
		Success:   result.Success,
		Reason:    result.Reason,
		Failures:  result.Failures,
		Executed:  result.Context.Metadata.Executed.Snapshot(),
	}
	if result.LastNode != nil {
		run.LastNode = result.LastNode.Name()
	}
	for _, rec := range result.Records() {
		nr := NodeResult{NodeRecord: *rec, Message: board.Get(rec.Name)}
		if collector != nil {
			nr.Logs = collector.GetLogs(rec.Name)
		}
		run.Nodes = append(run.Nodes, nr)
	}
	return run
}

// latestLedger implements LatestLedger over runs sorted most recent first.
func latestLedger(runs []Run) (string, *orchestrator.Ledger, bool) {
	if len(runs) == 0 {
		return "", nil, false
	}
	latest := runs[0]
	if latest.Success || latest.Executed == nil {
		return "", nil, false
	}
	return latest.ID, latest.Executed.Snapshot(), true
}
