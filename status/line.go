package status

import (
	"log/slog"

	"github.com/nomis52/nodeflow/orchestrator"
)

const failurePrefix = "❌ "

// Line logs status messages of one node and records them on a Board.
type Line struct {
	node   string
	logger *slog.Logger
	board  *Board
}

// NewLine creates a Line bound to node. The board is optional; with a nil
// board messages are only logged.
func NewLine(node string, logger *slog.Logger, board *Board) *Line {
	if logger == nil {
		logger = slog.Default()
	}
	return &Line{node: node, logger: logger, board: board}
}

// For returns a Line for node writing to the Board injected into ec, if any.
func For(ec *orchestrator.ExecutionContext, node string, logger *slog.Logger) *Line {
	var board *Board
	if ec != nil {
		board, _ = orchestrator.Dependency[*Board](ec)
	}
	return NewLine(node, logger, board)
}

// Set logs message and records it on the board.
func (l *Line) Set(message string) {
	l.logger.Info(message, "status", true)
	if l.board != nil {
		l.board.Set(l.node, message)
	}
}

// Record stores message on the board without logging it. It suits messages
// that are logged elsewhere, such as command output.
func (l *Line) Record(message string) {
	if l.board != nil {
		l.board.Set(l.node, message)
	}
}

// CaptureFailure runs f and, if it fails, sets the failure reason as the
// status message.
func CaptureFailure(line *Line, f func() orchestrator.NodeState) orchestrator.NodeState {
	state := f()
	if !state.IsSuccess() && line != nil {
		line.Set(failurePrefix + state.Reason())
	}
	return state
}
