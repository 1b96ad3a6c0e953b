package tracker

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotPrepared is returned when the ready set is queried before Prepare.
	ErrNotPrepared = errors.New("tracker not prepared")

	// ErrAlreadyPrepared is returned when the graph is modified or prepared again
	// after Prepare succeeded.
	ErrAlreadyPrepared = errors.New("tracker already prepared")

	// ErrUnknownNode is returned when Done or Fail names a node that was never added.
	ErrUnknownNode = errors.New("unknown node")

	// ErrNotReady is returned when Done or Fail names a node that was never handed
	// out by GetReady, or was already finished.
	ErrNotReady = errors.New("node not handed out")
)

// CycleError reports a dependency cycle found by Prepare.
// Nodes lists the labels of the nodes on one cycle; each node depends on the
// next one and the first node is repeated at the end.
type CycleError struct {
	Nodes []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Nodes, " -> "))
}
