package orchestrator

import (
	"errors"
	"fmt"

	"github.com/nomis52/nodeflow/tracker"
)

// ErrAlreadyRan is returned when Register or Run is called on an
// Orchestrator that has already started a run.
var ErrAlreadyRan = errors.New("orchestrator has already run")

// CycleError reports a dependency cycle found before any node executed.
type CycleError = tracker.CycleError

// ValidationError reports a malformed node or graph.
type ValidationError struct {
	// Field names what was invalid, e.g. "parents" or the node name.
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

func validationErrorf(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
