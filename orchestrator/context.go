package orchestrator

import (
	"fmt"
	"reflect"
)

// ExecutionContext is shared by every node of a run. It may be handed to a
// new Orchestrator with WithExecutionContext to resume a failed run.
type ExecutionContext struct {
	// State is owned by the caller and shared by reference between
	// concurrently running nodes. The orchestrator never locks it.
	State any

	// Dependencies holds read-only services injected by the caller.
	Dependencies *Dependencies

	Metadata Metadata
}

// Metadata is orchestrator-maintained bookkeeping carried by an ExecutionContext.
type Metadata struct {
	// Executed holds the identities of nodes that completed successfully.
	Executed *Ledger
}

// NewExecutionContext creates a context with an empty ledger.
func NewExecutionContext(state any, deps ...any) (*ExecutionContext, error) {
	d, err := NewDependencies(deps...)
	if err != nil {
		return nil, err
	}
	return &ExecutionContext{
		State:        state,
		Dependencies: d,
		Metadata:     Metadata{Executed: NewLedger()},
	}, nil
}

// Dependencies is a read-only container of services keyed by their type.
type Dependencies struct {
	byType map[reflect.Type]any
	order  []reflect.Type
}

// NewDependencies registers each dependency under its dynamic type. Nil
// values are ignored and a repeated type is an error.
func NewDependencies(deps ...any) (*Dependencies, error) {
	d := &Dependencies{byType: make(map[reflect.Type]any, len(deps))}
	for _, dep := range deps {
		if dep == nil {
			continue
		}
		t := reflect.TypeOf(dep)
		if _, exists := d.byType[t]; exists {
			return nil, fmt.Errorf("dependency type %s already injected", t)
		}
		d.byType[t] = dep
		d.order = append(d.order, t)
	}
	return d, nil
}

// Len returns the number of registered dependencies.
func (d *Dependencies) Len() int {
	if d == nil {
		return 0
	}
	return len(d.byType)
}

// Lookup returns the dependency registered under exactly type t.
func (d *Dependencies) Lookup(t reflect.Type) (any, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d.byType[t]
	return v, ok
}

// Dependency returns the dependency of type T from ec. If T is an interface,
// the first registered value implementing it is returned when there is no
// exact match.
func Dependency[T any](ec *ExecutionContext) (T, bool) {
	var zero T
	if ec == nil || ec.Dependencies == nil {
		return zero, false
	}
	t := reflect.TypeOf((*T)(nil)).Elem()
	if v, ok := ec.Dependencies.Lookup(t); ok {
		return v.(T), true
	}
	if t.Kind() != reflect.Interface {
		return zero, false
	}
	for _, dt := range ec.Dependencies.order {
		if tv, ok := ec.Dependencies.byType[dt].(T); ok {
			return tv, true
		}
	}
	return zero, false
}
