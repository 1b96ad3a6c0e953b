// Package tracker keeps track of which nodes of a dependency graph are ready to run.
//
// A Tracker is filled with Add, validated once with Prepare, and then driven by
// repeatedly calling GetReady and reporting each handed-out node back with Done
// or Fail:
//
//	t := tracker.New[string]()
//	t.Add("b", "a")
//	t.Add("c", "a")
//	if err := t.Prepare(); err != nil {
//	    return err // *CycleError
//	}
//	for t.IsActive() {
//	    ready, _ := t.GetReady()
//	    for _, n := range ready {
//	        run(n)
//	        t.Done(n)
//	    }
//	}
//
// Every node is handed out by GetReady at most once. A failed node releases its
// own bookkeeping but permanently blocks all of its descendants, so IsActive
// turns false once nothing else can make progress.
//
// All methods are safe for concurrent use.
package tracker

import (
	"fmt"
	"sort"
	"sync"
)

type nodeState int

const (
	statePending nodeState = iota
	stateHandedOut
	stateDone
	stateFailed
	stateBlocked
)

type entry[K comparable] struct {
	key       K
	index     int
	parents   []K
	children  []K
	remaining int
	state     nodeState
}

// Tracker tracks readiness of nodes identified by K.
type Tracker[K comparable] struct {
	label func(K) string

	mu       sync.Mutex
	nodes    map[K]*entry[K]
	order    []K
	queue    []K
	prepared bool
	finished int
}

// Option configures a Tracker.
type Option[K comparable] func(*Tracker[K])

// WithLabel sets the function used to name nodes in errors.
// The default formats the key with %v.
func WithLabel[K comparable](label func(K) string) Option[K] {
	return func(t *Tracker[K]) {
		t.label = label
	}
}

// New creates an empty Tracker.
func New[K comparable](opts ...Option[K]) *Tracker[K] {
	t := &Tracker[K]{
		label: func(k K) string { return fmt.Sprintf("%v", k) },
		nodes: make(map[K]*entry[K]),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Add registers k with the given direct parents. Parents that were not added
// yet are registered implicitly. Adding a node twice merges the parent sets.
func (t *Tracker[K]) Add(k K, parents ...K) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.prepared {
		return ErrAlreadyPrepared
	}

	e := t.ensure(k)
	for _, p := range parents {
		pe := t.ensure(p)
		if containsKey(e.parents, p) {
			continue
		}
		e.parents = append(e.parents, p)
		pe.children = append(pe.children, k)
	}
	return nil
}

// Len returns the number of registered nodes.
func (t *Tracker[K]) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nodes)
}

// Prepare checks the graph for cycles and computes the initial ready set.
// It returns a *CycleError if the graph is not acyclic.
func (t *Tracker[K]) Prepare() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.prepared {
		return ErrAlreadyPrepared
	}
	if err := t.findCycle(); err != nil {
		return err
	}

	for _, k := range t.order {
		e := t.nodes[k]
		e.remaining = len(e.parents)
		if e.remaining == 0 {
			t.queue = append(t.queue, k)
		}
	}
	t.prepared = true
	return nil
}

// GetReady returns the nodes whose parents are all done and which were not
// handed out before, in registration order. An empty result does not mean the
// graph is finished; use IsActive for that.
func (t *Tracker[K]) GetReady() ([]K, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.prepared {
		return nil, ErrNotPrepared
	}
	if len(t.queue) == 0 {
		return nil, nil
	}

	ready := t.queue
	t.queue = nil
	sort.Slice(ready, func(i, j int) bool {
		return t.nodes[ready[i]].index < t.nodes[ready[j]].index
	})
	for _, k := range ready {
		t.nodes[k].state = stateHandedOut
	}
	return ready, nil
}

// Done marks a handed-out node as complete, releasing its dependents.
func (t *Tracker[K]) Done(k K) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, err := t.handedOut(k)
	if err != nil {
		return err
	}

	e.state = stateDone
	t.finished++
	for _, c := range e.children {
		ce := t.nodes[c]
		ce.remaining--
		if ce.remaining == 0 && ce.state == statePending {
			t.queue = append(t.queue, c)
		}
	}
	return nil
}

// Fail marks a handed-out node as finished without success. None of its
// descendants will ever be handed out.
func (t *Tracker[K]) Fail(k K) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, err := t.handedOut(k)
	if err != nil {
		return err
	}

	e.state = stateFailed
	t.finished++

	pending := append([]K(nil), e.children...)
	for len(pending) > 0 {
		c := pending[0]
		pending = pending[1:]
		ce := t.nodes[c]
		if ce.state != statePending {
			continue
		}
		ce.state = stateBlocked
		t.finished++
		pending = append(pending, ce.children...)
	}
	return nil
}

// IsActive reports whether any node is still neither finished nor
// permanently blocked. It is false before Prepare.
func (t *Tracker[K]) IsActive() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.prepared && t.finished < len(t.nodes)
}

// Blocked returns the nodes that can never run because an ancestor failed,
// in registration order.
func (t *Tracker[K]) Blocked() []K {
	t.mu.Lock()
	defer t.mu.Unlock()

	var blocked []K
	for _, k := range t.order {
		if t.nodes[k].state == stateBlocked {
			blocked = append(blocked, k)
		}
	}
	return blocked
}

func (t *Tracker[K]) ensure(k K) *entry[K] {
	if e, ok := t.nodes[k]; ok {
		return e
	}
	e := &entry[K]{key: k, index: len(t.order)}
	t.nodes[k] = e
	t.order = append(t.order, k)
	return e
}

func (t *Tracker[K]) handedOut(k K) (*entry[K], error) {
	e, ok := t.nodes[k]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, t.label(k))
	}
	if e.state != stateHandedOut {
		return nil, fmt.Errorf("%w: %s", ErrNotReady, t.label(k))
	}
	return e, nil
}

// findCycle runs a depth-first search along parent edges. On the first back
// edge it returns the cycle as a *CycleError where each node depends on the next.
func (t *Tracker[K]) findCycle() error {
	const (
		white = iota
		grey
		black
	)
	color := make(map[K]int, len(t.nodes))
	var stack []K

	var visit func(k K) []K
	visit = func(k K) []K {
		color[k] = grey
		stack = append(stack, k)
		for _, p := range t.nodes[k].parents {
			switch color[p] {
			case grey:
				start := 0
				for i, s := range stack {
					if s == p {
						start = i
						break
					}
				}
				cycle := append([]K(nil), stack[start:]...)
				return append(cycle, p)
			case white:
				if cycle := visit(p); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[k] = black
		return nil
	}

	for _, k := range t.order {
		if color[k] != white {
			continue
		}
		if cycle := visit(k); cycle != nil {
			names := make([]string, len(cycle))
			for i, c := range cycle {
				names[i] = t.label(c)
			}
			return &CycleError{Nodes: names}
		}
	}
	return nil
}

func containsKey[K comparable](keys []K, k K) bool {
	for _, x := range keys {
		if x == k {
			return true
		}
	}
	return false
}
