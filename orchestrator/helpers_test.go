package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// trace records the order in which nodes executed.
type trace struct {
	mu    sync.Mutex
	order []string
	runs  map[string]int
}

func newTrace() *trace {
	return &trace{runs: make(map[string]int)}
}

func (tr *trace) add(name string) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.order = append(tr.order, name)
	tr.runs[name]++
}

func (tr *trace) snapshot() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.order...)
}

func (tr *trace) count(name string) int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.runs[name]
}

func (tr *trace) index(name string) int {
	for i, n := range tr.snapshot() {
		if n == name {
			return i
		}
	}
	return -1
}

// testNode records itself in a trace and then behaves as configured.
type testNode struct {
	Base
	trace    *trace
	delay    time.Duration
	fail     atomic.Bool
	reason   string
	panicMsg string
}

func newTestNode(t *testing.T, tr *trace, name string, parents ...Node) *testNode {
	t.Helper()
	var ps any
	if len(parents) > 0 {
		ps = parents
	}
	base, err := NewBase(name, ps)
	require.NoError(t, err)
	return &testNode{Base: base, trace: tr}
}

func (n *testNode) failWith(reason string) *testNode {
	n.fail.Store(true)
	n.reason = reason
	return n
}

func (n *testNode) Execute(ctx context.Context, ec *ExecutionContext) NodeState {
	if n.delay > 0 {
		time.Sleep(n.delay)
	}
	n.trace.add(n.Name())
	if counter, ok := ec.State.(*atomic.Int32); ok {
		counter.Add(1)
	}
	if n.panicMsg != "" {
		panic(n.panicMsg)
	}
	if n.fail.Load() {
		return Failure(n.reason)
	}
	return Success()
}

// diamond builds a -> (b, c) -> d.
func diamond(t *testing.T, tr *trace) (a, b, c, d *testNode) {
	t.Helper()
	a = newTestNode(t, tr, "a")
	b = newTestNode(t, tr, "b", a)
	c = newTestNode(t, tr, "c", a)
	d = newTestNode(t, tr, "d", b, c)
	return a, b, c, d
}

func fastOrchestrator(opts ...Option) *Orchestrator {
	return New(append([]Option{WithBackoff(time.Millisecond)}, opts...)...)
}

// cycleNode has mutable parents so that cycles can be built.
type cycleNode struct {
	name    string
	parents []Node
}

func (n *cycleNode) Name() string { return n.name }

func (n *cycleNode) Parents() []Node { return n.parents }

func (n *cycleNode) Execute(context.Context, *ExecutionContext) NodeState {
	return Success()
}

// valueNode implements Node with a value receiver.
type valueNode struct{}

func (valueNode) Name() string { return "value" }

func (valueNode) Parents() []Node { return nil }

func (valueNode) Execute(context.Context, *ExecutionContext) NodeState { return Success() }
