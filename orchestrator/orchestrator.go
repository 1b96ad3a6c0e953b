package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nomis52/nodeflow/logging"
	"github.com/nomis52/nodeflow/metrics"
	"github.com/nomis52/nodeflow/tracker"
)

// DefaultBackoff is how long the driver sleeps when no node is ready.
const DefaultBackoff = 100 * time.Millisecond

// RunState is the lifecycle state of an Orchestrator.
type RunState int

const (
	StateIdle RunState = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is delivered by Start once the run is over.
type Outcome struct {
	Result *ExecutionResult
	Err    error
}

// Orchestrator runs a graph of nodes once.
type Orchestrator struct {
	backoff  time.Duration
	ec       *ExecutionContext
	logger   *slog.Logger
	hook     logging.LoggerHook
	registry metrics.Registry
	identity IdentityScheme
	policy   FailurePolicy

	mu         sync.Mutex
	state      RunState
	nodes      []Node
	registered map[Node]struct{}
	current    *run
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBackoff sets how long the driver waits before polling again when no
// node is ready.
func WithBackoff(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.backoff = d
		}
	}
}

// WithExecutionContext makes the run use ec instead of a fresh context.
// Nodes whose identity is already in ec.Metadata.Executed are skipped.
func WithExecutionContext(ec *ExecutionContext) Option {
	return func(o *Orchestrator) {
		o.ec = ec
	}
}

// WithLogger sets a custom logger for the orchestrator
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger.With("component", "orchestrator")
	}
}

// WithLoggerHook wraps each node's logger, e.g. to capture node logs.
func WithLoggerHook(hook logging.LoggerHook) Option {
	return func(o *Orchestrator) {
		o.hook = hook
	}
}

// WithMetrics records node and run metrics in reg.
func WithMetrics(reg metrics.Registry) Option {
	return func(o *Orchestrator) {
		o.registry = reg
	}
}

// WithIdentityScheme selects how checkpoint identities are assigned.
func WithIdentityScheme(s IdentityScheme) Option {
	return func(o *Orchestrator) {
		o.identity = s
	}
}

// WithFailurePolicy selects which failure ExecutionResult reports.
func WithFailurePolicy(p FailurePolicy) Option {
	return func(o *Orchestrator) {
		o.policy = p
	}
}

// New creates an Orchestrator.
func New(opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backoff:    DefaultBackoff,
		logger:     slog.Default().With("component", "orchestrator"),
		registry:   metrics.Discard(),
		registered: make(map[Node]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Register adds nodes and, transitively, their parents. Registering a node
// twice is a no-op.
func (o *Orchestrator) Register(nodes ...Node) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateIdle {
		return ErrAlreadyRan
	}
	for _, n := range nodes {
		if err := o.register(n); err != nil {
			return err
		}
	}
	o.logger.Debug("nodes registered", "count", len(nodes), "total", len(o.nodes))
	return nil
}

func (o *Orchestrator) register(n Node) error {
	if isNilNode(n) {
		return validationErrorf("node", "nil node")
	}
	if reflect.ValueOf(n).Kind() != reflect.Ptr {
		return validationErrorf(n.Name(), "node of type %T must be a pointer", n)
	}
	if _, ok := o.registered[n]; ok {
		return nil
	}
	o.registered[n] = struct{}{}
	o.nodes = append(o.nodes, n)

	for _, p := range n.Parents() {
		if err := o.register(p); err != nil {
			return err
		}
	}
	return nil
}

// State returns the lifecycle state.
func (o *Orchestrator) State() RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// RunSync is Run with context.Background().
func (o *Orchestrator) RunSync(state any, deps ...any) (*ExecutionResult, error) {
	return o.Run(context.Background(), state, deps...)
}

// Start runs the graph on a new goroutine. The returned channel receives
// exactly one Outcome.
func (o *Orchestrator) Start(ctx context.Context, state any, deps ...any) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		result, err := o.Run(ctx, state, deps...)
		ch <- Outcome{Result: result, Err: err}
	}()
	return ch
}

// Run executes the registered graph and blocks until every dispatched node
// has returned.
//
// The returned error is reserved for problems with the graph itself
// (*CycleError, *ValidationError, ErrAlreadyRan); nothing has executed when
// it is non-nil. Node failures are reported in the result.
//
// Once a node fails, or ctx is cancelled, no new nodes are dispatched but
// nodes already running finish. Descendants of a failed node never run.
func (o *Orchestrator) Run(ctx context.Context, state any, deps ...any) (*ExecutionResult, error) {
	nodes, err := o.begin()
	if err != nil {
		return nil, err
	}

	r, err := o.prepare(nodes, state, deps)
	if err != nil {
		o.logger.Error("graph validation failed", "error", err)
		o.finish(false)
		return nil, err
	}

	o.mu.Lock()
	o.current = r
	o.mu.Unlock()

	o.logger.Info("starting execution",
		"node_count", len(nodes),
		"checkpointed", r.ec.Metadata.Executed.Len(),
		"identity", o.identity.String())

	result := r.drive(ctx)

	if result.Success {
		o.logger.Info("execution completed successfully", "duration", result.Duration())
	} else {
		o.logger.Error("execution failed", "reason", result.Reason, "failures", len(result.Failures), "duration", result.Duration())
	}
	o.finish(result.Success)
	return result, nil
}

// Progress returns a copy of the node records of the current or finished
// run in registration order, or nil if Run has not started executing.
func (o *Orchestrator) Progress() []NodeRecord {
	o.mu.Lock()
	r := o.current
	o.mu.Unlock()
	if r == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]NodeRecord, len(r.nodes))
	for i, n := range r.nodes {
		out[i] = *r.records[n]
	}
	return out
}

func (o *Orchestrator) begin() ([]Node, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateIdle {
		return nil, ErrAlreadyRan
	}
	o.state = StateRunning
	return append([]Node(nil), o.nodes...), nil
}

func (o *Orchestrator) finish(success bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if success {
		o.state = StateCompleted
	} else {
		o.state = StateFailed
	}
}

func (o *Orchestrator) prepare(nodes []Node, state any, deps []any) (*run, error) {
	ec, err := o.executionContext(state, deps)
	if err != nil {
		return nil, &ValidationError{Field: "dependencies", Reason: err.Error()}
	}

	t := tracker.New[Node](tracker.WithLabel[Node](func(n Node) string { return n.Name() }))
	for _, n := range nodes {
		if err := t.Add(n, n.Parents()...); err != nil {
			return nil, fmt.Errorf("adding node %q: %w", n.Name(), err)
		}
	}
	if err := t.Prepare(); err != nil {
		return nil, err
	}

	ids, err := newIdentifier(o.identity, nodes)
	if err != nil {
		return nil, err
	}

	var inst *instruments
	if o.registry != nil {
		inst, err = newInstruments(o.registry)
		if err != nil {
			o.logger.Warn("metrics disabled", "error", err)
			inst = nil
		}
	}

	r := &run{
		o:       o,
		ec:      ec,
		tracker: t,
		ids:     ids,
		inst:    inst,
		nodes:   nodes,
		records: make(map[Node]*NodeRecord, len(nodes)),
		result:  &ExecutionResult{Context: ec, Success: true},
	}
	for _, n := range nodes {
		r.records[n] = &NodeRecord{Name: n.Name(), Status: NotStarted}
	}
	return r, nil
}

// executionContext returns the context for this run. A context supplied with
// WithExecutionContext is used as is; state and deps only fill in what it lacks.
func (o *Orchestrator) executionContext(state any, deps []any) (*ExecutionContext, error) {
	if o.ec == nil {
		return NewExecutionContext(state, deps...)
	}

	ec := o.ec
	if ec.State == nil {
		ec.State = state
	}
	if ec.Dependencies.Len() == 0 {
		d, err := NewDependencies(deps...)
		if err != nil {
			return nil, err
		}
		ec.Dependencies = d
	}
	if ec.Metadata.Executed == nil {
		ec.Metadata.Executed = NewLedger()
	}
	return ec, nil
}

func (o *Orchestrator) nodeLogger(n Node, id NodeID) *slog.Logger {
	logger := o.logger
	if o.hook != nil {
		logger = o.hook.LoggerForNode(logger, n.Name())
	}
	return logger.With("node", n.Name(), "node_id", string(id))
}

// run is the state of a single Run call.
type run struct {
	o       *Orchestrator
	ec      *ExecutionContext
	tracker *tracker.Tracker[Node]
	ids     *identifier
	inst    *instruments
	nodes   []Node
	stop    atomic.Bool

	mu      sync.Mutex
	records map[Node]*NodeRecord
	result  *ExecutionResult
}

func (r *run) stopped(ctx context.Context) bool {
	return r.stop.Load() || ctx.Err() != nil
}

// drive is the dispatch loop. Each ready batch is dispatched into a single
// errgroup for the whole run; node goroutines never return an error so a
// failing node cannot cancel its siblings.
func (r *run) drive(ctx context.Context) *ExecutionResult {
	r.result.StartedAt = time.Now()
	logger := r.o.logger

	var g errgroup.Group
	batches := 0
	for r.tracker.IsActive() && !r.stopped(ctx) {
		batch, err := r.tracker.GetReady()
		if err != nil {
			// Unreachable after a successful Prepare.
			logger.Error("tracker error", "error", err)
			r.stop.Store(true)
			break
		}
		if len(batch) == 0 {
			select {
			case <-ctx.Done():
			case <-time.After(r.o.backoff):
			}
			continue
		}
		// A node may have released this batch after raising the stop flag.
		if r.stopped(ctx) {
			break
		}

		batches++
		logger.Debug("dispatching batch", "batch", batches, "size", len(batch))
		for _, n := range batch {
			id := r.ids.assign(n)
			r.mu.Lock()
			r.records[n].ID = id
			r.mu.Unlock()

			g.Go(func() error {
				r.visit(ctx, n, id)
				return nil
			})
		}
	}
	_ = g.Wait()

	return r.complete(ctx)
}

// visit runs a single node. The ledger is updated before the tracker is told
// the node is done, so a child can never start before its parent is
// checkpointed.
func (r *run) visit(ctx context.Context, n Node, id NodeID) {
	logger := r.o.nodeLogger(n, id)

	if r.ec.Metadata.Executed.Contains(id) {
		logger.Info("node already checkpointed, skipping")
		r.record(n, func(rec *NodeRecord) { rec.Status = Skipped })
		r.release(n, logger)
		return
	}

	logger.Info("executing node")
	r.record(n, func(rec *NodeRecord) {
		rec.Status = Running
		rec.StartTime = time.Now()
	})

	state := r.execute(withLogger(ctx, logger), n, logger)

	if state.IsSuccess() {
		r.ec.Metadata.Executed.Add(id)
		logger.Info("node completed successfully")
		r.record(n, func(rec *NodeRecord) {
			rec.Status = Completed
			rec.EndTime = time.Now()
		})
		r.succeeded(n)
		r.release(n, logger)
		return
	}

	logger.Error("node failed", "reason", state.Reason())
	r.record(n, func(rec *NodeRecord) {
		rec.Status = Failed
		rec.Reason = state.Reason()
		rec.EndTime = time.Now()
	})
	r.failed(n, id, state.Reason())
	r.stop.Store(true)
	if err := r.tracker.Fail(n); err != nil {
		logger.Error("releasing failed node", "error", err)
	}
}

func (r *run) execute(ctx context.Context, n Node, logger *slog.Logger) (state NodeState) {
	defer func() {
		if p := recover(); p != nil {
			logger.Error("node panicked", "panic", p, "stack", string(debug.Stack()))
			state = Failure(fmt.Sprint(p))
		}
	}()
	return n.Execute(ctx, r.ec)
}

func (r *run) release(n Node, logger *slog.Logger) {
	if err := r.tracker.Done(n); err != nil {
		logger.Error("releasing node", "error", err)
	}
}

func (r *run) record(n Node, update func(*NodeRecord)) {
	r.mu.Lock()
	rec := r.records[n]
	update(rec)
	finished := *rec
	r.mu.Unlock()

	if r.inst != nil && finished.Status.IsTerminal() {
		r.inst.nodeFinished(&finished)
	}
}

func (r *run) succeeded(n Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.o.policy == FirstFailureWins && !r.result.Success {
		return
	}
	r.result.LastNode = n
}

func (r *run) failed(n Node, id NodeID, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	first := r.result.Success
	r.result.Success = false
	r.result.Failures = append(r.result.Failures, NodeFailure{ID: id, Node: n.Name(), Reason: reason})
	if first || r.o.policy == LastFailureWins {
		r.result.Reason = reason
		r.result.LastNode = n
	}
}

// complete finalises the result once every dispatched node has returned.
func (r *run) complete(ctx context.Context) *ExecutionResult {
	for _, n := range r.tracker.Blocked() {
		r.record(n, func(rec *NodeRecord) { rec.Status = Blocked })
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	res := r.result
	if res.Success && r.tracker.IsActive() && ctx.Err() != nil {
		res.Success = false
		res.Reason = ctx.Err().Error()
	}
	res.EndedAt = time.Now()

	res.Nodes = make(map[NodeID]*NodeRecord, len(r.nodes))
	for i, n := range r.nodes {
		rec := r.records[n]
		if rec.ID == "" && r.ids.scheme == ContentIdentity {
			rec.ID = r.ids.contentID(n)
		}
		key := rec.ID
		if key == "" {
			key = undispatchedKey(i)
		}
		res.Nodes[key] = rec
	}

	if r.inst != nil {
		r.inst.runFinished(res.Success, res.Duration(), r.ec.Metadata.Executed.Len())
	}
	return res
}
