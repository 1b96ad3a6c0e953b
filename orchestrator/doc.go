// Package orchestrator runs a directed acyclic graph of nodes concurrently,
// checkpointing every node that succeeds so that a failed run can be resumed.
//
// # Core Concepts
//
// A Node is a unit of work with a name, a fixed set of parent nodes and an
// Execute method returning a NodeState (success, or an error with a reason).
// Embed Base to get the name and parents:
//
//	type Fetch struct {
//		orchestrator.Base
//	}
//
//	fetch := &Fetch{Base: orchestrator.MustBase("fetch", nil)}
//	parse, err := orchestrator.NewFuncNode("parse", fetch, func(ctx context.Context, ec *orchestrator.ExecutionContext) orchestrator.NodeState {
//		return orchestrator.Success()
//	})
//
// The Orchestrator manages a single run:
//   - Register adds nodes and, transitively, their parents
//   - Run validates the graph, then dispatches ready nodes in batches
//   - the ExecutionResult reports the outcome of every node
//
// # Execution Model
//
// The driver repeatedly asks a tracker.Tracker for the batch of nodes whose
// parents have all succeeded. Each node of a batch runs on its own goroutine;
// nodes in one batch have no ordering among themselves. When no node is ready
// the driver sleeps for the backoff interval (WithBackoff) and polls again.
//
// A node never starts before all of its parents are in the checkpoint ledger.
//
// # Failure Handling
//
// Run only returns an error when the graph cannot run at all: a dependency
// cycle (*CycleError), a malformed node (*ValidationError) or a second call
// (ErrAlreadyRan). A node failing is not an error:
//
//	result, err := o.Run(ctx, state)
//	if err != nil {
//		return err
//	}
//	if !result.Success {
//		log.Printf("node %s failed: %s", result.LastNode.Name(), result.Reason)
//	}
//
// Once a node fails no new batch is dispatched, but nodes that are already
// running finish and are checkpointed if they succeed. Descendants of the
// failed node are reported as Blocked and never run. A panic escaping Execute
// is recovered and treated as a failure with the panic value as the reason.
// Cancelling the context passed to Run has the same effect as a failure.
//
// When several nodes fail, ExecutionResult.Failures lists all of them. Reason
// and LastNode follow the FailurePolicy: LastFailureWins (default) or
// FirstFailureWins.
//
// # Checkpoints and Resume
//
// Every successful node's identity is added to the ExecutionContext ledger
// (Metadata.Executed), which only ever grows. To resume, pass the context of
// the failed run to a new orchestrator and register the same graph:
//
//	o2 := orchestrator.New(orchestrator.WithExecutionContext(result.Context))
//	o2.Register(nodes...)
//	result2, err := o2.Run(ctx, nil)
//
// Nodes already in the ledger are skipped without being executed.
//
// Identities come from the IdentityScheme. ContentIdentity (default) hashes
// the node name together with its parents' identities, so a resumed run may
// register nodes in any order. SequentialIdentity numbers nodes in dispatch
// order and is only safe to resume when registration order is identical.
//
// # Shared State
//
// ExecutionContext.State is shared by reference between every node, including
// nodes running at the same time. The orchestrator does no locking on it.
// Injected dependencies are read with Dependency:
//
//	client, ok := orchestrator.Dependency[*http.Client](ec)
//
// # Logging
//
// Each node gets a logger carrying "node" and "node_id" attributes, available
// inside Execute through LoggerFrom(ctx). WithLoggerHook lets callers wrap
// it, for example with logging.CapturingLoggerHook to keep node logs for
// the run history.
package orchestrator
