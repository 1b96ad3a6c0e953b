// Package status lets running nodes publish a one-line progress message.
//
// The package follows the handler/writer pattern of log/slog:
//
//   - Line: writes status messages for one node (analogous to slog.Logger)
//   - Board: receives and stores the latest message of every node (analogous to slog.Handler)
//
// # Usage
//
// The caller injects a Board into the run as a dependency:
//
//	board := status.NewBoard()
//	result, err := o.Run(ctx, state, board)
//
// and nodes look up a Line bound to themselves:
//
//	func (n *Fetch) Execute(ctx context.Context, ec *orchestrator.ExecutionContext) orchestrator.NodeState {
//	    line := status.For(ec, n.Name(), orchestrator.LoggerFrom(ctx))
//	    return status.CaptureFailure(line, func() orchestrator.NodeState {
//	        line.Set("downloading")
//	        // ... perform work
//	        return orchestrator.Success()
//	    })
//	}
//
// Without a Board in the execution context, messages are only logged.
package status
