// Package tasks provides the node bodies nodeflow runs (local and remote
// shell commands) and builds an orchestrator graph from configuration.
package tasks

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/nomis52/nodeflow/orchestrator"
	"github.com/nomis52/nodeflow/status"
)

// waitDelay bounds how long a cancelled command may keep its output pipes
// open, e.g. through a backgrounded grandchild.
const waitDelay = 2 * time.Second

// CommandNode runs a shell command on the local machine.
type CommandNode struct {
	orchestrator.Base

	Command string
	Dir     string
	Env     map[string]string
	// Shell defaults to /bin/sh.
	Shell string
}

// NewCommandNode creates a CommandNode with the given parents.
func NewCommandNode(name string, parents []orchestrator.Node, command string) (*CommandNode, error) {
	base, err := orchestrator.NewBase(name, parents)
	if err != nil {
		return nil, err
	}
	return &CommandNode{Base: base, Command: command}, nil
}

// Execute runs the command. Stdout is logged at info level and stderr at
// warn level, one record per line. The latest stdout line is the node's status
// message. A non-zero exit is a failure.
func (n *CommandNode) Execute(ctx context.Context, ec *orchestrator.ExecutionContext) orchestrator.NodeState {
	logger := orchestrator.LoggerFrom(ctx)
	line := status.For(ec, n.Name(), logger)
	return status.CaptureFailure(line, func() orchestrator.NodeState {
		return n.run(ctx, logger, line)
	})
}

func (n *CommandNode) run(ctx context.Context, logger *slog.Logger, line *status.Line) orchestrator.NodeState {

	shell := n.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	cmd := exec.CommandContext(ctx, shell, "-c", n.Command)
	cmd.Dir = n.Dir
	cmd.WaitDelay = waitDelay
	cmd.Env = append(os.Environ(), envList(n.Env)...)

	stdout := newLineLogger(logger, slog.LevelInfo, "stdout")
	stdout.onLine = line.Record
	stderr := newLineLogger(logger, slog.LevelWarn, "stderr")
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	logger.Debug("running command", "command", n.Command, "dir", n.Dir)
	line.Record("running")
	err := cmd.Run()
	stdout.Flush()
	stderr.Flush()

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return failure(exitErr.ExitCode(), stderr.LastLine())
		}
		return orchestrator.Failuref("running command: %v", err)
	}
	line.Record("done")
	return orchestrator.Success()
}

func failure(status int, lastErrLine string) orchestrator.NodeState {
	if lastErrLine == "" {
		return orchestrator.Failuref("command exited with status %d", status)
	}
	return orchestrator.Failuref("command exited with status %d: %s", status, lastErrLine)
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	list := make([]string, 0, len(keys))
	for _, k := range keys {
		list = append(list, k+"="+env[k])
	}
	return list
}
