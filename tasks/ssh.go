package tasks

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/nomis52/nodeflow/clients/sshclient"
	"github.com/nomis52/nodeflow/orchestrator"
	"github.com/nomis52/nodeflow/status"
)

// RemoteClient runs commands on a remote host.
type RemoteClient interface {
	Run(ctx context.Context, command string, stdout, stderr io.Writer) error
	Close() error
}

// DialFunc opens a RemoteClient.
type DialFunc func(ctx context.Context) (RemoteClient, error)

// SSHDialer returns a DialFunc connecting with cfg.
func SSHDialer(cfg sshclient.Config) DialFunc {
	return func(ctx context.Context) (RemoteClient, error) {
		c, err := sshclient.Dial(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// SSHNode runs a shell command on a remote host.
type SSHNode struct {
	orchestrator.Base

	Host    string
	Command string
	Dir     string
	Env     map[string]string

	dial DialFunc
}

// NewSSHNode creates an SSHNode that connects with dial.
func NewSSHNode(name string, parents []orchestrator.Node, host, command string, dial DialFunc) (*SSHNode, error) {
	base, err := orchestrator.NewBase(name, parents)
	if err != nil {
		return nil, err
	}
	return &SSHNode{Base: base, Host: host, Command: command, dial: dial}, nil
}

// Execute connects to the host and runs the command in a new session.
func (n *SSHNode) Execute(ctx context.Context, ec *orchestrator.ExecutionContext) orchestrator.NodeState {
	logger := orchestrator.LoggerFrom(ctx).With("host", n.Host)
	line := status.For(ec, n.Name(), logger)
	return status.CaptureFailure(line, func() orchestrator.NodeState {
		return n.run(ctx, logger, line)
	})
}

func (n *SSHNode) run(ctx context.Context, logger *slog.Logger, line *status.Line) orchestrator.NodeState {
	line.Record("connecting to " + n.Host)
	client, err := n.dial(ctx)
	if err != nil {
		return orchestrator.Failuref("connecting to %s: %v", n.Host, err)
	}
	defer client.Close()

	stdout := newLineLogger(logger, slog.LevelInfo, "stdout")
	stdout.onLine = line.Record
	stderr := newLineLogger(logger, slog.LevelWarn, "stderr")

	command := remoteCommand(n.Command, n.Dir, n.Env)
	logger.Debug("running remote command", "command", command)
	line.Record("running")
	err = client.Run(ctx, command, stdout, stderr)
	stdout.Flush()
	stderr.Flush()

	if err != nil {
		var exitErr *sshclient.ExitError
		if errors.As(err, &exitErr) {
			return failure(exitErr.Status, stderr.LastLine())
		}
		return orchestrator.Failuref("running command on %s: %v", n.Host, err)
	}
	line.Record("done")
	return orchestrator.Success()
}

// remoteCommand prefixes command with exports and a cd so that it behaves
// like a local CommandNode. Servers commonly refuse SSH setenv requests.
func remoteCommand(command, dir string, env map[string]string) string {
	var b strings.Builder
	if vars := envList(env); len(vars) > 0 {
		b.WriteString("export")
		for _, kv := range vars {
			k, v, _ := strings.Cut(kv, "=")
			b.WriteString(" " + k + "=" + shellQuote(v))
		}
		b.WriteString("; ")
	}
	if dir != "" {
		b.WriteString("cd " + shellQuote(dir) + " && ")
	}
	b.WriteString(command)
	return b.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
