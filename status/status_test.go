package status

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nomis52/nodeflow/logging"
	"github.com/nomis52/nodeflow/orchestrator"
)

func TestBoard(t *testing.T) {
	t.Run("set and get", func(t *testing.T) {
		b := NewBoard()
		b.Set("fetch", "running")
		assert.Equal(t, "running", b.Get("fetch"))
	})

	t.Run("unknown node", func(t *testing.T) {
		assert.Equal(t, "", NewBoard().Get("fetch"))
		var nilBoard *Board
		assert.Equal(t, "", nilBoard.Get("fetch"))
	})

	t.Run("all returns a copy", func(t *testing.T) {
		b := NewBoard()
		b.Set("fetch", "done")

		all := b.All()
		assert.Equal(t, map[string]string{"fetch": "done"}, all)
		all["fetch"] = "modified"
		assert.Equal(t, "done", b.Get("fetch"))
	})
}

func TestLine(t *testing.T) {
	t.Run("set updates board and logs", func(t *testing.T) {
		collector := logging.NewLogCollector()
		logger := logging.NewCapturingLoggerHook(collector).LoggerForNode(logging.Discard(), "fetch")
		b := NewBoard()

		NewLine("fetch", logger, b).Set("working")

		assert.Equal(t, "working", b.Get("fetch"))
		logs := collector.GetLogs("fetch")
		require.Len(t, logs, 1)
		assert.Equal(t, "working", logs[0].Message)
	})

	t.Run("nil board only logs", func(t *testing.T) {
		NewLine("fetch", nil, nil).Set("working")
	})
}

func TestCaptureFailure(t *testing.T) {
	b := NewBoard()
	line := NewLine("fetch", logging.Discard(), b)

	state := CaptureFailure(line, func() orchestrator.NodeState {
		line.Set("downloading")
		return orchestrator.Success()
	})
	assert.True(t, state.IsSuccess())
	assert.Equal(t, "downloading", b.Get("fetch"))

	state = CaptureFailure(line, func() orchestrator.NodeState {
		return orchestrator.Failure("timeout")
	})
	assert.False(t, state.IsSuccess())
	assert.Equal(t, "❌ timeout", b.Get("fetch"))

	state = CaptureFailure(nil, func() orchestrator.NodeState {
		return orchestrator.Failure("timeout")
	})
	assert.False(t, state.IsSuccess())
}

func TestFor(t *testing.T) {
	b := NewBoard()
	node, err := orchestrator.NewFuncNode("fetch", nil, func(ctx context.Context, ec *orchestrator.ExecutionContext) orchestrator.NodeState {
		For(ec, "fetch", orchestrator.LoggerFrom(ctx)).Set("hello")
		return orchestrator.Success()
	})
	require.NoError(t, err)

	o := orchestrator.New(orchestrator.WithLogger(logging.Discard()))
	require.NoError(t, o.Register(node))
	result, err := o.RunSync(nil, b)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, "hello", b.Get("fetch"))

	// Without a board nothing is recorded and nothing panics.
	For(nil, "fetch", nil).Set("ignored")
	ec, err := orchestrator.NewExecutionContext(nil)
	require.NoError(t, err)
	For(ec, "fetch", nil).Set("ignored")
}
