package logging

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogCollector(t *testing.T) {
	c := NewLogCollector()
	assert.Nil(t, c.GetLogs("missing"))

	c.AddLog("a", LogEntry{Time: time.Now(), Level: "INFO", Message: "one"})
	c.AddLog("a", LogEntry{Time: time.Now(), Level: "INFO", Message: "two"})
	c.AddLog("b", LogEntry{Time: time.Now(), Level: "ERROR", Message: "three"})

	logs := c.GetLogs("a")
	require.Len(t, logs, 2)
	assert.Equal(t, "one", logs[0].Message)

	// returned slices are copies
	logs[0].Message = "changed"
	assert.Equal(t, "one", c.GetLogs("a")[0].Message)

	all := c.GetAllLogs()
	assert.Len(t, all, 2)
	assert.Len(t, all["b"], 1)

	c.Clear()
	assert.Empty(t, c.GetAllLogs())
}

func TestCapturingLoggerHook(t *testing.T) {
	base := slog.New(slog.NewJSONHandler(bytes.NewBuffer(nil), nil))
	collector := NewLogCollector()
	hook := NewCapturingLoggerHook(collector)
	assert.Same(t, collector, hook.Collector())

	a := hook.LoggerForNode(base, "a")
	b := hook.LoggerForNode(base, "b")
	assert.NotSame(t, a, b)

	a.Info("from a")
	b.Info("from b")
	b.Info("again from b")

	assert.Len(t, collector.GetLogs("a"), 1)
	assert.Len(t, collector.GetLogs("b"), 2)
}

func TestLoggerHookFunc(t *testing.T) {
	var seen []string
	hook := LoggerHookFunc(func(base *slog.Logger, node string) *slog.Logger {
		seen = append(seen, node)
		return base.With("node", node)
	})

	logger := hook.LoggerForNode(Discard(), "x")
	require.NotNil(t, logger)
	assert.Equal(t, []string{"x"}, seen)
}
