package logging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapturingHandler_Enabled(t *testing.T) {
	underlying := slog.NewJSONHandler(bytes.NewBuffer(nil), &slog.HandlerOptions{Level: slog.LevelError})
	handler := NewCapturingHandler(underlying, NewLogCollector(), "node-a")

	ctx := context.Background()
	assert.True(t, handler.Enabled(ctx, slog.LevelDebug))
	assert.True(t, handler.Enabled(ctx, slog.LevelError))
}

func TestCapturingHandler_CapturesBelowUnderlyingLevel(t *testing.T) {
	var buf bytes.Buffer
	collector := NewLogCollector()
	underlying := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn})

	logger := slog.New(NewCapturingHandler(underlying, collector, "node-a"))
	logger.Debug("debug message")
	logger.Warn("warn message")

	logs := collector.GetLogs("node-a")
	require.Len(t, logs, 2)
	assert.Equal(t, "DEBUG", logs[0].Level)
	assert.Equal(t, "WARN", logs[1].Level)

	assert.NotContains(t, buf.String(), "debug message")
	assert.Contains(t, buf.String(), "warn message")
}

func TestCapturingHandler_Attributes(t *testing.T) {
	collector := NewLogCollector()
	underlying := slog.NewJSONHandler(bytes.NewBuffer(nil), nil)
	logger := slog.New(NewCapturingHandler(underlying, collector, "node-a"))

	logger.With("run", "r1").Info("finished",
		"count", 42,
		"ok", true,
		"took", 2*time.Second,
		"error", errors.New("boom"),
	)

	logs := collector.GetLogs("node-a")
	require.Len(t, logs, 1)
	attrs := logs[0].Attributes
	assert.Equal(t, "r1", attrs["run"])
	assert.Equal(t, int64(42), attrs["count"])
	assert.Equal(t, true, attrs["ok"])
	assert.Equal(t, "2s", attrs["took"])
	assert.Equal(t, "boom", attrs["error"])
}

func TestCapturingHandler_Groups(t *testing.T) {
	collector := NewLogCollector()
	underlying := slog.NewJSONHandler(bytes.NewBuffer(nil), nil)
	logger := slog.New(NewCapturingHandler(underlying, collector, "node-a"))

	logger.WithGroup("cmd").With("exit", 1).Info("exited", "signal", "none")
	logger.Info("grouped", slog.Group("req", "id", 7))

	logs := collector.GetLogs("node-a")
	require.Len(t, logs, 2)
	assert.Equal(t, int64(1), logs[0].Attributes["cmd.exit"])
	assert.Equal(t, "none", logs[0].Attributes["cmd.signal"])
	assert.Equal(t, map[string]interface{}{"id": int64(7)}, logs[1].Attributes["req"])
}

func TestCapturingHandler_Concurrent(t *testing.T) {
	collector := NewLogCollector()
	underlying := slog.NewJSONHandler(bytes.NewBuffer(nil), nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("node-%d", i%2)
			logger := slog.New(NewCapturingHandler(underlying, collector, key))
			for j := 0; j < 10; j++ {
				logger.Info("line", "j", j)
			}
		}(i)
	}
	wg.Wait()

	assert.Len(t, collector.GetLogs("node-0"), 50)
	assert.Len(t, collector.GetLogs("node-1"), 50)
}
