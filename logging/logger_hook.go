package logging

import (
	"log/slog"
)

// LoggerHook creates node-specific loggers by wrapping a base logger.
// The orchestrator calls it once per dispatched node, which keeps the
// orchestrator unaware of how (or whether) logs are captured.
type LoggerHook interface {
	// LoggerForNode wraps the base logger for the node with the given name.
	LoggerForNode(base *slog.Logger, node string) *slog.Logger
}

// LoggerHookFunc adapts a function to LoggerHook.
type LoggerHookFunc func(base *slog.Logger, node string) *slog.Logger

// LoggerForNode calls f.
func (f LoggerHookFunc) LoggerForNode(base *slog.Logger, node string) *slog.Logger {
	return f(base, node)
}

// CapturingLoggerHook creates loggers that record into a LogCollector.
type CapturingLoggerHook struct {
	collector *LogCollector
}

// NewCapturingLoggerHook creates a hook that captures all node logs into collector.
func NewCapturingLoggerHook(collector *LogCollector) *CapturingLoggerHook {
	return &CapturingLoggerHook{
		collector: collector,
	}
}

// LoggerForNode wraps the base handler with a CapturingHandler keyed by node.
func (h *CapturingLoggerHook) LoggerForNode(base *slog.Logger, node string) *slog.Logger {
	return slog.New(NewCapturingHandler(base.Handler(), h.collector, node))
}

// Collector returns the collector the hook writes to.
func (h *CapturingLoggerHook) Collector() *LogCollector {
	return h.collector
}
