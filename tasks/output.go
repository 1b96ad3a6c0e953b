package tasks

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
)

// lineLogger is an io.Writer that logs each complete line of output.
type lineLogger struct {
	logger *slog.Logger
	level  slog.Level
	stream string
	onLine func(string)

	mu   sync.Mutex
	buf  bytes.Buffer
	last string
}

func newLineLogger(logger *slog.Logger, level slog.Level, stream string) *lineLogger {
	return &lineLogger{logger: logger, level: level, stream: stream}
}

func (w *lineLogger) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Incomplete line: keep it for the next write.
			w.buf.Reset()
			w.buf.WriteString(line)
			break
		}
		w.emit(strings.TrimRight(line, "\r\n"))
	}
	return len(p), nil
}

// Flush logs any trailing partial line.
func (w *lineLogger) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}

// LastLine returns the last non-empty line written.
func (w *lineLogger) LastLine() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}

func (w *lineLogger) emit(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	w.last = line
	w.logger.Log(context.Background(), w.level, line, "stream", w.stream)
	if w.onLine != nil {
		w.onLine(line)
	}
}
