package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"sync"
)

// Warnings yt-dlp prints on every run that say nothing about the request.
var nonCritical = []string{
	"No supported JavaScript runtime could be found",
	"web_safari client https formats have been skipped",
	"web client https formats have been skipped",
	"JavaScript runtime without JS has been deprecated",
	"SABR streaming for this client",
}

const tailLimit = 2048

// ToolWriter is an io.Writer for a subprocess's stderr. Complete lines are
// logged at a level derived from their content; download progress is
// dropped. The last error lines are kept for error messages.
type ToolWriter struct {
	log       *slog.Logger
	tool      string
	allErrors bool

	mu      sync.Mutex
	partial []byte
	tail    []byte
}

func NewToolWriter(l *slog.Logger, tool string) *ToolWriter {
	if l == nil {
		l = slog.Default()
	}
	return &ToolWriter{log: l, tool: tool}
}

// NewErrorWriter is for tools already running at error log level, such as
// ffmpeg with -loglevel error: every line it prints is an error.
func NewErrorWriter(l *slog.Logger, tool string) *ToolWriter {
	w := NewToolWriter(l, tool)
	w.allErrors = true
	return w
}

func (w *ToolWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		w.line(string(w.partial[:i]))
		w.partial = w.partial[i+1:]
	}
	return len(p), nil
}

// Flush logs any trailing line without a newline.
func (w *ToolWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.partial) > 0 {
		w.line(string(w.partial))
		w.partial = nil
	}
}

// Tail returns the most recent error and warning output.
func (w *ToolWriter) Tail() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return strings.TrimSpace(string(w.tail))
}

func (w *ToolWriter) line(s string) {
	s = strings.TrimSpace(strings.TrimSuffix(s, "\r"))
	if s == "" || strings.Contains(s, "[download]") {
		return
	}

	level := Classify(s)
	if w.allErrors {
		level = slog.LevelError
	}
	switch level {
	case slog.LevelError:
		w.log.Error(s, "tool", w.tool)
		w.keep(s)
	case slog.LevelWarn:
		w.log.Warn(s, "tool", w.tool)
		w.keep(s)
	default:
		w.log.Debug(s, "tool", w.tool)
	}
}

func (w *ToolWriter) keep(s string) {
	w.tail = append(w.tail, s...)
	w.tail = append(w.tail, '\n')
	if over := len(w.tail) - tailLimit; over > 0 {
		w.tail = w.tail[over:]
	}
}

// Classify maps one line of tool output to a log level.
func Classify(line string) slog.Level {
	switch {
	case strings.Contains(line, "ERROR"), strings.HasPrefix(strings.ToLower(line), "error"):
		return slog.LevelError
	case strings.Contains(line, "WARNING"):
		for _, p := range nonCritical {
			if strings.Contains(line, p) {
				return slog.LevelDebug
			}
		}
		return slog.LevelWarn
	default:
		return slog.LevelDebug
	}
}
