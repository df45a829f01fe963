package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level string
	// File enables a rotating JSON log next to the stderr text log.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// New builds the process logger. The returned closer flushes the log file, if
// any.
func New(opts Options) (*slog.Logger, io.Closer) {
	level := ParseLevel(opts.Level)

	console := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	if opts.File == "" {
		return slog.New(console), nopCloser{}
	}

	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 20
	}
	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    maxSize,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}
	file := slog.NewJSONHandler(rotator, &slog.HandlerOptions{Level: level})
	return slog.New(fanout{console, file}), rotator
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Session returns a child logger tagged with a play request's session id and
// the requesting user, so every line of one request can be correlated.
func Session(l *slog.Logger, tag, user string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	args := make([]any, 0, 4)
	if tag != "" {
		args = append(args, "session", tag)
	}
	if user != "" {
		args = append(args, "user", user)
	}
	if len(args) == 0 {
		return l
	}
	return l.With(args...)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
