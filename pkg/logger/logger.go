// Package logger configures the process-wide slog logger and carries
// per-connection attributes through contexts.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

type contextKey struct{}

// Setup installs the default slog logger. Output goes to w, or to stderr when
// w is nil, so that stdout stays free for command results.
func Setup(level string, format string, w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	var handler slog.Handler
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}
	switch format {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// WithConnID stores a connection identifier in ctx.
func WithConnID(ctx context.Context, connID uint64) context.Context {
	return context.WithValue(ctx, contextKey{}, connID)
}

// FromContext returns the default logger, annotated with the connection ID
// when ctx carries one.
func FromContext(ctx context.Context) *slog.Logger {
	logger := slog.Default()
	if connID, ok := ctx.Value(contextKey{}).(uint64); ok {
		logger = logger.With("conn_id", connID)
	}
	return logger
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
