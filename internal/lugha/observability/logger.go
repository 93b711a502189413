// Package observability provides structured logging helpers for Lugha.
//
// It wraps log/slog with trace ID propagation and secret redaction so that
// every log line emitted while handling an event carries the trace context
// and never leaks configured credentials.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/bdobrica/Lugha/common/trace"
)

// ParseLevel maps "debug", "info", "warn", "error" to a slog level.
// Unknown values select info.
func ParseLevel(level string) slog.Level {
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

// NewHandler builds a text or json handler on w that redacts secrets.
func NewHandler(w io.Writer, level, format string, secrets ...string) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return NewRedactingHandler(handler, secrets...)
}

// Setup configures the global slog logger on stdout
// (e.g. level="info", format="json").
func Setup(level, format string, secrets ...string) {
	slog.SetDefault(slog.New(NewHandler(os.Stdout, level, format, secrets...)))
}

// WithTrace returns a child logger that always includes the trace_id from ctx.
func WithTrace(ctx context.Context) *slog.Logger {
	traceID := trace.FromContext(ctx)
	if traceID == "" {
		return slog.Default()
	}
	return slog.With("trace_id", traceID)
}
