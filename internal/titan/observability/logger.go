// Package observability provides structured logging helpers for TITAN.
//
// It wraps log/slog with trace-ID propagation and secret redaction so that
// every log line emitted while processing a goal carries the trace context
// and never leaks resolved secret values.
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/antigravity-dev/titan/internal/titan/redact"
	"github.com/antigravity-dev/titan/internal/titan/trace"
)

// Setup configures the global slog logger according to level ("debug",
// "info", "warn", "error") and format ("text" or "json").
func Setup(level, format string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// WithTrace returns a child logger that always includes the trace_id from ctx.
func WithTrace(ctx context.Context) *slog.Logger {
	traceID := trace.FromContext(ctx)
	if traceID == "" {
		return slog.Default()
	}
	return slog.With("trace_id", traceID)
}

// RedactSecrets replaces known-sensitive values in msg with [REDACTED].
func RedactSecrets(msg string, sensitiveValues ...string) string {
	return redact.String(msg, sensitiveValues...)
}
