// Package logging configures the process-wide slog logger and threads the
// correlation_id/batch_id tracing contract (§7) through every call site.
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Configure sets up the global slog logger with the specified level and
// format.
//
// Formats:
//   - "json": structured JSON output for production
//   - "text": human-readable text for local development
func Configure(level slog.Level, format string, output io.Writer) {
	if output == nil {
		output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// ParseLevel converts a string to slog.Level.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRequest returns a logger with correlation_id (and, once known,
// batch_id) bound as attributes, so every downstream log line carries them
// without repeating slog.String at each call site. Per §7, this is the only
// supported mechanism for cross-component tracing.
func WithRequest(logger *slog.Logger, correlationID, batchID string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"correlation_id", correlationID}
	if batchID != "" {
		attrs = append(attrs, "batch_id", batchID)
	}
	return logger.With(attrs...)
}
