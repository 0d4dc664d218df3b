// Package logging provides the structured application logger.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog for key-value structured logging.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger writing to stdout. Level is one of
// "debug", "info", "warn", "error"; format "json" selects JSON output.
func NewLogger(level, format string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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
