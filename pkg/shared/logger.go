package helpers

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger creates a new Logger with structured logging using slog
// logLevel can be "debug", "info", "warn", or "error"; anything else falls back to info
func NewLogger(serviceName, logLevel string) *slog.Logger {
	return NewLoggerTo(os.Stdout, serviceName, logLevel)
}

// NewLoggerTo is NewLogger writing to w instead of stdout
func NewLoggerTo(w io.Writer, serviceName, logLevel string) *slog.Logger {
	level := ParseLevel(logLevel)

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	})

	return slog.New(handler).With("service", serviceName)
}

// ParseLevel maps a level name to a slog.Level, defaulting to info
func ParseLevel(logLevel string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}
