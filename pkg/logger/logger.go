package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewDefaultLogger creates a colored logger on stderr.
func NewDefaultLogger(level slog.Level) *slog.Logger {
	return NewLogger(os.Stderr, level)
}

// NewLogger creates a colored logger using a custom writer.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(NewColorHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// ParseLevel maps a config string to a level. Unknown values mean info.
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

// Source returns a child logger tagged with a data source name.
func Source(l *slog.Logger, src string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With("source", src)
}
