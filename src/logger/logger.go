// backend/src/logger/logger.go
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

var L *slog.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil)) // Global logger instance, silent until InitLogger

type contextKey string

const loggerKey contextKey = "logger"

// ParseLevel maps a LOG_LEVEL value to a slog.Level. Unknown values fall back to info.
func ParseLevel(logLevelStr string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(logLevelStr)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// InitLogger initializes the global logger writing JSON to stdout.
// Call this once at application startup, after loading config.
func InitLogger(logLevelStr string) {
	InitLoggerWithWriter(logLevelStr, os.Stdout)
}

// InitLoggerWithWriter is InitLogger with an explicit destination (stderr for the CLI, buffers in tests).
func InitLoggerWithWriter(logLevelStr string, w io.Writer) {
	level, known := ParseLevel(logLevelStr)

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				if t, ok := a.Value.Any().(time.Time); ok {
					a.Value = slog.StringValue(t.Format(time.RFC3339))
				}
			}
			return a
		},
	}

	L = slog.New(slog.NewJSONHandler(w, opts))
	slog.SetDefault(L)

	if !known {
		L.Warn("Invalid LOG_LEVEL specified, defaulting to INFO", "configuredLevel", logLevelStr)
	}
	L.Debug("Logger initialized", "level", level.String())
}

// FromContext retrieves a logger from context, or returns the global logger.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
			return logger
		}
	}
	return L
}

// ToContext embeds a slog.Logger into a context.Context.
func ToContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// InfoFromContext logs a message at Info level using the contextual logger.
func InfoFromContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Info(msg, args...)
}

// ErrorFromContext logs a message at Error level using the contextual logger.
func ErrorFromContext(ctx context.Context, msg string, args ...any) {
	FromContext(ctx).Error(msg, args...)
}
