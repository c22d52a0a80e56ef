// Package logging adapts log/slog to the types.Logger interface the domain
// packages depend on.
package logging

import (
	"log/slog"
	"os"
	"strings"

	"freshtrack/internal/types"
)

// slogAdapter wraps *slog.Logger to satisfy types.Logger.
type slogAdapter struct {
	inner *slog.Logger
}

// New wraps an existing slog.Logger.
func New(inner *slog.Logger) types.Logger {
	return &slogAdapter{inner: inner}
}

// NewDefault builds a JSON logger writing to stderr at the given level.
// Level strings match the configuration values: debug, info, warn, error.
func NewDefault(level string) types.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return &slogAdapter{inner: slog.New(handler)}
}

func (l *slogAdapter) Info(msg string, args ...any)  { l.inner.Info(msg, args...) }
func (l *slogAdapter) Error(msg string, args ...any) { l.inner.Error(msg, args...) }
func (l *slogAdapter) Warn(msg string, args ...any)  { l.inner.Warn(msg, args...) }

func (l *slogAdapter) With(args ...any) types.Logger {
	return &slogAdapter{inner: l.inner.With(args...)}
}
