// Package logger provides structured logging and context-aware logger injection.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// L is the process-wide logger. Init replaces it; request-scoped loggers
// travel via WithContext/FromContext.
var L = slog.Default()

type ctxKey struct{}

var logKey ctxKey

var levels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Init configures the global logger. Format is "json" or "text"; unknown
// levels fall back to info.
func Init(level, format string) {
	lvl, ok := levels[strings.ToLower(level)]
	if !ok {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	L = slog.New(h)
	slog.SetDefault(L)
}

// With returns a child of the global logger with the given attributes.
func With(args ...any) *slog.Logger { return L.With(args...) }

// WithContext stores l in ctx for downstream handlers.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, logKey, l)
}

// FromContext returns the logger stored in ctx, or the global logger.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(logKey).(*slog.Logger); ok {
		return l
	}
	return L
}

func Debug(msg string, args ...any) { L.Debug(msg, args...) }
func Info(msg string, args ...any)  { L.Info(msg, args...) }
func Warn(msg string, args ...any)  { L.Warn(msg, args...) }
func Error(msg string, args ...any) { L.Error(msg, args...) }
