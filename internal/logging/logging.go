// Package logging provides structured logging for the datastreams daemon.
//
// It wraps log/slog so every component logs through the same handler.
// Output is text for interactive use and JSON when stdout is redirected.
//
// Usage:
//
//	logging.Init(slog.LevelInfo, false)
//
//	log := logging.Component("storage")
//	log.Info("data streams opened", "deployment", id, "streams", 3)
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu     sync.RWMutex
	logger *slog.Logger
)

// Init initializes the global logger writing to stdout.
func Init(level slog.Level, jsonFormat bool) {
	InitWithWriter(os.Stdout, level, jsonFormat)
}

// InitWithWriter initializes the global logger writing to w.
func InitWithWriter(w io.Writer, level slog.Level, jsonFormat bool) {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if jsonFormat {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	InitWithHandler(handler)
}

// InitWithHandler initializes the global logger with a custom handler.
// Tests use it to capture output.
func InitWithHandler(handler slog.Handler) {
	l := slog.New(handler)

	mu.Lock()
	logger = l
	mu.Unlock()

	slog.SetDefault(l)
}

// Logger returns the global logger, initializing a text logger on first use.
func Logger() *slog.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	Init(slog.LevelInfo, false)
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// ParseLevel converts a config level name to a slog level.
// Unknown names fall back to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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

// Component returns a logger for a specific component.
//
//	log := logging.Component("batch")
//	log.Debug("merged") // time=... level=DEBUG component=batch msg=merged
func Component(name string) *slog.Logger {
	return Logger().With("component", name)
}

// With returns a new logger with additional attributes.
func With(args ...any) *slog.Logger {
	return Logger().With(args...)
}

type contextKey int

const (
	contextKeyDeployment contextKey = iota
	contextKeyRequestID
)

// ContextWithDeployment adds a study deployment id to the context for logging.
func ContextWithDeployment(ctx context.Context, deploymentID string) context.Context {
	return context.WithValue(ctx, contextKeyDeployment, deploymentID)
}

// ContextWithRequestID adds a request id to the context for logging.
func ContextWithRequestID(ctx context.Context, requestID uint64) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

// WithContext returns a logger carrying the values stored in ctx.
func WithContext(ctx context.Context) *slog.Logger {
	l := Logger()
	if id, ok := ctx.Value(contextKeyDeployment).(string); ok {
		l = l.With("deployment", id)
	}
	if id, ok := ctx.Value(contextKeyRequestID).(uint64); ok {
		l = l.With("request_id", id)
	}
	return l
}
