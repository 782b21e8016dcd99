// Package logger configures log/slog for contentflow and carries request and
// run ids through a context so log lines from one request can be correlated.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

type contextKey int

const (
	requestIDKey contextKey = iota
	runIDKey
)

var (
	defaultLogger *slog.Logger
	mu            sync.RWMutex
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level: debug, info, warn or error.
	Level string
	// Format is text or json.
	Format string
	// Output defaults to os.Stderr.
	Output    io.Writer
	AddSource bool
}

// Init builds the default logger from cfg and installs it as slog's default.
// Calling it again replaces the previous logger.
func Init(cfg Config) *slog.Logger {
	l := New(cfg)
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
	slog.SetDefault(l)
	return l
}

// New builds a logger from cfg without installing it.
func New(cfg Config) *slog.Logger {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}
	return slog.New(handler)
}

// Reset drops the configured logger. Tests use it to isolate Init calls.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	defaultLogger = nil
}

// ParseLevel maps a level name to a slog.Level. Unknown names mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// Default returns the configured logger, or slog.Default() before Init.
func Default() *slog.Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l == nil {
		return slog.Default()
	}
	return l
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// WithContext returns the default logger with request_id and run_id
// attributes taken from ctx.
func WithContext(ctx context.Context) *slog.Logger {
	return FromContext(ctx, Default())
}

// FromContext is WithContext over an explicit base logger.
func FromContext(ctx context.Context, base *slog.Logger) *slog.Logger {
	l := base
	if rid := GetRequestID(ctx); rid != "" {
		l = l.With("request_id", rid)
	}
	if id := GetRunID(ctx); id != "" {
		l = l.With("run_id", id)
	}
	return l
}

// SetRequestID adds a request id to the context.
func SetRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// SetRunID adds a pipeline run id to the context.
func SetRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// GetRequestID extracts the request id from the context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetRunID extracts the run id from the context.
func GetRunID(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}
