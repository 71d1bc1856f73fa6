package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
	once          sync.Once
)

// Options controls how the process-wide logger is built.
type Options struct {
	Debug  bool
	Format string // "text" (default) or "json"
	Output io.Writer
}

// Init initializes the global logger from environment variables.
// DEBUG=true enables debug level logging, LOG_FORMAT=json switches the handler.
func Init() {
	once.Do(func() {
		Configure(Options{
			Debug:  os.Getenv("DEBUG") == "true",
			Format: os.Getenv("LOG_FORMAT"),
		})
	})
}

// Configure replaces the global logger. Safe to call after Init.
func Configure(opts Options) {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}

	hopts := &slog.HandlerOptions{
		Level:     level,
		AddSource: opts.Debug,
	}

	var handler slog.Handler
	if strings.EqualFold(opts.Format, "json") {
		handler = slog.NewJSONHandler(out, hopts)
	} else {
		handler = slog.NewTextHandler(out, hopts)
	}

	l := slog.New(handler)
	mu.Lock()
	defaultLogger = l
	mu.Unlock()
	slog.SetDefault(l)
}

func get() *slog.Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l != nil {
		return l
	}
	Init()
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

func Debug(msg string, args ...any) { get().Debug(msg, args...) }

func Info(msg string, args ...any) { get().Info(msg, args...) }

func Warn(msg string, args ...any) { get().Warn(msg, args...) }

func Error(msg string, args ...any) { get().Error(msg, args...) }

// Fatal logs at Error level and then exits.
func Fatal(msg string, args ...any) {
	get().Error(msg, args...)
	os.Exit(1)
}

// With returns a new logger with the given attributes.
func With(args ...any) *slog.Logger {
	return get().With(args...)
}

// Component returns a logger tagged with the worker or subsystem name.
func Component(name string) *slog.Logger {
	return get().With("component", name)
}

func DebugContext(ctx context.Context, msg string, args ...any) {
	get().DebugContext(ctx, msg, args...)
}

func InfoContext(ctx context.Context, msg string, args ...any) {
	get().InfoContext(ctx, msg, args...)
}

func WarnContext(ctx context.Context, msg string, args ...any) {
	get().WarnContext(ctx, msg, args...)
}

func ErrorContext(ctx context.Context, msg string, args ...any) {
	get().ErrorContext(ctx, msg, args...)
}
