package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys used by the logger
type ContextKey string

// LoggerKey is the context key for the logger instance
const LoggerKey ContextKey = "logger"

// Output formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Options configure NewWithOptions. Zero values give an info-level console
// logger on stdout.
type Options struct {
	Level  string
	Format string
	Out    io.Writer
}

// NewWithOptions builds a logger with timestamps and caller info. Unknown
// levels fall back to info and unknown formats to console.
func NewWithOptions(opts Options) zerolog.Logger {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if opts.Format != FormatJSON {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(opts.Level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Caller().Logger()
}

// New creates a console logger at info level.
func New() zerolog.Logger {
	return NewWithOptions(Options{})
}

// NewWithLevel creates a console logger filtered at the named level.
func NewWithLevel(level string) zerolog.Logger {
	return NewWithOptions(Options{Level: level})
}

// NewWithWriter writes unfiltered JSON lines to w.
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Caller().Logger()
}

// Nop discards everything.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// WithContext adds the logger to the context
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext returns the logger stored by WithContext, or New().
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return New()
}

// WithComponent tags every event with a component name.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// WithFields adds structured fields to a logger
func WithFields(logger zerolog.Logger, fields map[string]any) zerolog.Logger {
	return logger.With().Fields(fields).Logger()
}
