// Package logger builds the process's zerolog loggers and carries them
// through request contexts.
package logger

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type contextKey struct{}

// Options selects the output format and minimum level.
type Options struct {
	Level  string
	Pretty bool
}

// New creates the process logger writing to stdout. Pretty selects the
// human-readable console format; otherwise records are JSON lines.
func New(opts Options) zerolog.Logger {
	var out io.Writer = os.Stdout
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return NewWithWriter(out).Level(parseLevel(opts.Level))
}

// NewWithWriter creates a JSON logger on a custom writer
func NewWithWriter(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}

// WithContext adds the logger to the context
func WithContext(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext retrieves the logger from the context, falling back to a
// disabled logger so callers never need a nil check.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(contextKey{}).(zerolog.Logger); ok {
		return logger
	}
	return zerolog.Nop()
}

func parseLevel(level string) zerolog.Level {
	if level == "" {
		return zerolog.InfoLevel
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return l
}
