// Package logger wraps zerolog with the constructors and helpers used by the
// vaultguard stores, managers, and CLI.
//
// Secret values (passwords, key-file bytes, snapshot passwords) must never be
// attached to a log event. Log identifiers instead.
package logger

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is a thin wrapper around zerolog.Logger.
type Logger struct {
	zerolog.Logger
}

// NewLogger returns a JSON logger writing to stderr, tagged with role
// (for example "app" or "extension") and the given minimum level.
func NewLogger(role string, level string) *Logger {
	return newLogger(os.Stderr, role, level)
}

// NewFileLogger behaves like NewLogger but appends to path. It falls back to
// stderr if the file cannot be opened.
func NewFileLogger(path, role, level string) *Logger {
	if path == "" {
		return NewLogger(role, level)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return NewLogger(role, level)
	}

	f, err := os.OpenFile(filepath.Clean(path), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return NewLogger(role, level)
	}

	return newLogger(f, role, level)
}

func newLogger(w io.Writer, role, level string) *Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	l := zerolog.New(w).Level(lvl).With().
		Str("role", role).
		Timestamp().
		Logger()

	return &Logger{l}
}

// Nop returns a logger that discards everything. Used by tests.
func Nop() *Logger {
	return &Logger{zerolog.Nop()}
}

// Component returns a child logger carrying a "component" field.
func (l *Logger) Component(name string) *Logger {
	return &Logger{l.With().Str("component", name).Logger()}
}

// WithContext attaches the logger to ctx.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return l.Logger.WithContext(ctx)
}

// FromContext returns the logger attached to ctx, or zerolog's default
// logger when none was attached.
func FromContext(ctx context.Context) *Logger {
	return &Logger{*log.Ctx(ctx)}
}
