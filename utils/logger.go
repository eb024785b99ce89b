package utils

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Logger provides leveled, printf-style logging throughout the application.
// Records are emitted through a slog handler so they can be shipped as text or JSON.
type Logger struct {
	s *slog.Logger
}

// LoggerOptions controls handler format, level and destination.
type LoggerOptions struct {
	Debug  bool
	Format string // "text" or "json"
	Writer io.Writer
}

// NewLogger creates a text Logger writing to stdout at info level.
func NewLogger() *Logger {
	return NewLoggerWith(LoggerOptions{})
}

// NewLoggerWith creates a Logger from opts.
func NewLoggerWith(opts LoggerOptions) *Logger {
	var w io.Writer = os.Stdout
	if opts.Writer != nil {
		w = opts.Writer
	}
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch opts.Format {
	case "json":
		h = slog.NewJSONHandler(w, hopts)
	default:
		h = slog.NewTextHandler(w, hopts)
	}
	return &Logger{s: slog.New(h)}
}

// With returns a child logger carrying extra attributes (e.g. "run_id").
func (l *Logger) With(args ...any) *Logger {
	return &Logger{s: l.s.With(args...)}
}

func (l *Logger) Info(format string, args ...any) {
	l.s.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warn(format string, args ...any) {
	l.s.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Error(format string, args ...any) {
	l.s.Error(fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(format string, args ...any) {
	l.s.Debug(fmt.Sprintf(format, args...))
}
