// Package logger wraps log/slog with the level and format switches used by the
// server and the booking worker.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Output encodings accepted in Config.Format.
const (
	FormatJSON = "json"
	FormatText = "text"
)

// Logger embeds *slog.Logger so callers use Info/Warn/Error with key/value pairs.
type Logger struct {
	*slog.Logger
}

// Config selects the level, encoding and destination of a Logger.  Empty
// fields fall back to info level JSON on stdout.
type Config struct {
	Level     string
	Format    string
	Output    io.Writer
	AddSource bool
	Service   string
}

func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level), AddSource: cfg.AddSource}

	var h slog.Handler = slog.NewJSONHandler(cfg.Output, opts)
	if strings.EqualFold(strings.TrimSpace(cfg.Format), FormatText) {
		h = slog.NewTextHandler(cfg.Output, opts)
	}
	l := slog.New(h)
	if cfg.Service != "" {
		l = l.With("service", cfg.Service)
	}
	return &Logger{Logger: l}
}

// parseLevel accepts slog's level names ("debug", "WARN", "error+2").
// Anything unrecognised is info.
func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Discard returns a Logger that drops every record.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// With returns a child Logger carrying the given attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Fatal logs at error level and exits with status 1.  Only composition roots
// should call it.
func (l *Logger) Fatal(msg string, args ...any) {
	l.Error(msg, args...)
	os.Exit(1)
}
