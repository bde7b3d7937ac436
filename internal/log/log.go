// Package log provides structured logging for parley.
// It wraps slog with sensible defaults for production use.
package log

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	logger *slog.Logger
	once   sync.Once
)

// Options controls logger initialization.
type Options struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string

	// File, if non-empty, tees log output to the named file in
	// addition to stderr. The file is opened in append mode.
	File string
}

// Init initializes the global logger.
// Valid levels: "debug", "info", "warn", "error"
func Init(opts Options) {
	once.Do(func() {
		var lvl slog.Level
		switch opts.Level {
		case "debug":
			lvl = slog.LevelDebug
		case "warn":
			lvl = slog.LevelWarn
		case "error":
			lvl = slog.LevelError
		default:
			lvl = slog.LevelInfo
		}

		out := io.Writer(os.Stderr)
		if opts.File != "" {
			f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				slog.Warn("could not open log file, logging to stderr only", "path", opts.File, "error", err)
			} else {
				out = io.MultiWriter(os.Stderr, f)
			}
		}

		hopts := &slog.HandlerOptions{
			Level: lvl,
		}

		// Use JSON in production, text in development
		if os.Getenv("GO_ENV") == "production" {
			logger = slog.New(slog.NewJSONHandler(out, hopts))
		} else {
			logger = slog.New(slog.NewTextHandler(out, hopts))
		}

		slog.SetDefault(logger)
	})
}

// L returns the global logger instance.
func L() *slog.Logger {
	if logger == nil {
		Init(Options{Level: "info"})
	}
	return logger
}

// Debug logs at debug level.
func Debug(msg string, args ...any) {
	L().Debug(msg, args...)
}

// Info logs at info level.
func Info(msg string, args ...any) {
	L().Info(msg, args...)
}

// Warn logs at warn level.
func Warn(msg string, args ...any) {
	L().Warn(msg, args...)
}

// Error logs at error level.
func Error(msg string, args ...any) {
	L().Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return L().With(args...)
}
