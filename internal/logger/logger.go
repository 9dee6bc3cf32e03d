// Package logger installs the process-wide structured logger from the
// numeric verbosity carried in the configuration.
package logger

import (
	"io"
	"log/slog"
	"os"
)

// Setup configures structured logging for the given verbosity and
// installs it as the default logger. Levels follow the classic scale:
// 0 silent, 1 errors, 2 warnings, 3 info, 4 debug.
func Setup(level uint8) *slog.Logger {
	var out io.Writer = os.Stderr
	logLevel := slog.LevelInfo

	switch level {
	case 0:
		out = io.Discard
		logLevel = slog.LevelError
	case 1:
		logLevel = slog.LevelError
	case 2:
		logLevel = slog.LevelWarn
	case 3:
		logLevel = slog.LevelInfo
	default:
		logLevel = slog.LevelDebug
	}

	handler := slog.NewTextHandler(out, &slog.HandlerOptions{
		Level: logLevel,
	})

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}
