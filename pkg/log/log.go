// Package log installs the process-wide structured logger shared by the
// worker and API binaries.
package log

import (
	"log/slog"
	"os"
	"strings"
)

// Setup replaces the default slog logger with a stderr text handler at
// the requested level. Unrecognized levels fall back to info.
func Setup(level string) {
	parsed := slog.LevelInfo

	switch strings.ToLower(level) {
	case "debug":
		parsed = slog.LevelDebug
	case "warn":
		parsed = slog.LevelWarn
	case "error":
		parsed = slog.LevelError
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parsed})
	slog.SetDefault(slog.New(handler))
}

// WithModule tags the default logger with a module name, the convention
// every package-level logger in this codebase follows.
func WithModule(name string) *slog.Logger {
	return slog.With("module", name)
}
