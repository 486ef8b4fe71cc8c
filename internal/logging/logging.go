// Package logging configures structured slog output for dispatchkit.
//
// Logs are JSON on stderr; stdout is reserved for MCP JSON-RPC traffic and
// CLI results. The level comes from the --log-level flag, the config file,
// or the LOG_LEVEL environment variable, in that order.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// EnvLevel is the environment variable consulted when no level is given.
const EnvLevel = "LOG_LEVEL"

// ParseLevel converts a level name to a slog.Level. Unknown names map to Info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// New returns a JSON logger writing to w. Debug loggers include source locations.
func New(w io.Writer, level string) *slog.Logger {
	if level == "" {
		level = os.Getenv(EnvLevel)
	}
	lvl := ParseLevel(level)
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl <= slog.LevelDebug,
	}))
}

// SetDefault installs a stderr logger tagged with the service name and version
// as the slog default and returns it.
func SetDefault(service, version, level string) *slog.Logger {
	logger := New(os.Stderr, level).With("service", service, "version", version)
	slog.SetDefault(logger)
	return logger
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Component returns logger (or the default logger when nil) tagged with a
// component name.
func Component(logger *slog.Logger, name string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With("component", name)
}
