package kfmt

import (
	"fmt"
	"log/slog"
	"strings"
)

var (
	// logLevel is shared by every logger returned by Module so the level
	// can be changed at runtime.
	logLevel = new(slog.LevelVar)

	rootLogger = slog.New(slog.NewTextHandler(console, &slog.HandlerOptions{Level: logLevel}))
)

// Module returns a structured logger that tags each record with the name of
// the kernel module emitting it. Records are written to the active console
// sink.
func Module(name string) *slog.Logger {
	return rootLogger.With("module", name)
}

// SetLogLevel changes the minimum level of records emitted by all module
// loggers.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}

// ParseLogLevel converts a level name (debug, info, warn or error; case
// insensitive) to a slog.Level. Unknown names map to slog.LevelInfo and an
// error.
func ParseLogLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}
