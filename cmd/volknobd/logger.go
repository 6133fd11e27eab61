package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// logLevels maps the level names accepted in config and flags onto slog
// levels. "warning" is an alias for "warn". Config validation checks
// membership in this map, so newLogger and Validate can never disagree.
var logLevels = map[string]slog.Level{
	"error":   slog.LevelError,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"info":    slog.LevelInfo,
	"debug":   slog.LevelDebug,
}

// newLogger builds the daemon's logger: text handler on stdout, filtered at
// the named level.
func newLogger(level string) (*slog.Logger, error) {
	lvl, ok := logLevels[strings.ToLower(level)]
	if !ok {
		return nil, fmt.Errorf("unknown log level %q (want error, warn, info or debug)", level)
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	return slog.New(handler), nil
}
