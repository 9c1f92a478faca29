// Package util holds small helpers shared by the binaries.
package util

import (
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// NewLogger builds a timestamped JSON logger on stdout; unknown levels fall back to info.
func NewLogger(level string) zerolog.Logger {
	return NewLoggerTo(os.Stdout, level)
}

// NewLoggerTo is NewLogger with an explicit sink.
func NewLoggerTo(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(lvl)
}

// NewRunID returns a fresh identifier stamped on every log line of one strategy run.
func NewRunID() string { return uuid.NewString() }

// ForStrategy scopes a logger to one strategy run.
func ForStrategy(log zerolog.Logger, strategy, runID string) zerolog.Logger {
	return log.With().Str("strategy", strategy).Str("run_id", runID).Logger()
}
