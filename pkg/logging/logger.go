// Package logging configures structured logging for the reconciler using zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Component names used as the "component" field across the service.
const (
	ComponentReconcile = "reconcile"
	ComponentSource    = "source"
	ComponentCompare   = "compare"
	ComponentClient    = "upstream-client"
	ComponentStore     = "report-store"
	ComponentRunner    = "sweep-runner"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum level ("debug", "info", "warn", "error").
	Level string

	// Pretty enables human-readable console output instead of JSON.
	Pretty bool

	// Service is attached to every entry as the "service" field when set.
	Service string

	// Output defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns JSON logging at info level to stderr.
func DefaultConfig() Config {
	return Config{
		Level:   "info",
		Service: "sync-reconciler",
		Output:  os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()

	log.Logger = logger
	return logger
}

// ParseLevel converts a level name to a zerolog level.
// Unknown names fall back to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger derives a logger for one component from the global logger.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// WithSweep tags a logger with the sweep name and run id.
func WithSweep(logger zerolog.Logger, sweep, runID string) zerolog.Logger {
	return logger.With().Str("sweep", sweep).Str("run_id", runID).Logger()
}

// Level guidelines:
//
// Debug: worker start/stop, empty pages, per-request retries
// Info:  sweep start/finish, report saved, server startup
// Warn:  failed pages, upstream throttling, report save failures
// Error: page error ceiling reached, sweep failed, upstream budget exhausted
//
// Common fields: sweep, run_id, cursor, page_errors, items_checked,
// pages_checked, system, path, status, error_class.
