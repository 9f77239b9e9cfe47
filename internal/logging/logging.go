// Package logging builds the process-wide slog logger.
package logging

import (
	"io"
	"log/slog"
	"time"

	"github.com/charmbracelet/log"
)

// New returns a slog.Logger backed by a charmbracelet handler writing to w.
// Unknown levels fall back to info. JSON output is used when json is set.
func New(w io.Writer, level string, json bool) *slog.Logger {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}

	opts := log.Options{
		Level:           lvl,
		TimeFormat:      time.RFC3339,
		ReportTimestamp: true,
		TimeFunction:    log.NowUTC,
	}
	if json {
		opts.Formatter = log.JSONFormatter
	}

	return slog.New(log.NewWithOptions(w, opts))
}
