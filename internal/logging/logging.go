// SPDX-License-Identifier: MPL-2.0

// Package logging builds the structured logger shared by the benchmark
// components.
package logging

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// Prefix is attached to every record emitted by loggers from New.
const Prefix = "buildbench"

// New returns a logger writing to w. Debug records are only emitted when
// verbose is set.
func New(w io.Writer, verbose bool) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{
		Prefix:          Prefix,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
		Level:           log.InfoLevel,
	})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// Discard returns a logger that drops everything. Used as the default when a
// component is constructed without one.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *log.Logger) *log.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
