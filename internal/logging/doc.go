// Package logging assembles structured slog loggers and formatting helpers used
// across mediasort.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context helpers that tag log lines with the current
// run and daemon cycle identifiers. A no-op logger is provided for tests and
// wiring code that cannot fail.
package logging
