// Package logging assembles the structured slog loggers used across the
// upload engine, its CLIs and the recovery tool.
//
// It owns the console and JSON handlers, output routing, standard field keys
// and context helpers that tag log lines with job IDs, stages and correlation
// IDs. A no-op logger is provided for tests and wiring code that cannot fail.
package logging
