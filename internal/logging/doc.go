// Package logging assembles structured slog loggers and formatting helpers used
// across olcsync.
//
// It owns the console and JSON handlers, the optional JSON log file tee, and
// context-aware helpers that tag log lines with run ids, scopes and years. It
// also provides a no-op logger for tests and for wiring code that cannot fail.
package logging
