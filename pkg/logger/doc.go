// Package logger provides slog factories used across the project: a JSON
// stdout logger for the CLI and a discard logger for tests and defaults.
package logger
