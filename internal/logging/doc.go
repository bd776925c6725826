// Package logging wires slog with console and JSON handlers plus the shared
// attribute and context conventions used across the daemon.
package logging
