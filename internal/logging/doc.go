// Package logging assembles structured slog loggers used across relip.
//
// It owns the configurable console/JSON handlers and centralizes level and
// output plumbing. Prefer these constructors over hand-rolled slog setup so
// all components emit log lines with the same shape.
package logging
