// Package logger adapts slog to the printf-style loggers third-party clients expect.
package logger

import (
	"log"
	"log/slog"
)

// New returns a *log.Logger whose lines land in base at level, tagged with component.
func New(base *slog.Logger, component string, level slog.Level) *log.Logger {
	if base == nil {
		base = slog.Default()
	}
	return slog.NewLogLogger(base.With("component", component).Handler(), level)
}
