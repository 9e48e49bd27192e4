// Package logging defines a minimal structured-logging interface used across
// the project, with slog and zap backends.
package logging

import "context"

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key-value pairs, e.g.:
//
//	log.Info(ctx, "sweep finished", "deleted", n, "failed", len(errs))
type Logger interface {
	// Debug logs a diagnostic message.
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs an informational message.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs a warning message for unusual but non-fatal conditions.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs an error message for failures.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key-value pairs.
	With(args ...any) Logger
}

// New returns the backend selected by format: "zap" for a zap production
// logger, anything else for slog with a JSON handler on stdout.
func New(format string) (Logger, error) {
	if format == "zap" {
		return NewZapProductionLogger()
	}
	return NewDefaultSlogLogger(), nil
}
