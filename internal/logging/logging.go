// Package logging carries a slog logger through a context.
package logging

import (
	"context"
	"log/slog"

	"github.com/go-logr/logr"
)

type contextKey struct{}

// WithLogger returns a copy of ctx carrying logger.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger stored in ctx.
// A logr logger placed by controller-runtime is converted to slog, so
// reconcile request fields follow into the managers. Otherwise slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return slog.Default()
	}

	if logger, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && logger != nil {
		return logger
	}

	if lgr, err := logr.FromContext(ctx); err == nil && lgr.GetSink() != nil {
		return slog.New(logr.ToSlogHandler(lgr))
	}

	return slog.Default()
}
