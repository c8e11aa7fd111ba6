package infrastructure

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// NewID creates a random identifier for requests and runs.
func NewID() string {
	return uuid.New().String()
}

// EnsureRequestID returns ctx with a request ID, generating one if needed.
func EnsureRequestID(ctx context.Context) context.Context {
	if GetRequestID(ctx) == "" {
		return WithRequestID(ctx, NewID())
	}
	return ctx
}

// EnsureRunID returns ctx with a run ID, generating one if needed. The ID
// is returned as well for callers that report it.
func EnsureRunID(ctx context.Context) (context.Context, string) {
	if id := GetRunID(ctx); id != "" {
		return ctx, id
	}
	id := NewID()
	return WithRunID(ctx, id), id
}

// WithComponent creates a logger with a component field
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With(slog.String("component", component))
}

// WithError creates a logger with an error field
func WithError(logger *slog.Logger, err error) *slog.Logger {
	if err == nil {
		return logger
	}
	return logger.With(slog.String("error", err.Error()))
}
