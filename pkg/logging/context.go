package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey int

const (
	// loggerKey is the context key for the logger.
	loggerKey contextKey = iota
)

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger *zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, OrNop(logger))
}

// FromContext extracts the logger from context, or returns a discarding logger.
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		return Nop()
	}

	if logger, ok := ctx.Value(loggerKey).(*zerolog.Logger); ok && logger != nil {
		return logger
	}

	return Nop()
}

// withField adds a single field to the logger in the context.
func withField(ctx context.Context, key string, value any) context.Context {
	logger := FromContext(ctx)
	logCtx := addField(logger.With(), key, value)
	newLogger := logCtx.Logger()
	return WithLogger(ctx, &newLogger)
}

// WithDocument adds source document context to the logger.
func WithDocument(ctx context.Context, name string) context.Context {
	return withField(ctx, "document", name)
}

// WithBinary adds analyzed binary context to the logger.
func WithBinary(ctx context.Context, name string) context.Context {
	return withField(ctx, "binary", name)
}

// WithOperation adds operation context to the logger.
func WithOperation(ctx context.Context, operation string) context.Context {
	return withField(ctx, "operation", operation)
}
