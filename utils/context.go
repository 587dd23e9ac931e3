package utils

import (
	"context"
	"time"
)

const (
	// DefaultTimeout bounds most store and client calls.
	DefaultTimeout = 10 * time.Second

	// LongTimeout bounds slow paths: server shutdown, large uploads.
	LongTimeout = 30 * time.Second

	// ShortTimeout bounds quick lookups such as cache reads.
	ShortTimeout = 2 * time.Second
)

// WithTimeout derives a context with the default operation timeout.
func WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultTimeout)
}

// WithLongTimeout derives a context for operations that may take longer.
func WithLongTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, LongTimeout)
}

// WithShortTimeout derives a context for quick operations.
func WithShortTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ShortTimeout)
}

// WithCustomTimeout derives a context with an explicit deadline.
func WithCustomTimeout(parent context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, duration)
}
