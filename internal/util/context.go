// Package util provides common utility functions to eliminate code duplication.
package util

import (
	"context"
	"time"
)

// NewTimeoutContext creates a new context with the specified timeout.
//
// Example:
//
//	ctx, cancel := util.NewTimeoutContext(10 * time.Second)
//	defer cancel()
func NewTimeoutContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// DetachedTimeout returns a context that keeps parent's values but not its
// cancellation, bounded by timeout. Used for follow-up work that must finish
// after the originating request returns.
func DetachedTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), timeout)
}
