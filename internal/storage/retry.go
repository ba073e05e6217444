package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/real-rm/golog"
	"github.com/real-rm/supportdesk/internal/constants"
)

const (
	defaultListLimit = constants.DefaultSessionLimit
	maxListLimit     = constants.MaxSessionLimit
)

// retryConfig holds configuration for MongoDB retry logic
type retryConfig struct {
	maxAttempts  int
	initialDelay time.Duration
	maxDelay     time.Duration
	multiplier   float64
	// retryable overrides isRetryableError when set.
	retryable func(error) bool
}

// defaultRetryConfig provides default retry configuration
var defaultRetryConfig = retryConfig{
	maxAttempts:  constants.MaxRetryAttempts,
	initialDelay: constants.InitialRetryDelay,
	maxDelay:     constants.MaxRetryDelay,
	multiplier:   constants.RetryMultiplier,
}

// isRetryableError reports whether err looks like a transient network or
// server selection failure.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"timeout",
		"temporary failure",
		"EOF",
		"server selection",
		"no reachable servers",
		"connection pool",
		"socket",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// isUnsentError reports whether err failed before the operation reached a
// server, so repeating it cannot apply a write twice. Timeouts and resets are
// excluded: the first attempt may have committed.
func isUnsentError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{
		"connection refused",
		"server selection",
		"no reachable servers",
		"connection pool",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// guarded returns cfg restricted to failures that never reached the server.
// Compare-and-set writes use it so a committed first attempt is not retried
// into a spurious conflict.
func (cfg retryConfig) guarded() retryConfig {
	cfg.retryable = isUnsentError
	return cfg
}

// retryOperation runs fn until it succeeds, fails permanently or attempts run
// out, backing off exponentially between tries.
func retryOperation(ctx context.Context, logger *golog.Logger, cfg retryConfig, operation string, fn func() error) error {
	var lastErr error
	delay := cfg.initialDelay
	retryable := cfg.retryable
	if retryable == nil {
		retryable = isRetryableError
	}

	for attempt := 1; attempt <= cfg.maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err

		if attempt == cfg.maxAttempts {
			break
		}
		logger.Warn("MongoDB operation failed, retrying",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", cfg.maxAttempts,
			"delay", delay,
			"error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("operation cancelled during retry: %w", ctx.Err())
		}

		delay = time.Duration(float64(delay) * cfg.multiplier)
		if delay > cfg.maxDelay {
			delay = cfg.maxDelay
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", cfg.maxAttempts, lastErr)
}
