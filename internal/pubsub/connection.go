package pubsub

import (
	"context"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/real-rm/golog"
	"github.com/real-rm/supportdesk/internal/constants"
)

// DialOptions controls DialWithRetry.
type DialOptions struct {
	URL      string
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration
	Logger   *golog.Logger
}

// DialWithRetry connects to the broker with exponential backoff.
func DialWithRetry(ctx context.Context, opts DialOptions) (*amqp091.Connection, error) {
	if opts.Attempts <= 0 {
		opts.Attempts = constants.BusDialAttempts
	}
	if opts.Delay <= 0 {
		opts.Delay = constants.BusDialDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 10 * time.Second
	}

	var lastErr error
	delay := opts.Delay
	for attempt := 1; attempt <= opts.Attempts; attempt++ {
		conn, err := amqp091.Dial(opts.URL)
		if err == nil {
			if attempt > 1 {
				opts.Logger.Info("Connected to message bus", "attempt", attempt)
			}
			return conn, nil
		}
		lastErr = err
		if attempt == opts.Attempts {
			break
		}

		opts.Logger.Warn("Message bus dial failed, retrying",
			"attempt", attempt,
			"delay", delay,
			"error", err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("dial cancelled: %w", ctx.Err())
		case <-timer.C:
		}
		delay *= 2
		if delay > opts.MaxDelay {
			delay = opts.MaxDelay
		}
	}
	return nil, fmt.Errorf("dial message bus after %d attempts: %w", opts.Attempts, lastErr)
}
