package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/real-rm/golog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger(t *testing.T) *golog.Logger {
	t.Helper()
	logger, err := golog.InitLog(golog.LogConfig{Dir: t.TempDir(), Level: "error"})
	require.NoError(t, err)
	return logger
}

var fastRetry = retryConfig{
	maxAttempts:  3,
	initialDelay: time.Millisecond,
	maxDelay:     2 * time.Millisecond,
	multiplier:   2,
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("connection refused"), true},
		{errors.New("server selection error: context deadline exceeded"), true},
		{errors.New("i/o timeout"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("E11000 duplicate key error"), false},
		{ErrSessionNotFound, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isRetryableError(tt.err), "%v", tt.err)
	}
}

func TestRetryOperation(t *testing.T) {
	logger := testLogger(t)

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		err := retryOperation(context.Background(), logger, fastRetry, "op", func() error {
			calls++
			if calls < 3 {
				return errors.New("connection reset by peer")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("permanent error returns immediately", func(t *testing.T) {
		calls := 0
		err := retryOperation(context.Background(), logger, fastRetry, "op", func() error {
			calls++
			return os.ErrPermission
		})
		assert.ErrorIs(t, err, os.ErrPermission)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := retryOperation(context.Background(), logger, fastRetry, "op", func() error {
			calls++
			return errors.New("no reachable servers")
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "after 3 attempts")
		assert.Equal(t, 3, calls)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		slow := fastRetry
		slow.initialDelay = time.Hour
		err := retryOperation(ctx, logger, slow, "op", func() error {
			return errors.New("connection refused")
		})
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestGuardedRetryOnlyRepeatsUnsentWrites(t *testing.T) {
	logger := testLogger(t)
	guarded := fastRetry.guarded()

	tests := []struct {
		name      string
		err       error
		wantCalls int
	}{
		{"timeout may have committed", errors.New("i/o timeout"), 1},
		{"reset may have committed", errors.New("connection reset by peer"), 1},
		{"eof may have committed", errors.New("unexpected EOF"), 1},
		{"server selection never sent", errors.New("server selection error: context deadline exceeded"), 3},
		{"refused never sent", errors.New("dial tcp: connection refused"), 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := retryOperation(context.Background(), logger, guarded, "TransitionSession", func() error {
				calls++
				return tt.err
			})
			require.Error(t, err)
			assert.Equal(t, tt.wantCalls, calls)
		})
	}

	assert.Nil(t, fastRetry.retryable, "guarded must not change the shared config")
}
