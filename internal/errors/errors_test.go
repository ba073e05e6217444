package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name        string
		err         *ChatError
		category    ErrorCategory
		code        ErrorCode
		recoverable bool
	}{
		{"invalid token", ErrInvalidToken(cause), CategoryAuth, ErrCodeInvalidToken, false},
		{"insufficient permissions", ErrInsufficientPermissions(nil), CategoryAuth, ErrCodeInsufficientPerms, true},
		{"invalid format", ErrInvalidMessageFormat("bad json", cause), CategoryValidation, ErrCodeInvalidFormat, true},
		{"missing field", ErrMissingField("sessionId"), CategoryValidation, ErrCodeMissingField, true},
		{"unknown event", ErrUnknownEvent("chat:dance"), CategoryValidation, ErrCodeUnknownEvent, true},
		{"invalid state", ErrInvalidState("chat already ended"), CategoryState, ErrCodeInvalidState, true},
		{"not found", ErrNotFound("ticket", nil), CategoryNotFound, ErrCodeNotFound, true},
		{"database", ErrDatabaseError(cause), CategoryService, ErrCodeDatabaseError, true},
		{"too many requests", ErrTooManyRequests(1500), CategoryRateLimit, ErrCodeTooManyRequests, true},
		{"connection limit", ErrConnectionLimitExceeded(0), CategoryRateLimit, ErrCodeConnectionLimit, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.category, tt.err.Category)
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.recoverable, tt.err.Recoverable)
			assert.Equal(t, !tt.recoverable, tt.err.IsFatal())
			assert.NotEmpty(t, tt.err.Message)
		})
	}
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "ticket not found", ErrNotFound("ticket", nil).Message)
	assert.Equal(t, "Required field missing: content", ErrMissingField("content").Message)
	assert.Equal(t, "Unknown event: chat:dance", ErrUnknownEvent("chat:dance").Message)
	assert.Equal(t, "INVALID_STATE: chat already ended", ErrInvalidState("chat already ended").Error())
}

func TestUnwrapAndCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := ErrDatabaseError(cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "caused by: connection refused")

	var chatErr *ChatError
	wrapped := fmt.Errorf("save session: %w", err)
	require.True(t, errors.As(wrapped, &chatErr))
	assert.Equal(t, ErrCodeDatabaseError, chatErr.Code)
}

func TestIsInvalidStateAndNotFound(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		invalidState bool
		notFound     bool
	}{
		{"invalid state", ErrInvalidState("ended"), true, false},
		{"wrapped invalid state", fmt.Errorf("end chat: %w", ErrInvalidState("ended")), true, false},
		{"not found", ErrNotFound("session", nil), false, true},
		{"wrapped not found", fmt.Errorf("load: %w", ErrNotFound("agent", nil)), false, true},
		{"other chat error", ErrMissingField("content"), false, false},
		{"plain error", errors.New("nope"), false, false},
		{"nil", nil, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.invalidState, IsInvalidState(tt.err))
			assert.Equal(t, tt.notFound, IsNotFound(tt.err))
		})
	}
}

func TestToErrorInfo(t *testing.T) {
	info := ErrTooManyRequests(2500).ToErrorInfo()
	assert.Equal(t, string(ErrCodeTooManyRequests), info.Code)
	assert.Equal(t, "Too many requests, please slow down", info.Message)
	assert.True(t, info.Recoverable)
	assert.Equal(t, 2500, info.RetryAfter)

	info = ErrInvalidToken(nil).ToErrorInfo()
	assert.False(t, info.Recoverable)
	assert.Zero(t, info.RetryAfter)
}

func TestProperty_ErrorInfoMirrorsChatError(t *testing.T) {
	properties := gopter.NewProperties(nil)

	genCode := gen.OneConstOf(
		ErrCodeInvalidToken,
		ErrCodeInvalidFormat,
		ErrCodeInvalidState,
		ErrCodeNotFound,
		ErrCodeServiceError,
		ErrCodeTooManyRequests,
	)

	properties.Property("error info carries code, message and retry hint", prop.ForAll(
		func(code ErrorCode, msg string, retryAfter int) bool {
			err := NewRateLimitError(code, msg, retryAfter, nil)
			info := err.ToErrorInfo()
			return info.Code == string(code) &&
				info.Message == msg &&
				info.RetryAfter == retryAfter &&
				info.Recoverable == !err.IsFatal()
		},
		genCode,
		gen.AlphaString(),
		gen.IntRange(0, 60000),
	))

	properties.Property("validation errors are never fatal", prop.ForAll(
		func(msg string) bool {
			return !NewValidationError(ErrCodeInvalidFormat, msg, nil).IsFatal()
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
