package message

import (
	"fmt"
	"strings"
)

// Validation constants
const (
	MaxContentLength   = 10000 // Maximum content length in characters
	MaxSessionIDLength = 128   // Maximum session ID length
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// IsInbound reports whether clients may send e.
func IsInbound(e Event) bool {
	switch e {
	case EventJoin, EventLeave, EventSendMessage, EventTyping, EventGoOnline, EventGoOffline:
		return true
	default:
		return false
	}
}

// Validate checks the frame envelope.
func (f *Frame) Validate() error {
	if f.Event == "" {
		return &ValidationError{Field: "event", Message: "event is required"}
	}
	if !IsInbound(f.Event) {
		return &ValidationError{Field: "event", Message: fmt.Sprintf("unsupported event: %s", f.Event)}
	}
	return nil
}

// Validate checks a session reference.
func (r *SessionRef) Validate() error {
	return validateSessionID(r.SessionID)
}

// Sanitize strips null bytes and surrounding whitespace.
func (r *SessionRef) Sanitize() {
	r.SessionID = sanitizeString(r.SessionID)
}

// Validate checks a chat:send-message payload.
func (m *SendMessage) Validate() error {
	if err := validateSessionID(m.SessionID); err != nil {
		return err
	}
	if m.Content == "" {
		return &ValidationError{Field: "content", Message: "content is required"}
	}
	if len(m.Content) > MaxContentLength {
		return &ValidationError{Field: "content", Message: fmt.Sprintf("content exceeds %d characters", MaxContentLength)}
	}
	return nil
}

// Sanitize strips null bytes and surrounding whitespace.
func (m *SendMessage) Sanitize() {
	m.SessionID = sanitizeString(m.SessionID)
	m.Content = sanitizeString(m.Content)
	m.SenderType = strings.ToUpper(sanitizeString(m.SenderType))
}

// Validate checks a chat:typing payload.
func (t *Typing) Validate() error {
	return validateSessionID(t.SessionID)
}

func validateSessionID(id string) error {
	if id == "" {
		return &ValidationError{Field: "sessionId", Message: "sessionId is required"}
	}
	if len(id) > MaxSessionIDLength {
		return &ValidationError{Field: "sessionId", Message: fmt.Sprintf("sessionId exceeds %d characters", MaxSessionIDLength)}
	}
	return nil
}

// sanitizeString removes null bytes and trims whitespace.
// HTML escaping belongs at render time only.
func sanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}
