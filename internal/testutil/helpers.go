// Package testutil provides shared fakes for package tests.
package testutil

import (
	"encoding/json"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/real-rm/golog"
	"github.com/real-rm/supportdesk/internal/message"
)

// CreateTestLogger creates a logger for testing that writes to a temporary directory
func CreateTestLogger(t *testing.T) *golog.Logger {
	logger, err := golog.InitLog(golog.LogConfig{
		Dir:            t.TempDir(),
		Level:          "error",
		StandardOutput: false,
	})
	if err != nil {
		t.Fatalf("Failed to create test logger: %v", err)
	}
	return logger
}

// SignToken issues an HS256 token the way the login service does.
func SignToken(t *testing.T, secret, userID, name string, roles ...string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"name":    name,
		"roles":   roles,
		"exp":     time.Now().Add(time.Hour).Unix(),
		"iat":     time.Now().Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

// FakeConn records frames pushed to it. Set Full to make SafeSend refuse.
type FakeConn struct {
	ConnID string
	User   string

	mu     sync.Mutex
	full   bool
	frames [][]byte
}

// NewFakeConn creates a connection for userID.
func NewFakeConn(connID, userID string) *FakeConn {
	return &FakeConn{ConnID: connID, User: userID}
}

func (c *FakeConn) ID() string     { return c.ConnID }
func (c *FakeConn) UserID() string { return c.User }

// SafeSend records data unless the connection is marked full.
func (c *FakeConn) SafeSend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return false
	}
	c.frames = append(c.frames, data)
	return true
}

// SetFull toggles refusal of further frames.
func (c *FakeConn) SetFull(full bool) {
	c.mu.Lock()
	c.full = full
	c.mu.Unlock()
}

// Frames decodes every recorded frame.
func (c *FakeConn) Frames(t *testing.T) []message.Frame {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]message.Frame, 0, len(c.frames))
	for _, raw := range c.frames {
		var f message.Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		out = append(out, f)
	}
	return out
}

// Events returns the event names of recorded frames in order.
func (c *FakeConn) Events(t *testing.T) []message.Event {
	t.Helper()
	frames := c.Frames(t)
	out := make([]message.Event, len(frames))
	for i, f := range frames {
		out[i] = f.Event
	}
	return out
}

// Count returns the number of recorded frames.
func (c *FakeConn) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

// WaitForGoroutines waits for goroutines to stabilize
func WaitForGoroutines() {
	runtime.GC()
	time.Sleep(100 * time.Millisecond)
}
