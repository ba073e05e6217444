package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func TestConnectionLimiter(t *testing.T) {
	cl := NewConnectionLimiter(2)

	assert.True(t, cl.Allow("agent-1"))
	assert.True(t, cl.Allow("agent-1"))
	assert.False(t, cl.Allow("agent-1"))
	assert.True(t, cl.Allow("agent-2"))
	assert.Equal(t, 2, cl.GetCount("agent-1"))

	cl.Release("agent-1")
	assert.Equal(t, 1, cl.GetCount("agent-1"))
	assert.True(t, cl.Allow("agent-1"))

	cl.Release("agent-2")
	cl.Release("agent-2")
	assert.Equal(t, 0, cl.GetCount("agent-2"))
}

func TestConnectionLimiter_Concurrent(t *testing.T) {
	cl := NewConnectionLimiter(50)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				cl.Allow("cust-1")
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, cl.GetCount("cust-1"))
}

func TestWindowLimiter_Window(t *testing.T) {
	clock := newClock()
	l := NewWindowLimiter("messages", time.Second, 3, WithClock(clock.Now))

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("cust-1"), "event %d", i)
	}
	assert.False(t, l.Allow("cust-1"))
	assert.True(t, l.Allow("cust-2"))

	clock.Advance(400 * time.Millisecond)
	assert.Equal(t, 600*time.Millisecond, l.RetryAfter("cust-1"))
	assert.Zero(t, l.RetryAfter("cust-2"))

	clock.Advance(601 * time.Millisecond)
	assert.Zero(t, l.RetryAfter("cust-1"))
	assert.True(t, l.Allow("cust-1"))
}

func TestWindowLimiter_ResetAndCleanup(t *testing.T) {
	clock := newClock()
	l := NewWindowLimiter("admin", time.Minute, 1, WithClock(clock.Now))

	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	l.Reset("10.0.0.1")
	assert.True(t, l.Allow("10.0.0.1"))

	l.Allow("10.0.0.2")
	l.Allow("10.0.0.3")
	assert.Equal(t, 3, l.Keys())

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 3, l.Cleanup())
	assert.Equal(t, 0, l.Keys())
}

func TestWindowLimiter_Concurrent(t *testing.T) {
	l := NewWindowLimiter("messages", time.Hour, 100)
	var wg sync.WaitGroup
	allowed := make(chan bool, 200)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				allowed <- l.Allow("agent-1")
			}
		}()
	}
	wg.Wait()
	close(allowed)

	count := 0
	for ok := range allowed {
		if ok {
			count++
		}
	}
	assert.Equal(t, 100, count)
}

func TestWindowLimiter_StopCleanupTwice(t *testing.T) {
	l := NewWindowLimiter("messages", time.Second, 1, WithCleanupInterval(10*time.Millisecond))
	l.StartCleanup()
	l.Allow("x")
	l.StopCleanup()
	l.StopCleanup()
}
