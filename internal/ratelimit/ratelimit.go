// Package ratelimit bounds connections per user and the rate of inbound
// frames and admin calls. Windows are sliding: a key is refused once it has
// made limit calls in the trailing window.
package ratelimit

import (
	"sync"
	"time"

	"github.com/real-rm/golog"
)

// ConnectionLimiter limits the number of concurrent connections per user
type ConnectionLimiter struct {
	connections map[string]int
	maxPerUser  int
	mu          sync.Mutex
}

// NewConnectionLimiter creates a new connection limiter
func NewConnectionLimiter(maxPerUser int) *ConnectionLimiter {
	return &ConnectionLimiter{
		connections: make(map[string]int),
		maxPerUser:  maxPerUser,
	}
}

// Allow reserves a connection slot for userID, reporting false when the user is at the cap.
func (cl *ConnectionLimiter) Allow(userID string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	count := cl.connections[userID]
	if count >= cl.maxPerUser {
		return false
	}
	cl.connections[userID] = count + 1
	return true
}

// Release returns a slot taken by Allow.
func (cl *ConnectionLimiter) Release(userID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	count, ok := cl.connections[userID]
	if !ok {
		return
	}
	if count <= 1 {
		delete(cl.connections, userID)
		return
	}
	cl.connections[userID] = count - 1
}

// GetCount returns the current connection count for a user
func (cl *ConnectionLimiter) GetCount(userID string) int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.connections[userID]
}

// WindowLimiter is a sliding-window limiter keyed by user or client IP.
type WindowLimiter struct {
	name   string
	events map[string][]time.Time
	window time.Duration
	limit  int
	now    func() time.Time
	logger *golog.Logger
	mu     sync.Mutex

	cleanupInterval time.Duration
	stopOnce        sync.Once
	stopCleanup     chan struct{}
	cleanupWg       sync.WaitGroup
}

// Option configures a WindowLimiter.
type Option func(*WindowLimiter)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *WindowLimiter) { l.now = now }
}

// WithLogger reports cleanup statistics.
func WithLogger(logger *golog.Logger) Option {
	return func(l *WindowLimiter) { l.logger = logger }
}

// WithCleanupInterval overrides the background cleanup period.
func WithCleanupInterval(d time.Duration) Option {
	return func(l *WindowLimiter) { l.cleanupInterval = d }
}

// NewWindowLimiter allows limit events per key in every trailing window.
func NewWindowLimiter(name string, window time.Duration, limit int, opts ...Option) *WindowLimiter {
	l := &WindowLimiter{
		name:            name,
		events:          make(map[string][]time.Time),
		window:          window,
		limit:           limit,
		now:             time.Now,
		cleanupInterval: 5 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records an event for key and reports whether it is within the limit.
func (l *WindowLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := l.prune(l.events[key], now)
	if len(recent) >= l.limit {
		l.events[key] = recent
		return false
	}
	l.events[key] = append(recent, now)
	return true
}

// RetryAfter returns how long key must wait before its next event is allowed.
func (l *WindowLimiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := l.prune(l.events[key], now)
	if len(recent) < l.limit {
		return 0
	}
	wait := recent[0].Add(l.window).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// Reset clears the history for key.
func (l *WindowLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.events, key)
}

// Cleanup drops expired events and returns how many were removed.
func (l *WindowLimiter) Cleanup() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key, events := range l.events {
		recent := l.prune(events, now)
		removed += len(events) - len(recent)
		if len(recent) == 0 {
			delete(l.events, key)
			continue
		}
		l.events[key] = recent
	}
	return removed
}

// Keys returns the number of tracked keys.
func (l *WindowLimiter) Keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// StartCleanup runs Cleanup every cleanup interval until StopCleanup.
func (l *WindowLimiter) StartCleanup() {
	l.cleanupWg.Add(1)
	go func() {
		defer l.cleanupWg.Done()
		ticker := time.NewTicker(l.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				removed := l.Cleanup()
				if removed > 0 && l.logger != nil {
					l.logger.Debug("Rate limiter cleanup", "limiter", l.name, "removed", removed)
				}
			case <-l.stopCleanup:
				return
			}
		}
	}()
}

// StopCleanup stops the cleanup goroutine and waits for it. Safe to call twice.
func (l *WindowLimiter) StopCleanup() {
	l.stopOnce.Do(func() { close(l.stopCleanup) })
	l.cleanupWg.Wait()
}

// prune keeps events newer than now-window. events is sorted oldest first.
func (l *WindowLimiter) prune(events []time.Time, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(events) && !events[i].After(cutoff) {
		i++
	}
	if i == len(events) {
		return nil
	}
	return events[i:]
}
