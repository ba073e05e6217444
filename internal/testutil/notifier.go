package testutil

import (
	"context"
	"sync"

	"github.com/real-rm/supportdesk/internal/message"
)

// Scope says how a recorded notification was addressed.
type Scope string

const (
	ScopeUser Scope = "user"
	ScopeRoom Scope = "room"
	ScopeAll  Scope = "all"
)

// Notification is one call recorded by RecordingNotifier.
type Notification struct {
	Scope   Scope
	Target  string
	Except  string
	Event   message.Event
	Payload interface{}
}

// RecordingNotifier captures fan-out calls instead of delivering them.
type RecordingNotifier struct {
	mu    sync.Mutex
	calls []Notification
}

func (n *RecordingNotifier) record(c Notification) {
	n.mu.Lock()
	n.calls = append(n.calls, c)
	n.mu.Unlock()
}

func (n *RecordingNotifier) Deliver(_ context.Context, userID string, event message.Event, payload interface{}) {
	n.record(Notification{Scope: ScopeUser, Target: userID, Event: event, Payload: payload})
}

func (n *RecordingNotifier) Broadcast(_ context.Context, sessionID string, event message.Event, payload interface{}, exceptConnID string) {
	n.record(Notification{Scope: ScopeRoom, Target: sessionID, Except: exceptConnID, Event: event, Payload: payload})
}

func (n *RecordingNotifier) BroadcastAll(_ context.Context, event message.Event, payload interface{}) {
	n.record(Notification{Scope: ScopeAll, Event: event, Payload: payload})
}

// Calls returns a copy of every recorded call.
func (n *RecordingNotifier) Calls() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notification, len(n.calls))
	copy(out, n.calls)
	return out
}

// Find returns the calls matching scope, target and event. An empty target
// matches any.
func (n *RecordingNotifier) Find(scope Scope, target string, event message.Event) []Notification {
	var out []Notification
	for _, c := range n.Calls() {
		if c.Scope == scope && c.Event == event && (target == "" || c.Target == target) {
			out = append(out, c)
		}
	}
	return out
}

// Reset clears recorded calls.
func (n *RecordingNotifier) Reset() {
	n.mu.Lock()
	n.calls = nil
	n.mu.Unlock()
}
