// Package notify is the fan-out seam between business logic and the socket
// layer. Handlers receive a Notifier instead of reaching into the registry.
package notify

import (
	"context"

	"github.com/real-rm/supportdesk/internal/message"
	"github.com/real-rm/supportdesk/internal/registry"
	"github.com/real-rm/supportdesk/internal/room"
)

// Notifier delivers events to users, rooms or everyone. Delivery is best
// effort and never reports failure to the caller.
type Notifier interface {
	Deliver(ctx context.Context, userID string, event message.Event, payload interface{})
	Broadcast(ctx context.Context, sessionID string, event message.Event, payload interface{}, exceptConnID string)
	BroadcastAll(ctx context.Context, event message.Event, payload interface{})
}

// Local fans out to connections held by this process.
type Local struct {
	registry *registry.Registry
	rooms    *room.Router
}

// NewLocal wires a notifier over the process-local indexes.
func NewLocal(reg *registry.Registry, rooms *room.Router) *Local {
	return &Local{registry: reg, rooms: rooms}
}

func (l *Local) Deliver(_ context.Context, userID string, event message.Event, payload interface{}) {
	l.registry.Deliver(userID, event, payload)
}

func (l *Local) Broadcast(_ context.Context, sessionID string, event message.Event, payload interface{}, exceptConnID string) {
	l.rooms.Broadcast(sessionID, event, payload, exceptConnID)
}

func (l *Local) BroadcastAll(_ context.Context, event message.Event, payload interface{}) {
	l.registry.DeliverAll(event, payload)
}

// DeliverFrame, BroadcastFrame and BroadcastAllFrame apply frames that were
// already encoded elsewhere, such as by a peer process on the bus.
func (l *Local) DeliverFrame(userID string, data []byte) int {
	return l.registry.DeliverFrame(userID, data)
}

func (l *Local) BroadcastFrame(sessionID string, data []byte, exceptConnID string) int {
	return l.rooms.BroadcastFrame(sessionID, data, exceptConnID)
}

func (l *Local) BroadcastAllFrame(data []byte) int {
	return l.registry.DeliverAllFrame(data)
}
