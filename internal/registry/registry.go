// Package registry indexes live transport connections by user so that a
// user with several tabs open receives every direct notification.
package registry

import (
	"sort"
	"sync"

	"github.com/real-rm/golog"
	"github.com/real-rm/supportdesk/internal/message"
	"github.com/real-rm/supportdesk/internal/metrics"
	"github.com/real-rm/supportdesk/internal/util"
)

// Conn is a live connection that accepts encoded frames without blocking.
type Conn interface {
	ID() string
	UserID() string
	SafeSend(data []byte) bool
}

// Registry maps connection ids to users and users to their connections.
// It holds no durable state; clients re-announce themselves after a restart.
type Registry struct {
	logger *golog.Logger

	mu     sync.RWMutex
	conns  map[string]Conn
	byUser map[string]map[string]Conn
}

// New creates an empty registry.
func New(logger *golog.Logger) *Registry {
	return &Registry{
		logger: logger.WithGroup("registry"),
		conns:  make(map[string]Conn),
		byUser: make(map[string]map[string]Conn),
	}
}

// Register associates c with its user. Registering the same connection again
// is a no-op; a connection id re-registered under another user moves to it.
func (r *Registry) Register(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.conns[c.ID()]; ok {
		if prev.UserID() == c.UserID() {
			r.conns[c.ID()] = c
			r.byUser[c.UserID()][c.ID()] = c
			return
		}
		r.removeLocked(prev)
	}

	r.conns[c.ID()] = c
	userConns := r.byUser[c.UserID()]
	if userConns == nil {
		userConns = make(map[string]Conn)
		r.byUser[c.UserID()] = userConns
	}
	userConns[c.ID()] = c

	metrics.WebSocketConnections.Inc()
	metrics.ConnectedUsers.Set(float64(len(r.byUser)))

	r.logger.Debug("Connection registered",
		"connection_id", c.ID(),
		"user_id", c.UserID(),
		"user_connections", len(userConns))
}

// Unregister removes the connection from every index. The user entry is
// dropped with its last connection. Unknown ids are ignored.
func (r *Registry) Unregister(connID string) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.conns[connID]
	if !ok {
		return nil, false
	}
	r.removeLocked(c)
	return c, true
}

func (r *Registry) removeLocked(c Conn) {
	delete(r.conns, c.ID())
	if userConns, ok := r.byUser[c.UserID()]; ok {
		delete(userConns, c.ID())
		if len(userConns) == 0 {
			delete(r.byUser, c.UserID())
		}
	}
	metrics.WebSocketConnections.Dec()
	metrics.ConnectedUsers.Set(float64(len(r.byUser)))
}

// Lookup returns the connection registered under connID.
func (r *Registry) Lookup(connID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	return c, ok
}

// ConnectionsFor returns the sorted connection ids of userID. Unknown users
// yield an empty slice.
func (r *Registry) ConnectionsFor(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.byUser[userID]))
	for id := range r.byUser[userID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Users returns the ids of every user with at least one connection.
func (r *Registry) Users() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]string, 0, len(r.byUser))
	for u := range r.byUser {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Deliver pushes event to every connection of userID and returns how many
// accepted it. A full or closing connection is skipped, never fatal.
func (r *Registry) Deliver(userID string, event message.Event, payload interface{}) int {
	data, err := message.Encode(event, payload)
	if err != nil {
		util.LogError(r.logger, "registry", "encode frame", err, "event", event, "user_id", userID)
		return 0
	}
	return r.DeliverFrame(userID, data)
}

// DeliverFrame pushes an already encoded frame to every connection of userID.
func (r *Registry) DeliverFrame(userID string, data []byte) int {
	r.mu.RLock()
	targets := make([]Conn, 0, len(r.byUser[userID]))
	for _, c := range r.byUser[userID] {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	return r.push(targets, data, "user")
}

// DeliverAll pushes event to every live connection.
func (r *Registry) DeliverAll(event message.Event, payload interface{}) int {
	data, err := message.Encode(event, payload)
	if err != nil {
		util.LogError(r.logger, "registry", "encode frame", err, "event", event)
		return 0
	}
	return r.DeliverAllFrame(data)
}

// DeliverAllFrame pushes an encoded frame to every live connection.
func (r *Registry) DeliverAllFrame(data []byte) int {
	r.mu.RLock()
	targets := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	return r.push(targets, data, "all")
}

func (r *Registry) push(targets []Conn, data []byte, scope string) int {
	delivered := 0
	for _, c := range targets {
		if c.SafeSend(data) {
			delivered++
			continue
		}
		metrics.DeliveryDropped.WithLabelValues(scope).Inc()
		r.logger.Debug("Dropped frame for connection",
			"connection_id", c.ID(),
			"user_id", c.UserID(),
			"scope", scope)
	}
	return delivered
}
