// Package room manages per-session broadcast groups. Membership only means
// "currently subscribed"; the transport calls LeaveAll when a socket closes.
package room

import (
	"sort"
	"sync"

	"github.com/real-rm/golog"
	"github.com/real-rm/supportdesk/internal/message"
	"github.com/real-rm/supportdesk/internal/metrics"
	"github.com/real-rm/supportdesk/internal/registry"
	"github.com/real-rm/supportdesk/internal/util"
)

// Router tracks which connections are subscribed to which chat sessions.
type Router struct {
	logger *golog.Logger

	mu          sync.RWMutex
	rooms       map[string]map[string]registry.Conn // sessionID -> connID -> conn
	memberships map[string]map[string]struct{}      // connID -> sessionIDs
}

// NewRouter creates a router with no rooms.
func NewRouter(logger *golog.Logger) *Router {
	return &Router{
		logger:      logger.WithGroup("room"),
		rooms:       make(map[string]map[string]registry.Conn),
		memberships: make(map[string]map[string]struct{}),
	}
}

// Join subscribes c to sessionID. A connection may be in many rooms.
func (r *Router) Join(c registry.Conn, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := r.rooms[sessionID]
	if members == nil {
		members = make(map[string]registry.Conn)
		r.rooms[sessionID] = members
	}
	members[c.ID()] = c

	joined := r.memberships[c.ID()]
	if joined == nil {
		joined = make(map[string]struct{})
		r.memberships[c.ID()] = joined
	}
	joined[sessionID] = struct{}{}

	r.logger.Debug("Joined room", "connection_id", c.ID(), "session_id", sessionID, "members", len(members))
}

// Leave unsubscribes connID from sessionID. Leaving a room the connection is
// not in is a no-op.
func (r *Router) Leave(connID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(connID, sessionID)
}

// LeaveAll drops every membership of connID and returns the rooms it left.
func (r *Router) LeaveAll(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	left := make([]string, 0, len(r.memberships[connID]))
	for sessionID := range r.memberships[connID] {
		left = append(left, sessionID)
	}
	for _, sessionID := range left {
		r.leaveLocked(connID, sessionID)
	}
	sort.Strings(left)
	return left
}

func (r *Router) leaveLocked(connID, sessionID string) {
	if members, ok := r.rooms[sessionID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, sessionID)
		}
	}
	if joined, ok := r.memberships[connID]; ok {
		delete(joined, sessionID)
		if len(joined) == 0 {
			delete(r.memberships, connID)
		}
	}
}

// Members returns the sorted connection ids subscribed to sessionID.
func (r *Router) Members(sessionID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.rooms[sessionID]))
	for id := range r.rooms[sessionID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Rooms returns the number of rooms with at least one member.
func (r *Router) Rooms() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Broadcast sends event to every member of sessionID except exceptConnID and
// returns how many connections accepted it.
func (r *Router) Broadcast(sessionID string, event message.Event, payload interface{}, exceptConnID string) int {
	data, err := message.Encode(event, payload)
	if err != nil {
		util.LogError(r.logger, "room", "encode frame", err, "event", event, "session_id", sessionID)
		return 0
	}
	return r.BroadcastFrame(sessionID, data, exceptConnID)
}

// BroadcastFrame sends an encoded frame to the room.
func (r *Router) BroadcastFrame(sessionID string, data []byte, exceptConnID string) int {
	r.mu.RLock()
	targets := make([]registry.Conn, 0, len(r.rooms[sessionID]))
	for id, c := range r.rooms[sessionID] {
		if id != exceptConnID {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.SafeSend(data) {
			delivered++
			continue
		}
		metrics.DeliveryDropped.WithLabelValues("room").Inc()
		r.logger.Debug("Dropped room frame", "connection_id", c.ID(), "session_id", sessionID)
	}
	return delivered
}
