// Package router dispatches inbound websocket frames to the chat coordinator.
// It owns room membership changes and per-user message rate limiting; every
// state change goes through chat.Coordinator.
package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/real-rm/golog"
	"github.com/real-rm/supportdesk/internal/agent"
	"github.com/real-rm/supportdesk/internal/chat"
	"github.com/real-rm/supportdesk/internal/constants"
	chaterrors "github.com/real-rm/supportdesk/internal/errors"
	"github.com/real-rm/supportdesk/internal/message"
	"github.com/real-rm/supportdesk/internal/metrics"
	"github.com/real-rm/supportdesk/internal/ratelimit"
	"github.com/real-rm/supportdesk/internal/registry"
	"github.com/real-rm/supportdesk/internal/room"
	"github.com/real-rm/supportdesk/internal/session"
)

var (
	// ErrNilConnection is returned when a nil connection is provided
	ErrNilConnection = errors.New("connection cannot be nil")
	// ErrNilFrame is returned when a nil frame is provided
	ErrNilFrame = errors.New("frame cannot be nil")
)

// Conn is a live connection together with the authenticated user behind it.
type Conn interface {
	registry.Conn
	Participant() session.Participant
}

// MessageRouter routes inbound frames from websocket clients.
type MessageRouter struct {
	coord          *chat.Coordinator
	rooms          *room.Router
	messageLimiter *ratelimit.WindowLimiter
	logger         *golog.Logger
}

// NewMessageRouter creates a router. A nil limiter disables message rate
// limiting.
func NewMessageRouter(coord *chat.Coordinator, rooms *room.Router, limiter *ratelimit.WindowLimiter, logger *golog.Logger) *MessageRouter {
	return &MessageRouter{
		coord:          coord,
		rooms:          rooms,
		messageLimiter: limiter,
		logger:         logger.WithGroup("router"),
	}
}

// RouteFrame handles one inbound frame. The returned error is meant for the
// sending connection only.
func (mr *MessageRouter) RouteFrame(ctx context.Context, conn Conn, frame *message.Frame) error {
	if conn == nil {
		return ErrNilConnection
	}
	if frame == nil {
		return ErrNilFrame
	}
	if err := frame.Validate(); err != nil {
		return chaterrors.ErrInvalidMessageFormat(err.Error(), err)
	}
	metrics.FramesReceived.WithLabelValues(string(frame.Event)).Inc()

	switch frame.Event {
	case message.EventJoin:
		return mr.handleJoin(ctx, conn, frame)
	case message.EventLeave:
		return mr.handleLeave(conn, frame)
	case message.EventSendMessage:
		return mr.handleSendMessage(ctx, conn, frame)
	case message.EventTyping:
		return mr.handleTyping(ctx, conn, frame)
	case message.EventGoOnline:
		return mr.handlePresence(ctx, conn, agent.StatusOnline)
	case message.EventGoOffline:
		return mr.handlePresence(ctx, conn, agent.StatusOffline)
	default:
		return chaterrors.ErrUnknownEvent(string(frame.Event))
	}
}

// Disconnect drops every room membership of conn. Session state is left
// untouched.
func (mr *MessageRouter) Disconnect(conn registry.Conn) {
	left := mr.rooms.LeaveAll(conn.ID())
	if len(left) > 0 {
		mr.logger.Debug("Connection left rooms on disconnect",
			"connection_id", conn.ID(),
			"user_id", conn.UserID(),
			"rooms", len(left))
	}
}

func (mr *MessageRouter) handleJoin(ctx context.Context, conn Conn, frame *message.Frame) error {
	var ref message.SessionRef
	if err := decode(frame, &ref); err != nil {
		return err
	}
	ref.Sanitize()
	if err := ref.Validate(); err != nil {
		return chaterrors.ErrInvalidMessageFormat(err.Error(), err)
	}

	sess, err := mr.coord.Session(ctx, ref.SessionID)
	if err != nil {
		return err
	}
	if !chat.CanView(sess, conn.Participant()) {
		return chaterrors.ErrInsufficientPermissions(nil)
	}
	mr.rooms.Join(conn, ref.SessionID)
	mr.logger.Info("Connection joined session",
		"session_id", ref.SessionID,
		"user_id", conn.UserID(),
		"connection_id", conn.ID())
	return nil
}

func (mr *MessageRouter) handleLeave(conn Conn, frame *message.Frame) error {
	var ref message.SessionRef
	if err := decode(frame, &ref); err != nil {
		return err
	}
	ref.Sanitize()
	if err := ref.Validate(); err != nil {
		return chaterrors.ErrInvalidMessageFormat(err.Error(), err)
	}
	mr.rooms.Leave(conn.ID(), ref.SessionID)
	return nil
}

func (mr *MessageRouter) handleSendMessage(ctx context.Context, conn Conn, frame *message.Frame) error {
	if mr.messageLimiter != nil && !mr.messageLimiter.Allow(conn.UserID()) {
		retryAfter := int(mr.messageLimiter.RetryAfter(conn.UserID()).Milliseconds())
		mr.logger.Warn("Message rate limit exceeded",
			"user_id", conn.UserID(),
			"retry_after", retryAfter)
		return chaterrors.ErrTooManyRequests(retryAfter)
	}

	var req message.SendMessage
	if err := decode(frame, &req); err != nil {
		return err
	}
	req.Sanitize()
	if err := req.Validate(); err != nil {
		return chaterrors.ErrInvalidMessageFormat(err.Error(), err)
	}

	p := conn.Participant()
	sess, err := mr.coord.Session(ctx, req.SessionID)
	if err != nil {
		return err
	}
	if !chat.CanPost(sess, p) {
		return chaterrors.ErrInsufficientPermissions(nil)
	}

	// The sender type comes from the token; a client-supplied value is only
	// honoured when it agrees.
	senderType := chat.SenderTypeFor(p)
	if req.SenderType != "" && req.SenderType != string(senderType) {
		mr.logger.Debug("Ignoring client sender type",
			"user_id", p.ID,
			"claimed", req.SenderType,
			"derived", senderType)
	}

	_, err = mr.coord.PostMessage(ctx, req.SessionID, senderType, p.ID, req.Content)
	return err
}

func (mr *MessageRouter) handleTyping(ctx context.Context, conn Conn, frame *message.Frame) error {
	var req message.Typing
	if err := decode(frame, &req); err != nil {
		return err
	}
	if err := req.Validate(); err != nil {
		return chaterrors.ErrInvalidMessageFormat(err.Error(), err)
	}

	sess, err := mr.coord.Session(ctx, req.SessionID)
	if err != nil {
		return err
	}
	if !chat.CanView(sess, conn.Participant()) {
		return chaterrors.ErrInsufficientPermissions(nil)
	}
	mr.coord.Typing(ctx, conn.ID(), conn.UserID(), req.SessionID, req.IsTyping)
	return nil
}

func (mr *MessageRouter) handlePresence(ctx context.Context, conn Conn, status agent.Status) error {
	p := conn.Participant()
	if p.Role != constants.RoleAgent && p.Role != constants.RoleAdmin {
		return chaterrors.ErrInsufficientPermissions(nil)
	}
	assigned, err := mr.coord.SetAgentStatus(ctx, p, status)
	if err != nil {
		return err
	}
	if assigned > 0 {
		mr.logger.Info("Agent came online and took waiting sessions",
			"agent_id", p.ID,
			"assigned", assigned)
	}
	return nil
}

func decode(frame *message.Frame, v interface{}) error {
	if err := frame.Decode(v); err != nil {
		return chaterrors.ErrInvalidMessageFormat(fmt.Sprintf("invalid %s payload", frame.Event), err)
	}
	return nil
}
