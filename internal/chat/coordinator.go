// Package chat owns the chat session state machine. The Coordinator persists
// every transition and message through a storage.Store and fans the results
// out through a notify.Notifier.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/real-rm/gohelper"
	"github.com/real-rm/golog"
	"github.com/real-rm/supportdesk/internal/agent"
	"github.com/real-rm/supportdesk/internal/assign"
	"github.com/real-rm/supportdesk/internal/constants"
	chaterrors "github.com/real-rm/supportdesk/internal/errors"
	"github.com/real-rm/supportdesk/internal/message"
	"github.com/real-rm/supportdesk/internal/metrics"
	"github.com/real-rm/supportdesk/internal/notify"
	"github.com/real-rm/supportdesk/internal/session"
	"github.com/real-rm/supportdesk/internal/storage"
	"github.com/real-rm/supportdesk/internal/ticket"
	"github.com/real-rm/supportdesk/internal/util"
)

// System message texts
const (
	MsgChatStarted   = "Chat started. Connecting you to an agent..."
	MsgChatEnded     = "Chat ended."
	msgAgentJoined   = "%s has joined the chat."
	msgAgentTookOver = "%s has taken over this conversation."
	msgConverted     = "Chat converted to ticket #%d. The conversation will continue there."
)

const (
	convertedSubject     = "Chat conversation with %s"
	convertedDescription = "Converted from live chat"
)

// Options tune assignment behaviour.
type Options struct {
	// Mode picks which counts make up an agent's workload.
	Mode assign.Mode
	// AssignOnOnline drains the waiting queue when an agent goes online.
	AssignOnOnline bool
	// DrainLimit caps sessions assigned per drain.
	DrainLimit int
}

// DefaultOptions returns combined workloads with assign-on-online enabled.
func DefaultOptions() Options {
	return Options{
		Mode:           assign.ModeCombined,
		AssignOnOnline: true,
		DrainLimit:     constants.DefaultDrainLimit,
	}
}

// AssignResult is the outcome of an assignment attempt. Assigned is false
// when no agent was online, which is not an error.
type AssignResult struct {
	Session  *session.ChatSession `json:"chatSession"`
	Assigned bool                 `json:"assigned"`
}

// EndedPayload is the data of chat:ended.
type EndedPayload = message.SessionRef

// Coordinator drives chat sessions through their lifecycle.
type Coordinator struct {
	store    storage.Store
	notifier notify.Notifier
	logger   *golog.Logger
	opts     Options
	locks    *sessionLocks
	now      func() time.Time
	newID    func() string
}

// NewCoordinator creates a coordinator. Zero option fields take defaults.
func NewCoordinator(store storage.Store, notifier notify.Notifier, logger *golog.Logger, opts Options) *Coordinator {
	if opts.Mode == "" {
		opts.Mode = assign.ModeCombined
	}
	if opts.DrainLimit <= 0 {
		opts.DrainLimit = constants.DefaultDrainLimit
	}
	return &Coordinator{
		store:    store,
		notifier: notifier,
		logger:   logger.WithGroup("chat"),
		opts:     opts,
		locks:    newSessionLocks(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Mode returns the configured workload mode.
func (c *Coordinator) Mode() assign.Mode {
	return c.opts.Mode
}

// Start opens a session for customer. An AI-first session waits in
// AI_ACTIVE for the assistant; otherwise the session is queued and an
// agent is assigned when one is online.
func (c *Coordinator) Start(ctx context.Context, customer session.Participant, aiFirst bool) (*session.ChatSession, error) {
	if err := util.ValidateNotEmpty(customer.ID, "customer ID"); err != nil {
		return nil, chaterrors.ErrMissingField("customerId")
	}

	status := session.StatusWaiting
	if aiFirst {
		status = session.StatusAIActive
	}
	sess := &session.ChatSession{
		ID:           c.newID(),
		Status:       status,
		CustomerID:   customer.ID,
		CustomerName: customer.Name,
		AIOriginated: aiFirst,
		StartedAt:    c.now(),
	}
	if err := c.store.CreateSession(ctx, sess); err != nil {
		return nil, c.storeError(err, "create session", sess.ID)
	}
	metrics.SessionsCreated.WithLabelValues(string(status)).Inc()
	c.logger.Info("Chat session started", "session_id", sess.ID, "customer_id", customer.ID, "status", status)

	if aiFirst {
		return sess, nil
	}

	if _, err := c.appendSystem(ctx, sess, MsgChatStarted, true); err != nil {
		return nil, err
	}

	res, err := c.AutoAssign(ctx, sess.ID)
	if err != nil {
		// The session exists and stays queued; a later drain picks it up.
		util.LogError(c.logger, "chat", "auto-assign new session", err, "session_id", sess.ID)
		return sess, nil
	}
	return res.Session, nil
}

// Get returns the session with its ordered history.
func (c *Coordinator) Get(ctx context.Context, sessionID string) (*session.ChatSession, error) {
	sess, err := c.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	msgs, err := c.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, c.storeError(err, "list messages", sessionID)
	}
	sess.Messages = msgs
	return sess, nil
}

// Session returns the session without its history.
func (c *Coordinator) Session(ctx context.Context, sessionID string) (*session.ChatSession, error) {
	return c.load(ctx, sessionID)
}

// List returns the sessions visible to viewer, newest first.
func (c *Coordinator) List(ctx context.Context, viewer session.Participant) ([]*session.ChatSession, error) {
	q := storage.SessionQuery{Statuses: session.OpenStatuses}
	switch viewer.Role {
	case constants.RoleAdmin:
	case constants.RoleAgent:
		q.Statuses = []session.Status{session.StatusWaiting, session.StatusActive}
		q.AgentID = viewer.ID
		q.IncludeUnassigned = true
	default:
		q.CustomerID = viewer.ID
	}
	list, err := c.store.ListSessions(ctx, q)
	if err != nil {
		return nil, c.storeError(err, "list sessions", "")
	}
	if list == nil {
		list = []*session.ChatSession{}
	}
	return list, nil
}

// AutoAssign hands a queued session to the least-loaded online agent.
func (c *Coordinator) AutoAssign(ctx context.Context, sessionID string) (AssignResult, error) {
	unlock := c.locks.lock(sessionID)
	defer unlock()

	sess, err := c.load(ctx, sessionID)
	if err != nil {
		return AssignResult{}, err
	}
	if sess.Status.Terminal() {
		return AssignResult{}, chaterrors.ErrInvalidState(constants.ErrMsgSessionEnded)
	}
	if sess.Status == session.StatusActive {
		return AssignResult{Session: sess, Assigned: true}, nil
	}

	candidate, ok, err := c.selectAgent(ctx, assign.PoolChat)
	if err != nil {
		return AssignResult{}, err
	}
	if !ok {
		c.logger.Debug("No agent available, session stays queued", "session_id", sessionID)
		return AssignResult{Session: sess, Assigned: false}, nil
	}
	return c.assignLocked(ctx, sess, candidate)
}

// AssignAgent gives a queued session to candidate with the same effects as
// an automatic assignment. Used by the escalation bridge after its own
// selection.
func (c *Coordinator) AssignAgent(ctx context.Context, sessionID string, candidate assign.Candidate) (AssignResult, error) {
	unlock := c.locks.lock(sessionID)
	defer unlock()

	sess, err := c.load(ctx, sessionID)
	if err != nil {
		return AssignResult{}, err
	}
	if sess.Status.Terminal() {
		return AssignResult{}, chaterrors.ErrInvalidState(constants.ErrMsgSessionEnded)
	}
	if sess.Status == session.StatusActive {
		return AssignResult{Session: sess, Assigned: true}, nil
	}
	return c.assignLocked(ctx, sess, candidate)
}

func (c *Coordinator) assignLocked(ctx context.Context, sess *session.ChatSession, candidate assign.Candidate) (AssignResult, error) {
	name := displayName(candidate.Name, candidate.AgentID)
	updated, err := c.store.TransitionSession(ctx, sess.ID, storage.Transition{
		From:      session.ClaimableStatuses,
		To:        session.StatusActive,
		AgentID:   candidate.AgentID,
		AgentName: name,
	})
	if errors.Is(err, storage.ErrStatusConflict) {
		// Another process took it between our read and the write.
		current, loadErr := c.load(ctx, sess.ID)
		if loadErr != nil {
			return AssignResult{}, loadErr
		}
		if current.Status == session.StatusActive {
			return AssignResult{Session: current, Assigned: true}, nil
		}
		return AssignResult{}, chaterrors.ErrInvalidState(constants.ErrMsgSessionEnded)
	}
	if err != nil {
		return AssignResult{}, c.storeError(err, "assign session", sess.ID)
	}
	metrics.Assignments.WithLabelValues(string(assign.PoolChat), "assigned").Inc()

	sysMsg, err := c.appendSystem(ctx, updated, fmt.Sprintf(msgAgentJoined, name), false)
	if err != nil {
		return AssignResult{}, err
	}

	c.notifier.Deliver(ctx, updated.AgentID, message.EventNewSession, updated)
	c.notifier.Broadcast(ctx, updated.ID, message.EventAgentJoined, updated, "")
	c.notifier.Deliver(ctx, updated.CustomerID, message.EventAgentJoined, updated)
	c.fanOutMessage(ctx, updated, sysMsg)

	c.logger.Info("Chat session assigned",
		"session_id", updated.ID,
		"agent_id", updated.AgentID,
		"mode", c.opts.Mode)
	return AssignResult{Session: updated, Assigned: true}, nil
}

// Claim lets agent take a WAITING or AI_ACTIVE session. Re-claiming a
// session the agent already holds succeeds without side effects.
func (c *Coordinator) Claim(ctx context.Context, sessionID string, staff session.Participant) (*session.ChatSession, error) {
	unlock := c.locks.lock(sessionID)
	defer unlock()

	sess, err := c.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == session.StatusActive && sess.AgentID == staff.ID {
		return sess, nil
	}
	if !sess.Status.Claimable() {
		return nil, claimRejection(sess)
	}

	name := displayName(staff.Name, staff.ID)
	updated, err := c.store.TransitionSession(ctx, sessionID, storage.Transition{
		From:      session.ClaimableStatuses,
		To:        session.StatusActive,
		AgentID:   staff.ID,
		AgentName: name,
	})
	if errors.Is(err, storage.ErrStatusConflict) {
		current, loadErr := c.load(ctx, sessionID)
		if loadErr != nil {
			return nil, loadErr
		}
		if current.Status == session.StatusActive && current.AgentID == staff.ID {
			return current, nil
		}
		return nil, claimRejection(current)
	}
	if err != nil {
		return nil, c.storeError(err, "claim session", sessionID)
	}

	sysMsg, err := c.appendSystem(ctx, updated, fmt.Sprintf(msgAgentTookOver, name), false)
	if err != nil {
		return nil, err
	}

	for _, event := range []message.Event{message.EventSessionUpdated, message.EventAgentJoined} {
		c.notifier.Broadcast(ctx, sessionID, event, updated, "")
		c.notifier.Deliver(ctx, updated.CustomerID, event, updated)
		c.notifier.Deliver(ctx, updated.AgentID, event, updated)
	}
	c.fanOutMessage(ctx, updated, sysMsg)

	c.logger.Info("Chat session claimed", "session_id", sessionID, "agent_id", staff.ID)
	return updated, nil
}

func claimRejection(s *session.ChatSession) error {
	if s.Status == session.StatusActive {
		return chaterrors.ErrInvalidState("Session already claimed by another agent")
	}
	return chaterrors.ErrInvalidState("Session cannot be claimed in its current state")
}

// PostMessage appends a message to an open session and fans it out to the
// room and both parties. An empty senderID is filled from the session for
// customer and agent messages.
func (c *Coordinator) PostMessage(ctx context.Context, sessionID string, senderType session.SenderType, senderID, content string) (*session.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, chaterrors.ErrMissingField("content")
	}
	if len(content) > constants.MaxContentLength {
		return nil, chaterrors.ErrInvalidMessageFormat(fmt.Sprintf("content exceeds %d characters", constants.MaxContentLength), nil)
	}

	unlock := c.locks.lock(sessionID)
	defer unlock()

	sess, err := c.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status.Terminal() {
		return nil, chaterrors.ErrInvalidState(constants.ErrMsgSessionEnded)
	}

	if senderID == "" {
		switch senderType {
		case session.SenderCustomer:
			senderID = sess.CustomerID
		case session.SenderAgent:
			senderID = sess.AgentID
		}
	}
	msg := &session.Message{
		ID:         c.newID(),
		SessionID:  sessionID,
		Content:    content,
		SenderType: senderType,
		SenderID:   senderID,
		CreatedAt:  c.now(),
	}
	if err := c.store.AppendMessage(ctx, msg, true); err != nil {
		if errors.Is(err, storage.ErrStatusConflict) {
			return nil, chaterrors.ErrInvalidState(constants.ErrMsgSessionEnded)
		}
		return nil, c.storeError(err, "add message", sessionID)
	}

	c.fanOutMessage(ctx, sess, msg)
	return msg, nil
}

// EndChat closes an open session. Ending an ENDED session is a no-op.
func (c *Coordinator) EndChat(ctx context.Context, sessionID string) (*session.ChatSession, error) {
	unlock := c.locks.lock(sessionID)
	defer unlock()

	sess, err := c.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch sess.Status {
	case session.StatusEnded:
		return sess, nil
	case session.StatusConverted:
		return nil, chaterrors.ErrInvalidState("Chat has been converted to a ticket")
	}

	endedAt := c.now()
	updated, err := c.store.TransitionSession(ctx, sessionID, storage.Transition{
		From:    session.OpenStatuses,
		To:      session.StatusEnded,
		EndedAt: &endedAt,
	})
	if errors.Is(err, storage.ErrStatusConflict) {
		current, loadErr := c.load(ctx, sessionID)
		if loadErr != nil {
			return nil, loadErr
		}
		if current.Status == session.StatusEnded {
			return current, nil
		}
		return nil, chaterrors.ErrInvalidState("Chat has been converted to a ticket")
	}
	if err != nil {
		return nil, c.storeError(err, "end session", sessionID)
	}

	sysMsg, err := c.appendSystem(ctx, updated, MsgChatEnded, false)
	if err != nil {
		return nil, err
	}
	c.fanOutMessage(ctx, updated, sysMsg)

	ended := &EndedPayload{SessionID: sessionID}
	c.notifier.Broadcast(ctx, sessionID, message.EventEnded, ended, "")
	c.deliverParties(ctx, updated, message.EventEnded, ended)

	c.logger.Info("Chat session ended", "session_id", sessionID)
	return updated, nil
}

// ConvertToTicket closes an open session into a locked ticket that keeps
// the human conversation. The ticket goes to the session's agent, or to
// actor when no agent was assigned.
func (c *Coordinator) ConvertToTicket(ctx context.Context, sessionID string, actor session.Participant) (*ticket.Ticket, *session.ChatSession, error) {
	unlock := c.locks.lock(sessionID)
	defer unlock()

	sess, err := c.load(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	switch sess.Status {
	case session.StatusConverted:
		return nil, nil, chaterrors.ErrInvalidState("Chat already converted")
	case session.StatusEnded:
		return nil, nil, chaterrors.ErrInvalidState(constants.ErrMsgSessionEnded)
	}

	history, err := c.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, nil, c.storeError(err, "list messages", sessionID)
	}

	now := c.now()
	agentID := sess.AgentID
	if agentID == "" {
		agentID = actor.ID
	}
	t := &ticket.Ticket{
		ID:            c.newID(),
		Subject:       fmt.Sprintf(convertedSubject, displayName(sess.CustomerName, sess.CustomerID)),
		Description:   convertedDescription,
		Status:        ticket.StatusAssigned,
		Channel:       ticket.ChannelChat,
		CustomerID:    sess.CustomerID,
		AgentID:       agentID,
		Locked:        true,
		ChatSessionID: sessionID,
		Day:           int(gohelper.TimeToDateInt(now)),
		Messages:      copyConversation(history),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := c.store.CreateTicket(ctx, t); err != nil {
		return nil, nil, c.storeError(err, "create ticket", sessionID)
	}

	updated, err := c.store.TransitionSession(ctx, sessionID, storage.Transition{
		From:         session.OpenStatuses,
		To:           session.StatusConverted,
		EndedAt:      &now,
		TicketID:     t.ID,
		TicketNumber: t.Number,
	})
	if errors.Is(err, storage.ErrStatusConflict) {
		// The session closed under us; drop the ticket nobody will see.
		if delErr := c.store.DeleteTicket(ctx, t.ID); delErr != nil {
			util.LogError(c.logger, "chat", "delete orphaned ticket", delErr,
				"session_id", sessionID,
				"ticket_id", t.ID)
		}
		return nil, nil, chaterrors.ErrInvalidState(constants.ErrMsgSessionEnded)
	}
	if err != nil {
		return nil, nil, c.storeError(err, "convert session", sessionID)
	}

	sysMsg, err := c.appendSystem(ctx, updated, fmt.Sprintf(msgConverted, t.Number), false)
	if err != nil {
		return nil, nil, err
	}
	c.fanOutMessage(ctx, updated, sysMsg)
	c.notifier.Broadcast(ctx, sessionID, message.EventSessionUpdated, updated, "")
	c.deliverParties(ctx, updated, message.EventSessionUpdated, updated)
	if t.AgentID != "" {
		c.notifier.Deliver(ctx, t.AgentID, message.EventTicketAssigned, t)
	}

	c.logger.Info("Chat session converted to ticket",
		"session_id", sessionID,
		"ticket_id", t.ID,
		"ticket_number", t.Number)
	return t, updated, nil
}

// copyConversation keeps non-system messages that have a sender.
func copyConversation(history []*session.Message) []ticket.Message {
	var out []ticket.Message
	for _, m := range history {
		if m.SenderType == session.SenderSystem || m.SenderID == "" {
			continue
		}
		out = append(out, ticket.Message{
			Content:    m.Content,
			SenderType: string(m.SenderType),
			SenderID:   m.SenderID,
			CreatedAt:  m.CreatedAt,
		})
	}
	return out
}

// ReturnToQueue moves an AI_ACTIVE session back to WAITING. A session that
// is already WAITING or ACTIVE is returned unchanged.
func (c *Coordinator) ReturnToQueue(ctx context.Context, sessionID string) (*session.ChatSession, error) {
	unlock := c.locks.lock(sessionID)
	defer unlock()

	sess, err := c.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch sess.Status {
	case session.StatusWaiting, session.StatusActive:
		return sess, nil
	case session.StatusEnded, session.StatusConverted:
		return nil, chaterrors.ErrInvalidState(constants.ErrMsgSessionEnded)
	}

	updated, err := c.store.TransitionSession(ctx, sessionID, storage.Transition{
		From: []session.Status{session.StatusAIActive},
		To:   session.StatusWaiting,
	})
	if errors.Is(err, storage.ErrStatusConflict) {
		current, loadErr := c.load(ctx, sessionID)
		if loadErr != nil {
			return nil, loadErr
		}
		if current.Status.Terminal() {
			return nil, chaterrors.ErrInvalidState(constants.ErrMsgSessionEnded)
		}
		return current, nil
	}
	if err != nil {
		return nil, c.storeError(err, "queue session", sessionID)
	}
	c.notifier.Broadcast(ctx, sessionID, message.EventSessionUpdated, updated, "")
	return updated, nil
}

// Typing relays a typing indicator to the room, excluding the sender's
// connection. Nothing is persisted.
func (c *Coordinator) Typing(ctx context.Context, connID, userID, sessionID string, isTyping bool) {
	c.notifier.Broadcast(ctx, sessionID, message.EventTyping, &message.Typing{
		SessionID: sessionID,
		UserID:    userID,
		IsTyping:  isTyping,
	}, connID)
}

// SetAgentStatus records presence and tells every connection. Going online
// drains the waiting queue when enabled; the number of sessions assigned is
// returned.
func (c *Coordinator) SetAgentStatus(ctx context.Context, staff session.Participant, status agent.Status) (int, error) {
	role := staff.Role
	if role == "" {
		role = constants.RoleAgent
	}
	a := &agent.Agent{
		ID:        staff.ID,
		Name:      staff.Name,
		Role:      role,
		Status:    status,
		UpdatedAt: c.now(),
	}
	if err := c.store.SaveAgentStatus(ctx, a); err != nil {
		return 0, c.storeError(err, "save agent status", "")
	}
	c.notifier.BroadcastAll(ctx, message.EventStatusChanged, &message.StatusChanged{
		AgentID: staff.ID,
		Status:  string(status),
	})
	c.logger.Info("Agent status changed", "agent_id", staff.ID, "status", status)

	if status != agent.StatusOnline || !c.opts.AssignOnOnline {
		return 0, nil
	}
	return c.AssignWaiting(ctx, c.opts.DrainLimit)
}

// AssignWaiting assigns up to limit of the oldest WAITING sessions. It stops
// early once no agent is available.
func (c *Coordinator) AssignWaiting(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = c.opts.DrainLimit
	}
	queued, err := c.store.ListSessions(ctx, storage.SessionQuery{
		Statuses:    []session.Status{session.StatusWaiting},
		OldestFirst: true,
		Limit:       limit,
	})
	if err != nil {
		return 0, c.storeError(err, "list waiting sessions", "")
	}

	assigned := 0
	for _, s := range queued {
		if err := ctx.Err(); err != nil {
			return assigned, err
		}
		res, err := c.AutoAssign(ctx, s.ID)
		if err != nil {
			if chaterrors.IsInvalidState(err) {
				continue
			}
			util.LogError(c.logger, "chat", "drain waiting session", err, "session_id", s.ID)
			continue
		}
		if !res.Assigned {
			break
		}
		assigned++
	}
	if assigned > 0 {
		c.logger.Info("Drained waiting sessions", "assigned", assigned, "queued", len(queued))
	}
	return assigned, nil
}

// Candidates returns the online agents with fresh workloads.
func (c *Coordinator) Candidates(ctx context.Context) ([]assign.Candidate, error) {
	list, err := c.store.Candidates(ctx)
	if err != nil {
		return nil, c.storeError(err, "compute workloads", "")
	}
	return list, nil
}

func (c *Coordinator) selectAgent(ctx context.Context, pool assign.Pool) (assign.Candidate, bool, error) {
	candidates, err := c.Candidates(ctx)
	if err != nil {
		return assign.Candidate{}, false, err
	}
	chosen, ok := assign.Select(candidates, pool, c.opts.Mode)
	if !ok {
		metrics.Assignments.WithLabelValues(string(pool), "none").Inc()
	}
	return chosen, ok, nil
}

func (c *Coordinator) load(ctx context.Context, sessionID string) (*session.ChatSession, error) {
	if sessionID == "" {
		return nil, chaterrors.ErrMissingField("sessionId")
	}
	sess, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, c.storeError(err, "get session", sessionID)
	}
	return sess, nil
}

func (c *Coordinator) appendSystem(ctx context.Context, sess *session.ChatSession, content string, openOnly bool) (*session.Message, error) {
	msg := &session.Message{
		ID:         c.newID(),
		SessionID:  sess.ID,
		Content:    content,
		SenderType: session.SenderSystem,
		CreatedAt:  c.now(),
	}
	if err := c.store.AppendMessage(ctx, msg, openOnly); err != nil {
		return nil, c.storeError(err, "add system message", sess.ID)
	}
	return msg, nil
}

// fanOutMessage sends chat:new-message to the room and directly to both
// parties, who may not have joined the room.
func (c *Coordinator) fanOutMessage(ctx context.Context, sess *session.ChatSession, msg *session.Message) {
	c.notifier.Broadcast(ctx, sess.ID, message.EventNewMessage, msg, "")
	c.deliverParties(ctx, sess, message.EventNewMessage, msg)
}

func (c *Coordinator) deliverParties(ctx context.Context, sess *session.ChatSession, event message.Event, payload interface{}) {
	if sess.CustomerID != "" {
		c.notifier.Deliver(ctx, sess.CustomerID, event, payload)
	}
	if sess.AgentID != "" && sess.AgentID != sess.CustomerID {
		c.notifier.Deliver(ctx, sess.AgentID, event, payload)
	}
}

func (c *Coordinator) storeError(err error, operation, sessionID string) error {
	switch {
	case errors.Is(err, storage.ErrSessionNotFound):
		return chaterrors.ErrNotFound("session", err)
	case errors.Is(err, storage.ErrTicketNotFound):
		return chaterrors.ErrNotFound("ticket", err)
	case errors.Is(err, storage.ErrAgentNotFound):
		return chaterrors.ErrNotFound("agent", err)
	case errors.Is(err, storage.ErrStatusConflict):
		return chaterrors.ErrInvalidState(constants.ErrMsgSessionEnded)
	case errors.Is(err, storage.ErrInvalidSessionID):
		return chaterrors.ErrMissingField("sessionId")
	}
	util.LogError(c.logger, "chat", operation, err, "session_id", sessionID)
	return chaterrors.ErrDatabaseError(err)
}

func displayName(name, fallback string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return fallback
}
