// Package escalation moves work from the AI assistant and the ticket queue
// to human agents. Chat hand-offs go through the chat Coordinator; tickets
// are assigned directly against the store. Both share assign.Select.
package escalation

import (
	"context"
	"errors"

	"github.com/real-rm/golog"
	"github.com/real-rm/supportdesk/internal/ai"
	"github.com/real-rm/supportdesk/internal/assign"
	"github.com/real-rm/supportdesk/internal/chat"
	chaterrors "github.com/real-rm/supportdesk/internal/errors"
	"github.com/real-rm/supportdesk/internal/message"
	"github.com/real-rm/supportdesk/internal/metrics"
	"github.com/real-rm/supportdesk/internal/notify"
	"github.com/real-rm/supportdesk/internal/session"
	"github.com/real-rm/supportdesk/internal/storage"
	"github.com/real-rm/supportdesk/internal/ticket"
	"github.com/real-rm/supportdesk/internal/util"
)

// historyTurns caps how much of the conversation is replayed to the model.
const historyTurns = 10

// Result is the outcome of an escalation. Queued means the session is
// WAITING with nobody online to take it.
type Result struct {
	Session  *session.ChatSession `json:"chatSession"`
	Queued   bool                 `json:"queued"`
	Assigned bool                 `json:"assigned"`
	Reason   string               `json:"reason,omitempty"`
}

// TicketResult is the outcome of a ticket assignment.
type TicketResult struct {
	Ticket   *ticket.Ticket `json:"ticket"`
	Assigned bool           `json:"assigned"`
}

// TicketUpdate is the data of ticket:updated.
type TicketUpdate struct {
	TicketID string         `json:"ticketId"`
	Ticket   *ticket.Ticket `json:"ticket"`
}

// Turn is the outcome of one AI exchange.
type Turn struct {
	CustomerMessage *session.Message `json:"customerMessage"`
	ReplyMessage    *session.Message `json:"replyMessage,omitempty"`
	Reply           *ai.Reply        `json:"reply,omitempty"`
	Escalation      *Result          `json:"escalation,omitempty"`
}

// Bridge hands sessions and tickets to agents.
type Bridge struct {
	coord     *chat.Coordinator
	store     storage.Store
	notifier  notify.Notifier
	assistant *ai.Assistant
	logger    *golog.Logger
}

// NewBridge creates a bridge. assistant may be nil when AI chat is disabled.
func NewBridge(coord *chat.Coordinator, store storage.Store, notifier notify.Notifier, assistant *ai.Assistant, logger *golog.Logger) *Bridge {
	return &Bridge{
		coord:     coord,
		store:     store,
		notifier:  notifier,
		assistant: assistant,
		logger:    logger.WithGroup("escalation"),
	}
}

// Escalate queues an AI_ACTIVE session for a human and assigns the least
// loaded online agent. Having nobody online is not an error.
func (b *Bridge) Escalate(ctx context.Context, sessionID, reason string) (Result, error) {
	sess, err := b.coord.ReturnToQueue(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	if sess.Status == session.StatusActive {
		metrics.Escalations.WithLabelValues("already_active").Inc()
		return Result{Session: sess, Assigned: true, Reason: reason}, nil
	}

	candidates, err := b.coord.Candidates(ctx)
	if err != nil {
		return Result{}, err
	}
	chosen, ok := assign.Select(candidates, assign.PoolChat, b.coord.Mode())
	if !ok {
		metrics.Assignments.WithLabelValues(string(assign.PoolChat), "none").Inc()
		metrics.Escalations.WithLabelValues("queued").Inc()
		b.logger.Info("Escalated session queued, no agent online",
			"session_id", sessionID,
			"reason", reason)
		return Result{Session: sess, Queued: true, Reason: reason}, nil
	}

	res, err := b.coord.AssignAgent(ctx, sessionID, chosen)
	if err != nil {
		return Result{}, err
	}
	metrics.Escalations.WithLabelValues("assigned").Inc()
	b.logger.Info("Escalated session assigned",
		"session_id", sessionID,
		"agent_id", res.Session.AgentID,
		"reason", reason)
	return Result{Session: res.Session, Assigned: res.Assigned, Reason: reason}, nil
}

// AssignTicket gives the ticket to the least loaded online agent.
func (b *Bridge) AssignTicket(ctx context.Context, ticketID string) (TicketResult, error) {
	t, err := b.loadTicket(ctx, ticketID)
	if err != nil {
		return TicketResult{}, err
	}

	candidates, err := b.coord.Candidates(ctx)
	if err != nil {
		return TicketResult{}, err
	}
	chosen, ok := assign.Select(candidates, assign.PoolTicket, b.coord.Mode())
	if !ok {
		metrics.Assignments.WithLabelValues(string(assign.PoolTicket), "none").Inc()
		return TicketResult{Ticket: t, Assigned: false}, nil
	}

	updated, err := b.assignTicket(ctx, ticketID, chosen.AgentID)
	if err != nil {
		return TicketResult{}, err
	}
	metrics.Assignments.WithLabelValues(string(assign.PoolTicket), "assigned").Inc()
	return TicketResult{Ticket: updated, Assigned: true}, nil
}

// ReassignTicket moves the ticket to agentID, online or not.
func (b *Bridge) ReassignTicket(ctx context.Context, ticketID, agentID string) (*ticket.Ticket, error) {
	if agentID == "" {
		return nil, chaterrors.ErrMissingField("agentId")
	}
	if _, err := b.loadTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	if _, err := b.store.GetAgent(ctx, agentID); err != nil {
		return nil, b.storeError(err, "get agent", ticketID)
	}
	updated, err := b.assignTicket(ctx, ticketID, agentID)
	if err != nil {
		return nil, err
	}
	metrics.Assignments.WithLabelValues(string(assign.PoolTicket), "reassigned").Inc()
	return updated, nil
}

func (b *Bridge) assignTicket(ctx context.Context, ticketID, agentID string) (*ticket.Ticket, error) {
	updated, err := b.store.AssignTicket(ctx, ticketID, agentID)
	if err != nil {
		return nil, b.storeError(err, "assign ticket", ticketID)
	}
	b.notifier.Deliver(ctx, agentID, message.EventTicketAssigned, updated)
	b.notifier.BroadcastAll(ctx, message.EventTicketUpdated, &TicketUpdate{TicketID: updated.ID, Ticket: updated})
	b.logger.Info("Ticket assigned",
		"ticket_id", updated.ID,
		"ticket_number", updated.Number,
		"agent_id", agentID)
	return updated, nil
}

// HandleAIMessage stores the customer's message and, while the session is
// still with the assistant, stores the assistant's answer and escalates when
// the answer asks for a human. Once a human holds the session only the
// customer message is stored.
func (b *Bridge) HandleAIMessage(ctx context.Context, sessionID string, customer session.Participant, text string) (*Turn, error) {
	sess, err := b.coord.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.CustomerID != customer.ID {
		return nil, chaterrors.ErrInsufficientPermissions(nil)
	}
	history := historyFrom(sess.Messages)

	msg, err := b.coord.PostMessage(ctx, sessionID, session.SenderCustomer, customer.ID, text)
	if err != nil {
		return nil, err
	}
	turn := &Turn{CustomerMessage: msg}
	if sess.Status != session.StatusAIActive || b.assistant == nil {
		return turn, nil
	}

	reply := b.assistant.Reply(ctx, msg.Content, history)
	turn.Reply = &reply

	replyMsg, err := b.coord.PostMessage(ctx, sessionID, session.SenderSystem, "", reply.Text)
	if err != nil {
		return nil, err
	}
	turn.ReplyMessage = replyMsg

	if reply.Escalate {
		res, err := b.Escalate(ctx, sessionID, reply.Reason)
		if err != nil {
			return nil, err
		}
		turn.Escalation = &res
	}
	return turn, nil
}

// historyFrom converts stored messages into model turns, oldest first.
func historyFrom(msgs []*session.Message) []ai.Turn {
	if len(msgs) > historyTurns {
		msgs = msgs[len(msgs)-historyTurns:]
	}
	turns := make([]ai.Turn, 0, len(msgs))
	for _, m := range msgs {
		role := "assistant"
		if m.SenderType == session.SenderCustomer {
			role = "user"
		}
		turns = append(turns, ai.Turn{Role: role, Content: m.Content})
	}
	return turns
}

func (b *Bridge) loadTicket(ctx context.Context, ticketID string) (*ticket.Ticket, error) {
	if ticketID == "" {
		return nil, chaterrors.ErrMissingField("ticketId")
	}
	t, err := b.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, b.storeError(err, "get ticket", ticketID)
	}
	return t, nil
}

func (b *Bridge) storeError(err error, operation, ticketID string) error {
	switch {
	case errors.Is(err, storage.ErrTicketNotFound):
		return chaterrors.ErrNotFound("ticket", err)
	case errors.Is(err, storage.ErrAgentNotFound):
		return chaterrors.ErrNotFound("agent", err)
	}
	util.LogError(b.logger, "escalation", operation, err, "ticket_id", ticketID)
	return chaterrors.ErrDatabaseError(err)
}
