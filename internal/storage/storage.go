// Package storage persists chat sessions, messages, tickets and agent
// presence. MongoStore is the production backend; MemoryStore implements the
// same contract in process for tests and single-node development.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/real-rm/supportdesk/internal/agent"
	"github.com/real-rm/supportdesk/internal/assign"
	"github.com/real-rm/supportdesk/internal/session"
	"github.com/real-rm/supportdesk/internal/ticket"
)

var (
	// ErrInvalidSessionID is returned when session ID is empty
	ErrInvalidSessionID = errors.New("session ID cannot be empty")
	// ErrSessionNotFound is returned when a session does not exist
	ErrSessionNotFound = errors.New("session not found")
	// ErrStatusConflict is returned when a guarded transition finds the
	// session in a status other than the expected ones
	ErrStatusConflict = errors.New("session status changed")
	// ErrTicketNotFound is returned when a ticket does not exist
	ErrTicketNotFound = errors.New("ticket not found")
	// ErrAgentNotFound is returned when an agent record does not exist
	ErrAgentNotFound = errors.New("agent not found")
)

// SessionQuery filters ListSessions. Zero fields do not filter.
type SessionQuery struct {
	Statuses   []session.Status
	CustomerID string
	AgentID    string
	// IncludeUnassigned widens an AgentID filter to sessions with no agent.
	IncludeUnassigned bool
	// OldestFirst sorts by start time ascending instead of descending.
	OldestFirst bool
	Limit       int
}

// Transition is a compare-and-set on a session's status. The update applies
// only when the current status is one of From.
type Transition struct {
	From         []session.Status
	To           session.Status
	AgentID      string
	AgentName    string
	EndedAt      *time.Time
	TicketID     string
	TicketNumber int64
}

// Store is the persistence contract used by the chat coordinator and the
// escalation bridge.
type Store interface {
	CreateSession(ctx context.Context, s *session.ChatSession) error
	GetSession(ctx context.Context, id string) (*session.ChatSession, error)
	ListSessions(ctx context.Context, q SessionQuery) ([]*session.ChatSession, error)
	// TransitionSession returns the updated session, ErrStatusConflict when
	// the status guard fails, or ErrSessionNotFound.
	TransitionSession(ctx context.Context, id string, t Transition) (*session.ChatSession, error)

	// AppendMessage assigns msg.Seq atomically. With openOnly set it fails
	// with ErrStatusConflict on ENDED or CONVERTED sessions.
	AppendMessage(ctx context.Context, msg *session.Message, openOnly bool) error
	ListMessages(ctx context.Context, sessionID string) ([]*session.Message, error)

	// CreateTicket assigns the next ticket number.
	CreateTicket(ctx context.Context, t *ticket.Ticket) error
	GetTicket(ctx context.Context, id string) (*ticket.Ticket, error)
	AssignTicket(ctx context.Context, id, agentID string) (*ticket.Ticket, error)
	// DeleteTicket removes a ticket that never became visible, such as one
	// created for a conversion that lost its status guard.
	DeleteTicket(ctx context.Context, id string) error

	// SaveAgentStatus upserts the agent with its presence.
	SaveAgentStatus(ctx context.Context, a *agent.Agent) error
	GetAgent(ctx context.Context, id string) (*agent.Agent, error)
	ListAgents(ctx context.Context, status agent.Status) ([]*agent.Agent, error)
	// Candidates returns every online agent with a fresh workload snapshot.
	Candidates(ctx context.Context) ([]assign.Candidate, error)

	Ping(ctx context.Context) error
}

func containsStatus(list []session.Status, s session.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
