package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/real-rm/supportdesk/internal/agent"
	"github.com/real-rm/supportdesk/internal/assign"
	"github.com/real-rm/supportdesk/internal/constants"
	"github.com/real-rm/supportdesk/internal/session"
	"github.com/real-rm/supportdesk/internal/ticket"
)

// MemoryStore implements Store in process. All operations are serialized by
// one mutex, which gives the same compare-and-set guarantees as MongoStore.
type MemoryStore struct {
	mu         sync.Mutex
	sessions   map[string]*session.ChatSession
	seq        map[string]int64
	messages   map[string][]*session.Message
	tickets    map[string]*ticket.Ticket
	agents     map[string]*agent.Agent
	ticketSeq  int64
	now        func() time.Time
	failNext   error
	pingFailed error
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*session.ChatSession),
		seq:      make(map[string]int64),
		messages: make(map[string][]*session.Message),
		tickets:  make(map[string]*ticket.Ticket),
		agents:   make(map[string]*agent.Agent),
		now:      time.Now,
	}
}

// SetPingError makes Ping return err until cleared with nil.
func (m *MemoryStore) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingFailed = err
}

// FailNext makes the next mutating call return err.
func (m *MemoryStore) FailNext(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = err
}

func (m *MemoryStore) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

// Ping reports the configured ping error.
func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingFailed
}

func (m *MemoryStore) CreateSession(ctx context.Context, s *session.ChatSession) error {
	if s.ID == "" {
		return ErrInvalidSessionID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id string) (*session.ChatSession, error) {
	if id == "" {
		return nil, ErrInvalidSessionID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) ListSessions(ctx context.Context, q SessionQuery) ([]*session.ChatSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*session.ChatSession
	for _, s := range m.sessions {
		if len(q.Statuses) > 0 && !containsStatus(q.Statuses, s.Status) {
			continue
		}
		if q.CustomerID != "" && s.CustomerID != q.CustomerID {
			continue
		}
		if q.AgentID != "" && s.AgentID != q.AgentID && !(q.IncludeUnassigned && s.AgentID == "") {
			continue
		}
		out = append(out, s.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.StartedAt.Equal(b.StartedAt) {
			if q.OldestFirst {
				return a.StartedAt.Before(b.StartedAt)
			}
			return a.StartedAt.After(b.StartedAt)
		}
		return a.ID < b.ID
	})
	if limit := clampLimit(q.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) TransitionSession(ctx context.Context, id string, t Transition) (*session.ChatSession, error) {
	if id == "" {
		return nil, ErrInvalidSessionID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !containsStatus(t.From, s.Status) {
		return nil, ErrStatusConflict
	}

	s.Status = t.To
	if t.AgentID != "" {
		s.AgentID = t.AgentID
		s.AgentName = t.AgentName
	} else if t.To == session.StatusWaiting || t.To == session.StatusAIActive {
		s.AgentID = ""
		s.AgentName = ""
	}
	if t.EndedAt != nil {
		ended := *t.EndedAt
		s.EndedAt = &ended
	}
	if t.TicketID != "" {
		s.TicketID = t.TicketID
		s.TicketNumber = t.TicketNumber
	}
	return s.Clone(), nil
}

func (m *MemoryStore) AppendMessage(ctx context.Context, msg *session.Message, openOnly bool) error {
	if msg.SessionID == "" {
		return ErrInvalidSessionID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	s, ok := m.sessions[msg.SessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if openOnly && s.Status.Terminal() {
		return ErrStatusConflict
	}
	m.seq[msg.SessionID]++
	msg.Seq = m.seq[msg.SessionID]
	stored := *msg
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], &stored)
	return nil
}

func (m *MemoryStore) ListMessages(ctx context.Context, sessionID string) ([]*session.Message, error) {
	if sessionID == "" {
		return nil, ErrInvalidSessionID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.messages[sessionID]
	out := make([]*session.Message, len(src))
	for i, msg := range src {
		c := *msg
		out[i] = &c
	}
	return out, nil
}

func (m *MemoryStore) CreateTicket(ctx context.Context, t *ticket.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	m.ticketSeq++
	t.Number = m.ticketSeq
	c := *t
	c.Messages = append([]ticket.Message(nil), t.Messages...)
	m.tickets[t.ID] = &c
	return nil
}

func (m *MemoryStore) GetTicket(ctx context.Context, id string) (*ticket.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tickets[id]
	if !ok {
		return nil, ErrTicketNotFound
	}
	c := *t
	return &c, nil
}

func (m *MemoryStore) AssignTicket(ctx context.Context, id, agentID string) (*ticket.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return nil, err
	}
	t, ok := m.tickets[id]
	if !ok {
		return nil, ErrTicketNotFound
	}
	t.AgentID = agentID
	t.Status = ticket.StatusAssigned
	t.Locked = true
	t.UpdatedAt = m.now()
	c := *t
	return &c, nil
}

func (m *MemoryStore) DeleteTicket(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	if _, ok := m.tickets[id]; !ok {
		return ErrTicketNotFound
	}
	delete(m.tickets, id)
	return nil
}

func (m *MemoryStore) SaveAgentStatus(ctx context.Context, a *agent.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	existing, ok := m.agents[a.ID]
	if !ok {
		existing = &agent.Agent{ID: a.ID}
		m.agents[a.ID] = existing
	}
	if a.Name != "" {
		existing.Name = a.Name
	}
	existing.Role = a.Role
	existing.Status = a.Status
	existing.UpdatedAt = a.UpdatedAt
	a.Name = existing.Name
	return nil
}

func (m *MemoryStore) GetAgent(ctx context.Context, id string) (*agent.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.agents[id]
	if !ok {
		return nil, ErrAgentNotFound
	}
	c := *a
	return &c, nil
}

func (m *MemoryStore) ListAgents(ctx context.Context, status agent.Status) ([]*agent.Agent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*agent.Agent
	for _, a := range m.agents {
		if status != "" && a.Status != status {
			continue
		}
		c := *a
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) Candidates(ctx context.Context) ([]assign.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	openTickets := make(map[string]int)
	for _, t := range m.tickets {
		if t.AgentID != "" && t.Status.CountsTowardWorkload() {
			openTickets[t.AgentID]++
		}
	}
	activeChats := make(map[string]int)
	for _, s := range m.sessions {
		if s.AgentID != "" && s.Status == session.StatusActive {
			activeChats[s.AgentID]++
		}
	}

	var out []assign.Candidate
	for _, a := range m.agents {
		if a.Status != agent.StatusOnline || a.Role != constants.RoleAgent {
			continue
		}
		out = append(out, assign.Candidate{
			AgentID:     a.ID,
			Name:        a.Name,
			OpenTickets: openTickets[a.ID],
			ActiveChats: activeChats[a.ID],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out, nil
}
