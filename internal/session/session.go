// Package session defines the chat session model and its state machine.
package session

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a chat session.
type Status string

const (
	StatusWaiting   Status = "WAITING"
	StatusAIActive  Status = "AI_ACTIVE"
	StatusActive    Status = "ACTIVE"
	StatusEnded     Status = "ENDED"
	StatusConverted Status = "CONVERTED"
)

// Terminal reports whether no further transitions or messages are accepted.
func (s Status) Terminal() bool {
	return s == StatusEnded || s == StatusConverted
}

// Claimable reports whether an agent may take the session.
func (s Status) Claimable() bool {
	return s == StatusWaiting || s == StatusAIActive
}

// ClaimableStatuses are the source states of a claim or auto-assign.
var ClaimableStatuses = []Status{StatusWaiting, StatusAIActive}

// OpenStatuses are every non-terminal state.
var OpenStatuses = []Status{StatusWaiting, StatusAIActive, StatusActive}

// SenderType tags who wrote a message.
type SenderType string

const (
	SenderCustomer SenderType = "CUSTOMER"
	SenderAgent    SenderType = "AGENT"
	SenderSystem   SenderType = "SYSTEM"
)

// ParseSenderType accepts any case.
func ParseSenderType(s string) (SenderType, error) {
	switch t := SenderType(strings.ToUpper(strings.TrimSpace(s))); t {
	case SenderCustomer, SenderAgent, SenderSystem:
		return t, nil
	default:
		return "", fmt.Errorf("unknown sender type %q", s)
	}
}

// Participant identifies the user acting on a session.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// ChatSession is a live chat between a customer and, eventually, an agent.
type ChatSession struct {
	ID           string     `json:"id"`
	Status       Status     `json:"status"`
	CustomerID   string     `json:"customerId"`
	CustomerName string     `json:"customerName,omitempty"`
	AgentID      string     `json:"agentId,omitempty"`
	AgentName    string     `json:"agentName,omitempty"`
	AIOriginated bool       `json:"aiOriginated"`
	TicketID     string     `json:"ticketId,omitempty"`
	TicketNumber int64      `json:"ticketNumber,omitempty"`
	StartedAt    time.Time  `json:"startedAt"`
	EndedAt      *time.Time `json:"endedAt,omitempty"`

	// Messages is filled only when history is requested.
	Messages []*Message `json:"messages,omitempty"`
}

// HasParticipant reports whether userID is the customer or the assigned agent.
func (s *ChatSession) HasParticipant(userID string) bool {
	return userID != "" && (s.CustomerID == userID || s.AgentID == userID)
}

// Clone returns a copy without the message history.
func (s *ChatSession) Clone() *ChatSession {
	c := *s
	c.Messages = nil
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return &c
}

// Message is an immutable chat message. Seq orders messages within a session.
type Message struct {
	ID         string     `json:"id"`
	SessionID  string     `json:"sessionId"`
	Content    string     `json:"content"`
	SenderType SenderType `json:"senderType"`
	SenderID   string     `json:"senderId,omitempty"`
	Seq        int64      `json:"seq"`
	CreatedAt  time.Time  `json:"createdAt"`
}
