// Package ticket defines the support ticket model used by assignment and
// chat conversion.
package ticket

import "time"

// Status is a ticket's workflow state.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusAssigned   Status = "ASSIGNED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusResolved   Status = "RESOLVED"
	StatusClosed     Status = "CLOSED"
)

// WorkloadStatuses are the states that count toward an agent's load.
var WorkloadStatuses = []Status{StatusOpen, StatusAssigned, StatusInProgress}

// CountsTowardWorkload reports whether s is in WorkloadStatuses.
func (s Status) CountsTowardWorkload() bool {
	for _, w := range WorkloadStatuses {
		if s == w {
			return true
		}
	}
	return false
}

// Channel is where the ticket came from.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelChat  Channel = "CHAT"
	ChannelPhone Channel = "PHONE"
	ChannelWeb   Channel = "WEB"
)

// Message is a conversation entry copied onto a ticket.
type Message struct {
	Content    string    `json:"content"`
	SenderType string    `json:"senderType"`
	SenderID   string    `json:"senderId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Ticket is a support request. Number is assigned by the store.
type Ticket struct {
	ID            string    `json:"id"`
	Number        int64     `json:"number"`
	Subject       string    `json:"subject"`
	Description   string    `json:"description"`
	Status        Status    `json:"status"`
	Channel       Channel   `json:"channel"`
	CustomerID    string    `json:"customerId"`
	AgentID       string    `json:"agentId,omitempty"`
	Locked        bool      `json:"locked"`
	ChatSessionID string    `json:"chatSessionId,omitempty"`
	Day           int       `json:"day,omitempty"`
	Messages      []Message `json:"messages,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
