// Package agent defines support agent presence.
package agent

import (
	"fmt"
	"strings"
	"time"
)

// Status is an agent's availability.
type Status string

const (
	StatusOnline  Status = "ONLINE"
	StatusOffline Status = "OFFLINE"
	StatusBusy    Status = "BUSY"
)

// ParseStatus accepts any case.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusOnline, StatusOffline, StatusBusy:
		return st, nil
	default:
		return "", fmt.Errorf("unknown agent status %q", s)
	}
}

// Agent is a staff member who can take chats and tickets.
type Agent struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	Status    Status    `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}
