package chat

import (
	"github.com/real-rm/supportdesk/internal/constants"
	"github.com/real-rm/supportdesk/internal/session"
)

// CanView reports whether p may read s and its history. Admins see every
// session, customers their own, agents their own and unassigned ones.
func CanView(s *session.ChatSession, p session.Participant) bool {
	switch p.Role {
	case constants.RoleAdmin:
		return true
	case constants.RoleAgent:
		return s.AgentID == p.ID || s.AgentID == "" || s.CustomerID == p.ID
	default:
		return s.CustomerID == p.ID
	}
}

// CanPost reports whether p may write into s.
func CanPost(s *session.ChatSession, p session.Participant) bool {
	if p.Role == constants.RoleAdmin {
		return true
	}
	return s.HasParticipant(p.ID)
}

// SenderTypeFor derives the message sender type from the poster's role.
func SenderTypeFor(p session.Participant) session.SenderType {
	if p.Role == constants.RoleAgent || p.Role == constants.RoleAdmin {
		return session.SenderAgent
	}
	return session.SenderCustomer
}
