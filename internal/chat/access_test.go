package chat

import (
	"testing"

	"github.com/real-rm/supportdesk/internal/session"
	"github.com/stretchr/testify/assert"
)

func TestAccess(t *testing.T) {
	queued := &session.ChatSession{ID: "q", Status: session.StatusWaiting, CustomerID: customer.ID}
	mine := &session.ChatSession{ID: "m", Status: session.StatusActive, CustomerID: customer.ID, AgentID: alice.ID}

	tests := []struct {
		name     string
		sess     *session.ChatSession
		who      session.Participant
		wantView bool
		wantPost bool
	}{
		{"customer own", mine, customer, true, true},
		{"other customer", mine, session.Participant{ID: "c9"}, false, false},
		{"assigned agent", mine, alice, true, true},
		{"other agent", mine, bob, false, false},
		{"agent on unassigned", queued, bob, true, false},
		{"admin", mine, admin, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantView, CanView(tt.sess, tt.who))
			assert.Equal(t, tt.wantPost, CanPost(tt.sess, tt.who))
		})
	}

	assert.Equal(t, session.SenderCustomer, SenderTypeFor(customer))
	assert.Equal(t, session.SenderAgent, SenderTypeFor(alice))
	assert.Equal(t, session.SenderAgent, SenderTypeFor(admin))
}
