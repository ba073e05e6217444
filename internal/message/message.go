// Package message defines the websocket wire protocol: event names, the
// frame envelope and the payloads carried by inbound and outbound events.
package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is the name carried in every frame.
type Event string

// Inbound events (client to server)
const (
	EventJoin        Event = "chat:join"
	EventLeave       Event = "chat:leave"
	EventSendMessage Event = "chat:send-message"
	EventTyping      Event = "chat:typing"
	EventGoOnline    Event = "agent:go-online"
	EventGoOffline   Event = "agent:go-offline"
)

// Outbound events (server to client)
const (
	EventNewMessage     Event = "chat:new-message"
	EventAgentJoined    Event = "chat:agent-joined"
	EventNewSession     Event = "chat:new-session"
	EventSessionUpdated Event = "chat:session-updated"
	EventEnded          Event = "chat:ended"
	EventStatusChanged  Event = "agent:status-changed"
	EventTicketAssigned Event = "ticket:assigned"
	EventTicketUpdated  Event = "ticket:updated"
	EventNotification   Event = "notification"
	EventError          Event = "error"
)

// ErrorInfo contains error details
type ErrorInfo struct {
	Code        string `json:"code"`
	Message     string `json:"message"`
	Recoverable bool   `json:"recoverable"`
	RetryAfter  int    `json:"retry_after,omitempty"` // milliseconds
}

// Frame is the envelope of every websocket message.
type Frame struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode marshals payload into a frame for event.
func Encode(event Event, payload interface{}) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", event, err)
		}
		data = raw
	}
	return json.Marshal(&Frame{Event: event, Data: data})
}

// Decode unmarshals the frame data into v.
func (f *Frame) Decode(v interface{}) error {
	if len(f.Data) == 0 {
		return &ValidationError{Field: "data", Message: "data is required"}
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return &ValidationError{Field: "data", Message: err.Error()}
	}
	return nil
}

// SessionRef is the payload of chat:join, chat:leave and chat:ended.
type SessionRef struct {
	SessionID string `json:"sessionId"`
}

// SendMessage is the payload of chat:send-message.
type SendMessage struct {
	SessionID  string `json:"sessionId"`
	Content    string `json:"content"`
	SenderType string `json:"senderType,omitempty"`
}

// Typing is the payload of chat:typing in both directions.
type Typing struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId,omitempty"`
	IsTyping  bool   `json:"isTyping"`
}

// StatusChanged is the payload of agent:status-changed.
type StatusChanged struct {
	AgentID string `json:"agentId"`
	Status  string `json:"status"`
}

// Notification is a server-originated informational frame.
type Notification struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// MarshalJSON renders the timestamp as RFC3339.
func (n *Notification) MarshalJSON() ([]byte, error) {
	type Alias Notification
	return json.Marshal(&struct {
		*Alias
		Timestamp string `json:"timestamp"`
	}{
		Alias:     (*Alias)(n),
		Timestamp: n.Timestamp.Format(time.RFC3339),
	})
}
