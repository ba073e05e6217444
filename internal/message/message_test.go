package message

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	raw, err := Encode(EventNewMessage, map[string]string{"content": "hi"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"chat:new-message","data":{"content":"hi"}}`, string(raw))

	raw, err = Encode(EventGoOnline, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"agent:go-online"}`, string(raw))

	_, err = Encode(EventNewMessage, make(chan int))
	assert.Error(t, err)
}

func TestFrameDecode(t *testing.T) {
	var f Frame
	require.NoError(t, json.Unmarshal([]byte(`{"event":"chat:send-message","data":{"sessionId":"s1","content":"hello"}}`), &f))

	var msg SendMessage
	require.NoError(t, f.Decode(&msg))
	assert.Equal(t, "s1", msg.SessionID)
	assert.Equal(t, "hello", msg.Content)

	empty := Frame{Event: EventJoin}
	var ref SessionRef
	err := empty.Decode(&ref)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "data", vErr.Field)

	bad := Frame{Event: EventJoin, Data: json.RawMessage(`"not an object"`)}
	assert.Error(t, bad.Decode(&ref))
}

func TestFrameValidate(t *testing.T) {
	tests := []struct {
		event   Event
		wantErr bool
	}{
		{EventJoin, false},
		{EventLeave, false},
		{EventSendMessage, false},
		{EventTyping, false},
		{EventGoOnline, false},
		{EventGoOffline, false},
		{"", true},
		{EventNewMessage, true},
		{EventError, true},
		{"chat:dance", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.event), func(t *testing.T) {
			f := Frame{Event: tt.event}
			if tt.wantErr {
				assert.Error(t, f.Validate())
			} else {
				assert.NoError(t, f.Validate())
			}
		})
	}
}

func TestSendMessageValidate(t *testing.T) {
	tests := []struct {
		name    string
		msg     SendMessage
		field   string
		wantErr bool
	}{
		{"valid", SendMessage{SessionID: "s1", Content: "hello"}, "", false},
		{"missing session", SendMessage{Content: "hello"}, "sessionId", true},
		{"long session", SendMessage{SessionID: strings.Repeat("a", MaxSessionIDLength+1), Content: "x"}, "sessionId", true},
		{"empty content", SendMessage{SessionID: "s1"}, "content", true},
		{"long content", SendMessage{SessionID: "s1", Content: strings.Repeat("x", MaxContentLength+1)}, "content", true},
		{"max content", SendMessage{SessionID: "s1", Content: strings.Repeat("x", MaxContentLength)}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var vErr *ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestSanitize(t *testing.T) {
	msg := SendMessage{SessionID: " s1\x00 ", Content: "  <b>hi</b>\x00\n", SenderType: " agent "}
	msg.Sanitize()
	assert.Equal(t, "s1", msg.SessionID)
	assert.Equal(t, "<b>hi</b>", msg.Content)
	assert.Equal(t, "AGENT", msg.SenderType)

	ref := SessionRef{SessionID: "\x00abc "}
	ref.Sanitize()
	assert.Equal(t, "abc", ref.SessionID)
	assert.NoError(t, ref.Validate())

	// whitespace-only content is empty after sanitizing
	blank := SendMessage{SessionID: "s1", Content: "   "}
	blank.Sanitize()
	assert.Error(t, blank.Validate())
}

func TestTypingValidate(t *testing.T) {
	assert.NoError(t, (&Typing{SessionID: "s1", IsTyping: true}).Validate())
	assert.Error(t, (&Typing{IsTyping: true}).Validate())
}

func TestNotificationMarshalJSON(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	raw, err := json.Marshal(&Notification{Message: "Agent is on the way", Timestamp: ts})
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"Agent is on the way","timestamp":"2026-03-04T05:06:07Z"}`, string(raw))
}

func TestErrorInfoJSON(t *testing.T) {
	raw, err := json.Marshal(ErrorInfo{Code: "TOO_MANY_REQUESTS", Message: "slow down", Recoverable: true, RetryAfter: 1000})
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":"TOO_MANY_REQUESTS","message":"slow down","recoverable":true,"retry_after":1000}`, string(raw))

	raw, err = json.Marshal(ErrorInfo{Code: "NOT_FOUND", Message: "session not found", Recoverable: true})
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "retry_after")
}
