package ai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/real-rm/supportdesk/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResponder struct {
	out    string
	err    error
	prompt string
	calls  int
}

func (f *fakeResponder) Complete(_ context.Context, systemPrompt string, _ []Turn, _ string) (string, error) {
	f.calls++
	f.prompt = systemPrompt
	return f.out, f.err
}

func TestAssistantReply(t *testing.T) {
	logger := testutil.CreateTestLogger(t)
	ctx := context.Background()

	tests := []struct {
		name         string
		responder    *fakeResponder
		text         string
		wantText     string
		wantEscalate bool
		wantReason   string
		wantCalls    int
	}{
		{
			name:      "quick response skips the model",
			responder: &fakeResponder{out: "unused"},
			text:      "hi",
			wantText:  "Hello! Welcome to GroceryMart support.",
		},
		{
			name:         "trigger escalates before the model",
			responder:    &fakeResponder{out: "unused"},
			text:         "let me talk to someone",
			wantText:     MsgTriggerHandoff,
			wantEscalate: true,
			wantReason:   "Customer requested to talk to someone",
		},
		{
			name:      "model answer",
			responder: &fakeResponder{out: "  Delivery takes 30 minutes.  "},
			text:      "how long does delivery take",
			wantText:  "Delivery takes 30 minutes.",
			wantCalls: 1,
		},
		{
			name:         "marker escalates",
			responder:    &fakeResponder{out: "I'm not sure about that order. ESCALATE_TO_HUMAN"},
			text:         "where is order 1234",
			wantText:     "I'm not sure about that order." + MsgMarkerSuffix,
			wantEscalate: true,
			wantReason:   ReasonLowConfidence,
			wantCalls:    1,
		},
		{
			name:         "every marker is stripped",
			responder:    &fakeResponder{out: "ESCALATE_TO_HUMAN I can't find that order. ESCALATE_TO_HUMAN"},
			text:         "where is order 1234",
			wantText:     "I can't find that order." + MsgMarkerSuffix,
			wantEscalate: true,
			wantReason:   ReasonLowConfidence,
			wantCalls:    1,
		},
		{
			name:         "responder error escalates",
			responder:    &fakeResponder{err: errors.New("upstream 502")},
			text:         "do you sell flowers",
			wantText:     MsgResponderError,
			wantEscalate: true,
			wantReason:   "AI error: upstream 502",
			wantCalls:    1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAssistant(nil, tt.responder, logger)
			got := a.Reply(ctx, tt.text, nil)
			assert.True(t, strings.HasPrefix(got.Text, tt.wantText), got.Text)
			assert.NotContains(t, got.Text, EscalationMarker)
			assert.Equal(t, tt.wantEscalate, got.Escalate)
			assert.Equal(t, tt.wantReason, got.Reason)
			assert.Equal(t, tt.wantCalls, tt.responder.calls)
			assert.NotNil(t, got.Sources)
		})
	}
}

func TestAssistantWithoutResponder(t *testing.T) {
	a := NewAssistant(nil, nil, testutil.CreateTestLogger(t))
	assert.False(t, a.Configured())

	got := a.Reply(context.Background(), "do you sell flowers", nil)
	assert.True(t, got.Escalate)
	assert.Equal(t, MsgNotConfigured, got.Text)
	assert.Equal(t, ReasonNotConfigured, got.Reason)

	quick := a.Reply(context.Background(), "thanks!", nil)
	assert.False(t, quick.Escalate)
}

func TestAssistantRetrievesKnowledge(t *testing.T) {
	responder := &fakeResponder{out: "Standard fee is $2.99 to $5.99."}
	a := NewAssistant(nil, responder, testutil.CreateTestLogger(t))

	got := a.Reply(context.Background(), "what is the delivery fee", nil)
	require.False(t, got.Escalate)
	assert.Contains(t, got.Sources, "delivery_fee")
	assert.LessOrEqual(t, len(got.Sources), knowledgeTopK)
	assert.InDelta(t, 0.8, got.Confidence, 0.001)
	assert.Contains(t, responder.prompt, "How much is the delivery fee?")

	none := a.Reply(context.Background(), "zzz qqq", nil)
	assert.InDelta(t, 0.4, none.Confidence, 0.001)
	assert.Empty(t, none.Sources)
}
