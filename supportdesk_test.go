package supportdesk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/real-rm/supportdesk/internal/ai"
	"github.com/real-rm/supportdesk/internal/assign"
	"github.com/real-rm/supportdesk/internal/config"
	"github.com/real-rm/supportdesk/internal/session"
	"github.com/real-rm/supportdesk/internal/storage"
	"github.com/real-rm/supportdesk/internal/testutil"
	"github.com/real-rm/supportdesk/internal/ticket"
)

const testSecret = "k9Qz7vR2mX4pL8wN3bT6yH1jF5cD0sGa"

type fixture struct {
	svc    *Service
	store  *storage.MemoryStore
	engine *gin.Engine
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Port:                   8080,
			JWTSecret:              testSecret,
			PathPrefix:             "/support",
			MaxMessageSize:         65536,
			MaxConnectionsPerUser:  10,
			MessageRateLimit:       120,
			MetricsAllowedNetworks: []string{"10.0.0.0/8", "127.0.0.0/8"},
			Database:               "support",
		},
		Assignment: config.AssignmentConfig{
			Mode:           assign.ModeCombined,
			AssignOnOnline: true,
			DrainLimit:     20,
		},
		AI: config.AIConfig{Model: "gpt-4o-mini"},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := storage.NewMemoryStore()
	svc, err := newService(context.Background(), testConfig(), store, testutil.CreateTestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.stop(context.Background()) })

	engine := gin.New()
	svc.mount(engine)
	return &fixture{svc: svc, store: store, engine: engine}
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, "/support"+path, &buf)
	req.RemoteAddr = "10.1.2.3:40000"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func TestProbes(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	w = f.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	var ready struct {
		Status string                 `json:"status"`
		Checks map[string]interface{} `json:"checks"`
	}
	decode(t, w, &ready)
	assert.Equal(t, "ready", ready.Status)
	assert.Contains(t, ready.Checks, "ai")

	f.store.SetPingError(errors.New("no reachable servers"))
	w = f.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "no reachable servers")
}

type stubBus struct {
	connected bool
	closed    bool
}

func (b *stubBus) Connected() bool { return b.connected }

func (b *stubBus) Close() error {
	b.closed = true
	return nil
}

func TestReadyReportsBusState(t *testing.T) {
	f := newFixture(t)
	bus := &stubBus{}
	f.svc.bus = bus

	w := f.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var ready struct {
		Status string `json:"status"`
		Checks struct {
			Bus map[string]interface{} `json:"bus"`
		} `json:"checks"`
	}
	decode(t, w, &ready)
	assert.Equal(t, "not ready", ready.Status)
	assert.Equal(t, "not ready", ready.Checks.Bus["status"])
	assert.Equal(t, true, ready.Checks.Bus["enabled"])

	bus.connected = true
	w = f.do(t, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &ready)
	assert.Equal(t, "ready", ready.Status)
	assert.Equal(t, "ready", ready.Checks.Bus["status"])

	require.NoError(t, f.svc.stop(context.Background()))
	assert.True(t, bus.closed)
	assert.Nil(t, f.svc.bus)
}

func TestMetricsEndpointNetworks(t *testing.T) {
	f := newFixture(t)

	w := f.do(t, http.MethodGet, "/metrics/prometheus", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/support/metrics/prometheus", nil)
	req.RemoteAddr = "203.0.113.9:1234"
	w = httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestAuthAndRoles(t *testing.T) {
	f := newFixture(t)
	customer := testutil.SignToken(t, testSecret, "cust-1", "Carol", "customer")
	agentTok := testutil.SignToken(t, testSecret, "alice", "Alice", "agent")

	tests := []struct {
		name     string
		method   string
		path     string
		token    string
		body     interface{}
		wantCode int
	}{
		{"no token", http.MethodGet, "/chat", "", nil, http.StatusUnauthorized},
		{"bad token", http.MethodGet, "/chat", "nope", nil, http.StatusUnauthorized},
		{"agent cannot start chat", http.MethodPost, "/chat", agentTok, nil, http.StatusForbidden},
		{"customer cannot claim", http.MethodPost, "/chat/s1/claim", customer, nil, http.StatusForbidden},
		{"customer cannot go online", http.MethodPatch, "/agents/me/status", customer, map[string]string{"status": "ONLINE"}, http.StatusForbidden},
		{"agent cannot reassign", http.MethodPut, "/tickets/t1/agent", agentTok, map[string]string{"agentId": "bob"}, http.StatusForbidden},
		{"unknown session", http.MethodGet, "/chat/missing", customer, nil, http.StatusNotFound},
		{"bad status", http.MethodPatch, "/agents/me/status", agentTok, map[string]string{"status": "SLEEPING"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
		})
	}
}

// A customer queues, an agent comes online and takes the chat, they talk,
// and the agent converts the chat into a ticket.
func TestChatLifecycle(t *testing.T) {
	f := newFixture(t)
	customer := testutil.SignToken(t, testSecret, "cust-1", "Carol", "customer")
	stranger := testutil.SignToken(t, testSecret, "cust-2", "Dan", "customer")
	agentTok := testutil.SignToken(t, testSecret, "alice", "Alice", "agent")

	w := f.do(t, http.MethodPost, "/chat", customer, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sess session.ChatSession
	decode(t, w, &sess)
	assert.Equal(t, session.StatusWaiting, sess.Status)

	w = f.do(t, http.MethodPatch, "/agents/me/status", agentTok, map[string]string{"status": "online"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var status struct {
		Assigned int `json:"assigned"`
	}
	decode(t, w, &status)
	assert.Equal(t, 1, status.Assigned)

	w = f.do(t, http.MethodGet, "/agents/online", agentTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var online struct {
		Count int `json:"count"`
	}
	decode(t, w, &online)
	assert.Equal(t, 1, online.Count)

	w = f.do(t, http.MethodPost, "/chat/"+sess.ID+"/messages", customer, map[string]string{"content": "My order is late"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var msg session.Message
	decode(t, w, &msg)
	assert.Equal(t, session.SenderCustomer, msg.SenderType)

	w = f.do(t, http.MethodPost, "/chat/"+sess.ID+"/messages", agentTok, map[string]string{"content": "Let me check"})
	require.Equal(t, http.StatusCreated, w.Code)
	decode(t, w, &msg)
	assert.Equal(t, session.SenderAgent, msg.SenderType)

	w = f.do(t, http.MethodGet, "/chat/"+sess.ID, stranger, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = f.do(t, http.MethodPost, "/chat/"+sess.ID+"/messages", stranger, map[string]string{"content": "hi"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodGet, "/chat/"+sess.ID, customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &sess)
	assert.Equal(t, session.StatusActive, sess.Status)
	assert.Equal(t, "alice", sess.AgentID)
	assert.NotEmpty(t, sess.Messages)

	w = f.do(t, http.MethodGet, "/chat", customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Count int `json:"count"`
	}
	decode(t, w, &list)
	assert.Equal(t, 1, list.Count)

	w = f.do(t, http.MethodPost, "/chat/"+sess.ID+"/convert", agentTok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var converted struct {
		Ticket      ticket.Ticket       `json:"ticket"`
		ChatSession session.ChatSession `json:"chatSession"`
	}
	decode(t, w, &converted)
	assert.Equal(t, session.StatusConverted, converted.ChatSession.Status)
	assert.Equal(t, "alice", converted.Ticket.AgentID)
	assert.Len(t, converted.Ticket.Messages, 2)

	w = f.do(t, http.MethodPost, "/chat/"+sess.ID+"/messages", customer, map[string]string{"content": "still there?"})
	assert.Equal(t, http.StatusConflict, w.Code)
	w = f.do(t, http.MethodDelete, "/chat/"+sess.ID, customer, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, http.MethodPost, "/tickets/"+converted.Ticket.ID+"/assign", agentTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var tr struct {
		Assigned bool `json:"assigned"`
	}
	decode(t, w, &tr)
	assert.True(t, tr.Assigned)

	admin := testutil.SignToken(t, testSecret, "root", "Root", "admin")
	w = f.do(t, http.MethodPut, "/tickets/"+converted.Ticket.ID+"/agent", admin, map[string]string{"agentId": "ghost"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = f.do(t, http.MethodPut, "/tickets/"+converted.Ticket.ID+"/agent", admin, map[string]string{"agentId": "alice"})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestEndAndClaim(t *testing.T) {
	f := newFixture(t)
	customer := testutil.SignToken(t, testSecret, "cust-1", "Carol", "customer")
	agentTok := testutil.SignToken(t, testSecret, "alice", "Alice", "agent")

	w := f.do(t, http.MethodPost, "/chat", customer, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	var sess session.ChatSession
	decode(t, w, &sess)

	w = f.do(t, http.MethodPost, "/chat/"+sess.ID+"/assign", agentTok, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var res struct {
		Assigned bool `json:"assigned"`
	}
	decode(t, w, &res)
	assert.False(t, res.Assigned)

	w = f.do(t, http.MethodPost, "/chat/"+sess.ID+"/claim", agentTok, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decode(t, w, &sess)
	assert.Equal(t, "alice", sess.AgentID)

	w = f.do(t, http.MethodDelete, "/chat/"+sess.ID, customer, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &sess)
	assert.Equal(t, session.StatusEnded, sess.Status)

	w = f.do(t, http.MethodPost, "/chat/"+sess.ID+"/claim", agentTok, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAIChatEscalatesOnRequest(t *testing.T) {
	f := newFixture(t)
	customer := testutil.SignToken(t, testSecret, "cust-1", "Carol", "customer")

	w := f.do(t, http.MethodPost, "/ai-chat", customer, map[string]string{"message": "hello"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var first aiChatResponse
	decode(t, w, &first)
	require.NotEmpty(t, first.SessionID)
	require.NotNil(t, first.Reply)
	assert.False(t, first.Reply.Escalate)
	assert.Nil(t, first.Escalation)

	w = f.do(t, http.MethodPost, "/ai-chat", customer, map[string]string{
		"sessionId": first.SessionID,
		"message":   "I want to speak to someone",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var second aiChatResponse
	decode(t, w, &second)
	assert.Equal(t, first.SessionID, second.SessionID)
	require.NotNil(t, second.Reply)
	assert.Equal(t, ai.MsgTriggerHandoff, second.Reply.Text)
	require.NotNil(t, second.Escalation)
	assert.True(t, second.Escalation.Queued)
	assert.Equal(t, session.StatusWaiting, second.Escalation.Session.Status)

	other := testutil.SignToken(t, testSecret, "cust-2", "Dan", "customer")
	w = f.do(t, http.MethodPost, "/ai-chat", other, map[string]string{"sessionId": first.SessionID, "message": "hi"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, http.MethodPost, "/ai-chat", customer, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEscalateEndpoint(t *testing.T) {
	f := newFixture(t)
	customer := testutil.SignToken(t, testSecret, "cust-1", "Carol", "customer")
	agentTok := testutil.SignToken(t, testSecret, "alice", "Alice", "agent")

	w := f.do(t, http.MethodPost, "/chat", customer, map[string]bool{"aiFirst": true})
	require.Equal(t, http.StatusCreated, w.Code)
	var sess session.ChatSession
	decode(t, w, &sess)
	assert.Equal(t, session.StatusAIActive, sess.Status)

	w = f.do(t, http.MethodPatch, "/agents/me/status", agentTok, map[string]string{"status": "ONLINE"})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/chat/"+sess.ID+"/escalate", customer, map[string]string{"reason": "Customer asked"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res struct {
		Assigned    bool                `json:"assigned"`
		ChatSession session.ChatSession `json:"chatSession"`
	}
	decode(t, w, &res)
	assert.True(t, res.Assigned)
	assert.Equal(t, "alice", res.ChatSession.AgentID)
}

func TestShutdownWithoutRegister(t *testing.T) {
	shutdownMu.Lock()
	globalService = nil
	shutdownMu.Unlock()
	assert.NoError(t, Shutdown(context.Background()))
}
