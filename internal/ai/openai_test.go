package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOpenAIResponderRequiresKey(t *testing.T) {
	_, err := NewOpenAIResponder(OpenAIConfig{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestOpenAIResponderComplete(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "We deliver in 30 minutes."}, "finish_reason": "stop"}]
		}`))
	}))
	defer server.Close()

	r, err := NewOpenAIResponder(OpenAIConfig{
		BaseURL:     server.URL + "/",
		APIKey:      "sk-test",
		Temperature: 0.3,
	})
	require.NoError(t, err)

	out, err := r.Complete(context.Background(), "system prompt", []Turn{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}, "how fast?")
	require.NoError(t, err)
	assert.Equal(t, "We deliver in 30 minutes.", out)

	assert.Equal(t, "gpt-4o-mini", got["model"])
	assert.EqualValues(t, 500, got["max_tokens"])
	msgs, ok := got["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, msgs, 4)
	assert.Equal(t, "system", msgs[0].(map[string]interface{})["role"])
	assert.Equal(t, "assistant", msgs[2].(map[string]interface{})["role"])
	assert.Equal(t, "how fast?", msgs[3].(map[string]interface{})["content"])
}

func TestOpenAIResponderErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": {"message": "overloaded", "type": "server_error"}}`))
	}))
	defer server.Close()

	r, err := NewOpenAIResponder(OpenAIConfig{BaseURL: server.URL, APIKey: "sk-test"})
	require.NoError(t, err)
	_, err = r.Complete(context.Background(), "p", nil, "q")
	assert.Error(t, err)
}
