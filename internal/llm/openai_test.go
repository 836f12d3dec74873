package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, reply string, seen *openai.ChatCompletionRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(seen))

		resp := openai.ChatCompletionResponse{
			ID:    "chatcmpl-1",
			Model: seen.Model,
		}
		if reply != "" {
			resp.Choices = []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: reply},
			}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOpenAIClient_Chat(t *testing.T) {
	var seen openai.ChatCompletionRequest
	srv := newTestServer(t, "How often is your dog vomiting?", &seen)
	c := NewOpenAIClient(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1/"})

	out, err := c.Chat(context.Background(), []Message{
		{Role: "system", Content: "be brief"},
		{Role: "owner", Content: "my dog is vomiting"},
	})
	require.NoError(t, err)
	assert.Equal(t, "How often is your dog vomiting?", out)

	assert.Equal(t, DefaultModel, seen.Model)
	assert.Nil(t, seen.ResponseFormat)
	require.Len(t, seen.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleUser, seen.Messages[1].Role)
}

func TestOpenAIClient_ChatJSON(t *testing.T) {
	var seen openai.ChatCompletionRequest
	srv := newTestServer(t, `{"vomiting": true}`, &seen)
	c := NewOpenAIClient(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1", Model: "gpt-test"})

	out, err := c.ChatJSON(context.Background(), []Message{{Role: "user", Content: "reply in JSON"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"vomiting": true}`, out)
	assert.Equal(t, "gpt-test", seen.Model)
	require.NotNil(t, seen.ResponseFormat)
	assert.Equal(t, openai.ChatCompletionResponseFormatTypeJSONObject, seen.ResponseFormat.Type)
}

func TestOpenAIClient_NoChoices(t *testing.T) {
	var seen openai.ChatCompletionRequest
	srv := newTestServer(t, "", &seen)
	c := NewOpenAIClient(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1"})

	_, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAIClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()
	c := NewOpenAIClient(Config{APIKey: "test-key", BaseURL: srv.URL + "/v1"})

	_, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat completion")
}
