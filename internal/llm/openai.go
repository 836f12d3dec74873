package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultModel is used when no chat model is configured.
const DefaultModel = "gpt-4o-mini"

// ErrEmptyResponse is returned when the API answers without any choice.
var ErrEmptyResponse = errors.New("llm returned no choices")

// Message is a minimal chat message.
// Role must be one of: "system", "user", or "assistant".
type Message struct {
	Role    string
	Content string
}

// Client is what the conversation layer needs from a language model.
// Chat returns free text; ChatJSON asks the model for a single JSON object.
type Client interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	ChatJSON(ctx context.Context, messages []Message) (string, error)
}

// Config selects the model endpoint.
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
}

// OpenAIClient calls an OpenAI-compatible chat completion API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient constructs an OpenAI-backed client.  An empty model falls
// back to DefaultModel and an empty base URL to the public API.
func NewOpenAIClient(cfg Config) *OpenAIClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(oc),
		model:  model,
	}
}

// Model returns the chat model in use.
func (c *OpenAIClient) Model() string { return c.model }

// Chat sends the message history and returns the assistant's reply.
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message) (string, error) {
	return c.complete(ctx, messages, nil)
}

// ChatJSON is Chat with the JSON-object response format enabled.  The prompt
// itself must still mention JSON.
func (c *OpenAIClient) ChatJSON(ctx context.Context, messages []Message) (string, error) {
	return c.complete(ctx, messages, &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONObject,
	})
}

func (c *OpenAIClient) complete(ctx context.Context, messages []Message, format *openai.ChatCompletionResponseFormat) (string, error) {
	if c.client == nil {
		return "", errors.New("openai client not initialized")
	}

	oaMsgs := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role != openai.ChatMessageRoleSystem && role != openai.ChatMessageRoleUser && role != openai.ChatMessageRoleAssistant {
			// coerce anything unknown to user
			role = openai.ChatMessageRoleUser
		}
		oaMsgs = append(oaMsgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:          c.model,
		Messages:       oaMsgs,
		Temperature:    0.2,
		ResponseFormat: format,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}
