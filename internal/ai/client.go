// Package ai optionally rewrites notification copy through an LLM. The
// whole feature is off unless an API key is configured; callers hold a nil
// *Client in that case and fall back to the plain templates.
package ai

import (
	"context"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const systemPrompt = `You polish short mobile push notification bodies for a
location-reminder app. Rewrite the given body to be friendly and concise.
Keep it under 120 characters, keep every task and place name exactly as
given, and answer with the rewritten body only.`

type Client struct {
	client *openai.Client
	model  string
}

func New(apiKey, baseURL, model string) *Client {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = baseURL

	return &Client{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

// PolishBody rewrites a notification body. Best effort: on any error the
// original body comes back so delivery is never blocked on the LLM.
func (c *Client) PolishBody(ctx context.Context, body string) string {
	if c == nil {
		return body
	}

	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: body},
		},
		MaxTokens:   100,
		Temperature: 0.4,
	})
	if err != nil || len(resp.Choices) == 0 {
		return body
	}

	polished := strings.TrimSpace(resp.Choices[0].Message.Content)
	if polished == "" {
		return body
	}
	return polished
}
