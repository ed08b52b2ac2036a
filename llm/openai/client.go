// Package openai adapts github.com/sashabaranov/go-openai to llm.ChatClient.
package openai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"github.com/forgemind/forgemind/core"
)

// Client wraps the OpenAI chat-completion API behind llm.ChatClient.
type Client struct {
	api    *openai.Client
	model  string
	logger core.Logger
}

// NewClient builds a Client for model (e.g. "gpt-4o") using apiKey.
func NewClient(apiKey, model string, logger core.Logger) *Client {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Client{api: openai.NewClient(apiKey), model: model, logger: logger}
}

// Chat implements llm.ChatClient.
func (c *Client) Chat(ctx context.Context, systemPrompt, userPrompt string, temperature float32, maxTokens int) (string, int, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", 0, classifyError(err)
	}
	if len(resp.Choices) == 0 {
		return "", resp.Usage.TotalTokens, core.NewFrameworkError("llm.openai.Chat", "llm_unavailable",
			fmt.Errorf("%w: empty choices", core.ErrLLMUnavailable))
	}

	return resp.Choices[0].Message.Content, resp.Usage.TotalTokens, nil
}

// classifyError maps go-openai's error shapes into the taxonomy spec.md §6
// requires: {rate_limited, quota_exceeded, timeout, connection, other}.
func classifyError(err error) error {
	var apiErr *openai.APIError
	if ok := asAPIError(err, &apiErr); ok {
		switch apiErr.HTTPStatusCode {
		case 429:
			return core.NewFrameworkError("llm.openai.Chat", "llm_unavailable", core.ErrRateLimited)
		case 402, 403:
			return core.NewFrameworkError("llm.openai.Chat", "llm_unavailable", core.ErrQuotaExceeded)
		case 408:
			return core.NewFrameworkError("llm.openai.Chat", "llm_unavailable", core.ErrTimeout)
		}
		if apiErr.HTTPStatusCode >= 500 {
			return core.NewFrameworkError("llm.openai.Chat", "llm_unavailable", core.ErrConnectionLost)
		}
	}
	return core.NewFrameworkError("llm.openai.Chat", "llm_unavailable", fmt.Errorf("%w: %v", core.ErrLLMUnavailable, err))
}

func asAPIError(err error, target **openai.APIError) bool {
	apiErr, ok := err.(*openai.APIError)
	if !ok {
		return false
	}
	*target = apiErr
	return true
}
