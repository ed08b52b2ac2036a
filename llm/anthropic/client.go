// Package anthropic adapts github.com/anthropics/anthropic-sdk-go to llm.ChatClient.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/forgemind/forgemind/core"
)

// Client wraps the Anthropic Messages API behind llm.ChatClient.
type Client struct {
	api    anthropic.Client
	model  anthropic.Model
	logger core.Logger
}

// NewClient builds a Client for model (e.g. anthropic.ModelClaude3_5SonnetLatest).
func NewClient(apiKey string, model anthropic.Model, logger core.Logger) *Client {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Client{
		api:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		logger: logger,
	}
}

// Chat implements llm.ChatClient.
func (c *Client) Chat(ctx context.Context, systemPrompt, userPrompt string, temperature float32, maxTokens int) (string, int, error) {
	msg, err := c.api.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: int64(maxTokens),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
		Temperature: anthropic.Float(float64(temperature)),
	})
	if err != nil {
		return "", 0, classifyError(err)
	}

	var text string
	for _, block := range msg.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}

	tokens := int(msg.Usage.InputTokens + msg.Usage.OutputTokens)
	return text, tokens, nil
}

// classifyError maps Anthropic SDK errors into spec.md §6's taxonomy.
func classifyError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests:
			return core.NewFrameworkError("llm.anthropic.Chat", "llm_unavailable", core.ErrRateLimited)
		case http.StatusPaymentRequired, http.StatusForbidden:
			return core.NewFrameworkError("llm.anthropic.Chat", "llm_unavailable", core.ErrQuotaExceeded)
		case http.StatusRequestTimeout:
			return core.NewFrameworkError("llm.anthropic.Chat", "llm_unavailable", core.ErrTimeout)
		}
		if apiErr.StatusCode >= 500 {
			return core.NewFrameworkError("llm.anthropic.Chat", "llm_unavailable", core.ErrConnectionLost)
		}
	}
	return core.NewFrameworkError("llm.anthropic.Chat", "llm_unavailable", fmt.Errorf("%w: %v", core.ErrLLMUnavailable, err))
}
