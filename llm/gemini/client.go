// Package gemini adapts github.com/google/generative-ai-go to llm.ChatClient,
// the Gemini-style endpoint spec.md §6 requires as the second provider.
package gemini

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/forgemind/forgemind/core"
)

// Client wraps a genai.GenerativeModel behind llm.ChatClient.
type Client struct {
	genaiClient *genai.Client
	modelName   string
	logger      core.Logger
}

// NewClient builds a Client for modelName (e.g. "gemini-1.5-flash").
func NewClient(ctx context.Context, apiKey, modelName string, logger core.Logger) (*Client, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	c, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, core.NewFrameworkError("llm.gemini.NewClient", "llm_unavailable", err)
	}
	return &Client{genaiClient: c, modelName: modelName, logger: logger}, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	return c.genaiClient.Close()
}

// Chat implements llm.ChatClient.
func (c *Client) Chat(ctx context.Context, systemPrompt, userPrompt string, temperature float32, maxTokens int) (string, int, error) {
	model := c.genaiClient.GenerativeModel(c.modelName)
	model.SetTemperature(temperature)
	model.SetMaxOutputTokens(int32(maxTokens))
	if systemPrompt != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", 0, classifyError(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", 0, core.NewFrameworkError("llm.gemini.Chat", "llm_unavailable",
			fmt.Errorf("%w: empty candidates", core.ErrLLMUnavailable))
	}

	var text string
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text += string(t)
		}
	}

	tokens := 0
	if resp.UsageMetadata != nil {
		tokens = int(resp.UsageMetadata.TotalTokenCount)
	}

	return text, tokens, nil
}

func classifyError(err error) error {
	return core.NewFrameworkError("llm.gemini.Chat", "llm_unavailable", fmt.Errorf("%w: %v", core.ErrLLMUnavailable, err))
}
