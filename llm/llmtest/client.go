// Package llmtest provides a scripted llm.ChatClient for deterministic
// tests, grounded in the teacher's mock AI provider: a queue of canned
// responses plus optional injected errors, with call recording.
package llmtest

import (
	"context"
	"sync"

	"github.com/forgemind/forgemind/core"
)

// Client is a scripted llm.ChatClient. Responses are consumed in order;
// once exhausted, the last response repeats. Set Err to make every
// subsequent call fail instead.
type Client struct {
	mu sync.Mutex

	Responses     []string
	ResponseIndex int
	Err           error

	CallCount      int
	LastSystem     string
	LastUser       string
	LastTemperature float32
	LastMaxTokens  int

	// TokensPerCall is returned as the token count for every call, unless
	// TokensPerResponse has an entry at the current index.
	TokensPerCall     int
	TokensPerResponse []int
}

// NewClient builds a scripted client that returns responses in order.
func NewClient(responses ...string) *Client {
	return &Client{Responses: responses, TokensPerCall: 10}
}

// Chat implements llm.ChatClient.
func (c *Client) Chat(ctx context.Context, systemPrompt, userPrompt string, temperature float32, maxTokens int) (string, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.CallCount++
	c.LastSystem = systemPrompt
	c.LastUser = userPrompt
	c.LastTemperature = temperature
	c.LastMaxTokens = maxTokens

	if c.Err != nil {
		return "", 0, core.NewFrameworkError("llmtest.Chat", "llm_unavailable", c.Err)
	}

	if len(c.Responses) == 0 {
		return "", 0, nil
	}

	idx := c.ResponseIndex
	if idx >= len(c.Responses) {
		idx = len(c.Responses) - 1
	} else {
		c.ResponseIndex++
	}

	tokens := c.TokensPerCall
	if idx < len(c.TokensPerResponse) {
		tokens = c.TokensPerResponse[idx]
	}

	return c.Responses[idx], tokens, nil
}

// SetResponses replaces the scripted response queue and resets the cursor.
func (c *Client) SetResponses(responses ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Responses = responses
	c.ResponseIndex = 0
}

// SetError makes every subsequent call fail with err.
func (c *Client) SetError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Err = err
}

// Reset clears call history and the error, keeping the scripted responses.
func (c *Client) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCount = 0
	c.ResponseIndex = 0
	c.Err = nil
}
