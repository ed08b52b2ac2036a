// Package llm exposes the narrow chat-completion interface every agent in
// the pipeline depends on, and the provider adapters that implement it.
package llm

import "context"

// ChatClient is the one interface the supervisor and code generation agents
// depend on. Every provider adapter satisfies it with identical call shape,
// per spec.md §6: "Supports at least two provider back-ends with identical
// call shape."
type ChatClient interface {
	// Chat sends a single system+user message pair and returns the
	// assistant's text plus the total tokens consumed.
	Chat(ctx context.Context, systemPrompt, userPrompt string, temperature float32, maxTokens int) (text string, tokensUsed int, err error)
}
