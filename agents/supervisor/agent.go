// Package supervisor implements the classifier agent from spec.md §4.6: a
// single LLM call, temperature 0, that routes a prompt into one of the
// three closed-set RoutingDecision values.
package supervisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/forgemind/forgemind/core"
	"github.com/forgemind/forgemind/llm"
	"github.com/forgemind/forgemind/resilience"
)

// systemPrompt fixes the classifier's instructions so every call is
// deterministic at temperature 0.
const systemPrompt = `You are a routing classifier for a developer assistant. Read the user's
prompt and decide which of the following three actions it needs. Reply with
exactly one of these words and nothing else:

SEARCH_ONLY - the user is asking a documentation/explanation question with no code to write.
CODE_ONLY - the user is asking for code to be generated and does not need supporting documentation.
SEARCH_THEN_CODE - the user wants code generated and would benefit from documentation context first.

Respond with exactly one of: SEARCH_ONLY, CODE_ONLY, SEARCH_THEN_CODE.`

// Agent classifies prompts into a core.RoutingDecision via an LLM call.
type Agent struct {
	client llm.ChatClient
	retry  resilience.RetryPolicy
	logger core.Logger
}

// New builds a supervisor Agent over client.
func New(client llm.ChatClient, logger core.Logger) *Agent {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Agent{
		client: client,
		retry:  resilience.LLMRetryPolicy(),
		logger: core.WithComponent(logger, "agent/supervisor"),
	}
}

// Classify implements workflow.SupervisorAgent. Temperature is 0 for
// determinism; on LLM failure after retries exhaust, returns
// ErrLLMUnavailable. On ambiguous or unrecognized model output, defaults
// to SEARCH_THEN_CODE (the safest choice: it provides the most context).
func (a *Agent) Classify(ctx context.Context, prompt string) (core.RoutingDecision, error) {
	if err := core.ValidatePrompt(prompt); err != nil {
		return "", err
	}

	var raw string
	err := resilience.Retry(ctx, a.retry, func() error {
		text, _, callErr := a.client.Chat(ctx, systemPrompt, prompt, 0, 32)
		if callErr != nil {
			return callErr
		}
		raw = text
		return nil
	})
	if err != nil {
		a.logger.ErrorWithContext(ctx, "supervisor classification failed", map[string]interface{}{"error": err.Error()})
		return "", core.NewFrameworkError("agent.supervisor.Classify", "llm_unavailable", fmt.Errorf("%w: %w", core.ErrLLMUnavailable, err))
	}

	decision := parseDecision(raw)
	a.logger.DebugWithContext(ctx, "supervisor classified prompt", map[string]interface{}{
		"raw": raw, "decision": string(decision),
	})
	return decision, nil
}

// parseDecision does a case-insensitive substring match in the fixed order
// SEARCH_ONLY, CODE_ONLY, SEARCH_THEN_CODE, defaulting to
// SEARCH_THEN_CODE when none of the three strings appear.
func parseDecision(raw string) core.RoutingDecision {
	upper := strings.ToUpper(raw)
	switch {
	case strings.Contains(upper, string(core.RoutingSearchOnly)):
		return core.RoutingSearchOnly
	case strings.Contains(upper, string(core.RoutingCodeOnly)):
		return core.RoutingCodeOnly
	case strings.Contains(upper, string(core.RoutingSearchThenCode)):
		return core.RoutingSearchThenCode
	default:
		return core.RoutingSearchThenCode
	}
}
