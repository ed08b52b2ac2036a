package supervisor

import (
	"context"
	"errors"
	"testing"

	"github.com/forgemind/forgemind/core"
	"github.com/forgemind/forgemind/llm/llmtest"
)

func TestClassifyParsesEachRoutingDecision(t *testing.T) {
	cases := map[string]core.RoutingDecision{
		"SEARCH_ONLY":                     core.RoutingSearchOnly,
		"code_only":                       core.RoutingCodeOnly,
		"I think SEARCH_THEN_CODE is best": core.RoutingSearchThenCode,
	}
	for raw, want := range cases {
		client := llmtest.NewClient(raw)
		agent := New(client, nil)

		got, err := agent.Classify(context.Background(), "how do I build a REST API?")
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", raw, err)
		}
		if got != want {
			t.Fatalf("raw=%q: expected %s, got %s", raw, want, got)
		}
	}
}

func TestClassifyDefaultsToSearchThenCodeOnAmbiguousOutput(t *testing.T) {
	client := llmtest.NewClient("I'm not sure what to do here")
	agent := New(client, nil)

	got, err := agent.Classify(context.Background(), "do something")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != core.RoutingSearchThenCode {
		t.Fatalf("expected default SEARCH_THEN_CODE, got %s", got)
	}
}

func TestClassifyIsDeterministicAtTemperatureZero(t *testing.T) {
	client := llmtest.NewClient("SEARCH_ONLY")
	agent := New(client, nil)

	first, err1 := agent.Classify(context.Background(), "what is dependency injection?")
	second, err2 := agent.Classify(context.Background(), "what is dependency injection?")
	if err1 != nil || err2 != nil {
		t.Fatalf("unexpected errors: %v, %v", err1, err2)
	}
	if first != second {
		t.Fatalf("expected repeated classify to be deterministic: %s vs %s", first, second)
	}
	if client.LastTemperature != 0 {
		t.Fatalf("expected temperature 0, got %v", client.LastTemperature)
	}
}

func TestClassifyPropagatesLLMUnavailableAfterRetries(t *testing.T) {
	client := llmtest.NewClient()
	client.SetError(errors.New("rate limited"))
	agent := New(client, nil)

	_, err := agent.Classify(context.Background(), "anything")
	if err == nil {
		t.Fatalf("expected an error when the LLM never succeeds")
	}
}

func TestClassifyRejectsEmptyPrompt(t *testing.T) {
	agent := New(llmtest.NewClient("SEARCH_ONLY"), nil)
	_, err := agent.Classify(context.Background(), "")
	if !core.IsInvalidInput(err) {
		t.Fatalf("expected invalid_input for empty prompt, got %v", err)
	}
}
