package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/forgemind/forgemind/core"
)

type stubSupervisor struct {
	decision core.RoutingDecision
	err      error
}

func (s *stubSupervisor) Classify(ctx context.Context, prompt string) (core.RoutingDecision, error) {
	return s.decision, s.err
}

type stubSearch struct {
	results []core.DocumentationResult
	err     error
	calls   int
}

func (s *stubSearch) Search(ctx context.Context, query string, frameworks []string, topK int, minScore float64) ([]core.DocumentationResult, error) {
	s.calls++
	return s.results, s.err
}

type stubCodeGen struct {
	results []core.CodeGenerationResult // consumed in order, last one repeats
	calls   int
	err     error
}

func (s *stubCodeGen) Generate(ctx context.Context, prompt string, docs []core.DocumentationResult, framework string) (*core.CodeGenerationResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	idx := s.calls
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	s.calls++
	r := s.results[idx]
	return &r, nil
}

func TestEngineSearchOnly(t *testing.T) {
	sup := &stubSupervisor{decision: core.RoutingSearchOnly}
	search := &stubSearch{results: []core.DocumentationResult{{Content: "docs", Score: 0.9, Source: "react.dev", Framework: "react"}}}
	gen := &stubCodeGen{results: []core.CodeGenerationResult{{Code: "ignored", SyntaxValid: true}}}

	engine := NewEngine(sup, search, gen, nil)
	state := &core.WorkflowState{Prompt: "how do hooks work", MaxIterations: 3}

	result, err := engine.Execute(context.Background(), state)
	if err != nil {
		t.Fatalf("Execute must never return an error, got %v", err)
	}
	if !strings.Contains(result.Text, "react.dev") {
		t.Fatalf("expected search-only result to contain the source, got %q", result.Text)
	}
	if search.calls != 1 {
		t.Fatalf("expected search to run once, got %d", search.calls)
	}
	if result.WorkflowIterations != 1 {
		t.Fatalf("expected validate to run once even for SEARCH_ONLY, got %d iterations", result.WorkflowIterations)
	}
}

func TestEngineCodeOnly(t *testing.T) {
	sup := &stubSupervisor{decision: core.RoutingCodeOnly}
	search := &stubSearch{}
	gen := &stubCodeGen{results: []core.CodeGenerationResult{{Code: "func main() {}", Language: "go", SyntaxValid: true}}}

	engine := NewEngine(sup, search, gen, nil)
	state := &core.WorkflowState{Prompt: "write a go hello world", MaxIterations: 3}

	result, err := engine.Execute(context.Background(), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if search.calls != 0 {
		t.Fatalf("CODE_ONLY must never invoke search, got %d calls", search.calls)
	}
	if !strings.Contains(result.Text, "func main()") {
		t.Fatalf("expected generated code in result, got %q", result.Text)
	}
}

func TestEngineSearchThenCodeLoopsOnInvalidSyntax(t *testing.T) {
	sup := &stubSupervisor{decision: core.RoutingSearchThenCode}
	search := &stubSearch{results: []core.DocumentationResult{{Content: "x", Score: 0.8}}}
	gen := &stubCodeGen{results: []core.CodeGenerationResult{
		{Code: "bad(", SyntaxValid: false, ValidationErrors: []string{"unclosed paren"}},
		{Code: "good()", SyntaxValid: true},
	}}

	engine := NewEngine(sup, search, gen, nil)
	state := &core.WorkflowState{Prompt: "build me a function", MaxIterations: 3}

	result, err := engine.Execute(context.Background(), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if search.calls != 2 {
		t.Fatalf("expected search to run again on the loopback, got %d calls", search.calls)
	}
	if !strings.Contains(result.Text, "good()") {
		t.Fatalf("expected the corrected code in the final result, got %q", result.Text)
	}
	if result.WorkflowIterations != 2 {
		t.Fatalf("expected iteration_count to reach 2, got %d", result.WorkflowIterations)
	}
}

func TestEngineStopsAtMaxIterations(t *testing.T) {
	sup := &stubSupervisor{decision: core.RoutingSearchThenCode}
	search := &stubSearch{results: []core.DocumentationResult{{Content: "x", Score: 0.8}}}
	gen := &stubCodeGen{results: []core.CodeGenerationResult{
		{Code: "bad(", SyntaxValid: false, ValidationErrors: []string{"unclosed paren"}},
	}}

	engine := NewEngine(sup, search, gen, nil)
	state := &core.WorkflowState{Prompt: "build me a function", MaxIterations: 2}

	result, err := engine.Execute(context.Background(), state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.WorkflowIterations > state.MaxIterations {
		t.Fatalf("iteration_count %d exceeded max_iterations %d", result.WorkflowIterations, state.MaxIterations)
	}
	if strings.Contains(result.Text, "syntax_valid: true") {
		t.Fatalf("expected the last (invalid) attempt to be surfaced, got %q", result.Text)
	}
}

func TestEngineMissingPromptRecordsErrorWithoutPanicking(t *testing.T) {
	sup := &stubSupervisor{decision: core.RoutingSearchOnly}
	search := &stubSearch{}
	gen := &stubCodeGen{results: []core.CodeGenerationResult{{SyntaxValid: true}}}

	engine := NewEngine(sup, search, gen, nil)
	state := &core.WorkflowState{Prompt: "", MaxIterations: 3}

	result, err := engine.Execute(context.Background(), state)
	if err != nil {
		t.Fatalf("Execute must never raise out, got %v", err)
	}
	if len(state.Errors) == 0 {
		t.Fatalf("expected missing-prompt error to be recorded on state.Errors")
	}
	_ = result
}

func TestEngineSupervisorFailurePropagatesAsRecordedError(t *testing.T) {
	sup := &stubSupervisor{err: errors.New("llm unavailable")}
	search := &stubSearch{}
	gen := &stubCodeGen{results: []core.CodeGenerationResult{{SyntaxValid: true}}}

	engine := NewEngine(sup, search, gen, nil)
	state := &core.WorkflowState{Prompt: "anything", MaxIterations: 3}

	result, err := engine.Execute(context.Background(), state)
	if err != nil {
		t.Fatalf("Execute must never raise out, got %v", err)
	}
	if len(state.Errors) == 0 {
		t.Fatalf("expected supervisor failure recorded in state.Errors")
	}
	if !strings.Contains(result.Text, "failed to produce output") {
		t.Fatalf("expected error-summary synthesis when no decision was made, got %q", result.Text)
	}
}
