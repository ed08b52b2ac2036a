// Package workflow implements the cyclic supervisor/search/code_gen/validate
// graph described in spec.md §4.10: an enum of node identifiers plus a pure
// transition function over WorkflowState, rather than a generic YAML-driven
// DAG. Bounded by state.MaxIterations so a misbehaving loop cannot run
// forever.
package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/forgemind/forgemind/core"
)

// NodeID identifies one of the four nodes in the graph, or End.
type NodeID string

const (
	NodeSupervisor NodeID = "supervisor"
	NodeSearch     NodeID = "search"
	NodeCodeGen    NodeID = "code_gen"
	NodeValidate   NodeID = "validate"
	NodeEnd        NodeID = "end"
)

// DefaultMaxIterations is used when a WorkflowState arrives without one set.
const DefaultMaxIterations = 3

// SupervisorAgent classifies a prompt into a RoutingDecision (C6).
type SupervisorAgent interface {
	Classify(ctx context.Context, prompt string) (core.RoutingDecision, error)
}

// DocSearchAgent retrieves ranked documentation results (C7).
type DocSearchAgent interface {
	Search(ctx context.Context, query string, frameworks []string, topK int, minScore float64) ([]core.DocumentationResult, error)
}

// CodeGenAgent generates and validates code (C8).
type CodeGenAgent interface {
	Generate(ctx context.Context, prompt string, docs []core.DocumentationResult, framework string) (*core.CodeGenerationResult, error)
}

// Engine runs the cyclic graph over one WorkflowState per request. It never
// raises out of Execute: node-level failures are appended to state.Errors
// and the graph continues or terminates per the transition function.
type Engine struct {
	supervisor SupervisorAgent
	search     DocSearchAgent
	codeGen    CodeGenAgent
	logger     core.Logger
}

// NewEngine wires the three per-node collaborators.
func NewEngine(supervisor SupervisorAgent, search DocSearchAgent, codeGen CodeGenAgent, logger core.Logger) *Engine {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Engine{supervisor: supervisor, search: search, codeGen: codeGen, logger: logger}
}

// Result is the synthesized output of one Execute call.
type Result struct {
	Text               string
	TokensUsed         int
	AgentsInvoked      []string
	WorkflowIterations int
}

// Execute runs state through the graph starting at supervisor until a
// transition yields End, then synthesizes the final Result.
func (e *Engine) Execute(ctx context.Context, state *core.WorkflowState) (*Result, error) {
	if state.MaxIterations <= 0 {
		state.MaxIterations = DefaultMaxIterations
	}

	invoked := make(map[string]bool)
	node := NodeSupervisor

	for node != NodeEnd {
		select {
		case <-ctx.Done():
			state.AppendError(core.NewFrameworkError("workflow.Execute", "timeout", ctx.Err()))
			node = NodeEnd
			continue
		default:
		}

		switch node {
		case NodeSupervisor:
			e.runSupervisor(ctx, state)
			invoked["supervisor"] = true
		case NodeSearch:
			e.runSearch(ctx, state)
			invoked["documentation_search"] = true
		case NodeCodeGen:
			e.runCodeGen(ctx, state)
			if state.RoutingDecision != core.RoutingSearchOnly {
				invoked["code_gen"] = true
			}
		case NodeValidate:
			e.runValidate(state)
		}

		node = next(node, state)
	}

	return e.synthesize(state, invoked), nil
}

// next is the pure transition function: node -> NodeID | End, driven only
// by state (spec.md §4.10 edges).
func next(node NodeID, state *core.WorkflowState) NodeID {
	switch node {
	case NodeSupervisor:
		switch state.RoutingDecision {
		case core.RoutingSearchOnly, core.RoutingSearchThenCode:
			return NodeSearch
		case core.RoutingCodeOnly:
			return NodeCodeGen
		default:
			return NodeEnd
		}
	case NodeSearch:
		return NodeCodeGen
	case NodeCodeGen:
		return NodeValidate
	case NodeValidate:
		if state.RoutingDecision != core.RoutingSearchOnly &&
			state.CodeGenResult != nil && !state.CodeGenResult.SyntaxValid &&
			state.IterationCount < state.MaxIterations {
			return NodeSearch
		}
		return NodeEnd
	default:
		return NodeEnd
	}
}

func (e *Engine) runSupervisor(ctx context.Context, state *core.WorkflowState) {
	if strings.TrimSpace(state.Prompt) == "" {
		state.AppendError(core.NewFrameworkError("workflow.supervisor", "invalid_input", core.ErrInvalidInput))
		return
	}
	decision, err := e.supervisor.Classify(ctx, state.Prompt)
	if err != nil {
		state.AppendError(err)
		return
	}
	state.RoutingDecision = decision
}

func (e *Engine) runSearch(ctx context.Context, state *core.WorkflowState) {
	if strings.TrimSpace(state.Prompt) == "" {
		state.AppendError(core.NewFrameworkError("workflow.search", "invalid_input", core.ErrInvalidInput))
		state.DocumentationResults = []core.DocumentationResult{}
		return
	}
	var frameworks []string
	if state.Framework != "" {
		frameworks = []string{state.Framework}
	}
	results, err := e.search.Search(ctx, state.Prompt, frameworks, 10, 0.7)
	if err != nil {
		state.AppendError(err)
		return
	}
	state.DocumentationResults = results
}

func (e *Engine) runCodeGen(ctx context.Context, state *core.WorkflowState) {
	if strings.TrimSpace(state.Prompt) == "" {
		state.AppendError(core.NewFrameworkError("workflow.code_gen", "invalid_input", core.ErrInvalidInput))
		state.GeneratedCode = ""
		return
	}
	result, err := e.codeGen.Generate(ctx, state.Prompt, state.DocumentationResults, state.Framework)
	if err != nil {
		state.AppendError(err)
		return
	}
	if result == nil {
		return
	}
	state.CodeGenResult = result
	state.GeneratedCode = result.Code
}

func (e *Engine) runValidate(state *core.WorkflowState) {
	state.IterationCount++
	// code_gen either ran this pass or didn't; nothing to re-check when it
	// produced no result, the transition function just falls through to End.
}

func (e *Engine) synthesize(state *core.WorkflowState, invoked map[string]bool) *Result {
	agents := make([]string, 0, len(invoked))
	for name := range invoked {
		agents = append(agents, name)
	}

	if state.RoutingDecision == core.RoutingSearchOnly {
		return &Result{
			Text:               formatSearchResults(state.DocumentationResults),
			TokensUsed:         0,
			AgentsInvoked:      agents,
			WorkflowIterations: state.IterationCount,
		}
	}

	tokens := 0
	if state.CodeGenResult != nil {
		tokens = state.CodeGenResult.TokensUsed
	}

	if state.CodeGenResult != nil {
		return &Result{
			Text:               formatCodeResult(state.CodeGenResult, state.DocumentationResults),
			TokensUsed:         tokens,
			AgentsInvoked:      agents,
			WorkflowIterations: state.IterationCount,
		}
	}

	return &Result{
		Text:               formatErrorSummary(state.Errors),
		TokensUsed:         tokens,
		AgentsInvoked:      agents,
		WorkflowIterations: state.IterationCount,
	}
}

func formatSearchResults(results []core.DocumentationResult) string {
	if len(results) == 0 {
		return "No documentation results found."
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "%d. [%s] %s (score=%.2f)\n%s\n\n", i+1, r.Framework, r.Source, r.Score, excerpt(r.Content, 280))
	}
	return strings.TrimSpace(b.String())
}

func formatCodeResult(result *core.CodeGenerationResult, docs []core.DocumentationResult) string {
	var b strings.Builder
	b.WriteString(result.Code)
	b.WriteString("\n\n---\n")
	fmt.Fprintf(&b, "language: %s\n", result.Language)
	if result.Framework != "" {
		fmt.Fprintf(&b, "framework: %s\n", result.Framework)
	}
	fmt.Fprintf(&b, "syntax_valid: %v\n", result.SyntaxValid)
	if len(result.DocumentationSources) > 0 {
		fmt.Fprintf(&b, "sources: %s\n", strings.Join(result.DocumentationSources, ", "))
	}
	return b.String()
}

func formatErrorSummary(errs []string) string {
	if len(errs) == 0 {
		return "The workflow produced no output and recorded no errors."
	}
	return "The workflow failed to produce output:\n- " + strings.Join(errs, "\n- ")
}

func excerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
