package core

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxPromptLength is the upper bound on a validated prompt, in characters.
const MaxPromptLength = 10000

// ValidatePrompt enforces the Prompt invariant from spec.md §3: 1-10,000
// UTF-8 characters, not empty or whitespace-only.
func ValidatePrompt(prompt string) error {
	trimmed := strings.TrimSpace(prompt)
	if trimmed == "" {
		return NewFrameworkError("core.ValidatePrompt", "invalid_input", ErrInvalidInput)
	}
	if utf8.RuneCountInString(prompt) > MaxPromptLength {
		return NewFrameworkError("core.ValidatePrompt", "invalid_input", ErrInvalidInput)
	}
	return nil
}

// Embedding is a fixed-length ordered vector. Every embedding in the cache
// and documentation stores must have length exactly D for the deployment.
type Embedding []float32

// ValidateDimension reports ErrDimensionMismatch if e does not have length d.
func (e Embedding) ValidateDimension(d int) error {
	if len(e) != d {
		return NewFrameworkError("core.Embedding.ValidateDimension", "dimension_mismatch", ErrDimensionMismatch)
	}
	return nil
}

// DocumentationChunk is a stored, read-only (to the core) documentation
// record. Identity is ID; unique per (Framework, Source). Created by
// out-of-scope ingestion, never mutated by the core.
type DocumentationChunk struct {
	ID        string
	Content   string
	Embedding Embedding
	Source    string
	Framework string
	Section   string
	Version   string
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DocumentationResult is the in-flight, ranked view of a documentation
// match. Score is a normalized relevance in [0,1]: initially cosine
// similarity, possibly replaced by the re-ranker's score.
type DocumentationResult struct {
	Content   string
	Score     float64
	Metadata  map[string]string
	Source    string
	Framework string
}

// RoutingDecision is the supervisor agent's closed-set classification.
type RoutingDecision string

const (
	RoutingSearchOnly     RoutingDecision = "SEARCH_ONLY"
	RoutingCodeOnly       RoutingDecision = "CODE_ONLY"
	RoutingSearchThenCode RoutingDecision = "SEARCH_THEN_CODE"
)

// IsValid reports whether d is one of the three closed-set values.
func (d RoutingDecision) IsValid() bool {
	switch d {
	case RoutingSearchOnly, RoutingCodeOnly, RoutingSearchThenCode:
		return true
	default:
		return false
	}
}

// CodeGenerationResult is the code generation agent's output.
type CodeGenerationResult struct {
	Code                 string
	Language             string
	Framework            string
	SyntaxValid          bool
	ValidationErrors     []string
	TokensUsed           int
	DocumentationSources []string
}

// CachedResponse is a cache entry keyed by prompt (exact) and embedding
// (semantic). Inserted on workflow success, read by future lookups,
// evicted by TTL.
type CachedResponse struct {
	Prompt     string
	Response   string
	Embedding  Embedding
	CachedAt   time.Time
	TTLSeconds int
}

// WorkflowState is owned exclusively by the request that creates it and
// discarded afterward; never shared across requests or goroutines.
type WorkflowState struct {
	Prompt               string
	RoutingDecision      RoutingDecision
	DocumentationResults []DocumentationResult
	GeneratedCode        string
	CodeGenResult        *CodeGenerationResult
	Framework            string
	IterationCount       int
	MaxIterations        int
	TraceID              string
	Errors               []string
}

// AppendError records a node-level failure without aborting the workflow.
func (s *WorkflowState) AppendError(err error) {
	if err == nil {
		return
	}
	s.Errors = append(s.Errors, err.Error())
}

// CircuitState is one of CLOSED, OPEN, HALF_OPEN.
type CircuitState int32

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreakerState is a point-in-time read of one breaker, one per
// protected dependency.
type CircuitBreakerState struct {
	State               CircuitState
	ConsecutiveFailures int
	LastFailureTime     time.Time
}

// ToolCacheEntry is a cached tool invocation result.
type ToolCacheEntry struct {
	Key        string
	Result     string // JSON-encoded
	CachedAt   time.Time
	TTLSeconds int
}

// AgentResponse is the single entry point's return value.
type AgentResponse struct {
	Result   string
	Metadata ResponseMetadata
}

// ResponseMetadata accompanies every AgentResponse.
type ResponseMetadata struct {
	TraceID           string
	CacheHit          bool
	ProcessingTimeMS  int64
	TokensUsed        int
	AgentsInvoked     []string
	WorkflowIterations int
}
