// Package docsearch implements the documentation search agent from
// spec.md §4.7: tool-cache lookup, embed, vector search, re-rank, and a
// single self-correction pass when initial retrieval confidence is low.
package docsearch

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/forgemind/forgemind/core"
	"github.com/forgemind/forgemind/resilience"
)

// DefaultSelfCorrectionThreshold is the top-score floor below which the
// agent attempts one self-correction pass.
const DefaultSelfCorrectionThreshold = 0.7

// selfCorrectionSuffix is appended to the query when the top-3 initial
// results name no framework to extract.
const selfCorrectionSuffix = " example code documentation"

const toolName = "documentation_search"

// Embedder is the subset of embedding.Provider the agent depends on.
type Embedder interface {
	Embed(ctx context.Context, text string) (core.Embedding, error)
}

// VectorSearcher is the subset of vectorstore.Client the agent depends on.
type VectorSearcher interface {
	SearchDocumentation(ctx context.Context, queryEmbedding core.Embedding, frameworks []string, topK int, minScore float64) ([]core.DocumentationResult, error)
}

// Reranker is the subset of rerank.Reranker the agent depends on.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []core.DocumentationResult, topK int) ([]core.DocumentationResult, error)
}

// Agent implements workflow.DocSearchAgent.
type Agent struct {
	embedder               Embedder
	vectorStore            VectorSearcher
	reranker               Reranker
	toolCache              resilience.ToolCache
	selfCorrectionThreshold float64
	logger                 core.Logger
}

// New wires the documentation search agent's collaborators.
func New(embedder Embedder, vectorStore VectorSearcher, reranker Reranker, toolCache resilience.ToolCache, logger core.Logger) *Agent {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Agent{
		embedder:                embedder,
		vectorStore:             vectorStore,
		reranker:                reranker,
		toolCache:               toolCache,
		selfCorrectionThreshold: DefaultSelfCorrectionThreshold,
		logger:                  core.WithComponent(logger, "agent/docsearch"),
	}
}

// Search implements workflow.DocSearchAgent.
func (a *Agent) Search(ctx context.Context, query string, frameworks []string, topK int, minScore float64) ([]core.DocumentationResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, core.NewFrameworkError("agent.docsearch.Search", "invalid_input", core.ErrInvalidInput)
	}
	if topK <= 0 {
		topK = 10
	}

	params := cacheParams(query, frameworks, topK, minScore)
	if a.toolCache != nil {
		if cached, ok := a.toolCache.Get(ctx, toolName, params); ok {
			if results, err := decodeResults(cached); err == nil {
				a.logger.DebugWithContext(ctx, "docsearch tool-cache hit", map[string]interface{}{"query": query})
				return results, nil
			}
		}
	}

	queryEmbedding, err := a.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	initial, err := a.vectorStore.SearchDocumentation(ctx, queryEmbedding, frameworks, topK*2, minScore)
	if err != nil {
		return nil, err
	}

	if len(initial) == 0 {
		a.storeResult(ctx, params, nil)
		return []core.DocumentationResult{}, nil
	}

	reranked, err := a.reranker.Rerank(ctx, query, initial, topK)
	if err != nil {
		a.logger.WarnWithContext(ctx, "docsearch rerank failed, using raw similarity order", map[string]interface{}{"error": err.Error()})
		reranked = truncate(initial, topK)
	}

	final := a.maybeSelfCorrect(ctx, query, frameworks, topK, reranked)

	a.storeResult(ctx, params, final)
	return final, nil
}

// maybeSelfCorrect runs at most one self-correction pass per invocation
// when the top result's score is below the configured threshold, per
// spec.md §4.7 step 6. Cache and re-rank errors during self-correction
// degrade gracefully: the original list is kept.
func (a *Agent) maybeSelfCorrect(ctx context.Context, query string, frameworks []string, topK int, initial []core.DocumentationResult) []core.DocumentationResult {
	if len(initial) == 0 || initial[0].Score >= a.selfCorrectionThreshold {
		return initial
	}

	correctedQuery := buildCorrectedQuery(query, initial)

	extractedFrameworks := extractFrameworks(initial)
	searchFrameworks := frameworks
	if len(extractedFrameworks) > 0 {
		searchFrameworks = extractedFrameworks
	}

	correctedEmbedding, err := a.embedder.Embed(ctx, correctedQuery)
	if err != nil {
		a.logger.WarnWithContext(ctx, "docsearch self-correction embed failed, keeping original results", map[string]interface{}{"error": err.Error()})
		return initial
	}

	correctedRaw, err := a.vectorStore.SearchDocumentation(ctx, correctedEmbedding, searchFrameworks, 20, 0.5)
	if err != nil || len(correctedRaw) == 0 {
		return initial
	}

	correctedResults, err := a.reranker.Rerank(ctx, query, correctedRaw, topK)
	if err != nil || len(correctedResults) == 0 {
		return initial
	}

	if correctedResults[0].Score > initial[0].Score {
		a.logger.InfoWithContext(ctx, "docsearch self-correction improved top score", map[string]interface{}{
			"original_score": initial[0].Score, "corrected_score": correctedResults[0].Score,
		})
		return correctedResults
	}
	return initial
}

// buildCorrectedQuery appends the frameworks present in the top-3 initial
// results to query, or the literal fallback suffix when none are found.
func buildCorrectedQuery(query string, initial []core.DocumentationResult) string {
	frameworks := extractFrameworks(initial)
	if len(frameworks) == 0 {
		return query + selfCorrectionSuffix
	}
	return query + " " + strings.Join(frameworks, " ")
}

// extractFrameworks collects the distinct, non-empty frameworks named in
// the top-3 results, preserving first-seen order.
func extractFrameworks(results []core.DocumentationResult) []string {
	limit := len(results)
	if limit > 3 {
		limit = 3
	}
	seen := make(map[string]bool)
	var frameworks []string
	for _, r := range results[:limit] {
		if r.Framework == "" || seen[r.Framework] {
			continue
		}
		seen[r.Framework] = true
		frameworks = append(frameworks, r.Framework)
	}
	return frameworks
}

func truncate(results []core.DocumentationResult, topK int) []core.DocumentationResult {
	if topK > 0 && topK < len(results) {
		return results[:topK]
	}
	return results
}

func (a *Agent) storeResult(ctx context.Context, params map[string]interface{}, results []core.DocumentationResult) {
	if a.toolCache == nil {
		return
	}
	encoded, err := json.Marshal(results)
	if err != nil {
		return
	}
	a.toolCache.Set(ctx, toolName, params, string(encoded), 300*time.Second)
}

func cacheParams(query string, frameworks []string, topK int, minScore float64) map[string]interface{} {
	return map[string]interface{}{
		"query":      query,
		"frameworks": frameworks,
		"top_k":      topK,
		"min_score":  minScore,
	}
}

func decodeResults(raw string) ([]core.DocumentationResult, error) {
	var results []core.DocumentationResult
	if err := json.Unmarshal([]byte(raw), &results); err != nil {
		return nil, err
	}
	if results == nil {
		results = []core.DocumentationResult{}
	}
	return results, nil
}
