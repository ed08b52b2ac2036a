// Package rerank implements the cross-encoder re-ranker contract from
// spec.md §4.4: a pure, in-process rescoring of (query, doc) pairs. A real
// cross-encoder model is out of scope to train or host (see spec.md
// Non-goals); Scorer is the pluggable seam a real model client would sit
// behind.
package rerank

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/forgemind/forgemind/core"
)

// Scorer rates a batch of (query, passage) pairs, returning one raw score
// per pair in the same order. A real deployment swaps this for a client
// that calls a hosted cross-encoder model.
type Scorer interface {
	ScoreBatch(ctx context.Context, query string, passages []string) ([]float64, error)
}

// Reranker rescales Scorer output with sigmoid and re-sorts results.
type Reranker struct {
	scorer Scorer
	logger core.Logger
}

// New builds a Reranker over scorer.
func New(scorer Scorer, logger core.Logger) *Reranker {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Reranker{scorer: scorer, logger: core.WithComponent(logger, "rerank")}
}

// Rerank builds (query, doc.content) pairs, scores them, replaces each
// result's score with sigmoid(raw_score), sorts descending, and truncates
// to topK (0 means "keep all"). Empty query or empty results is a caller
// error. The set of result content strings is preserved; only score and
// order may change. The returned scores are post-sigmoid values with no
// re-calibration; callers that compare them against a threshold (the
// docsearch self-correction threshold) use them as-is.
func (r *Reranker) Rerank(ctx context.Context, query string, results []core.DocumentationResult, topK int) ([]core.DocumentationResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, core.NewFrameworkError("rerank.Rerank", "invalid_input", core.ErrInvalidInput)
	}
	if len(results) == 0 {
		return nil, core.NewFrameworkError("rerank.Rerank", "invalid_input", core.ErrInvalidInput)
	}

	passages := make([]string, len(results))
	for i, res := range results {
		passages[i] = res.Content
	}

	raw, err := r.scorer.ScoreBatch(ctx, query, passages)
	if err != nil {
		return nil, err
	}
	if len(raw) != len(results) {
		return nil, core.NewFrameworkError("rerank.Rerank", "internal",
			core.ErrInternal)
	}

	rescored := make([]core.DocumentationResult, len(results))
	for i, res := range results {
		rescored[i] = res
		rescored[i].Score = sigmoid(raw[i])
	}

	sort.SliceStable(rescored, func(i, j int) bool {
		return rescored[i].Score > rescored[j].Score
	})

	if topK > 0 && topK < len(rescored) {
		rescored = rescored[:topK]
	}
	return rescored, nil
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// HeuristicScorer is a deterministic, network-free stand-in for a trained
// cross-encoder: it scores (query, passage) pairs by lexical token overlap.
// It exists so the Rerank contract, sigmoid normalization, and truncation
// are exercised without a model dependency (training one is a spec
// Non-goal); a real client implements the same Scorer interface.
type HeuristicScorer struct{}

// NewHeuristicScorer builds the lexical-overlap stand-in scorer.
func NewHeuristicScorer() *HeuristicScorer {
	return &HeuristicScorer{}
}

// ScoreBatch implements Scorer.
func (h *HeuristicScorer) ScoreBatch(ctx context.Context, query string, passages []string) ([]float64, error) {
	queryTokens := tokenSet(query)
	scores := make([]float64, len(passages))
	for i, p := range passages {
		scores[i] = overlapScore(queryTokens, tokenSet(p))
	}
	return scores, nil
}

func tokenSet(s string) map[string]bool {
	tokens := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

// overlapScore returns a raw (pre-sigmoid) score in roughly [-4, 4]: the
// fraction of query tokens present in the passage, linearly rescaled so a
// perfect match saturates sigmoid toward 1 and no overlap saturates toward 0.
func overlapScore(query, passage map[string]bool) float64 {
	if len(query) == 0 {
		return 0
	}
	matches := 0
	for t := range query {
		if passage[t] {
			matches++
		}
	}
	fraction := float64(matches) / float64(len(query))
	return (fraction * 8) - 4
}
