package docsearch

import (
	"context"
	"errors"
	"testing"

	"github.com/forgemind/forgemind/core"
	"github.com/forgemind/forgemind/resilience"
)

type fakeEmbedder struct {
	embedding core.Embedding
	err       error
	calls     int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) (core.Embedding, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.embedding, nil
}

type fakeVectorStore struct {
	// resultsByCall is consumed in order across calls; the last entry repeats.
	resultsByCall [][]core.DocumentationResult
	calls         int
	err           error
	lastFrameworks []string
	lastTopK      int
	lastMinScore  float64
}

func (f *fakeVectorStore) SearchDocumentation(ctx context.Context, queryEmbedding core.Embedding, frameworks []string, topK int, minScore float64) ([]core.DocumentationResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.lastFrameworks = frameworks
	f.lastTopK = topK
	f.lastMinScore = minScore
	idx := f.calls
	if idx >= len(f.resultsByCall) {
		idx = len(f.resultsByCall) - 1
	}
	f.calls++
	if idx < 0 {
		return nil, nil
	}
	return f.resultsByCall[idx], nil
}

type fakeReranker struct {
	resultsByCall [][]core.DocumentationResult
	calls         int
	err           error
}

func (f *fakeReranker) Rerank(ctx context.Context, query string, results []core.DocumentationResult, topK int) ([]core.DocumentationResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	idx := f.calls
	if idx >= len(f.resultsByCall) {
		idx = len(f.resultsByCall) - 1
	}
	f.calls++
	return f.resultsByCall[idx], nil
}

func TestSearchReturnsRerankedTruncatedResults(t *testing.T) {
	embedder := &fakeEmbedder{embedding: core.Embedding{0.1, 0.2}}
	vs := &fakeVectorStore{resultsByCall: [][]core.DocumentationResult{
		{{Content: "a", Score: 0.9, Framework: "react"}},
	}}
	rr := &fakeReranker{resultsByCall: [][]core.DocumentationResult{
		{{Content: "a", Score: 0.95, Framework: "react"}},
	}}
	tc := resilience.NewInMemoryToolCache()

	agent := New(embedder, vs, rr, tc, nil)
	results, err := agent.Search(context.Background(), "how do hooks work", nil, 5, 0.7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 1 || results[0].Score != 0.95 {
		t.Fatalf("unexpected results: %+v", results)
	}
	if vs.lastTopK != 10 {
		t.Fatalf("expected top_k*2=10 sent to vector search, got %d", vs.lastTopK)
	}
}

func TestSearchReturnsEmptyOnNoResultsAndCachesEmpty(t *testing.T) {
	embedder := &fakeEmbedder{embedding: core.Embedding{0.1}}
	vs := &fakeVectorStore{resultsByCall: [][]core.DocumentationResult{{}}}
	rr := &fakeReranker{}
	tc := resilience.NewInMemoryToolCache()

	agent := New(embedder, vs, rr, tc, nil)
	results, err := agent.Search(context.Background(), "obscure query", nil, 5, 0.7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty results, got %+v", results)
	}

	// Second call should hit the tool cache rather than call the vector store again.
	results2, err := agent.Search(context.Background(), "obscure query", nil, 5, 0.7)
	if err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	if len(results2) != 0 {
		t.Fatalf("expected cached empty result, got %+v", results2)
	}
	if vs.calls != 1 {
		t.Fatalf("expected vector store to be called once due to tool-cache hit, got %d calls", vs.calls)
	}
}

func TestSearchToolCacheHitSkipsVectorStore(t *testing.T) {
	embedder := &fakeEmbedder{embedding: core.Embedding{0.1}}
	vs := &fakeVectorStore{resultsByCall: [][]core.DocumentationResult{
		{{Content: "doc", Score: 0.8, Framework: "vue"}},
	}}
	rr := &fakeReranker{resultsByCall: [][]core.DocumentationResult{
		{{Content: "doc", Score: 0.9, Framework: "vue"}},
	}}
	tc := resilience.NewInMemoryToolCache()
	agent := New(embedder, vs, rr, tc, nil)

	_, err := agent.Search(context.Background(), "vue components", nil, 5, 0.7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	callsAfterFirst := vs.calls

	_, err = agent.Search(context.Background(), "vue components", nil, 5, 0.7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vs.calls != callsAfterFirst {
		t.Fatalf("expected tool-cache hit to avoid a second vector search, calls went from %d to %d", callsAfterFirst, vs.calls)
	}
}

func TestSearchSelfCorrectionAdoptsImprovedResult(t *testing.T) {
	embedder := &fakeEmbedder{embedding: core.Embedding{0.1}}
	vs := &fakeVectorStore{resultsByCall: [][]core.DocumentationResult{
		{{Content: "weak match", Score: 0.55, Framework: "nestjs"}},
		{{Content: "strong match", Score: 0.82, Framework: "nestjs"}},
	}}
	rr := &fakeReranker{resultsByCall: [][]core.DocumentationResult{
		{{Content: "weak match", Score: 0.55, Framework: "nestjs"}},
		{{Content: "strong match", Score: 0.82, Framework: "nestjs"}},
	}}
	tc := resilience.NewInMemoryToolCache()
	agent := New(embedder, vs, rr, tc, nil)

	results, err := agent.Search(context.Background(), "how do controllers work", nil, 5, 0.7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) == 0 || results[0].Score != 0.82 {
		t.Fatalf("expected self-correction to adopt the improved result, got %+v", results)
	}
	if results[0].Framework != "nestjs" {
		t.Fatalf("expected the originally-searched framework to persist: %+v", results)
	}
	if vs.lastMinScore != 0.5 || vs.lastTopK != 20 {
		t.Fatalf("expected self-correction search params top_k=20 min_score=0.5, got top_k=%d min_score=%v", vs.lastTopK, vs.lastMinScore)
	}
}

func TestSearchSelfCorrectionKeepsOriginalWhenNotImproved(t *testing.T) {
	embedder := &fakeEmbedder{embedding: core.Embedding{0.1}}
	vs := &fakeVectorStore{resultsByCall: [][]core.DocumentationResult{
		{{Content: "ok match", Score: 0.6, Framework: "django"}},
		{{Content: "worse match", Score: 0.4, Framework: "django"}},
	}}
	rr := &fakeReranker{resultsByCall: [][]core.DocumentationResult{
		{{Content: "ok match", Score: 0.6, Framework: "django"}},
		{{Content: "worse match", Score: 0.4, Framework: "django"}},
	}}
	tc := resilience.NewInMemoryToolCache()
	agent := New(embedder, vs, rr, tc, nil)

	results, err := agent.Search(context.Background(), "django views", nil, 5, 0.7)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if results[0].Score != 0.6 {
		t.Fatalf("expected to keep the original result when self-correction didn't improve, got %+v", results)
	}
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	agent := New(&fakeEmbedder{}, &fakeVectorStore{}, &fakeReranker{}, resilience.NewInMemoryToolCache(), nil)
	_, err := agent.Search(context.Background(), "   ", nil, 5, 0.7)
	if !core.IsInvalidInput(err) {
		t.Fatalf("expected invalid_input, got %v", err)
	}
}

func TestSearchPropagatesEmbeddingFailure(t *testing.T) {
	embedder := &fakeEmbedder{err: errors.New("embedding backend down")}
	agent := New(embedder, &fakeVectorStore{}, &fakeReranker{}, resilience.NewInMemoryToolCache(), nil)
	_, err := agent.Search(context.Background(), "a query", nil, 5, 0.7)
	if err == nil {
		t.Fatalf("expected embedding failure to propagate")
	}
}
