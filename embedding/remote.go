package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/forgemind/forgemind/core"
	"github.com/forgemind/forgemind/resilience"
)

// RemoteProvider calls an OpenAI-shaped embeddings endpoint. It fails with
// rate-limit or quota errors under load, per spec.md §4.2, and every call
// is wrapped in the LLM retry preset.
type RemoteProvider struct {
	api       *openai.Client
	model     openai.EmbeddingModel
	dimension int
	retry     resilience.RetryPolicy
	logger    core.Logger
}

// NewRemoteProvider builds a RemoteProvider for the given model and dimension D.
func NewRemoteProvider(apiKey string, model openai.EmbeddingModel, dimension int, logger core.Logger) *RemoteProvider {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &RemoteProvider{
		api:       openai.NewClient(apiKey),
		model:     model,
		dimension: dimension,
		retry:     resilience.LLMRetryPolicy(),
		logger:    logger,
	}
}

// Embed implements Provider.
func (p *RemoteProvider) Embed(ctx context.Context, text string) (core.Embedding, error) {
	return validateSingle(ctx, text, p.dimension, p.embedOnce)
}

func (p *RemoteProvider) embedOnce(ctx context.Context, text string) (core.Embedding, error) {
	var vec core.Embedding
	err := resilience.Retry(ctx, p.retry, func() error {
		resp, err := p.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: p.model,
		})
		if err != nil {
			return classifyRemoteError(err)
		}
		if len(resp.Data) == 0 {
			return core.NewFrameworkError("embedding.Remote.Embed", "llm_unavailable",
				fmt.Errorf("%w: empty embedding response", core.ErrLLMUnavailable))
		}
		vec = toEmbedding(resp.Data[0].Embedding)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedBatch implements Provider. Empty entries are skipped in the request
// and map back to a nil embedding at their original index.
func (p *RemoteProvider) EmbedBatch(ctx context.Context, texts []string) ([]core.Embedding, error) {
	if len(texts) == 0 {
		return nil, core.NewFrameworkError("embedding.Remote.EmbedBatch", "invalid_input", core.ErrInvalidInput)
	}

	nonEmpty := make([]string, 0, len(texts))
	indices := make([]int, 0, len(texts))
	for i, t := range texts {
		if strings.TrimSpace(t) != "" {
			nonEmpty = append(nonEmpty, t)
			indices = append(indices, i)
		}
	}

	results := make([]core.Embedding, len(texts))
	if len(nonEmpty) == 0 {
		return results, nil
	}

	err := resilience.Retry(ctx, p.retry, func() error {
		resp, err := p.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: nonEmpty,
			Model: p.model,
		})
		if err != nil {
			return classifyRemoteError(err)
		}
		if len(resp.Data) != len(nonEmpty) {
			return core.NewFrameworkError("embedding.Remote.EmbedBatch", "llm_unavailable",
				fmt.Errorf("%w: response count mismatch", core.ErrLLMUnavailable))
		}
		for j, d := range resp.Data {
			vec := toEmbedding(d.Embedding)
			if err := vec.ValidateDimension(p.dimension); err != nil {
				return err
			}
			results[indices[j]] = vec
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}

func toEmbedding(raw []float32) core.Embedding {
	vec := make(core.Embedding, len(raw))
	copy(vec, raw)
	return vec
}

func classifyRemoteError(err error) error {
	var apiErr *openai.APIError
	if ae, ok := err.(*openai.APIError); ok {
		apiErr = ae
		switch apiErr.HTTPStatusCode {
		case 429:
			return core.NewFrameworkError("embedding.Remote", "llm_unavailable", core.ErrRateLimited)
		case 402, 403:
			return core.NewFrameworkError("embedding.Remote", "llm_unavailable", core.ErrQuotaExceeded)
		case 408:
			return core.NewFrameworkError("embedding.Remote", "llm_unavailable", core.ErrTimeout)
		}
		if apiErr.HTTPStatusCode >= 500 {
			return core.NewFrameworkError("embedding.Remote", "llm_unavailable", core.ErrConnectionLost)
		}
	}
	return core.NewFrameworkError("embedding.Remote", "llm_unavailable", fmt.Errorf("%w: %v", core.ErrLLMUnavailable, err))
}
