// Package embedding implements the embedding provider contract from
// spec.md §4.2: embed(text) and embed_batch(texts), backed by either a
// remote API or a local model, both wrapped in the LLM retry preset.
package embedding

import (
	"context"
	"strings"

	"github.com/forgemind/forgemind/core"
)

// Provider embeds text into fixed-length vectors of a deployment's
// configured dimension D.
type Provider interface {
	// Embed returns the embedding of text. Empty/whitespace-only input
	// fails with ErrInvalidInput; a dimension mismatch fails with
	// ErrDimensionMismatch.
	Embed(ctx context.Context, text string) (core.Embedding, error)

	// EmbedBatch preserves index alignment: output[i] is the embedding of
	// texts[i], or nil when texts[i] was empty. An empty slice is rejected.
	EmbedBatch(ctx context.Context, texts []string) ([]core.Embedding, error)
}

// Dimension reports D for the deployment, so callers (vectorstore,
// semanticcache) can validate consistently without re-deriving it.
type Dimension int

func validateSingle(ctx context.Context, text string, dim int, embed func(ctx context.Context, text string) (core.Embedding, error)) (core.Embedding, error) {
	if strings.TrimSpace(text) == "" {
		return nil, core.NewFrameworkError("embedding.Embed", "invalid_input", core.ErrInvalidInput)
	}
	vec, err := embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := vec.ValidateDimension(dim); err != nil {
		return nil, err
	}
	return vec, nil
}
