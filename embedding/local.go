package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"

	"github.com/forgemind/forgemind/core"
	"github.com/forgemind/forgemind/resilience"
)

// LocalProvider is a CPU-bound, network-free stand-in for a locally hosted
// embedding model. It is deterministic (same text always yields the same
// vector) and dimension-correct, but is not a trained model: training a
// real embedding model is out of scope for this core (see spec.md §4.2
// Non-goals). It exists so the Provider contract, dimension checks, and
// retry wrapping are exercised without a network dependency.
type LocalProvider struct {
	dimension int
}

// NewLocalProvider builds a LocalProvider for dimension D.
func NewLocalProvider(dimension int) *LocalProvider {
	return &LocalProvider{dimension: dimension}
}

// Embed implements Provider.
func (p *LocalProvider) Embed(ctx context.Context, text string) (core.Embedding, error) {
	return validateSingle(ctx, text, p.dimension, func(ctx context.Context, t string) (core.Embedding, error) {
		var vec core.Embedding
		err := resilience.Retry(ctx, resilience.LLMRetryPolicy(), func() error {
			vec = hashProjection(t, p.dimension)
			return nil
		})
		return vec, err
	})
}

// EmbedBatch implements Provider.
func (p *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([]core.Embedding, error) {
	if len(texts) == 0 {
		return nil, core.NewFrameworkError("embedding.Local.EmbedBatch", "invalid_input", core.ErrInvalidInput)
	}

	results := make([]core.Embedding, len(texts))
	err := resilience.Retry(ctx, resilience.LLMRetryPolicy(), func() error {
		for i, t := range texts {
			if strings.TrimSpace(t) == "" {
				continue
			}
			results[i] = hashProjection(t, p.dimension)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// hashProjection derives a deterministic, unit-normalized vector of length
// dim from text by expanding a SHA-256 digest with a counter-based stream.
func hashProjection(text string, dim int) core.Embedding {
	vec := make(core.Embedding, dim)
	block := 0
	var buf [32]byte
	for i := 0; i < dim; i++ {
		if i%8 == 0 {
			h := sha256.New()
			h.Write([]byte(text))
			var counter [4]byte
			binary.BigEndian.PutUint32(counter[:], uint32(block))
			h.Write(counter[:])
			copy(buf[:], h.Sum(nil))
			block++
		}
		raw := binary.BigEndian.Uint32(buf[(i%8)*4 : (i%8)*4+4])
		vec[i] = (float32(raw)/float32(math.MaxUint32))*2 - 1
	}
	return normalize(vec)
}

func normalize(vec core.Embedding) core.Embedding {
	var sumSquares float64
	for _, v := range vec {
		sumSquares += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSquares)
	if norm == 0 {
		return vec
	}
	out := make(core.Embedding, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}
