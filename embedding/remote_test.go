package embedding

import (
	"context"
	"errors"
	"testing"

	"github.com/sashabaranov/go-openai"

	"github.com/forgemind/forgemind/core"
)

func TestToEmbeddingCopiesValues(t *testing.T) {
	raw := []float32{0.1, 0.2, 0.3}
	vec := toEmbedding(raw)
	if len(vec) != 3 {
		t.Fatalf("expected 3 values, got %d", len(vec))
	}
	raw[0] = 9
	if vec[0] == 9 {
		t.Fatalf("expected toEmbedding to copy, not alias, the backing array")
	}
}

func TestClassifyRemoteErrorMapsRateLimit(t *testing.T) {
	err := classifyRemoteError(&openai.APIError{HTTPStatusCode: 429})
	if !errors.Is(err, core.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestClassifyRemoteErrorMapsQuota(t *testing.T) {
	err := classifyRemoteError(&openai.APIError{HTTPStatusCode: 402})
	if !errors.Is(err, core.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
}

func TestClassifyRemoteErrorMapsServerErrorToConnectionLost(t *testing.T) {
	err := classifyRemoteError(&openai.APIError{HTTPStatusCode: 503})
	if !errors.Is(err, core.ErrConnectionLost) {
		t.Fatalf("expected ErrConnectionLost, got %v", err)
	}
}

func TestClassifyRemoteErrorFallsBackToLLMUnavailable(t *testing.T) {
	err := classifyRemoteError(errors.New("boom"))
	if !errors.Is(err, core.ErrLLMUnavailable) {
		t.Fatalf("expected ErrLLMUnavailable, got %v", err)
	}
}

func TestValidateSingleRejectsEmptyInput(t *testing.T) {
	_, err := validateSingle(context.Background(), "  \t", 3, func(ctx context.Context, text string) (core.Embedding, error) {
		t.Fatalf("embed func should not be called for empty input")
		return nil, nil
	})
	if !errors.Is(err, core.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestValidateSingleRejectsDimensionMismatch(t *testing.T) {
	_, err := validateSingle(context.Background(), "hello", 5, func(ctx context.Context, text string) (core.Embedding, error) {
		return core.Embedding{0.1, 0.2}, nil
	})
	if !errors.Is(err, core.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestValidateSinglePropagatesEmbedError(t *testing.T) {
	sentinel := errors.New("transient")
	_, err := validateSingle(context.Background(), "hello", 5, func(ctx context.Context, text string) (core.Embedding, error) {
		return nil, sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel error, got %v", err)
	}
}
