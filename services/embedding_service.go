package services

import (
	"context"
	"time"

	"context-rag-platform/internal/ai"
	"context-rag-platform/internal/logger"
)

const (
	// maxEmbedChars caps the text sent per embedding call. Longer inputs are
	// truncated, not rejected; this bounds cost and latency.
	maxEmbedChars = 8000

	embedAttempts = 3
)

var embedBackoff = []time.Duration{time.Second, 2 * time.Second}

// EmbeddingProvider is the external embedding port. ai.GeminiClient is the
// production implementation.
type EmbeddingProvider interface {
	Embed(ctx context.Context, model, text string, task ai.TaskType) ([]float32, error)
	Dimension() int
}

// EmbedResult carries one embedding. Degraded marks the zero-vector fallback
// substituted after exhausted retries; downstream ranking may discount it.
type EmbedResult struct {
	Vector   []float32
	Degraded bool
}

// EmbeddingService wraps the provider with truncation, retry with backoff,
// and the zero-vector fallback. A batch never fails outright; failed texts
// are degraded instead so processing keeps moving.
type EmbeddingService struct {
	provider EmbeddingProvider
	sleep    func(time.Duration)
}

// NewEmbeddingService creates a new embedding service
func NewEmbeddingService(provider EmbeddingProvider) *EmbeddingService {
	return &EmbeddingService{
		provider: provider,
		sleep:    time.Sleep,
	}
}

// EmbedDocuments embeds a batch of document texts in input order.
func (es *EmbeddingService) EmbedDocuments(ctx context.Context, model string, texts []string) []EmbedResult {
	results := make([]EmbedResult, len(texts))
	for i, text := range texts {
		results[i] = es.embedOne(ctx, model, text, ai.TaskTypeDocument)
	}
	return results
}

// EmbedQuery embeds a single query string with the query task type, so
// asymmetric models retrieve correctly.
func (es *EmbeddingService) EmbedQuery(ctx context.Context, model, query string) EmbedResult {
	return es.embedOne(ctx, model, query, ai.TaskTypeQuery)
}

// Dimension returns the provider's vector dimension D.
func (es *EmbeddingService) Dimension() int {
	return es.provider.Dimension()
}

func (es *EmbeddingService) embedOne(ctx context.Context, model, text string, task ai.TaskType) EmbedResult {
	if len(text) > maxEmbedChars {
		// Back off to a rune start so the truncated text stays valid UTF-8.
		text = text[:runeSafeCut(text, maxEmbedChars)]
	}

	var lastErr error
	for attempt := 0; attempt < embedAttempts; attempt++ {
		if attempt > 0 {
			es.sleep(embedBackoff[attempt-1])
		}
		vec, err := es.provider.Embed(ctx, model, text, task)
		if err == nil {
			return EmbedResult{Vector: vec}
		}
		lastErr = err
		logger.Warn("Embedding attempt failed", "attempt", attempt+1, "model", model, "error", err)
	}

	logger.Error("Embedding retries exhausted, substituting zero vector", "model", model, "error", lastErr)
	return EmbedResult{Vector: make([]float32, es.provider.Dimension()), Degraded: true}
}
