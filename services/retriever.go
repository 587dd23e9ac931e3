package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"context-rag-platform/internal/logger"
	"context-rag-platform/internal/store"
	"context-rag-platform/models"
)

// RetrieverService runs similarity search across a set of contexts and
// merges the results with citations. Contexts that are not ready or whose
// index is missing are skipped, not failed: a query against a degraded set
// should still answer from whatever is searchable.
type RetrieverService struct {
	store    store.ContextStore
	embedder *EmbeddingService
	indexes  *VectorIndexService
}

// NewRetrieverService creates a new retriever service
func NewRetrieverService(st store.ContextStore, embedder *EmbeddingService, indexes *VectorIndexService) *RetrieverService {
	return &RetrieverService{
		store:    st,
		embedder: embedder,
		indexes:  indexes,
	}
}

// Retrieve searches every ready context in contextIDs (deduplicated) and
// concatenates up to topKPerContext results from each, in input order.
// Results are not re-ranked across contexts. An empty result set means no
// relevant information was found and is not an error.
func (rs *RetrieverService) Retrieve(ctx context.Context, query string, contextIDs []primitive.ObjectID, topKPerContext int) ([]models.RetrievedChunk, []models.Citation, error) {
	ctx, span := otel.Tracer("retriever").Start(ctx, "retriever.retrieve")
	defer span.End()
	span.SetAttributes(attribute.Int("contexts.requested", len(contextIDs)))

	eligible, err := rs.eligibleContexts(ctx, contextIDs)
	if err != nil {
		return nil, nil, err
	}
	if len(eligible) == 0 {
		return []models.RetrievedChunk{}, []models.Citation{}, nil
	}

	// One query embedding per distinct model among the selected contexts.
	queryVectors := make(map[string][]float32)
	for _, c := range eligible {
		if _, ok := queryVectors[c.EmbeddingModel]; ok {
			continue
		}
		res := rs.embedder.EmbedQuery(ctx, c.EmbeddingModel, query)
		if res.Degraded {
			logger.Warn("Query embedding degraded", "model", c.EmbeddingModel)
		}
		queryVectors[c.EmbeddingModel] = res.Vector
	}

	// Indices are independent and read-only at query time, so contexts are
	// searched in parallel; perContext keeps results in input order.
	perContext := make([][]models.RetrievedChunk, len(eligible))
	var wg sync.WaitGroup
	for i, c := range eligible {
		wg.Add(1)
		go func(i int, c models.Context) {
			defer wg.Done()
			perContext[i] = rs.searchContext(c, queryVectors[c.EmbeddingModel], topKPerContext)
		}(i, c)
	}
	wg.Wait()

	var merged []models.RetrievedChunk
	var citations []models.Citation
	for _, hits := range perContext {
		for _, h := range hits {
			merged = append(merged, h)
			citations = append(citations, models.Citation{
				ContextID:   h.ContextID,
				ContextName: h.ContextName,
				Source:      h.Source,
				Score:       h.Score,
			})
		}
	}
	span.SetAttributes(attribute.Int("chunks.retrieved", len(merged)))
	return merged, citations, nil
}

// eligibleContexts resolves the requested IDs to ready contexts with an
// index path, dropping duplicates and skipping anything unsearchable.
func (rs *RetrieverService) eligibleContexts(ctx context.Context, contextIDs []primitive.ObjectID) ([]models.Context, error) {
	seen := make(map[primitive.ObjectID]bool, len(contextIDs))
	var eligible []models.Context
	for _, id := range contextIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		c, err := rs.store.GetContext(ctx, id)
		if errors.Is(err, models.ErrContextNotFound) {
			logger.Warn("Skipping unknown context in retrieval", "context_id", id.Hex())
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to resolve context %s: %w", id.Hex(), err)
		}
		if c.Status != models.StatusReady || c.IndexPath == "" {
			logger.Debug("Skipping context not ready for retrieval", "context_id", id.Hex(), "status", c.Status)
			continue
		}
		eligible = append(eligible, *c)
	}
	return eligible, nil
}

func (rs *RetrieverService) searchContext(c models.Context, queryVector []float32, topK int) []models.RetrievedChunk {
	idx, err := rs.indexes.Load(c.IndexPath)
	if err != nil {
		logger.Warn("Skipping context with unloadable index", "context_id", c.ID.Hex(), "error", err)
		return nil
	}
	hits, err := idx.Search(queryVector, topK)
	if err != nil {
		logger.Warn("Skipping context with failed search", "context_id", c.ID.Hex(), "error", err)
		return nil
	}

	out := make([]models.RetrievedChunk, 0, len(hits))
	for _, h := range hits {
		out = append(out, models.RetrievedChunk{
			Content:     h.Content,
			Metadata:    h.Metadata,
			Source:      h.Source,
			ContextID:   c.ID.Hex(),
			ContextName: c.Name,
			Score:       h.Score,
		})
	}
	return out
}
