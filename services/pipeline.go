package services

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"context-rag-platform/internal/logger"
	"context-rag-platform/internal/store"
	"context-rag-platform/internal/telemetry"
	"context-rag-platform/models"
)

// TextExtractor turns an ingested document into plain text. The production
// implementation is DocumentExtractor; tests substitute fakes.
type TextExtractor interface {
	Extract(ctx context.Context, doc *models.Document) (string, string, error)
}

// Pipeline progress checkpoints. Chunking advances linearly from
// progressStart to progressChunked; embedding and indexing fill the rest.
const (
	progressStart   = 10
	progressChunked = 70
	progressDone    = 100
)

// PipelineService drives a context through extract, chunk, embed, and index
// into the ready state. A single document failing extraction or chunking is
// skipped; only pipeline-level failures move the context to error.
type PipelineService struct {
	store     store.Store
	chunker   *ChunkerService
	embedder  *EmbeddingService
	indexes   *VectorIndexService
	extractor TextExtractor
	metrics   *telemetry.Metrics

	indexBaseDir     string
	defaultChunkSize int
}

// NewPipelineService creates a new pipeline service
func NewPipelineService(st store.Store, chunker *ChunkerService, embedder *EmbeddingService, indexes *VectorIndexService, extractor TextExtractor, metrics *telemetry.Metrics, indexBaseDir string, defaultChunkSize int) *PipelineService {
	return &PipelineService{
		store:            st,
		chunker:          chunker,
		embedder:         embedder,
		indexes:          indexes,
		extractor:        extractor,
		metrics:          metrics,
		indexBaseDir:     indexBaseDir,
		defaultChunkSize: defaultChunkSize,
	}
}

// Process runs the pipeline over the context's unprocessed documents,
// appending to an existing index when one is present. Returns
// ErrAlreadyProcessing when a run is active for the context.
func (ps *PipelineService) Process(ctx context.Context, contextID primitive.ObjectID) error {
	if err := ps.store.TryMarkProcessing(ctx, contextID); err != nil {
		return err
	}
	return ps.run(ctx, contextID)
}

// Reprocess rebuilds the context from scratch: all document processed
// markers are cleared, the existing index is deleted, and statistics are
// zeroed before the run, so nothing is double-counted.
func (ps *PipelineService) Reprocess(ctx context.Context, contextID primitive.ObjectID) error {
	if err := ps.store.TryMarkProcessing(ctx, contextID); err != nil {
		return err
	}

	c, err := ps.store.GetContext(ctx, contextID)
	if err != nil {
		// The guard already flipped the status; record the failure so the
		// context does not stay stuck in processing.
		return ps.fail(ctx, contextID, 0, fmt.Errorf("%w: loading context: %v", models.ErrPipeline, err))
	}
	if err := ps.store.ResetProcessedMarkers(ctx, contextID); err != nil {
		return ps.fail(ctx, contextID, progressStart, fmt.Errorf("%w: resetting documents: %v", models.ErrPipeline, err))
	}
	if c.IndexPath != "" {
		if err := ps.indexes.Delete(c.IndexPath); err != nil {
			return ps.fail(ctx, contextID, progressStart, fmt.Errorf("%w: deleting index: %v", models.ErrPipeline, err))
		}
	}
	if err := ps.store.SetIndexPath(ctx, contextID, ""); err != nil {
		return ps.fail(ctx, contextID, progressStart, fmt.Errorf("%w: clearing index path: %v", models.ErrPipeline, err))
	}
	if err := ps.store.ResetStatistics(ctx, contextID); err != nil {
		return ps.fail(ctx, contextID, progressStart, fmt.Errorf("%w: resetting statistics: %v", models.ErrPipeline, err))
	}
	return ps.run(ctx, contextID)
}

func (ps *PipelineService) run(ctx context.Context, contextID primitive.ObjectID) error {
	ctx, span := otel.Tracer("pipeline").Start(ctx, "pipeline.run")
	defer span.End()
	span.SetAttributes(attribute.String("context.id", contextID.Hex()))
	started := time.Now()

	c, err := ps.store.GetContext(ctx, contextID)
	if err != nil {
		return ps.fail(ctx, contextID, 0, fmt.Errorf("%w: loading context: %v", models.ErrPipeline, err))
	}
	targetSize := ps.chunkSize(c)

	docs, err := ps.store.ListUnprocessedDocuments(ctx, contextID)
	if err != nil {
		return ps.fail(ctx, contextID, 0, fmt.Errorf("%w: listing documents: %v", models.ErrPipeline, err))
	}
	if err := ps.store.SetProgress(ctx, contextID, progressStart); err != nil {
		logger.Warn("Failed to report progress", "context_id", contextID.Hex(), "error", err)
	}
	if len(docs) == 0 {
		// Nothing new to ingest, but ready still promises a resolvable
		// index, so an empty one is created when none exists yet.
		if c.IndexPath == "" {
			indexPath, err := ps.writeIndex(ctx, c, nil)
			if err != nil {
				return ps.fail(ctx, contextID, progressStart, err)
			}
			if err := ps.store.SetIndexPath(ctx, contextID, indexPath); err != nil {
				return ps.fail(ctx, contextID, progressStart, fmt.Errorf("%w: recording index path: %v", models.ErrPipeline, err))
			}
		}
		return ps.store.UpdateStatus(ctx, contextID, models.StatusReady, progressDone, "")
	}

	chunks, tokens, perDoc, failedDocs := ps.chunkDocuments(ctx, c, docs, targetSize)
	if failedDocs == len(docs) {
		return ps.fail(ctx, contextID, progressChunked, fmt.Errorf("%w: every document in the run failed extraction or chunking", models.ErrPipeline))
	}

	entries, degraded := ps.embedChunks(ctx, c.EmbeddingModel, chunks)
	if degraded > 0 && ps.metrics != nil {
		ps.metrics.EmbeddingsDegraded.Add(ctx, int64(degraded))
	}

	indexPath, err := ps.writeIndex(ctx, c, entries)
	if err != nil {
		return ps.fail(ctx, contextID, progressChunked, err)
	}

	for _, d := range docs {
		stats, ok := perDoc[d.ID]
		if !ok {
			continue // already marked during the chunking phase
		}
		if err := ps.store.MarkDocumentProcessed(ctx, d.ID, stats.chunks, stats.tokens, d.Category); err != nil {
			logger.Warn("Failed to mark document processed", "document_id", d.ID.Hex(), "error", err)
		}
	}
	if err := ps.store.AddStatistics(ctx, contextID, len(chunks), tokens); err != nil {
		return ps.fail(ctx, contextID, progressChunked, fmt.Errorf("%w: updating statistics: %v", models.ErrPipeline, err))
	}
	if err := ps.store.SetIndexPath(ctx, contextID, indexPath); err != nil {
		return ps.fail(ctx, contextID, progressChunked, fmt.Errorf("%w: recording index path: %v", models.ErrPipeline, err))
	}
	if err := ps.store.UpdateStatus(ctx, contextID, models.StatusReady, progressDone, ""); err != nil {
		return err
	}

	if ps.metrics != nil {
		ps.metrics.ChunksIndexed.Add(ctx, int64(len(chunks)))
		ps.metrics.PipelineDuration.Record(ctx, time.Since(started).Seconds())
	}
	logger.Info("Context processing complete",
		"context_id", contextID.Hex(),
		"documents", len(docs),
		"skipped", failedDocs,
		"chunks", len(chunks),
		"degraded_embeddings", degraded)
	return nil
}

type docStats struct {
	chunks int
	tokens int
}

// chunkDocuments extracts and chunks each document, reporting progress
// linearly across the batch. A failing document is logged, marked processed
// with zero chunks, and skipped.
func (ps *PipelineService) chunkDocuments(ctx context.Context, c *models.Context, docs []models.Document, targetSize int) ([]models.TextChunk, int, map[primitive.ObjectID]docStats, int) {
	var chunks []models.TextChunk
	totalTokens := 0
	failed := 0
	perDoc := make(map[primitive.ObjectID]docStats, len(docs))

	for i, d := range docs {
		text, category, err := ps.extractor.Extract(ctx, &d)
		if err == nil {
			d.Category = category
			var pieces []string
			pieces, err = ps.chunker.Chunk(text, c.ChunkStrategy, targetSize)
			if err == nil {
				tokens := 0
				for n, content := range pieces {
					chunks = append(chunks, models.TextChunk{
						ChunkID:   uuid.NewString(),
						ContextID: c.ID.Hex(),
						Source:    d.OriginalName,
						Ordinal:   n,
						Content:   content,
						Metadata: map[string]string{
							"document_id": d.ID.Hex(),
							"filename":    d.OriginalName,
						},
						CreatedAt: time.Now(),
					})
					tokens += len(content) / 4
				}
				totalTokens += tokens
				perDoc[d.ID] = docStats{chunks: len(pieces), tokens: tokens}
			}
		}
		if err != nil {
			failed++
			logger.Warn("Skipping document after extraction/chunking failure",
				"context_id", c.ID.Hex(), "document_id", d.ID.Hex(), "error", err)
			if markErr := ps.store.MarkDocumentProcessed(ctx, d.ID, 0, 0, d.Category); markErr != nil {
				logger.Warn("Failed to mark skipped document", "document_id", d.ID.Hex(), "error", markErr)
			}
		}

		progress := progressStart + (i+1)*(progressChunked-progressStart)/len(docs)
		if err := ps.store.SetProgress(ctx, c.ID, progress); err != nil {
			logger.Warn("Failed to report progress", "context_id", c.ID.Hex(), "error", err)
		}
	}
	return chunks, totalTokens, perDoc, failed
}

// embedChunks embeds in input order so ordinals in the index stay stable.
func (ps *PipelineService) embedChunks(ctx context.Context, model string, chunks []models.TextChunk) ([]IndexEntry, int) {
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Content
	}
	results := ps.embedder.EmbedDocuments(ctx, model, texts)

	entries := make([]IndexEntry, len(chunks))
	degraded := 0
	for i, res := range results {
		entries[i] = IndexEntry{Chunk: chunks[i], Vector: res.Vector, Degraded: res.Degraded}
		if res.Degraded {
			degraded++
		}
	}
	return entries, degraded
}

func (ps *PipelineService) writeIndex(ctx context.Context, c *models.Context, entries []IndexEntry) (string, error) {
	if c.IndexPath != "" {
		idx, err := ps.indexes.Load(c.IndexPath)
		if err == nil {
			if err := ps.indexes.Append(idx, entries); err != nil {
				return "", fmt.Errorf("%w: appending to index: %v", models.ErrPipeline, err)
			}
			return c.IndexPath, nil
		}
		logger.Warn("Existing index unloadable, rebuilding", "context_id", c.ID.Hex(), "error", err)
	}
	dir := filepath.Join(ps.indexBaseDir, c.ID.Hex())
	if _, err := ps.indexes.Create(dir, c.EmbeddingModel, entries); err != nil {
		return "", fmt.Errorf("%w: building index: %v", models.ErrPipeline, err)
	}
	return dir, nil
}

// chunkSize reads the per-context chunk_size override from the opaque
// configuration map. Route handlers validate the schema; here anything
// unusable just falls back to the default.
func (ps *PipelineService) chunkSize(c *models.Context) int {
	if v, ok := c.Config["chunk_size"]; ok {
		switch n := v.(type) {
		case int:
			if n > 0 {
				return n
			}
		case int32:
			if n > 0 {
				return int(n)
			}
		case int64:
			if n > 0 {
				return int(n)
			}
		case float64:
			if n > 0 {
				return int(n)
			}
		}
	}
	return ps.defaultChunkSize
}

// fail moves the context to error with the message preserved for callers,
// then returns the error. Terminal until an explicit reprocess.
func (ps *PipelineService) fail(ctx context.Context, contextID primitive.ObjectID, progress int, err error) error {
	if updErr := ps.store.UpdateStatus(ctx, contextID, models.StatusError, progress, err.Error()); updErr != nil {
		logger.Error("Failed to record pipeline error", "context_id", contextID.Hex(), "error", updErr)
	}
	return err
}
