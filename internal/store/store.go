// Package store persists contexts, documents, and version history. The Mongo
// implementation backs the running service; the memory implementation backs
// tests.
package store

import (
	"context"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"context-rag-platform/models"
)

// ContextStore persists contexts and their processing state.
type ContextStore interface {
	CreateContext(ctx context.Context, c *models.Context) error
	GetContext(ctx context.Context, id primitive.ObjectID) (*models.Context, error)
	ListContexts(ctx context.Context) ([]models.Context, error)
	DeleteContext(ctx context.Context, id primitive.ObjectID) error

	// UpdateContextConfig overwrites the live configuration, chunk strategy,
	// and embedding model (used by version restore).
	UpdateContextConfig(ctx context.Context, id primitive.ObjectID, config map[string]any, chunkStrategy, embeddingModel string) error

	// TryMarkProcessing transitions a context into processing status if and
	// only if it is not already processing. Returns ErrAlreadyProcessing when
	// a run is active, so concurrent reprocess requests are rejected rather
	// than queued twice.
	TryMarkProcessing(ctx context.Context, id primitive.ObjectID) error

	UpdateStatus(ctx context.Context, id primitive.ObjectID, status string, progress int, errorMessage string) error
	SetProgress(ctx context.Context, id primitive.ObjectID, progress int) error
	SetIndexPath(ctx context.Context, id primitive.ObjectID, path string) error

	// AddStatistics accumulates chunk/token totals onto the context's running
	// counters (incremental re-upload support).
	AddStatistics(ctx context.Context, id primitive.ObjectID, chunks, tokens int) error
	ResetStatistics(ctx context.Context, id primitive.ObjectID) error
}

// DocumentStore persists ingested documents per context.
type DocumentStore interface {
	CreateDocument(ctx context.Context, d *models.Document) error
	GetDocument(ctx context.Context, id primitive.ObjectID) (*models.Document, error)
	ListDocuments(ctx context.Context, contextID primitive.ObjectID) ([]models.Document, error)
	ListUnprocessedDocuments(ctx context.Context, contextID primitive.ObjectID) ([]models.Document, error)
	MarkDocumentProcessed(ctx context.Context, id primitive.ObjectID, chunkCount, tokenEstimate int, category string) error
	ResetProcessedMarkers(ctx context.Context, contextID primitive.ObjectID) error

	// FindDocumentByHash returns nil, nil when no document with the given
	// content hash exists in the context.
	FindDocumentByHash(ctx context.Context, contextID primitive.ObjectID, hash string) (*models.Document, error)
	CountDocuments(ctx context.Context, contextID primitive.ObjectID) (int, error)
	SaveExtractionCache(ctx context.Context, id primitive.ObjectID, data []byte, compression string) error
}

// VersionStore persists the append-only version log. CreateVersion must flip
// the previous current version's flag and insert the new record atomically; a
// reader never observes zero or two current versions for a context.
type VersionStore interface {
	CreateVersion(ctx context.Context, v *models.ContextVersion) error
	GetVersion(ctx context.Context, id primitive.ObjectID) (*models.ContextVersion, error)

	// GetCurrentVersion returns nil, nil when the context has no versions yet.
	GetCurrentVersion(ctx context.Context, contextID primitive.ObjectID) (*models.ContextVersion, error)
	ListVersions(ctx context.Context, contextID primitive.ObjectID) ([]models.ContextVersion, error)

	CreateTag(ctx context.Context, t *models.VersionTag) error
	ListTags(ctx context.Context, contextID primitive.ObjectID) ([]models.VersionTag, error)
	DeleteTag(ctx context.Context, contextID primitive.ObjectID, name string) error
}

// Store aggregates all persistence concerns of the core.
type Store interface {
	ContextStore
	DocumentStore
	VersionStore
}
