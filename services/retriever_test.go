package services

import (
	"context"
	"path/filepath"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"context-rag-platform/internal/store"
	"context-rag-platform/models"
)

// retrieverFixture wires a memory store, a fake embedding provider, and real
// on-disk indices under t.TempDir().
type retrieverFixture struct {
	store    *store.MemoryStore
	provider *fakeProvider
	indexes  *VectorIndexService
	rs       *RetrieverService
	baseDir  string
}

func newRetrieverFixture(t *testing.T, dimension int) *retrieverFixture {
	t.Helper()
	st := store.NewMemoryStore()
	p := &fakeProvider{dimension: dimension}
	es := newTestEmbeddingService(p)
	vs := NewVectorIndexService()
	return &retrieverFixture{
		store:    st,
		provider: p,
		indexes:  vs,
		rs:       NewRetrieverService(st, es, vs),
		baseDir:  t.TempDir(),
	}
}

// addReadyContext creates a ready context with an index holding the given
// chunk contents, embedded as unit vectors on the first axis.
func (f *retrieverFixture) addReadyContext(t *testing.T, name string, contents []string) *models.Context {
	t.Helper()
	c := &models.Context{
		Name:           name,
		SourceType:     models.SourceFiles,
		ChunkStrategy:  models.StrategyFixedSize,
		EmbeddingModel: "text-embedding-004",
		Status:         models.StatusReady,
		Progress:       100,
	}
	if err := f.store.CreateContext(context.Background(), c); err != nil {
		t.Fatalf("create context: %v", err)
	}

	entries := make([]IndexEntry, len(contents))
	for i, content := range contents {
		vec := make([]float32, f.provider.dimension)
		vec[0] = 1
		vec[1] = float32(i) * 0.01
		entries[i] = IndexEntry{
			Chunk:  models.TextChunk{ChunkID: content, Source: "doc.txt", Content: content, Ordinal: i},
			Vector: vec,
		}
	}
	dir := filepath.Join(f.baseDir, c.ID.Hex())
	if _, err := f.indexes.Create(dir, c.EmbeddingModel, entries); err != nil {
		t.Fatalf("create index: %v", err)
	}
	if err := f.store.SetIndexPath(context.Background(), c.ID, dir); err != nil {
		t.Fatalf("set index path: %v", err)
	}
	return c
}

func TestRetrieveSkipsNotReadyContexts(t *testing.T) {
	f := newRetrieverFixture(t, 8)

	a := f.addReadyContext(t, "docs-a", []string{"a1", "a2", "a3", "a4", "a5"})

	b := &models.Context{
		Name:           "docs-b",
		SourceType:     models.SourceFiles,
		ChunkStrategy:  models.StrategyFixedSize,
		EmbeddingModel: "text-embedding-004",
		Status:         models.StatusError,
		ErrorMessage:   "extraction failed",
	}
	if err := f.store.CreateContext(context.Background(), b); err != nil {
		t.Fatalf("create context: %v", err)
	}

	chunks, citations, err := f.rs.Retrieve(context.Background(), "query", []primitive.ObjectID{a.ID, b.ID}, 3)
	if err != nil {
		t.Fatalf("retrieve error: %v", err)
	}
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks from the ready context, got %d", len(chunks))
	}
	for _, c := range chunks {
		if c.ContextID != a.ID.Hex() {
			t.Fatalf("chunk from unexpected context %s", c.ContextID)
		}
	}
	if len(citations) != len(chunks) {
		t.Fatalf("citations out of step with chunks: %d vs %d", len(citations), len(chunks))
	}
}

func TestRetrieveDeduplicatesContexts(t *testing.T) {
	f := newRetrieverFixture(t, 8)
	a := f.addReadyContext(t, "docs-a", []string{"a1", "a2"})

	chunks, _, err := f.rs.Retrieve(context.Background(), "query", []primitive.ObjectID{a.ID, a.ID, a.ID}, 5)
	if err != nil {
		t.Fatalf("retrieve error: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("duplicate context searched more than once: %d chunks", len(chunks))
	}
}

func TestRetrieveEmbedsQueryOncePerModel(t *testing.T) {
	f := newRetrieverFixture(t, 8)
	a := f.addReadyContext(t, "docs-a", []string{"a1"})
	b := f.addReadyContext(t, "docs-b", []string{"b1"})

	_, _, err := f.rs.Retrieve(context.Background(), "query", []primitive.ObjectID{a.ID, b.ID}, 5)
	if err != nil {
		t.Fatalf("retrieve error: %v", err)
	}
	if f.provider.calls != 1 {
		t.Fatalf("expected one embedding call for the shared model, got %d", f.provider.calls)
	}
}

func TestRetrieveUnknownContextsYieldEmptyResult(t *testing.T) {
	f := newRetrieverFixture(t, 8)

	chunks, citations, err := f.rs.Retrieve(context.Background(), "query", []primitive.ObjectID{primitive.NewObjectID()}, 5)
	if err != nil {
		t.Fatalf("retrieve error: %v", err)
	}
	if len(chunks) != 0 || len(citations) != 0 {
		t.Fatalf("expected empty result, got %d chunks", len(chunks))
	}
}

func TestRetrieveCitationsCarryContextAndScore(t *testing.T) {
	f := newRetrieverFixture(t, 8)
	a := f.addReadyContext(t, "docs-a", []string{"a1"})

	_, citations, err := f.rs.Retrieve(context.Background(), "query", []primitive.ObjectID{a.ID}, 5)
	if err != nil {
		t.Fatalf("retrieve error: %v", err)
	}
	if len(citations) != 1 {
		t.Fatalf("expected 1 citation, got %d", len(citations))
	}
	ct := citations[0]
	if ct.ContextID != a.ID.Hex() || ct.ContextName != "docs-a" || ct.Source != "doc.txt" {
		t.Fatalf("citation incomplete: %+v", ct)
	}
	if ct.Score <= 0 {
		t.Fatalf("expected a positive similarity score, got %v", ct.Score)
	}
}
