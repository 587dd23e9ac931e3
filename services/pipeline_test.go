package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"context-rag-platform/internal/store"
	"context-rag-platform/models"
)

// fakeExtractor serves canned text keyed by original filename and fails for
// names listed in broken.
type fakeExtractor struct {
	texts  map[string]string
	broken map[string]bool
}

func (f *fakeExtractor) Extract(_ context.Context, doc *models.Document) (string, string, error) {
	if f.broken[doc.OriginalName] {
		return "", "", errors.New("extraction failed")
	}
	return f.texts[doc.OriginalName], models.CategoryText, nil
}

type pipelineFixture struct {
	store     *store.MemoryStore
	provider  *fakeProvider
	extractor *fakeExtractor
	ps        *PipelineService
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	st := store.NewMemoryStore()
	p := &fakeProvider{dimension: 8}
	ex := &fakeExtractor{texts: map[string]string{}, broken: map[string]bool{}}
	ps := NewPipelineService(st, NewChunkerService(), newTestEmbeddingService(p), NewVectorIndexService(), ex, nil, t.TempDir(), 500)
	return &pipelineFixture{store: st, provider: p, extractor: ex, ps: ps}
}

func (f *pipelineFixture) newContext(t *testing.T) *models.Context {
	t.Helper()
	c := &models.Context{
		Name:           "docs",
		SourceType:     models.SourceFiles,
		ChunkStrategy:  models.StrategyFixedSize,
		EmbeddingModel: "text-embedding-004",
		Status:         models.StatusPending,
	}
	if err := f.store.CreateContext(context.Background(), c); err != nil {
		t.Fatalf("create context: %v", err)
	}
	return c
}

func (f *pipelineFixture) addDocument(t *testing.T, contextID primitive.ObjectID, name, text string) {
	t.Helper()
	f.extractor.texts[name] = text
	d := &models.Document{ContextID: contextID, Filename: name, OriginalName: name, FileSize: int64(len(text))}
	if err := f.store.CreateDocument(context.Background(), d); err != nil {
		t.Fatalf("create document: %v", err)
	}
}

func TestPipelinePartialFailureEndsReady(t *testing.T) {
	f := newPipelineFixture(t)
	c := f.newContext(t)
	f.addDocument(t, c.ID, "a.txt", strings.Repeat("alpha content. ", 40))
	f.addDocument(t, c.ID, "b.txt", strings.Repeat("beta content. ", 40))
	f.addDocument(t, c.ID, "c.txt", "never extracted")
	f.extractor.broken["c.txt"] = true

	if err := f.ps.Process(context.Background(), c.ID); err != nil {
		t.Fatalf("process error: %v", err)
	}

	got, err := f.store.GetContext(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("get context: %v", err)
	}
	surface := got.StatusSurface()
	if surface.Status != models.StatusReady {
		t.Fatalf("expected ready, got %s (%s)", surface.Status, surface.ErrorMessage)
	}
	if surface.Progress != 100 {
		t.Fatalf("expected progress 100, got %d", surface.Progress)
	}
	if surface.ErrorMessage != "" {
		t.Fatalf("unexpected error message: %q", surface.ErrorMessage)
	}
	if surface.TotalChunks < 2 {
		t.Fatalf("expected chunks from the two surviving documents, got %d", surface.TotalChunks)
	}
	if got.IndexPath == "" {
		t.Fatalf("ready context must have an index path")
	}

	// the failing document is marked processed with zero chunks
	docs, _ := f.store.ListDocuments(context.Background(), c.ID)
	for _, d := range docs {
		if d.ProcessedAt == nil {
			t.Fatalf("document %s not marked processed", d.OriginalName)
		}
		if d.OriginalName == "c.txt" && d.ChunkCount != 0 {
			t.Fatalf("skipped document reported %d chunks", d.ChunkCount)
		}
	}
}

func TestPipelineAllDocumentsFailing(t *testing.T) {
	f := newPipelineFixture(t)
	c := f.newContext(t)
	f.addDocument(t, c.ID, "a.txt", "whatever")
	f.addDocument(t, c.ID, "b.txt", "whatever")
	f.extractor.broken["a.txt"] = true
	f.extractor.broken["b.txt"] = true

	err := f.ps.Process(context.Background(), c.ID)
	if !errors.Is(err, models.ErrPipeline) {
		t.Fatalf("expected pipeline error, got %v", err)
	}

	got, _ := f.store.GetContext(context.Background(), c.ID)
	if got.Status != models.StatusError {
		t.Fatalf("expected error status, got %s", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Fatalf("error status requires a message")
	}
}

func TestPipelineRejectsConcurrentRun(t *testing.T) {
	f := newPipelineFixture(t)
	c := f.newContext(t)
	if err := f.store.UpdateStatus(context.Background(), c.ID, models.StatusProcessing, 50, ""); err != nil {
		t.Fatalf("update status: %v", err)
	}
	err := f.ps.Process(context.Background(), c.ID)
	if !errors.Is(err, models.ErrAlreadyProcessing) {
		t.Fatalf("expected already-processing rejection, got %v", err)
	}
}

func TestPipelineIncrementalUpload(t *testing.T) {
	f := newPipelineFixture(t)
	c := f.newContext(t)
	f.addDocument(t, c.ID, "a.txt", strings.Repeat("first batch. ", 50))

	if err := f.ps.Process(context.Background(), c.ID); err != nil {
		t.Fatalf("first process: %v", err)
	}
	first, _ := f.store.GetContext(context.Background(), c.ID)

	f.addDocument(t, c.ID, "b.txt", strings.Repeat("second batch. ", 50))
	if err := f.ps.Process(context.Background(), c.ID); err != nil {
		t.Fatalf("second process: %v", err)
	}
	second, _ := f.store.GetContext(context.Background(), c.ID)

	if second.TotalChunks <= first.TotalChunks {
		t.Fatalf("statistics did not accumulate: %d then %d", first.TotalChunks, second.TotalChunks)
	}

	idx, err := NewVectorIndexService().Load(second.IndexPath)
	if err != nil {
		t.Fatalf("load index: %v", err)
	}
	if idx.Len() != second.TotalChunks {
		t.Fatalf("index holds %d chunks, context reports %d", idx.Len(), second.TotalChunks)
	}
}

func TestPipelineReprocessAvoidsDoubleCounting(t *testing.T) {
	f := newPipelineFixture(t)
	c := f.newContext(t)
	f.addDocument(t, c.ID, "a.txt", strings.Repeat("stable content. ", 60))

	if err := f.ps.Process(context.Background(), c.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	first, _ := f.store.GetContext(context.Background(), c.ID)

	if err := f.ps.Reprocess(context.Background(), c.ID); err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	second, _ := f.store.GetContext(context.Background(), c.ID)

	if second.TotalChunks != first.TotalChunks || second.TotalTokens != first.TotalTokens {
		t.Fatalf("reprocess double-counted: %d/%d then %d/%d",
			first.TotalChunks, first.TotalTokens, second.TotalChunks, second.TotalTokens)
	}
	if second.Status != models.StatusReady {
		t.Fatalf("expected ready after reprocess, got %s", second.Status)
	}
}

func TestPipelineNoUnprocessedDocuments(t *testing.T) {
	f := newPipelineFixture(t)
	c := f.newContext(t)

	if err := f.ps.Process(context.Background(), c.ID); err != nil {
		t.Fatalf("process error: %v", err)
	}
	got, _ := f.store.GetContext(context.Background(), c.ID)
	if got.Status != models.StatusReady || got.Progress != 100 {
		t.Fatalf("expected ready at 100, got %s at %d", got.Status, got.Progress)
	}
	if got.IndexPath == "" {
		t.Fatalf("ready context must have an index path")
	}
	idx, err := NewVectorIndexService().Load(got.IndexPath)
	if err != nil {
		t.Fatalf("ready index path must be loadable: %v", err)
	}
	if idx.Len() != 0 {
		t.Fatalf("expected empty index, got %d chunks", idx.Len())
	}
	hits, err := idx.Search([]float32{1, 0, 0, 0, 0, 0, 0, 0}, 3)
	if err != nil {
		t.Fatalf("search on empty index: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits, got %d", len(hits))
	}
}

// flakyContextStore fails a fixed number of GetContext calls before
// delegating, to exercise failures that land after the processing guard.
type flakyContextStore struct {
	store.Store
	failures int
}

func (f *flakyContextStore) GetContext(ctx context.Context, id primitive.ObjectID) (*models.Context, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("connection reset")
	}
	return f.Store.GetContext(ctx, id)
}

func TestPipelineEarlyFailureReleasesGuard(t *testing.T) {
	f := newPipelineFixture(t)
	c := f.newContext(t)
	f.addDocument(t, c.ID, "a.txt", strings.Repeat("recoverable content. ", 40))

	flaky := &flakyContextStore{Store: f.store, failures: 1}
	ps := NewPipelineService(flaky, NewChunkerService(), newTestEmbeddingService(f.provider), NewVectorIndexService(), f.extractor, nil, t.TempDir(), 500)

	if err := ps.Process(context.Background(), c.ID); !errors.Is(err, models.ErrPipeline) {
		t.Fatalf("expected pipeline error, got %v", err)
	}
	got, _ := f.store.GetContext(context.Background(), c.ID)
	if got.Status == models.StatusProcessing {
		t.Fatalf("context left stuck in processing after early failure")
	}
	if got.Status != models.StatusError || got.ErrorMessage == "" {
		t.Fatalf("expected recorded error status, got %s (%q)", got.Status, got.ErrorMessage)
	}

	// the guard must admit the next run once the store recovers
	if err := ps.Process(context.Background(), c.ID); err != nil {
		t.Fatalf("retry after transient failure: %v", err)
	}
	got, _ = f.store.GetContext(context.Background(), c.ID)
	if got.Status != models.StatusReady {
		t.Fatalf("expected ready after retry, got %s", got.Status)
	}
}

func TestPipelineReprocessEarlyFailureReleasesGuard(t *testing.T) {
	f := newPipelineFixture(t)
	c := f.newContext(t)
	f.addDocument(t, c.ID, "a.txt", strings.Repeat("reprocessable content. ", 40))
	if err := f.ps.Process(context.Background(), c.ID); err != nil {
		t.Fatalf("initial process: %v", err)
	}

	flaky := &flakyContextStore{Store: f.store, failures: 1}
	ps := NewPipelineService(flaky, NewChunkerService(), newTestEmbeddingService(f.provider), NewVectorIndexService(), f.extractor, nil, t.TempDir(), 500)

	if err := ps.Reprocess(context.Background(), c.ID); !errors.Is(err, models.ErrPipeline) {
		t.Fatalf("expected pipeline error, got %v", err)
	}
	got, _ := f.store.GetContext(context.Background(), c.ID)
	if got.Status == models.StatusProcessing {
		t.Fatalf("context left stuck in processing after early reprocess failure")
	}
	if err := ps.Reprocess(context.Background(), c.ID); err != nil {
		t.Fatalf("reprocess retry: %v", err)
	}
}

func TestPipelineTokenEstimate(t *testing.T) {
	f := newPipelineFixture(t)
	c := f.newContext(t)
	text := strings.Repeat("x", 400)
	f.addDocument(t, c.ID, "a.txt", text)

	if err := f.ps.Process(context.Background(), c.ID); err != nil {
		t.Fatalf("process error: %v", err)
	}
	got, _ := f.store.GetContext(context.Background(), c.ID)
	if got.TotalTokens != len(text)/4 {
		t.Fatalf("expected %d tokens, got %d", len(text)/4, got.TotalTokens)
	}
}
