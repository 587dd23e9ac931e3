package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"context-rag-platform/internal/store"
	"context-rag-platform/models"
)

type fakeEnqueuer struct {
	enqueued []*asynq.Task
	err      error
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.enqueued = append(f.enqueued, task)
	return &asynq.TaskInfo{}, nil
}

func newEnqueueTestContext(t *testing.T, id string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	c.Params = gin.Params{{Key: "id", Value: id}}
	return c, w
}

func TestReprocessResetsStatusSurface(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := &models.Context{
		Name:           "docs",
		SourceType:     models.SourceFiles,
		ChunkStrategy:  models.StrategyFixedSize,
		EmbeddingModel: "text-embedding-004",
		Status:         models.StatusError,
	}
	if err := st.CreateContext(context.Background(), ctx); err != nil {
		t.Fatalf("create context: %v", err)
	}
	if err := st.UpdateStatus(context.Background(), ctx.ID, models.StatusError, 70, "index build failed"); err != nil {
		t.Fatalf("seed error status: %v", err)
	}

	q := &fakeEnqueuer{}
	c, w := newEnqueueTestContext(t, ctx.ID.Hex())
	enqueueProcessing(st, q, true)(c)

	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if len(q.enqueued) != 1 {
		t.Fatalf("expected one enqueued task, got %d", len(q.enqueued))
	}

	got, err := st.GetContext(context.Background(), ctx.ID)
	if err != nil {
		t.Fatalf("get context: %v", err)
	}
	surface := got.StatusSurface()
	if surface.Status != models.StatusPending {
		t.Fatalf("expected pending after reprocess request, got %s", surface.Status)
	}
	if surface.Progress != 0 {
		t.Fatalf("expected progress reset to 0, got %d", surface.Progress)
	}
	if surface.ErrorMessage != "" {
		t.Fatalf("stale error message survived the reprocess request: %q", surface.ErrorMessage)
	}
}

func TestReprocessRejectsActiveRun(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := &models.Context{
		Name:           "docs",
		SourceType:     models.SourceFiles,
		ChunkStrategy:  models.StrategyFixedSize,
		EmbeddingModel: "text-embedding-004",
		Status:         models.StatusPending,
	}
	if err := st.CreateContext(context.Background(), ctx); err != nil {
		t.Fatalf("create context: %v", err)
	}
	if err := st.UpdateStatus(context.Background(), ctx.ID, models.StatusProcessing, 40, ""); err != nil {
		t.Fatalf("seed processing status: %v", err)
	}

	q := &fakeEnqueuer{}
	c, w := newEnqueueTestContext(t, ctx.ID.Hex())
	enqueueProcessing(st, q, true)(c)

	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
	if len(q.enqueued) != 0 {
		t.Fatalf("task enqueued for a context already processing")
	}

	got, _ := st.GetContext(context.Background(), ctx.ID)
	if got.Status != models.StatusProcessing || got.Progress != 40 {
		t.Fatalf("rejected request disturbed the active run: %s at %d", got.Status, got.Progress)
	}
}
