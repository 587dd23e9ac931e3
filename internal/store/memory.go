package store

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"context-rag-platform/models"
)

// MemoryStore is an in-memory Store used in tests. All methods are safe for
// concurrent use.
type MemoryStore struct {
	mu        sync.RWMutex
	contexts  map[primitive.ObjectID]*models.Context
	documents map[primitive.ObjectID]*models.Document
	versions  map[primitive.ObjectID]*models.ContextVersion
	tags      map[primitive.ObjectID]*models.VersionTag

	// insertion order, so listings are deterministic
	contextOrder  []primitive.ObjectID
	documentOrder []primitive.ObjectID
	versionOrder  []primitive.ObjectID
	tagOrder      []primitive.ObjectID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		contexts:  make(map[primitive.ObjectID]*models.Context),
		documents: make(map[primitive.ObjectID]*models.Document),
		versions:  make(map[primitive.ObjectID]*models.ContextVersion),
		tags:      make(map[primitive.ObjectID]*models.VersionTag),
	}
}

func (s *MemoryStore) CreateContext(_ context.Context, c *models.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	cp := *c
	s.contexts[c.ID] = &cp
	s.contextOrder = append(s.contextOrder, c.ID)
	return nil
}

func (s *MemoryStore) GetContext(_ context.Context, id primitive.ObjectID) (*models.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contexts[id]
	if !ok {
		return nil, models.ErrContextNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListContexts(_ context.Context) ([]models.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Context, 0, len(s.contextOrder))
	for _, id := range s.contextOrder {
		if c, ok := s.contexts[id]; ok {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteContext(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contexts[id]; !ok {
		return models.ErrContextNotFound
	}
	delete(s.contexts, id)
	for docID, d := range s.documents {
		if d.ContextID == id {
			delete(s.documents, docID)
		}
	}
	for verID, v := range s.versions {
		if v.ContextID == id {
			delete(s.versions, verID)
		}
	}
	for tagID, t := range s.tags {
		if t.ContextID == id {
			delete(s.tags, tagID)
		}
	}
	return nil
}

func (s *MemoryStore) UpdateContextConfig(_ context.Context, id primitive.ObjectID, config map[string]any, chunkStrategy, embeddingModel string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contexts[id]
	if !ok {
		return models.ErrContextNotFound
	}
	c.Config = config
	c.ChunkStrategy = chunkStrategy
	c.EmbeddingModel = embeddingModel
	c.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) TryMarkProcessing(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contexts[id]
	if !ok {
		return models.ErrContextNotFound
	}
	if c.Status == models.StatusProcessing {
		return models.ErrAlreadyProcessing
	}
	c.Status = models.StatusProcessing
	c.Progress = 0
	c.ErrorMessage = ""
	c.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id primitive.ObjectID, status string, progress int, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contexts[id]
	if !ok {
		return models.ErrContextNotFound
	}
	c.Status = status
	c.Progress = progress
	c.ErrorMessage = errorMessage
	c.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) SetProgress(_ context.Context, id primitive.ObjectID, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contexts[id]; ok {
		c.Progress = progress
		c.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryStore) SetIndexPath(_ context.Context, id primitive.ObjectID, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contexts[id]; ok {
		c.IndexPath = path
		c.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryStore) AddStatistics(_ context.Context, id primitive.ObjectID, chunks, tokens int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contexts[id]; ok {
		c.TotalChunks += chunks
		c.TotalTokens += tokens
		c.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryStore) ResetStatistics(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contexts[id]; ok {
		c.TotalChunks = 0
		c.TotalTokens = 0
		c.UpdatedAt = time.Now()
	}
	return nil
}

func (s *MemoryStore) CreateDocument(_ context.Context, d *models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}
	d.UploadedAt = time.Now()
	cp := *d
	s.documents[d.ID] = &cp
	s.documentOrder = append(s.documentOrder, d.ID)
	return nil
}

func (s *MemoryStore) GetDocument(_ context.Context, id primitive.ObjectID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.documents[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *MemoryStore) ListDocuments(_ context.Context, contextID primitive.ObjectID) ([]models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Document
	for _, id := range s.documentOrder {
		if d, ok := s.documents[id]; ok && d.ContextID == contextID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListUnprocessedDocuments(_ context.Context, contextID primitive.ObjectID) ([]models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Document
	for _, id := range s.documentOrder {
		if d, ok := s.documents[id]; ok && d.ContextID == contextID && d.ProcessedAt == nil {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkDocumentProcessed(_ context.Context, id primitive.ObjectID, chunkCount, tokenEstimate int, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return models.ErrNotFound
	}
	now := time.Now()
	d.ProcessedAt = &now
	d.ChunkCount = chunkCount
	d.TokenEstimate = tokenEstimate
	d.Category = category
	return nil
}

func (s *MemoryStore) ResetProcessedMarkers(_ context.Context, contextID primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.documents {
		if d.ContextID == contextID {
			d.ProcessedAt = nil
			d.ChunkCount = 0
			d.TokenEstimate = 0
		}
	}
	return nil
}

func (s *MemoryStore) FindDocumentByHash(_ context.Context, contextID primitive.ObjectID, hash string) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.documentOrder {
		if d, ok := s.documents[id]; ok && d.ContextID == contextID && d.FileHash == hash {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) CountDocuments(_ context.Context, contextID primitive.ObjectID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, d := range s.documents {
		if d.ContextID == contextID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) SaveExtractionCache(_ context.Context, id primitive.ObjectID, data []byte, compression string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return models.ErrNotFound
	}
	d.ExtractedText = data
	d.Compression = compression
	return nil
}

func (s *MemoryStore) CreateVersion(_ context.Context, v *models.ContextVersion) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID.IsZero() {
		v.ID = primitive.NewObjectID()
	}
	v.CreatedAt = time.Now()
	v.IsCurrent = true
	for _, existing := range s.versions {
		if existing.ContextID == v.ContextID {
			existing.IsCurrent = false
		}
	}
	cp := *v
	s.versions[v.ID] = &cp
	s.versionOrder = append(s.versionOrder, v.ID)
	return nil
}

func (s *MemoryStore) GetVersion(_ context.Context, id primitive.ObjectID) (*models.ContextVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.versions[id]
	if !ok {
		return nil, models.ErrVersionNotFound
	}
	cp := *v
	return &cp, nil
}

func (s *MemoryStore) GetCurrentVersion(_ context.Context, contextID primitive.ObjectID) (*models.ContextVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.versionOrder {
		if v, ok := s.versions[id]; ok && v.ContextID == contextID && v.IsCurrent {
			cp := *v
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListVersions(_ context.Context, contextID primitive.ObjectID) ([]models.ContextVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ContextVersion
	for _, id := range s.versionOrder {
		if v, ok := s.versions[id]; ok && v.ContextID == contextID {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (s *MemoryStore) CreateTag(_ context.Context, t *models.VersionTag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID.IsZero() {
		t.ID = primitive.NewObjectID()
	}
	t.CreatedAt = time.Now()
	cp := *t
	s.tags[t.ID] = &cp
	s.tagOrder = append(s.tagOrder, t.ID)
	return nil
}

func (s *MemoryStore) ListTags(_ context.Context, contextID primitive.ObjectID) ([]models.VersionTag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.VersionTag
	for _, id := range s.tagOrder {
		if t, ok := s.tags[id]; ok && t.ContextID == contextID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteTag(_ context.Context, contextID primitive.ObjectID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.tags {
		if t.ContextID == contextID && t.Name == name {
			delete(s.tags, id)
			return nil
		}
	}
	return models.ErrNotFound
}
