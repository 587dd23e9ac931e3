package services

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"context-rag-platform/models"
)

const (
	vectorsFile = "vectors.json"
	metaFile    = "meta.json"
)

// IndexEntry is one chunk plus its embedding, as handed to Create/Append.
type IndexEntry struct {
	Chunk    models.TextChunk
	Vector   []float32
	Degraded bool
}

// SearchHit is one scored result from a single index.
type SearchHit struct {
	Content  string
	Metadata map[string]string
	Source   string
	Score    float32
	Degraded bool
}

type indexChunk struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Source   string            `json:"source"`
	Ordinal  int               `json:"ordinal"`
	Degraded bool              `json:"degraded,omitempty"`
}

type indexMeta struct {
	EmbeddingModel string       `json:"embedding_model"`
	Dimension      int          `json:"dimension"`
	Chunks         []indexChunk `json:"chunks"`
}

type indexVectors struct {
	Vectors [][]float32 `json:"vectors"`
}

// VectorIndex is an open handle on one context's persisted index. The two
// artifacts (vectors.json and meta.json) hold vectors and chunk
// content/metadata in parallel order, so search returns full chunks without a
// second lookup.
type VectorIndex struct {
	dir     string
	meta    indexMeta
	vectors [][]float32
}

// VectorIndexService creates, loads, extends, and deletes per-context
// indices.
type VectorIndexService struct{}

// NewVectorIndexService creates a new vector index service
func NewVectorIndexService() *VectorIndexService {
	return &VectorIndexService{}
}

// Create builds and persists a fresh index at dir. All entry vectors must
// share one dimension or the build fails.
func (vs *VectorIndexService) Create(dir, embeddingModel string, entries []IndexEntry) (*VectorIndex, error) {
	dim := 0
	if len(entries) > 0 {
		dim = len(entries[0].Vector)
	}
	idx := &VectorIndex{
		dir: dir,
		meta: indexMeta{
			EmbeddingModel: embeddingModel,
			Dimension:      dim,
			Chunks:         []indexChunk{},
		},
	}
	if err := idx.add(entries); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating index directory: %v", models.ErrIndexBuild, err)
	}
	if err := idx.persist(); err != nil {
		return nil, err
	}
	return idx, nil
}

// Load opens a previously persisted index. A missing directory or artifact
// is ErrNotFound; unreadable or mutually inconsistent artifacts are
// ErrCorruptIndex, never silently treated as empty.
func (vs *VectorIndexService) Load(dir string) (*VectorIndex, error) {
	metaData, err := os.ReadFile(filepath.Join(dir, metaFile))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: index metadata at %s", models.ErrNotFound, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading index metadata: %v", models.ErrCorruptIndex, err)
	}
	vecData, err := os.ReadFile(filepath.Join(dir, vectorsFile))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: index vectors at %s", models.ErrNotFound, dir)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading index vectors: %v", models.ErrCorruptIndex, err)
	}

	idx := &VectorIndex{dir: dir}
	if err := json.Unmarshal(metaData, &idx.meta); err != nil {
		return nil, fmt.Errorf("%w: malformed index metadata: %v", models.ErrCorruptIndex, err)
	}
	var vecs indexVectors
	if err := json.Unmarshal(vecData, &vecs); err != nil {
		return nil, fmt.Errorf("%w: malformed index vectors: %v", models.ErrCorruptIndex, err)
	}
	idx.vectors = vecs.Vectors

	if len(idx.vectors) != len(idx.meta.Chunks) {
		return nil, fmt.Errorf("%w: %d vectors but %d chunks", models.ErrCorruptIndex, len(idx.vectors), len(idx.meta.Chunks))
	}
	for i, v := range idx.vectors {
		if len(v) != idx.meta.Dimension {
			return nil, fmt.Errorf("%w: vector %d has dimension %d, expected %d", models.ErrCorruptIndex, i, len(v), idx.meta.Dimension)
		}
	}
	return idx, nil
}

// Append adds entries to an existing index and persists the result.
func (vs *VectorIndexService) Append(idx *VectorIndex, entries []IndexEntry) error {
	if err := idx.add(entries); err != nil {
		return err
	}
	return idx.persist()
}

// Delete removes the persisted index. Deleting an absent index is not an
// error; reprocessing calls this unconditionally.
func (vs *VectorIndexService) Delete(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete index at %s: %w", dir, err)
	}
	return nil
}

// EmbeddingModel returns the model identifier the index was built with.
func (idx *VectorIndex) EmbeddingModel() string {
	return idx.meta.EmbeddingModel
}

// Len returns the number of indexed chunks.
func (idx *VectorIndex) Len() int {
	return len(idx.meta.Chunks)
}

// Search returns up to topK hits ordered by descending cosine similarity;
// ties keep insertion order. An empty index yields an empty result, not an
// error.
func (idx *VectorIndex) Search(query []float32, topK int) ([]SearchHit, error) {
	if len(idx.vectors) == 0 || topK <= 0 {
		return []SearchHit{}, nil
	}
	if len(query) != idx.meta.Dimension {
		return nil, fmt.Errorf("%w: query dimension %d does not match index dimension %d", models.ErrValidation, len(query), idx.meta.Dimension)
	}

	hits := make([]SearchHit, 0, len(idx.vectors))
	for i, vec := range idx.vectors {
		c := idx.meta.Chunks[i]
		hits = append(hits, SearchHit{
			Content:  c.Content,
			Metadata: c.Metadata,
			Source:   c.Source,
			Score:    cosineSimilarity(query, vec),
			Degraded: c.Degraded,
		})
	}
	sort.SliceStable(hits, func(a, b int) bool {
		return hits[a].Score > hits[b].Score
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

func (idx *VectorIndex) add(entries []IndexEntry) error {
	for _, e := range entries {
		if idx.meta.Dimension == 0 {
			idx.meta.Dimension = len(e.Vector)
		}
		if len(e.Vector) != idx.meta.Dimension {
			return fmt.Errorf("%w: chunk %q has vector dimension %d, expected %d",
				models.ErrIndexBuild, e.Chunk.ChunkID, len(e.Vector), idx.meta.Dimension)
		}
		idx.meta.Chunks = append(idx.meta.Chunks, indexChunk{
			Content:  e.Chunk.Content,
			Metadata: e.Chunk.Metadata,
			Source:   e.Chunk.Source,
			Ordinal:  e.Chunk.Ordinal,
			Degraded: e.Degraded,
		})
		idx.vectors = append(idx.vectors, e.Vector)
	}
	return nil
}

// persist stages both artifacts as temp files and renames them into place,
// so a concurrent load never observes a half-written index.
func (idx *VectorIndex) persist() error {
	if err := writeJSONAtomic(filepath.Join(idx.dir, vectorsFile), indexVectors{Vectors: idx.vectors}); err != nil {
		return fmt.Errorf("%w: persisting vectors: %v", models.ErrIndexBuild, err)
	}
	if err := writeJSONAtomic(filepath.Join(idx.dir, metaFile), idx.meta); err != nil {
		return fmt.Errorf("%w: persisting metadata: %v", models.ErrIndexBuild, err)
	}
	return nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
