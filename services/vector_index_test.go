package services

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"context-rag-platform/models"
)

func entryWithVector(id, content string, vec []float32) IndexEntry {
	return IndexEntry{
		Chunk:  models.TextChunk{ChunkID: id, Source: "doc.txt", Content: content},
		Vector: vec,
	}
}

func TestVectorIndexCreateLoadSearch(t *testing.T) {
	vs := NewVectorIndexService()
	dir := filepath.Join(t.TempDir(), "ctx1")

	entries := []IndexEntry{
		entryWithVector("c1", "alpha", []float32{1, 0, 0}),
		entryWithVector("c2", "beta", []float32{0, 1, 0}),
		entryWithVector("c3", "gamma", []float32{0.9, 0.1, 0}),
	}
	if _, err := vs.Create(dir, "text-embedding-004", entries); err != nil {
		t.Fatalf("create error: %v", err)
	}

	idx, err := vs.Load(dir)
	if err != nil {
		t.Fatalf("load error: %v", err)
	}
	if idx.EmbeddingModel() != "text-embedding-004" {
		t.Fatalf("wrong embedding model: %q", idx.EmbeddingModel())
	}
	if idx.Len() != 3 {
		t.Fatalf("expected 3 chunks, got %d", idx.Len())
	}

	hits, err := idx.Search([]float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Content != "alpha" || hits[1].Content != "gamma" {
		t.Fatalf("wrong ranking: %q, %q", hits[0].Content, hits[1].Content)
	}
	if hits[0].Score < hits[1].Score {
		t.Fatalf("scores not descending: %v < %v", hits[0].Score, hits[1].Score)
	}
}

func TestVectorIndexSearchEmptyIndex(t *testing.T) {
	vs := NewVectorIndexService()
	dir := filepath.Join(t.TempDir(), "empty")

	idx, err := vs.Create(dir, "text-embedding-004", nil)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	hits, err := idx.Search([]float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("search on empty index must not fail: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits, got %d", len(hits))
	}
}

func TestVectorIndexSearchStableTies(t *testing.T) {
	vs := NewVectorIndexService()
	dir := filepath.Join(t.TempDir(), "ties")

	entries := []IndexEntry{
		entryWithVector("c1", "first", []float32{1, 0}),
		entryWithVector("c2", "second", []float32{1, 0}),
		entryWithVector("c3", "third", []float32{2, 0}), // same direction, same cosine
	}
	idx, err := vs.Create(dir, "text-embedding-004", entries)
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	hits, err := idx.Search([]float32{1, 0}, 3)
	if err != nil {
		t.Fatalf("search error: %v", err)
	}
	if hits[0].Content != "first" || hits[1].Content != "second" || hits[2].Content != "third" {
		t.Fatalf("ties not broken by insertion order: %q %q %q", hits[0].Content, hits[1].Content, hits[2].Content)
	}
}

func TestVectorIndexCreateDimensionMismatch(t *testing.T) {
	vs := NewVectorIndexService()
	dir := filepath.Join(t.TempDir(), "bad")

	entries := []IndexEntry{
		entryWithVector("c1", "alpha", []float32{1, 0, 0}),
		entryWithVector("c2", "beta", []float32{0, 1}),
	}
	_, err := vs.Create(dir, "text-embedding-004", entries)
	if !errors.Is(err, models.ErrIndexBuild) {
		t.Fatalf("expected index build error, got %v", err)
	}
}

func TestVectorIndexAppend(t *testing.T) {
	vs := NewVectorIndexService()
	dir := filepath.Join(t.TempDir(), "grow")

	idx, err := vs.Create(dir, "text-embedding-004", []IndexEntry{
		entryWithVector("c1", "alpha", []float32{1, 0}),
	})
	if err != nil {
		t.Fatalf("create error: %v", err)
	}
	if err := vs.Append(idx, []IndexEntry{
		entryWithVector("c2", "beta", []float32{0, 1}),
	}); err != nil {
		t.Fatalf("append error: %v", err)
	}

	reloaded, err := vs.Load(dir)
	if err != nil {
		t.Fatalf("load after append error: %v", err)
	}
	if reloaded.Len() != 2 {
		t.Fatalf("expected 2 chunks after append, got %d", reloaded.Len())
	}
}

func TestVectorIndexLoadMissing(t *testing.T) {
	vs := NewVectorIndexService()
	_, err := vs.Load(filepath.Join(t.TempDir(), "nope"))
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestVectorIndexLoadCorrupt(t *testing.T) {
	vs := NewVectorIndexService()
	dir := filepath.Join(t.TempDir(), "corrupt")

	if _, err := vs.Create(dir, "text-embedding-004", []IndexEntry{
		entryWithVector("c1", "alpha", []float32{1, 0}),
	}); err != nil {
		t.Fatalf("create error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write error: %v", err)
	}
	_, err := vs.Load(dir)
	if !errors.Is(err, models.ErrCorruptIndex) {
		t.Fatalf("expected corrupt index error, got %v", err)
	}
}

func TestVectorIndexDelete(t *testing.T) {
	vs := NewVectorIndexService()
	dir := filepath.Join(t.TempDir(), "gone")

	if _, err := vs.Create(dir, "text-embedding-004", []IndexEntry{
		entryWithVector("c1", "alpha", []float32{1, 0}),
	}); err != nil {
		t.Fatalf("create error: %v", err)
	}
	if err := vs.Delete(dir); err != nil {
		t.Fatalf("delete error: %v", err)
	}
	if _, err := vs.Load(dir); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}
	// idempotent
	if err := vs.Delete(dir); err != nil {
		t.Fatalf("second delete error: %v", err)
	}
}
