package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"context-rag-platform/internal/ai"
)

// fakeProvider fails a configurable number of calls per text before
// succeeding, and records the task types it saw.
type fakeProvider struct {
	dimension int
	failures  map[string]int
	calls     int
	tasks     []ai.TaskType
}

func (f *fakeProvider) Embed(_ context.Context, _ string, text string, task ai.TaskType) ([]float32, error) {
	f.calls++
	f.tasks = append(f.tasks, task)
	if n, ok := f.failures[text]; ok && n > 0 {
		f.failures[text] = n - 1
		return nil, errors.New("transient api failure")
	}
	vec := make([]float32, f.dimension)
	vec[0] = float32(len(text))
	return vec, nil
}

func (f *fakeProvider) Dimension() int { return f.dimension }

func newTestEmbeddingService(p *fakeProvider) *EmbeddingService {
	es := NewEmbeddingService(p)
	es.sleep = func(time.Duration) {}
	return es
}

func TestEmbedDocumentsOrderAndTaskType(t *testing.T) {
	p := &fakeProvider{dimension: 8}
	es := newTestEmbeddingService(p)

	results := es.EmbedDocuments(context.Background(), "text-embedding-004", []string{"aa", "bbbb"})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Vector[0] != 2 || results[1].Vector[0] != 4 {
		t.Fatalf("results not in input order: %v %v", results[0].Vector[0], results[1].Vector[0])
	}
	for _, task := range p.tasks {
		if task != ai.TaskTypeDocument {
			t.Fatalf("expected document task type, got %q", task)
		}
	}
}

func TestEmbedQueryTaskType(t *testing.T) {
	p := &fakeProvider{dimension: 8}
	es := newTestEmbeddingService(p)

	res := es.EmbedQuery(context.Background(), "text-embedding-004", "what is this")
	if res.Degraded {
		t.Fatalf("unexpected degraded result")
	}
	if len(p.tasks) != 1 || p.tasks[0] != ai.TaskTypeQuery {
		t.Fatalf("expected query task type, got %v", p.tasks)
	}
}

func TestEmbedRetriesThenSucceeds(t *testing.T) {
	p := &fakeProvider{dimension: 8, failures: map[string]int{"flaky": 2}}
	es := newTestEmbeddingService(p)

	var slept []time.Duration
	es.sleep = func(d time.Duration) { slept = append(slept, d) }

	results := es.EmbedDocuments(context.Background(), "text-embedding-004", []string{"flaky"})
	if results[0].Degraded {
		t.Fatalf("expected recovery after retries")
	}
	if p.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", p.calls)
	}
	if len(slept) != 2 || slept[0] != time.Second || slept[1] != 2*time.Second {
		t.Fatalf("unexpected backoff schedule: %v", slept)
	}
}

func TestEmbedDegradesToZeroVector(t *testing.T) {
	p := &fakeProvider{dimension: 8, failures: map[string]int{"broken": 10}}
	es := newTestEmbeddingService(p)

	results := es.EmbedDocuments(context.Background(), "text-embedding-004", []string{"broken", "fine"})
	if !results[0].Degraded {
		t.Fatalf("expected degraded result for failing text")
	}
	for i, v := range results[0].Vector {
		if v != 0 {
			t.Fatalf("degraded vector element %d is non-zero: %v", i, v)
		}
	}
	if len(results[0].Vector) != 8 {
		t.Fatalf("degraded vector has wrong dimension: %d", len(results[0].Vector))
	}
	// the batch still succeeds for the remaining text
	if results[1].Degraded {
		t.Fatalf("healthy text unexpectedly degraded")
	}
}

func TestEmbedTruncatesLongText(t *testing.T) {
	p := &fakeProvider{dimension: 4}
	es := newTestEmbeddingService(p)

	long := make([]byte, maxEmbedChars+500)
	for i := range long {
		long[i] = 'a'
	}
	results := es.EmbedDocuments(context.Background(), "text-embedding-004", []string{string(long)})
	if got := int(results[0].Vector[0]); got != maxEmbedChars {
		t.Fatalf("expected truncation to %d chars, provider saw %d", maxEmbedChars, got)
	}
}

func TestEmbedTruncationKeepsValidUTF8(t *testing.T) {
	p := &fakeProvider{dimension: 4}
	es := newTestEmbeddingService(p)

	// one ASCII byte followed by two-byte runes puts the cap mid-rune
	long := "x" + strings.Repeat("é", maxEmbedChars/2)
	if len(long) <= maxEmbedChars {
		t.Fatalf("test input not over the cap: %d bytes", len(long))
	}

	results := es.EmbedDocuments(context.Background(), "text-embedding-004", []string{long})
	got := int(results[0].Vector[0])
	if got != maxEmbedChars-1 {
		t.Fatalf("expected cut back to rune start at %d bytes, provider saw %d", maxEmbedChars-1, got)
	}
	if !utf8.ValidString(long[:got]) {
		t.Fatalf("truncated text is not valid UTF-8")
	}
}
