package services

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	"context-rag-platform/models"
)

// ChunkerService splits extracted document text into bounded-size chunks.
// Concatenating the returned chunks in order reproduces the input exactly, so
// an index rebuilt from its own chunks is lossless.
type ChunkerService struct {
	paragraphRegex *regexp.Regexp
	structureRegex *regexp.Regexp
}

// NewChunkerService creates a new chunker service
func NewChunkerService() *ChunkerService {
	return &ChunkerService{
		paragraphRegex: regexp.MustCompile(`\n{2,}`),
		structureRegex: regexp.MustCompile(`\n(func |class |def |type |impl |public |private |#+ )`),
	}
}

// Chunk splits text under the given strategy. Chunks are never empty and
// never exceed targetSize*2 characters; input shorter than targetSize yields
// exactly one chunk.
func (cs *ChunkerService) Chunk(text, strategy string, targetSize int) ([]string, error) {
	if targetSize <= 0 {
		return nil, fmt.Errorf("%w: chunk target size must be positive, got %d", models.ErrValidation, targetSize)
	}
	if text == "" {
		return nil, nil
	}

	switch strategy {
	case models.StrategyFixedSize:
		return cs.chunkFixed(text, targetSize), nil
	case models.StrategyLanguage:
		return cs.chunkStructural(text, targetSize), nil
	default:
		return nil, fmt.Errorf("%w: unknown chunk strategy %q", models.ErrValidation, strategy)
	}
}

// chunkFixed cuts every targetSize bytes, backed off to the nearest rune
// boundary so multi-byte characters are never split.
func (cs *ChunkerService) chunkFixed(text string, targetSize int) []string {
	var chunks []string
	for len(text) > targetSize {
		cut := runeSafeCut(text, targetSize)
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if len(text) > 0 {
		chunks = append(chunks, text)
	}
	return chunks
}

// chunkStructural prefers cutting at paragraph breaks or function/class/
// heading line starts. It looks for the furthest boundary within
// targetSize*1.5 of the current position and falls back to a fixed cut at
// targetSize when the window contains none.
func (cs *ChunkerService) chunkStructural(text string, targetSize int) []string {
	limit := targetSize * 3 / 2
	var chunks []string
	for len(text) > limit {
		cut := cs.boundaryCut(text, limit)
		if cut <= 0 {
			cut = runeSafeCut(text, targetSize)
		}
		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}
	if len(text) > 0 {
		chunks = append(chunks, text)
	}
	return chunks
}

// boundaryCut returns the furthest logical boundary within text[:limit], or 0
// when the window has none. Paragraph separators stay attached to the
// preceding chunk; structural lines start the next chunk.
func (cs *ChunkerService) boundaryCut(text string, limit int) int {
	window := text[:limit]
	best := 0
	for _, m := range cs.paragraphRegex.FindAllStringIndex(window, -1) {
		if m[1] > best {
			best = m[1]
		}
	}
	for _, m := range cs.structureRegex.FindAllStringIndex(window, -1) {
		if m[0]+1 > best {
			best = m[0] + 1
		}
	}
	return best
}

func runeSafeCut(text string, pos int) int {
	cut := pos
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if cut == 0 {
		_, size := utf8.DecodeRuneInString(text)
		cut = size
	}
	return cut
}
