package models

import "time"

// TextChunk is the atomic unit of retrievable content. The triple
// (ContextID, Source, Ordinal) is unique.
type TextChunk struct {
	ChunkID   string            `bson:"chunk_id" json:"chunk_id"`
	ContextID string            `bson:"context_id" json:"context_id"`
	Source    string            `bson:"source" json:"source"` // originating filename
	Ordinal   int               `bson:"ordinal" json:"ordinal"`
	Content   string            `bson:"content" json:"content"`
	Metadata  map[string]string `bson:"metadata,omitempty" json:"metadata,omitempty"`
	CreatedAt time.Time         `bson:"created_at" json:"created_at"`
}

// Citation links a retrieved chunk back to its originating context and
// source for display to the end user.
type Citation struct {
	ContextID   string  `json:"context_id"`
	ContextName string  `json:"context_name"`
	Source      string  `json:"source"`
	Score       float32 `json:"score"`
}

// RetrievedChunk is one merged retrieval result paired with its score.
type RetrievedChunk struct {
	Content     string            `json:"content"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Source      string            `json:"source"`
	ContextID   string            `json:"context_id"`
	ContextName string            `json:"context_name"`
	Score       float32           `json:"score"`
}
