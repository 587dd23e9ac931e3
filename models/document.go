package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document represents one ingested file belonging to exactly one context.
// Documents are owned by their context and removed when the context is
// deleted.
type Document struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ContextID     primitive.ObjectID `bson:"context_id" json:"context_id"`
	Filename      string             `bson:"filename" json:"filename"`
	OriginalName  string             `bson:"original_name" json:"original_name"`
	FilePath      string             `bson:"file_path" json:"file_path"`
	FileHash      string             `bson:"file_hash" json:"file_hash"` // For deduplication
	FileSize      int64              `bson:"file_size" json:"file_size"`
	Category      string             `bson:"category,omitempty" json:"category,omitempty"`
	ChunkCount    int                `bson:"chunk_count" json:"chunk_count"`
	TokenEstimate int                `bson:"token_estimate" json:"token_estimate"`
	UploadedAt    time.Time          `bson:"uploaded_at" json:"uploaded_at"`
	ProcessedAt   *time.Time         `bson:"processed_at,omitempty" json:"processed_at,omitempty"`

	// Extraction cache: extracted text kept compressed so a reprocess can
	// survive the source file going away.
	ExtractedText []byte `bson:"extracted_text,omitempty" json:"-"`
	Compression   string `bson:"compression,omitempty" json:"-"`
}

// Document category constants, detected from the filename at upload time.
const (
	CategoryPDF      = "pdf"
	CategoryMarkdown = "markdown"
	CategoryText     = "text"
	CategoryCode     = "code"
)
