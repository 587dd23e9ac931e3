package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Context lifecycle status constants
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusError      = "error"
)

// Source type constants for contexts
const (
	SourceFiles    = "files"
	SourceRepo     = "repo"
	SourceDatabase = "database"
)

// Chunk strategy identifiers
const (
	StrategyFixedSize = "fixed-size"
	StrategyLanguage  = "language-specific"
)

// Context represents a named, independently indexed document collection.
// A context with status "ready" always has Progress == 100 and a resolvable
// IndexPath; a context with status "error" always has a non-empty ErrorMessage.
type Context struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name           string             `bson:"name" json:"name"`
	UserID         primitive.ObjectID `bson:"user_id" json:"user_id"`
	SourceType     string             `bson:"source_type" json:"source_type"` // files, repo, database
	ChunkStrategy  string             `bson:"chunk_strategy" json:"chunk_strategy"`
	EmbeddingModel string             `bson:"embedding_model" json:"embedding_model"`
	Config         map[string]any     `bson:"config,omitempty" json:"config,omitempty"`
	Status         string             `bson:"status" json:"status"`
	Progress       int                `bson:"progress" json:"progress"`
	ErrorMessage   string             `bson:"error_message,omitempty" json:"error_message,omitempty"`
	TotalChunks    int                `bson:"total_chunks" json:"total_chunks"`
	TotalTokens    int                `bson:"total_tokens" json:"total_tokens"`
	IndexPath      string             `bson:"index_path,omitempty" json:"index_path,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}

// StatusSurface is the processing-state contract exposed to callers.
type StatusSurface struct {
	Status       string `json:"status"`
	Progress     int    `json:"progress"`
	ErrorMessage string `json:"error_message,omitempty"`
	TotalChunks  int    `json:"total_chunks"`
	TotalTokens  int    `json:"total_tokens"`
}

// StatusSurface builds the status view for the CRUD layer.
func (c *Context) StatusSurface() StatusSurface {
	return StatusSurface{
		Status:       c.Status,
		Progress:     c.Progress,
		ErrorMessage: c.ErrorMessage,
		TotalChunks:  c.TotalChunks,
		TotalTokens:  c.TotalTokens,
	}
}

// ValidChunkStrategy reports whether the given strategy identifier is known.
func ValidChunkStrategy(strategy string) bool {
	switch strategy {
	case StrategyFixedSize, StrategyLanguage:
		return true
	}
	return false
}

// ValidSourceType reports whether the given source type identifier is known.
func ValidSourceType(sourceType string) bool {
	switch sourceType {
	case SourceFiles, SourceRepo, SourceDatabase:
		return true
	}
	return false
}
