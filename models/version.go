package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// VersionStats is the statistics snapshot captured with each version.
type VersionStats struct {
	TotalChunks    int `bson:"total_chunks" json:"total_chunks"`
	TotalTokens    int `bson:"total_tokens" json:"total_tokens"`
	TotalDocuments int `bson:"total_documents" json:"total_documents"`
}

// ContextVersion is an immutable snapshot of a context's configuration and
// statistics. Versions form an append-only log; exactly one version per
// context carries IsCurrent once the first version exists.
type ContextVersion struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	ContextID       primitive.ObjectID  `bson:"context_id" json:"context_id"`
	Version         string              `bson:"version" json:"version"` // "major.minor"
	Description     string              `bson:"description,omitempty" json:"description,omitempty"`
	Config          map[string]any      `bson:"config,omitempty" json:"config,omitempty"`
	ChunkStrategy   string              `bson:"chunk_strategy" json:"chunk_strategy"`
	EmbeddingModel  string              `bson:"embedding_model" json:"embedding_model"`
	Stats           VersionStats        `bson:"stats" json:"stats"`
	ContentHash     string              `bson:"content_hash" json:"content_hash"`
	ParentVersionID *primitive.ObjectID `bson:"parent_version_id,omitempty" json:"parent_version_id,omitempty"`
	IsCurrent       bool                `bson:"is_current" json:"is_current"`
	CreatedBy       primitive.ObjectID  `bson:"created_by" json:"created_by"`
	CreatedAt       time.Time           `bson:"created_at" json:"created_at"`
	ChangesSummary  map[string]any      `bson:"changes_summary,omitempty" json:"changes_summary,omitempty"`
}

// VersionTag is a named label attached to exactly one version. Many tags may
// point at the same version.
type VersionTag struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ContextID   primitive.ObjectID `bson:"context_id" json:"context_id"`
	VersionID   primitive.ObjectID `bson:"version_id" json:"version_id"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	TagType     string             `bson:"tag_type" json:"tag_type"`
	CreatedBy   primitive.ObjectID `bson:"created_by" json:"created_by"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
}

// Tag type classifiers
const (
	TagTypeRelease    = "release"
	TagTypeCheckpoint = "checkpoint"
	TagTypeCustom     = "custom"
)

// FieldChange describes a single scalar field difference between versions.
type FieldChange struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Changed bool   `json:"changed"`
}

// StatDelta reports a numeric statistic difference from one version to
// another.
type StatDelta struct {
	From  int `json:"from"`
	To    int `json:"to"`
	Delta int `json:"delta"`
}

// Config diff classifications
const (
	ConfigAdded    = "added"
	ConfigRemoved  = "removed"
	ConfigModified = "modified"
)

// ConfigChange describes one differing configuration key.
type ConfigChange struct {
	Type string `json:"type"` // added, removed, modified
	From any    `json:"from,omitempty"`
	To   any    `json:"to,omitempty"`
}

// VersionDiff is the derived comparison between two versions, reported
// directionally from FromVersion to ToVersion.
type VersionDiff struct {
	FromVersion    string                  `json:"from_version"`
	ToVersion      string                  `json:"to_version"`
	ChunkStrategy  FieldChange             `json:"chunk_strategy"`
	EmbeddingModel FieldChange             `json:"embedding_model"`
	Statistics     map[string]StatDelta    `json:"statistics"`
	ConfigChanges  map[string]ConfigChange `json:"config_changes"`
}

// HasChanges reports whether any field differs between the compared versions.
func (d *VersionDiff) HasChanges() bool {
	if d.ChunkStrategy.Changed || d.EmbeddingModel.Changed {
		return true
	}
	for _, s := range d.Statistics {
		if s.Delta != 0 {
			return true
		}
	}
	return len(d.ConfigChanges) > 0
}
