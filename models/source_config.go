package models

import (
	"encoding/json"
	"fmt"
)

// Typed views over the per-source configuration map. The map itself stays
// schemaless in storage so version diffs remain source-agnostic; these types
// only validate the keys a source kind is known to need.

// FilesConfig configures a context fed by direct file uploads.
type FilesConfig struct {
	ChunkSize    int      `json:"chunk_size,omitempty"`
	AllowedTypes []string `json:"allowed_types,omitempty"`
}

// RepoConfig configures a context fed from a source repository.
type RepoConfig struct {
	RepoURL      string   `json:"repo_url"`
	Branch       string   `json:"branch,omitempty"`
	IncludeGlobs []string `json:"include_globs,omitempty"`
	ChunkSize    int      `json:"chunk_size,omitempty"`
}

// DatabaseConfig configures a context fed from a database export.
type DatabaseConfig struct {
	ConnectionURI string   `json:"connection_uri"`
	Tables        []string `json:"tables,omitempty"`
	ChunkSize     int      `json:"chunk_size,omitempty"`
}

// ValidateSourceConfig checks a configuration map against the schema for the
// given source type. Unknown keys are permitted; known keys must decode to
// the expected type and required keys must be present.
func ValidateSourceConfig(sourceType string, config map[string]any) error {
	raw, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("%w: config is not JSON-compatible: %v", ErrValidation, err)
	}

	switch sourceType {
	case SourceFiles:
		var fc FilesConfig
		if err := json.Unmarshal(raw, &fc); err != nil {
			return fmt.Errorf("%w: invalid files config: %v", ErrValidation, err)
		}
		if fc.ChunkSize < 0 {
			return fmt.Errorf("%w: chunk_size must not be negative", ErrValidation)
		}
	case SourceRepo:
		var rc RepoConfig
		if err := json.Unmarshal(raw, &rc); err != nil {
			return fmt.Errorf("%w: invalid repo config: %v", ErrValidation, err)
		}
		if rc.RepoURL == "" {
			return fmt.Errorf("%w: repo source requires repo_url", ErrValidation)
		}
	case SourceDatabase:
		var dc DatabaseConfig
		if err := json.Unmarshal(raw, &dc); err != nil {
			return fmt.Errorf("%w: invalid database config: %v", ErrValidation, err)
		}
		if dc.ConnectionURI == "" {
			return fmt.Errorf("%w: database source requires connection_uri", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown source type %q", ErrValidation, sourceType)
	}
	return nil
}
