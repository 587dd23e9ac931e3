package models

import (
	"errors"
	"testing"
)

func TestValidateSourceConfig(t *testing.T) {
	cases := []struct {
		name       string
		sourceType string
		config     map[string]any
		wantErr    bool
	}{
		{"files with no config", SourceFiles, nil, false},
		{"files with chunk size", SourceFiles, map[string]any{"chunk_size": 800}, false},
		{"files with negative chunk size", SourceFiles, map[string]any{"chunk_size": -1}, true},
		{"files with wrong type", SourceFiles, map[string]any{"chunk_size": "big"}, true},
		{"files with unknown keys", SourceFiles, map[string]any{"notes": "kept"}, false},
		{"repo with url", SourceRepo, map[string]any{"repo_url": "https://example.com/r.git"}, false},
		{"repo without url", SourceRepo, map[string]any{"branch": "main"}, true},
		{"database with uri", SourceDatabase, map[string]any{"connection_uri": "postgres://db"}, false},
		{"database without uri", SourceDatabase, nil, true},
		{"unknown source type", "ftp", nil, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateSourceConfig(tc.sourceType, tc.config)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, ErrValidation) {
					t.Fatalf("expected validation error, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
