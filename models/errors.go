package models

import "errors"

// Sentinel errors for the retrieval and versioning core. Callers classify
// failures with errors.Is and decide whether to retry, degrade, or surface.
var (
	// ErrValidation covers bad strategy/model identifiers and similar caller
	// mistakes. Never retried.
	ErrValidation = errors.New("validation error")

	// ErrNotFound is the generic missing-entity error.
	ErrNotFound = errors.New("not found")

	// ErrContextNotFound indicates the referenced context does not exist.
	ErrContextNotFound = errors.New("context not found")

	// ErrVersionNotFound indicates the referenced version does not exist or
	// belongs to a different context.
	ErrVersionNotFound = errors.New("version not found")

	// ErrIndexBuild indicates a vector index could not be built, e.g. a
	// dimension mismatch between chunk vectors.
	ErrIndexBuild = errors.New("index build error")

	// ErrCorruptIndex indicates a persisted index exists but is unreadable or
	// internally inconsistent. Never silently treated as empty.
	ErrCorruptIndex = errors.New("corrupt index")

	// ErrPipeline indicates a processing failure not isolated to a single
	// document; the owning context transitions to error status.
	ErrPipeline = errors.New("pipeline error")

	// ErrIntegrity indicates a stored version hash no longer matches its
	// snapshot. Reported, never auto-repaired.
	ErrIntegrity = errors.New("integrity error")

	// ErrAlreadyProcessing rejects a second concurrent processing run for the
	// same context.
	ErrAlreadyProcessing = errors.New("context is already processing")
)
