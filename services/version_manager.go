package services

import (
	"context"
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"context-rag-platform/internal/logger"
	"context-rag-platform/internal/store"
	"context-rag-platform/models"
	"context-rag-platform/utils"
)

// VersionManagerService maintains the append-only version log per context:
// snapshots, integrity hashes, diffs, restores, and tags. Versions are never
// mutated after creation; every change to a context lands in a new version.
type VersionManagerService struct {
	store store.Store
}

// NewVersionManagerService creates a new version manager service
func NewVersionManagerService(st store.Store) *VersionManagerService {
	return &VersionManagerService{store: st}
}

// CreateVersion snapshots the context's configuration and statistics.
// bumpMajor is caller-supplied and reserved for destructive or structural
// changes; the default path increments the minor number.
func (vm *VersionManagerService) CreateVersion(ctx context.Context, contextID, userID primitive.ObjectID, description string, bumpMajor bool, changes map[string]any) (*models.ContextVersion, error) {
	c, err := vm.store.GetContext(ctx, contextID)
	if err != nil {
		return nil, err
	}
	current, err := vm.store.GetCurrentVersion(ctx, contextID)
	if err != nil {
		return nil, err
	}
	docCount, err := vm.store.CountDocuments(ctx, contextID)
	if err != nil {
		return nil, err
	}

	configCopy, err := utils.DeepCopyMap(c.Config)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrValidation, err)
	}

	v := &models.ContextVersion{
		ContextID:      contextID,
		Version:        nextVersion(current, bumpMajor),
		Description:    description,
		Config:         configCopy,
		ChunkStrategy:  c.ChunkStrategy,
		EmbeddingModel: c.EmbeddingModel,
		Stats: models.VersionStats{
			TotalChunks:    c.TotalChunks,
			TotalTokens:    c.TotalTokens,
			TotalDocuments: docCount,
		},
		CreatedBy:      userID,
		ChangesSummary: changes,
	}
	if current != nil {
		id := current.ID
		v.ParentVersionID = &id
	}
	hash, err := snapshotHash(v)
	if err != nil {
		return nil, err
	}
	v.ContentHash = hash

	if err := vm.store.CreateVersion(ctx, v); err != nil {
		return nil, err
	}
	logger.Info("Context version created", "context_id", contextID.Hex(), "version", v.Version)
	return v, nil
}

// VerifyIntegrity recomputes the hash over the stored snapshot fields and
// compares it to the stored hash. A mismatch means the persisted record was
// tampered with or corrupted; it is reported, never repaired.
func (vm *VersionManagerService) VerifyIntegrity(ctx context.Context, versionID primitive.ObjectID) (bool, error) {
	v, err := vm.store.GetVersion(ctx, versionID)
	if err != nil {
		return false, err
	}
	hash, err := snapshotHash(v)
	if err != nil {
		return false, err
	}
	if hash != v.ContentHash {
		return false, fmt.Errorf("%w: version %s content hash mismatch", models.ErrIntegrity, v.Version)
	}
	return true, nil
}

// RestoreVersion overwrites the context's live configuration with the target
// version's snapshot and records the restoration as a new version. History
// only grows; the restored-from version stays untouched.
func (vm *VersionManagerService) RestoreVersion(ctx context.Context, contextID, versionID, userID primitive.ObjectID) (*models.ContextVersion, error) {
	v, err := vm.store.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if v.ContextID != contextID {
		return nil, fmt.Errorf("%w: version %s does not belong to context %s", models.ErrVersionNotFound, versionID.Hex(), contextID.Hex())
	}

	restoredConfig, err := utils.DeepCopyMap(v.Config)
	if err != nil {
		return nil, err
	}
	if err := vm.store.UpdateContextConfig(ctx, contextID, restoredConfig, v.ChunkStrategy, v.EmbeddingModel); err != nil {
		return nil, err
	}
	return vm.CreateVersion(ctx, contextID, userID,
		fmt.Sprintf("Restored configuration from version %s", v.Version),
		false,
		map[string]any{
			"restored_from_version": v.Version,
			"restored_from_id":      v.ID.Hex(),
		})
}

// CompareVersions diffs two versions field by field. Detection considers the
// union of config keys from both sides; reporting is directional, from v1 to
// v2.
func (vm *VersionManagerService) CompareVersions(ctx context.Context, v1ID, v2ID primitive.ObjectID) (*models.VersionDiff, error) {
	v1, err := vm.store.GetVersion(ctx, v1ID)
	if err != nil {
		return nil, err
	}
	v2, err := vm.store.GetVersion(ctx, v2ID)
	if err != nil {
		return nil, err
	}

	diff := &models.VersionDiff{
		FromVersion:    v1.Version,
		ToVersion:      v2.Version,
		ChunkStrategy:  fieldChange(v1.ChunkStrategy, v2.ChunkStrategy),
		EmbeddingModel: fieldChange(v1.EmbeddingModel, v2.EmbeddingModel),
		Statistics: map[string]models.StatDelta{
			"total_chunks":    statDelta(v1.Stats.TotalChunks, v2.Stats.TotalChunks),
			"total_tokens":    statDelta(v1.Stats.TotalTokens, v2.Stats.TotalTokens),
			"total_documents": statDelta(v1.Stats.TotalDocuments, v2.Stats.TotalDocuments),
		},
		ConfigChanges: diffConfigs(v1.Config, v2.Config),
	}
	return diff, nil
}

// ListVersions returns the context's full version history, oldest first.
func (vm *VersionManagerService) ListVersions(ctx context.Context, contextID primitive.ObjectID) ([]models.ContextVersion, error) {
	return vm.store.ListVersions(ctx, contextID)
}

// GetCurrentVersion returns the context's current version, or nil when none
// exists yet.
func (vm *VersionManagerService) GetCurrentVersion(ctx context.Context, contextID primitive.ObjectID) (*models.ContextVersion, error) {
	return vm.store.GetCurrentVersion(ctx, contextID)
}

// TagVersion attaches a named label to one version of the context.
func (vm *VersionManagerService) TagVersion(ctx context.Context, contextID, versionID, userID primitive.ObjectID, name, description, tagType string) (*models.VersionTag, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: tag name is required", models.ErrValidation)
	}
	switch tagType {
	case models.TagTypeRelease, models.TagTypeCheckpoint, models.TagTypeCustom:
	case "":
		tagType = models.TagTypeCustom
	default:
		return nil, fmt.Errorf("%w: unknown tag type %q", models.ErrValidation, tagType)
	}

	v, err := vm.store.GetVersion(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if v.ContextID != contextID {
		return nil, fmt.Errorf("%w: version %s does not belong to context %s", models.ErrVersionNotFound, versionID.Hex(), contextID.Hex())
	}

	tag := &models.VersionTag{
		ContextID:   contextID,
		VersionID:   versionID,
		Name:        name,
		Description: description,
		TagType:     tagType,
		CreatedBy:   userID,
	}
	if err := vm.store.CreateTag(ctx, tag); err != nil {
		return nil, err
	}
	return tag, nil
}

// ListTags returns all tags on the context's versions.
func (vm *VersionManagerService) ListTags(ctx context.Context, contextID primitive.ObjectID) ([]models.VersionTag, error) {
	return vm.store.ListTags(ctx, contextID)
}

// DeleteTag removes a tag by name. The tagged version is unaffected.
func (vm *VersionManagerService) DeleteTag(ctx context.Context, contextID primitive.ObjectID, name string) error {
	return vm.store.DeleteTag(ctx, contextID, name)
}

// nextVersion computes the successor version number. The first version is
// "1.0"; a major bump resets minor to 0.
func nextVersion(current *models.ContextVersion, bumpMajor bool) string {
	if current == nil {
		return "1.0"
	}
	major, minor := parseVersion(current.Version)
	if bumpMajor {
		return fmt.Sprintf("%d.0", major+1)
	}
	return fmt.Sprintf("%d.%d", major, minor+1)
}

func parseVersion(s string) (int, int) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return 1, 0
	}
	major, err1 := strconv.Atoi(parts[0])
	minor, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 1, 0
	}
	return major, minor
}

// snapshotHash hashes the canonical serialization of the snapshot fields.
// Key order is stable, so the hash is reproducible across loads.
func snapshotHash(v *models.ContextVersion) (string, error) {
	return utils.ContentHash(map[string]any{
		"config":          v.Config,
		"chunk_strategy":  v.ChunkStrategy,
		"embedding_model": v.EmbeddingModel,
		"statistics": map[string]int{
			"total_chunks":    v.Stats.TotalChunks,
			"total_tokens":    v.Stats.TotalTokens,
			"total_documents": v.Stats.TotalDocuments,
		},
	})
}

func fieldChange(from, to string) models.FieldChange {
	return models.FieldChange{From: from, To: to, Changed: from != to}
}

func statDelta(from, to int) models.StatDelta {
	return models.StatDelta{From: from, To: to, Delta: to - from}
}

// diffConfigs classifies each key in the union of both maps. Values are
// compared by canonical JSON form, so equivalent nested structures do not
// register as modified.
func diffConfigs(from, to map[string]any) map[string]models.ConfigChange {
	changes := make(map[string]models.ConfigChange)
	for key, fromVal := range from {
		toVal, ok := to[key]
		if !ok {
			changes[key] = models.ConfigChange{Type: models.ConfigRemoved, From: fromVal}
			continue
		}
		if !sameConfigValue(fromVal, toVal) {
			changes[key] = models.ConfigChange{Type: models.ConfigModified, From: fromVal, To: toVal}
		}
	}
	for key, toVal := range to {
		if _, ok := from[key]; !ok {
			changes[key] = models.ConfigChange{Type: models.ConfigAdded, To: toVal}
		}
	}
	return changes
}

// sameConfigValue compares by canonical JSON form, so an int and the float64
// the storage layer decoded it into do not register as a modification.
func sameConfigValue(a, b any) bool {
	ha, errA := utils.ContentHash(a)
	hb, errB := utils.ContentHash(b)
	if errA != nil || errB != nil {
		return reflect.DeepEqual(a, b)
	}
	return ha == hb
}
