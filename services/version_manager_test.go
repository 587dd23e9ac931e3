package services

import (
	"context"
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"context-rag-platform/internal/store"
	"context-rag-platform/models"
)

type versionFixture struct {
	store *store.MemoryStore
	vm    *VersionManagerService
	user  primitive.ObjectID
}

func newVersionFixture(t *testing.T) *versionFixture {
	t.Helper()
	st := store.NewMemoryStore()
	return &versionFixture{
		store: st,
		vm:    NewVersionManagerService(st),
		user:  primitive.NewObjectID(),
	}
}

func (f *versionFixture) newContext(t *testing.T, config map[string]any) *models.Context {
	t.Helper()
	c := &models.Context{
		Name:           "docs",
		UserID:         f.user,
		SourceType:     models.SourceFiles,
		ChunkStrategy:  models.StrategyFixedSize,
		EmbeddingModel: "text-embedding-004",
		Config:         config,
		Status:         models.StatusReady,
		TotalChunks:    10,
		TotalTokens:    2500,
	}
	if err := f.store.CreateContext(context.Background(), c); err != nil {
		t.Fatalf("create context: %v", err)
	}
	return c
}

func TestCreateVersionNumbering(t *testing.T) {
	f := newVersionFixture(t)
	c := f.newContext(t, map[string]any{"chunk_size": 500})

	v1, err := f.vm.CreateVersion(context.Background(), c.ID, f.user, "initial", false, nil)
	if err != nil {
		t.Fatalf("create version: %v", err)
	}
	if v1.Version != "1.0" {
		t.Fatalf("first version should be 1.0, got %s", v1.Version)
	}
	if v1.ParentVersionID != nil {
		t.Fatalf("first version should have no parent")
	}

	v2, err := f.vm.CreateVersion(context.Background(), c.ID, f.user, "minor change", false, nil)
	if err != nil {
		t.Fatalf("create version: %v", err)
	}
	if v2.Version != "1.1" {
		t.Fatalf("expected 1.1, got %s", v2.Version)
	}
	if v2.ParentVersionID == nil || *v2.ParentVersionID != v1.ID {
		t.Fatalf("parent link broken")
	}

	v3, err := f.vm.CreateVersion(context.Background(), c.ID, f.user, "structural change", true, nil)
	if err != nil {
		t.Fatalf("create version: %v", err)
	}
	if v3.Version != "2.0" {
		t.Fatalf("expected major bump to 2.0, got %s", v3.Version)
	}
}

func TestCreateVersionSingleCurrent(t *testing.T) {
	f := newVersionFixture(t)
	c := f.newContext(t, nil)

	if _, err := f.vm.CreateVersion(context.Background(), c.ID, f.user, "first", false, nil); err != nil {
		t.Fatalf("create version: %v", err)
	}
	if _, err := f.vm.CreateVersion(context.Background(), c.ID, f.user, "second", false, nil); err != nil {
		t.Fatalf("create version: %v", err)
	}

	versions, err := f.vm.ListVersions(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("list versions: %v", err)
	}
	current := 0
	for _, v := range versions {
		if v.IsCurrent {
			current++
		}
	}
	if current != 1 {
		t.Fatalf("expected exactly one current version, got %d", current)
	}
}

func TestCreateVersionSnapshotIsDeepCopy(t *testing.T) {
	f := newVersionFixture(t)
	config := map[string]any{"chunk_size": 500, "nested": map[string]any{"lang": "go"}}
	c := f.newContext(t, config)

	v, err := f.vm.CreateVersion(context.Background(), c.ID, f.user, "snapshot", false, nil)
	if err != nil {
		t.Fatalf("create version: %v", err)
	}

	// mutating the live config must not reach the snapshot
	config["chunk_size"] = 9999
	config["nested"].(map[string]any)["lang"] = "rust"

	stored, err := f.store.GetVersion(context.Background(), v.ID)
	if err != nil {
		t.Fatalf("get version: %v", err)
	}
	if stored.Config["chunk_size"].(float64) != 500 {
		t.Fatalf("snapshot chunk_size mutated: %v", stored.Config["chunk_size"])
	}
	if stored.Config["nested"].(map[string]any)["lang"] != "go" {
		t.Fatalf("nested snapshot value mutated")
	}
}

func TestVerifyIntegrity(t *testing.T) {
	f := newVersionFixture(t)
	c := f.newContext(t, map[string]any{"chunk_size": 500})

	v, err := f.vm.CreateVersion(context.Background(), c.ID, f.user, "clean", false, nil)
	if err != nil {
		t.Fatalf("create version: %v", err)
	}

	ok, err := f.vm.VerifyIntegrity(context.Background(), v.ID)
	if err != nil || !ok {
		t.Fatalf("untouched version failed verification: ok=%v err=%v", ok, err)
	}

	// flip a byte in the stored hash to simulate corruption
	stored, _ := f.store.GetVersion(context.Background(), v.ID)
	tampered := *stored
	if tampered.ContentHash[0] == 'a' {
		tampered.ContentHash = "b" + tampered.ContentHash[1:]
	} else {
		tampered.ContentHash = "a" + tampered.ContentHash[1:]
	}
	tampered.ID = primitive.NilObjectID
	if err := f.store.CreateVersion(context.Background(), &tampered); err != nil {
		t.Fatalf("insert tampered version: %v", err)
	}

	ok, err = f.vm.VerifyIntegrity(context.Background(), tampered.ID)
	if ok {
		t.Fatalf("tampered version passed verification")
	}
	if !errors.Is(err, models.ErrIntegrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}
}

func TestRestoreVersionRoundTrip(t *testing.T) {
	f := newVersionFixture(t)
	c := f.newContext(t, map[string]any{"chunk_size": 500})

	vOld, err := f.vm.CreateVersion(context.Background(), c.ID, f.user, "original", false, nil)
	if err != nil {
		t.Fatalf("create version: %v", err)
	}

	// drift the live config, snapshot the drifted state
	if err := f.store.UpdateContextConfig(context.Background(), c.ID, map[string]any{"chunk_size": 900, "extra": true}, models.StrategyLanguage, "text-embedding-004"); err != nil {
		t.Fatalf("update config: %v", err)
	}
	if _, err := f.vm.CreateVersion(context.Background(), c.ID, f.user, "drifted", false, nil); err != nil {
		t.Fatalf("create version: %v", err)
	}

	restored, err := f.vm.RestoreVersion(context.Background(), c.ID, vOld.ID, f.user)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Version == vOld.Version {
		t.Fatalf("restore must mint a new version number")
	}
	if restored.ChangesSummary["restored_from_version"] != vOld.Version {
		t.Fatalf("changes summary missing restore source: %v", restored.ChangesSummary)
	}

	diff, err := f.vm.CompareVersions(context.Background(), vOld.ID, restored.ID)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if len(diff.ConfigChanges) != 0 {
		t.Fatalf("restored config differs from source: %v", diff.ConfigChanges)
	}
	if diff.ChunkStrategy.Changed || diff.EmbeddingModel.Changed {
		t.Fatalf("restored strategy/model differ: %+v", diff)
	}

	// history only grows
	versions, _ := f.vm.ListVersions(context.Background(), c.ID)
	if len(versions) != 3 {
		t.Fatalf("expected 3 versions after restore, got %d", len(versions))
	}
}

func TestRestoreVersionWrongContext(t *testing.T) {
	f := newVersionFixture(t)
	c1 := f.newContext(t, nil)
	c2 := f.newContext(t, nil)

	v, err := f.vm.CreateVersion(context.Background(), c1.ID, f.user, "c1 version", false, nil)
	if err != nil {
		t.Fatalf("create version: %v", err)
	}
	_, err = f.vm.RestoreVersion(context.Background(), c2.ID, v.ID, f.user)
	if !errors.Is(err, models.ErrVersionNotFound) {
		t.Fatalf("expected version not found, got %v", err)
	}
}

func TestCompareVersionsIdentical(t *testing.T) {
	f := newVersionFixture(t)
	c := f.newContext(t, map[string]any{"chunk_size": 500})

	v1, err := f.vm.CreateVersion(context.Background(), c.ID, f.user, "one", false, nil)
	if err != nil {
		t.Fatalf("create version: %v", err)
	}
	v2, err := f.vm.CreateVersion(context.Background(), c.ID, f.user, "two", false, nil)
	if err != nil {
		t.Fatalf("create version: %v", err)
	}

	diff, err := f.vm.CompareVersions(context.Background(), v1.ID, v2.ID)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if diff.HasChanges() {
		t.Fatalf("identical versions report changes: %+v", diff)
	}
	for name, s := range diff.Statistics {
		if s.Delta != 0 {
			t.Fatalf("statistic %s has non-zero delta %d", name, s.Delta)
		}
	}
}

func TestCompareVersionsConfigClassification(t *testing.T) {
	f := newVersionFixture(t)
	c := f.newContext(t, map[string]any{"chunk_size": 500, "kept": "same", "dropped": true})

	v1, err := f.vm.CreateVersion(context.Background(), c.ID, f.user, "before", false, nil)
	if err != nil {
		t.Fatalf("create version: %v", err)
	}

	if err := f.store.UpdateContextConfig(context.Background(), c.ID,
		map[string]any{"chunk_size": 900, "kept": "same", "introduced": 1},
		models.StrategyFixedSize, "text-embedding-004"); err != nil {
		t.Fatalf("update config: %v", err)
	}
	v2, err := f.vm.CreateVersion(context.Background(), c.ID, f.user, "after", false, nil)
	if err != nil {
		t.Fatalf("create version: %v", err)
	}

	diff, err := f.vm.CompareVersions(context.Background(), v1.ID, v2.ID)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if got := diff.ConfigChanges["chunk_size"].Type; got != models.ConfigModified {
		t.Fatalf("chunk_size should be modified, got %s", got)
	}
	if got := diff.ConfigChanges["dropped"].Type; got != models.ConfigRemoved {
		t.Fatalf("dropped should be removed, got %s", got)
	}
	if got := diff.ConfigChanges["introduced"].Type; got != models.ConfigAdded {
		t.Fatalf("introduced should be added, got %s", got)
	}
	if _, ok := diff.ConfigChanges["kept"]; ok {
		t.Fatalf("unchanged key reported in diff")
	}
}

func TestTagVersion(t *testing.T) {
	f := newVersionFixture(t)
	c := f.newContext(t, nil)

	v, err := f.vm.CreateVersion(context.Background(), c.ID, f.user, "taggable", false, nil)
	if err != nil {
		t.Fatalf("create version: %v", err)
	}

	tag, err := f.vm.TagVersion(context.Background(), c.ID, v.ID, f.user, "stable", "known good", models.TagTypeRelease)
	if err != nil {
		t.Fatalf("tag version: %v", err)
	}
	if tag.VersionID != v.ID {
		t.Fatalf("tag points at wrong version")
	}

	if _, err := f.vm.TagVersion(context.Background(), c.ID, v.ID, f.user, "", "", ""); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected validation error for empty name, got %v", err)
	}
	if _, err := f.vm.TagVersion(context.Background(), c.ID, v.ID, f.user, "x", "", "bogus"); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected validation error for bad type, got %v", err)
	}

	tags, err := f.vm.ListTags(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("list tags: %v", err)
	}
	if len(tags) != 1 || tags[0].Name != "stable" {
		t.Fatalf("unexpected tags: %v", tags)
	}

	if err := f.vm.DeleteTag(context.Background(), c.ID, "stable"); err != nil {
		t.Fatalf("delete tag: %v", err)
	}
	if err := f.vm.DeleteTag(context.Background(), c.ID, "stable"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found for second delete, got %v", err)
	}
}
