package skills_test

import (
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/titan/internal/titan/skills"
)

func TestLoadLock_MissingFileReturnsEmptyV1(t *testing.T) {
	lock, err := skills.LoadLock(filepath.Join(t.TempDir(), "skills.lock"))
	if err != nil {
		t.Fatalf("LoadLock: %v", err)
	}
	if lock.Version != 1 || len(lock.Entries) != 0 {
		t.Errorf("got %+v, want empty v1 lock", lock)
	}
}

func TestUpsert_ReplacesExistingEntryForSameSlug(t *testing.T) {
	lock, _ := skills.LoadLock(filepath.Join(t.TempDir(), "skills.lock"))
	lock.Upsert(skills.LockEntry{Slug: "list-docs", Version: "1.0.0", Hash: "aaa"})
	lock.Upsert(skills.LockEntry{Slug: "list-docs", Version: "1.1.0", Hash: "bbb"})

	if len(lock.Entries) != 1 {
		t.Fatalf("got %d entries, want exactly one per slug", len(lock.Entries))
	}
	if lock.Entries[0].Version != "1.1.0" || lock.Entries[0].Hash != "bbb" {
		t.Errorf("got %+v, want the newer entry to have replaced the older", lock.Entries[0])
	}
}

func TestSaveThenLoad_RoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "skills.lock")
	lock, _ := skills.LoadLock(path)
	lock.Upsert(skills.LockEntry{Slug: "list-docs", Version: "1.0.0", Source: "local", Hash: "aaa"})
	lock.Upsert(skills.LockEntry{Slug: "http-ping", Version: "2.0.0", Source: "git", Hash: "bbb"})

	if err := lock.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded, err := skills.LoadLock(path)
	if err != nil {
		t.Fatalf("LoadLock after save: %v", err)
	}
	if len(reloaded.Entries) != 2 {
		t.Fatalf("got %d entries after reload, want 2", len(reloaded.Entries))
	}
}
