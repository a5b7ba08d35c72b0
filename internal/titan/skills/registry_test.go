package skills_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/titan/internal/titan/skills"
)

func seedLocalRegistry(t *testing.T, root string) {
	t.Helper()
	bundleDir := filepath.Join(root, "bundles", "list-docs-1.0.0")
	if err := os.MkdirAll(bundleDir, 0o755); err != nil {
		t.Fatalf("mkdir bundle dir: %v", err)
	}
	writeSkillFixture(t, bundleDir, minimalManifestTOML, "# List Docs\n")
	hash, err := skills.BundleHash(bundleDir, false)
	if err != nil {
		t.Fatalf("BundleHash: %v", err)
	}

	index := []skills.IndexEntry{
		{Slug: "list-docs", Version: "1.0.0", Source: "bundles/list-docs-1.0.0", SHA256: hash},
		{Slug: "list-docs", Version: "0.9.0", Source: "bundles/list-docs-1.0.0", SHA256: hash},
	}
	data, err := json.Marshal(index)
	if err != nil {
		t.Fatalf("marshal index: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "index.json"), data, 0o644); err != nil {
		t.Fatalf("write index.json: %v", err)
	}
}

func TestLocalAdapter_ResolveWithoutVersionPicksHighest(t *testing.T) {
	root := t.TempDir()
	seedLocalRegistry(t, root)
	a := &skills.LocalAdapter{RegistryRoot: root}

	entry, err := a.Resolve(context.Background(), "list-docs", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if entry.Version != "1.0.0" {
		t.Errorf("Version = %q, want highest (1.0.0)", entry.Version)
	}
}

func TestLocalAdapter_ResolveExactVersion(t *testing.T) {
	root := t.TempDir()
	seedLocalRegistry(t, root)
	a := &skills.LocalAdapter{RegistryRoot: root}

	entry, err := a.Resolve(context.Background(), "list-docs", "0.9.0")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if entry.Version != "0.9.0" {
		t.Errorf("Version = %q, want 0.9.0", entry.Version)
	}
}

func TestLocalAdapter_ResolveUnknownSlugErrors(t *testing.T) {
	root := t.TempDir()
	seedLocalRegistry(t, root)
	a := &skills.LocalAdapter{RegistryRoot: root}

	if _, err := a.Resolve(context.Background(), "nonexistent", ""); err == nil {
		t.Fatal("expected error for unknown slug")
	}
}

func TestLocalAdapter_FetchCopiesBundleDirectory(t *testing.T) {
	root := t.TempDir()
	seedLocalRegistry(t, root)
	a := &skills.LocalAdapter{RegistryRoot: root}

	entry, err := a.Resolve(context.Background(), "list-docs", "1.0.0")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	dest := filepath.Join(t.TempDir(), "dest")
	if err := a.Fetch(context.Background(), entry, dest); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dest, "skill.toml")); err != nil {
		t.Errorf("expected skill.toml copied into dest: %v", err)
	}
}

func TestGitAdapter_ResolveRequiresExplicitVersion(t *testing.T) {
	a := &skills.GitAdapter{RepoURL: "https://example.com/repo.git"}
	if _, err := a.Resolve(context.Background(), "list-docs", ""); err == nil {
		t.Fatal("expected error when version is empty")
	}
}
