package skills_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/titan/internal/titan/skills"
	"github.com/antigravity-dev/titan/internal/titan/store"
)

func seedLocalRegistryWithManifest(t *testing.T, registryRoot, manifestTOML string) string {
	t.Helper()
	bundleDir := filepath.Join(registryRoot, "bundles", "bundle")
	if err := os.MkdirAll(bundleDir, 0o755); err != nil {
		t.Fatalf("mkdir bundle dir: %v", err)
	}
	writeSkillFixture(t, bundleDir, manifestTOML, "# Skill\n")
	hash, err := skills.BundleHash(bundleDir, false)
	if err != nil {
		t.Fatalf("BundleHash: %v", err)
	}
	index := []skills.IndexEntry{{Slug: "list-docs", Version: "1.0.0", Source: "bundles/bundle", SHA256: hash}}
	data, err := json.Marshal(index)
	if err != nil {
		t.Fatalf("marshal index: %v", err)
	}
	if err := os.WriteFile(filepath.Join(registryRoot, "index.json"), data, 0o644); err != nil {
		t.Fatalf("write index.json: %v", err)
	}
	return hash
}

func TestStageInstall_UnsignedReadOnlyBundleSucceeds(t *testing.T) {
	registryRoot := t.TempDir()
	seedLocalRegistryWithManifest(t, registryRoot, minimalManifestTOML)
	workspace := t.TempDir()

	staged, err := skills.StageInstall(context.Background(), &skills.LocalAdapter{RegistryRoot: registryRoot},
		workspace, "list-docs", "", false, t.TempDir())
	if err != nil {
		t.Fatalf("StageInstall: %v", err)
	}
	if staged.SignatureStatus != store.SignatureUnsigned {
		t.Errorf("SignatureStatus = %v, want SignatureUnsigned (no signature block, only READ scope)", staged.SignatureStatus)
	}
	if staged.Manifest.Slug != "list-docs" {
		t.Errorf("Slug = %q", staged.Manifest.Slug)
	}
}

const execManifestTOML = `
name = "Runner"
slug = "runner"
version = "1.0.0"
entrypoint_type = "prompt"
entrypoint = "tool:run_command {{input}}"

[permissions]
scopes = ["EXEC"]
allowed_paths = []
allowed_hosts = []
`

func TestStageInstall_UnsignedExecScopeDenied(t *testing.T) {
	registryRoot := t.TempDir()
	bundleDir := filepath.Join(registryRoot, "bundles", "bundle")
	if err := os.MkdirAll(bundleDir, 0o755); err != nil {
		t.Fatalf("mkdir bundle dir: %v", err)
	}
	writeSkillFixture(t, bundleDir, execManifestTOML, "# Runner\n")
	hash, err := skills.BundleHash(bundleDir, false)
	if err != nil {
		t.Fatalf("BundleHash: %v", err)
	}
	index := []skills.IndexEntry{{Slug: "runner", Version: "1.0.0", Source: "bundles/bundle", SHA256: hash}}
	data, _ := json.Marshal(index)
	if err := os.WriteFile(filepath.Join(registryRoot, "index.json"), data, 0o644); err != nil {
		t.Fatalf("write index.json: %v", err)
	}
	workspace := t.TempDir()

	_, err = skills.StageInstall(context.Background(), &skills.LocalAdapter{RegistryRoot: registryRoot},
		workspace, "runner", "", false, t.TempDir())
	if err == nil {
		t.Fatal("expected StageInstall to deny an unsigned EXEC-scope skill")
	}
}

const netNoHostsManifestTOML = `
name = "Pinger"
slug = "pinger"
version = "1.0.0"
entrypoint_type = "prompt"
entrypoint = "tool:http_get {{input}}"

[permissions]
scopes = ["NET"]
allowed_paths = []
allowed_hosts = []
`

func TestStageInstall_UnsignedNetScopeWithEmptyHostsDenied(t *testing.T) {
	registryRoot := t.TempDir()
	bundleDir := filepath.Join(registryRoot, "bundles", "bundle")
	if err := os.MkdirAll(bundleDir, 0o755); err != nil {
		t.Fatalf("mkdir bundle dir: %v", err)
	}
	writeSkillFixture(t, bundleDir, netNoHostsManifestTOML, "# Pinger\n")
	hash, err := skills.BundleHash(bundleDir, false)
	if err != nil {
		t.Fatalf("BundleHash: %v", err)
	}
	index := []skills.IndexEntry{{Slug: "pinger", Version: "1.0.0", Source: "bundles/bundle", SHA256: hash}}
	data, _ := json.Marshal(index)
	if err := os.WriteFile(filepath.Join(registryRoot, "index.json"), data, 0o644); err != nil {
		t.Fatalf("write index.json: %v", err)
	}
	workspace := t.TempDir()

	_, err = skills.StageInstall(context.Background(), &skills.LocalAdapter{RegistryRoot: registryRoot},
		workspace, "pinger", "", false, t.TempDir())
	if err == nil {
		t.Fatal("expected StageInstall to deny an unsigned NET-scope skill with no allowed_hosts")
	}
}

func TestStageInstall_HashMismatchErrors(t *testing.T) {
	registryRoot := t.TempDir()
	seedLocalRegistryWithManifest(t, registryRoot, minimalManifestTOML)

	data, err := os.ReadFile(filepath.Join(registryRoot, "index.json"))
	if err != nil {
		t.Fatalf("read index.json: %v", err)
	}
	var index []skills.IndexEntry
	if err := json.Unmarshal(data, &index); err != nil {
		t.Fatalf("unmarshal index.json: %v", err)
	}
	index[0].SHA256 = "0000000000000000000000000000000000000000000000000000000000000000"
	tampered, _ := json.Marshal(index)
	if err := os.WriteFile(filepath.Join(registryRoot, "index.json"), tampered, 0o644); err != nil {
		t.Fatalf("rewrite index.json: %v", err)
	}
	workspace := t.TempDir()

	_, err = skills.StageInstall(context.Background(), &skills.LocalAdapter{RegistryRoot: registryRoot},
		workspace, "list-docs", "", false, t.TempDir())
	if err == nil {
		t.Fatal("expected StageInstall to reject a bundle hash mismatch")
	}
}

func TestFinalize_CopiesToTargetAndUpsertsLock(t *testing.T) {
	registryRoot := t.TempDir()
	seedLocalRegistryWithManifest(t, registryRoot, minimalManifestTOML)
	workspace := t.TempDir()

	staged, err := skills.StageInstall(context.Background(), &skills.LocalAdapter{RegistryRoot: registryRoot},
		workspace, "list-docs", "", false, t.TempDir())
	if err != nil {
		t.Fatalf("StageInstall: %v", err)
	}

	installed, err := skills.Finalize(staged)
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if installed.Slug != "list-docs" {
		t.Errorf("Slug = %q", installed.Slug)
	}
	if _, err := os.Stat(filepath.Join(staged.TargetDir, "skill.toml")); err != nil {
		t.Errorf("expected skill.toml in target dir: %v", err)
	}

	lock, err := skills.LoadLock(staged.LockPath)
	if err != nil {
		t.Fatalf("LoadLock: %v", err)
	}
	if len(lock.Entries) != 1 || lock.Entries[0].Slug != "list-docs" {
		t.Errorf("lock entries = %+v, want exactly one for list-docs", lock.Entries)
	}
}
