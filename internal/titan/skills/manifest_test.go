package skills_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/titan/internal/titan/skills"
)

func writeSkillFixture(t *testing.T, dir string, manifestTOML, skillMD string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, "skill.toml"), []byte(manifestTOML), 0o644); err != nil {
		t.Fatalf("write skill.toml: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(skillMD), 0o644); err != nil {
		t.Fatalf("write SKILL.md: %v", err)
	}
}

const minimalManifestTOML = `
name = "List Docs"
slug = "list-docs"
version = "1.0.0"
entrypoint_type = "prompt"
entrypoint = "tool:list_dir {{input}}"

[permissions]
scopes = ["READ"]
allowed_paths = ["docs"]
allowed_hosts = []
`

func TestLoadManifest_ParsesFields(t *testing.T) {
	dir := t.TempDir()
	writeSkillFixture(t, dir, minimalManifestTOML, "# List Docs\n")

	m, err := skills.LoadManifest(dir)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if m.Slug != "list-docs" || m.Version != "1.0.0" {
		t.Errorf("got slug=%q version=%q", m.Slug, m.Version)
	}
	if m.EntrypointType != skills.EntrypointPrompt {
		t.Errorf("EntrypointType = %q, want prompt", m.EntrypointType)
	}
	if !m.HasScope("READ") || m.HasScope("EXEC") {
		t.Errorf("HasScope mismatch: scopes=%v", m.Permissions.Scopes)
	}
}

func TestLoadManifest_MissingSlugErrors(t *testing.T) {
	dir := t.TempDir()
	writeSkillFixture(t, dir, `
name = "Broken"
version = "1.0.0"
entrypoint_type = "prompt"
entrypoint = "tool:list_dir {{input}}"
`, "# Broken\n")

	if _, err := skills.LoadManifest(dir); err == nil {
		t.Fatal("expected error for manifest missing slug")
	}
}

func TestLoadManifest_UnrecognisedEntrypointTypeRejectedBySchema(t *testing.T) {
	dir := t.TempDir()
	writeSkillFixture(t, dir, `
name = "Broken"
slug = "broken"
version = "1.0.0"
entrypoint_type = "carrier_pigeon"
entrypoint = "tool:list_dir {{input}}"
`, "# Broken\n")

	if _, err := skills.LoadManifest(dir); err == nil {
		t.Fatal("expected schema validation to reject an unrecognised entrypoint_type")
	}
}

func TestBundleHash_StableAcrossRecomputation(t *testing.T) {
	dir := t.TempDir()
	writeSkillFixture(t, dir, minimalManifestTOML, "# List Docs\n")

	h1, err := skills.BundleHash(dir, false)
	if err != nil {
		t.Fatalf("BundleHash: %v", err)
	}
	h2, err := skills.BundleHash(dir, false)
	if err != nil {
		t.Fatalf("BundleHash: %v", err)
	}
	if h1 != h2 {
		t.Errorf("hash not stable: %s != %s", h1, h2)
	}
}

func TestBundleHash_ChangesWhenFileContentsChange(t *testing.T) {
	dir := t.TempDir()
	writeSkillFixture(t, dir, minimalManifestTOML, "# List Docs\n")
	h1, err := skills.BundleHash(dir, false)
	if err != nil {
		t.Fatalf("BundleHash: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte("# Changed\n"), 0o644); err != nil {
		t.Fatalf("rewrite SKILL.md: %v", err)
	}
	h2, err := skills.BundleHash(dir, false)
	if err != nil {
		t.Fatalf("BundleHash: %v", err)
	}
	if h1 == h2 {
		t.Error("expected hash to change after file contents changed")
	}
}

func TestBundleHash_SigStrippedIgnoresSignatureField(t *testing.T) {
	dir := t.TempDir()
	writeSkillFixture(t, dir, minimalManifestTOML, "# List Docs\n")
	sigStripped1, err := skills.BundleHash(dir, true)
	if err != nil {
		t.Fatalf("BundleHash: %v", err)
	}

	signedTOML := minimalManifestTOML + "\n[signature]\npublic_key_id = \"k1\"\ned25519_sig_base64 = \"AAAA\"\n"
	writeSkillFixture(t, dir, signedTOML, "# List Docs\n")
	sigStripped2, err := skills.BundleHash(dir, true)
	if err != nil {
		t.Fatalf("BundleHash: %v", err)
	}
	if sigStripped1 != sigStripped2 {
		t.Error("sig-stripped bundle hash should not change when only the signature field is added")
	}
}
