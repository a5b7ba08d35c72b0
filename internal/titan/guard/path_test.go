package guard_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/antigravity-dev/titan/internal/titan/guard"
)

func TestResolveExistingPathWithin_RejectsEscape(t *testing.T) {
	root := t.TempDir()
	canonicalRoot, err := guard.CanonicalizeExistingDir(root)
	if err != nil {
		t.Fatalf("CanonicalizeExistingDir: %v", err)
	}

	if err := os.WriteFile(filepath.Join(root, "inside.txt"), []byte("ok"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if _, err := guard.ResolveExistingPathWithin(canonicalRoot, "inside.txt"); err != nil {
		t.Errorf("expected inside.txt to resolve, got %v", err)
	}

	if _, err := guard.ResolveExistingPathWithin(canonicalRoot, "../../etc/passwd"); err == nil {
		t.Error("expected escape via .. to be rejected")
	}
}

func TestResolveExistingPathWithin_RejectsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	canonicalRoot, err := guard.CanonicalizeExistingDir(root)
	if err != nil {
		t.Fatalf("CanonicalizeExistingDir: %v", err)
	}

	outsideFile := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(outsideFile, []byte("secret"), 0o644); err != nil {
		t.Fatalf("write outside fixture: %v", err)
	}
	link := filepath.Join(root, "escape-link")
	if err := os.Symlink(outsideFile, link); err != nil {
		t.Skipf("symlinks unsupported in this environment: %v", err)
	}

	if _, err := guard.ResolveExistingPathWithin(canonicalRoot, "escape-link"); err == nil {
		t.Error("expected symlink escape to be rejected")
	}
}

func TestResolveWritePathWithin_AllowsNewFileInRoot(t *testing.T) {
	root := t.TempDir()
	canonicalRoot, err := guard.CanonicalizeExistingDir(root)
	if err != nil {
		t.Fatalf("CanonicalizeExistingDir: %v", err)
	}

	resolved, err := guard.ResolveWritePathWithin(canonicalRoot, "new-file.txt")
	if err != nil {
		t.Fatalf("ResolveWritePathWithin: %v", err)
	}
	if filepath.Dir(resolved) != canonicalRoot {
		t.Errorf("resolved parent %q, want %q", filepath.Dir(resolved), canonicalRoot)
	}
}

func TestResolveWritePathWithin_RejectsEscapingParent(t *testing.T) {
	root := t.TempDir()
	canonicalRoot, err := guard.CanonicalizeExistingDir(root)
	if err != nil {
		t.Fatalf("CanonicalizeExistingDir: %v", err)
	}

	if _, err := guard.ResolveWritePathWithin(canonicalRoot, "../outside.txt"); err == nil {
		t.Error("expected write outside root to be rejected")
	}
}
