package skills

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/antigravity-dev/titan/internal/titan/store"
)

// ErrDefaultDenied is returned by StageInstall when the bundle trips the
// unsigned-risky default-deny policy.
var ErrDefaultDenied = fmt.Errorf("skills: unsigned bundle denied by default policy")

// StagedInstall is what StageInstall produces — everything needed either
// to finalise the install (once approved) or to build the approval
// payload the spec requires.
type StagedInstall struct {
	Manifest        *Manifest
	Entry           *IndexEntry
	Hash            string
	SignatureStatus store.SignatureStatus
	StagingDir      string
	TargetDir       string
	LockPath        string
}

// StageInstall implements stage_install_v1: resolve the version, honour an
// existing lock pin unless force is set, fetch to an isolated staging
// directory, verify the bundle hash against the registry-declared sha256,
// load the manifest, compute signature status, and apply the default-deny
// policy for unsigned risky scopes.
func StageInstall(ctx context.Context, adapter Adapter, workspaceDir, slug, version string, force bool, trustRoot string) (*StagedInstall, error) {
	lockPath := filepath.Join(workspaceDir, "skills.lock")
	lock, err := LoadLock(lockPath)
	if err != nil {
		return nil, err
	}
	if !force {
		for _, e := range lock.Entries {
			if e.Slug == slug && version == "" {
				version = e.Version
			}
		}
	}

	entry, err := adapter.Resolve(ctx, slug, version)
	if err != nil {
		return nil, err
	}

	stagingDir := filepath.Join(workspaceDir, "skills", "staging", slug+"-"+entry.Version)
	if err := os.RemoveAll(stagingDir); err != nil {
		return nil, fmt.Errorf("skills: clear staging dir: %w", err)
	}
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("skills: create staging dir: %w", err)
	}
	if err := adapter.Fetch(ctx, entry, stagingDir); err != nil {
		return nil, err
	}

	hash, err := BundleHash(stagingDir, false)
	if err != nil {
		return nil, err
	}
	if entry.SHA256 != "" && hash != entry.SHA256 {
		return nil, fmt.Errorf("skills: bundle hash mismatch: registry declared %s, computed %s", entry.SHA256, hash)
	}

	manifest, err := LoadManifest(stagingDir)
	if err != nil {
		return nil, err
	}

	sigStatus, err := VerifySignature(stagingDir, manifest, trustRoot)
	if err != nil {
		return nil, err
	}

	if err := checkDefaultDeny(manifest, sigStatus); err != nil {
		return nil, err
	}

	return &StagedInstall{
		Manifest:        manifest,
		Entry:           entry,
		Hash:            hash,
		SignatureStatus: sigStatus,
		StagingDir:      stagingDir,
		TargetDir:       filepath.Join(workspaceDir, "skills", "installed", slug),
		LockPath:        lockPath,
	}, nil
}

// checkDefaultDeny rejects unsigned skills declaring EXEC, and unsigned
// skills declaring NET with a wildcard or empty allowed_hosts — the
// spec's exact default-deny boundary.
func checkDefaultDeny(m *Manifest, sigStatus store.SignatureStatus) error {
	if sigStatus == store.SignatureVerified {
		return nil
	}
	if m.HasScope("EXEC") {
		return fmt.Errorf("%w: unsigned skill declares EXEC scope", ErrDefaultDenied)
	}
	if m.HasScope("NET") {
		if len(m.Permissions.AllowedHosts) == 0 {
			return fmt.Errorf("%w: unsigned skill declares NET scope with no allowed_hosts", ErrDefaultDenied)
		}
		for _, h := range m.Permissions.AllowedHosts {
			if h == "*" {
				return fmt.Errorf("%w: unsigned skill declares NET scope with wildcard allowed_hosts", ErrDefaultDenied)
			}
		}
	}
	return nil
}

// Finalize copies staging→target (replacing any existing install), updates
// skills.lock to contain exactly one entry for staged.Manifest.Slug, and
// returns the InstalledSkill record for persistence.
func Finalize(staged *StagedInstall) (*store.InstalledSkill, error) {
	if err := os.RemoveAll(staged.TargetDir); err != nil {
		return nil, fmt.Errorf("skills: clear target dir: %w", err)
	}
	if err := copyDir(staged.StagingDir, staged.TargetDir); err != nil {
		return nil, fmt.Errorf("skills: copy staging to target: %w", err)
	}

	lock, err := LoadLock(staged.LockPath)
	if err != nil {
		return nil, err
	}
	lock.Upsert(LockEntry{
		Slug: staged.Manifest.Slug, Version: staged.Manifest.Version,
		Source: staged.Entry.Source, Hash: staged.Hash,
	})
	if err := lock.Save(staged.LockPath); err != nil {
		return nil, err
	}

	return &store.InstalledSkill{
		Slug:            staged.Manifest.Slug,
		Name:            staged.Manifest.Name,
		Version:         staged.Manifest.Version,
		Source:          staged.Entry.Source,
		Hash:            staged.Hash,
		SignatureStatus: staged.SignatureStatus,
		Scopes:          staged.Manifest.Permissions.Scopes,
		AllowedPaths:    staged.Manifest.Permissions.AllowedPaths,
		AllowedHosts:    staged.Manifest.Permissions.AllowedHosts,
	}, nil
}

// ApprovalPayload serialises the fields the spec requires as an
// approval's input when a staged install needs approval-mediated install.
type ApprovalPayload struct {
	Slug            string               `json:"slug"`
	Version         string               `json:"version"`
	Source          string               `json:"source"`
	Scopes          []string             `json:"scopes"`
	AllowedPaths    []string             `json:"allowed_paths"`
	AllowedHosts    []string             `json:"allowed_hosts"`
	SignatureStatus store.SignatureStatus `json:"signature_status"`
	Hash            string               `json:"hash"`
	StagingDir      string               `json:"staging_dir"`
	TargetDir       string               `json:"target_dir"`
	LockPath        string               `json:"lock_path"`
}

// ToApprovalPayload converts a StagedInstall to its approval-input shape.
func (s *StagedInstall) ToApprovalPayload() ApprovalPayload {
	return ApprovalPayload{
		Slug: s.Manifest.Slug, Version: s.Manifest.Version, Source: s.Entry.Source,
		Scopes: s.Manifest.Permissions.Scopes, AllowedPaths: s.Manifest.Permissions.AllowedPaths,
		AllowedHosts: s.Manifest.Permissions.AllowedHosts, SignatureStatus: s.SignatureStatus,
		Hash: s.Hash, StagingDir: s.StagingDir, TargetDir: s.TargetDir, LockPath: s.LockPath,
	}
}
