package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"sort"

	"github.com/antigravity-dev/titan/internal/titan/guard"
)

// IndexEntry is one registry-listed version of a skill.
type IndexEntry struct {
	Slug    string `json:"slug"`
	Version string `json:"version"`
	Source  string `json:"source"`
	SHA256  string `json:"sha256"`
}

// Adapter abstracts the registry transport — local directory, shallow git
// clone, or plain HTTP fetch — the same tagged-variant-over-open-inheritance
// shape as the teacher's runtime.Runtime interface with docker.Adapter as
// one concrete implementation.
type Adapter interface {
	// Resolve returns the index entry for slug, picking the highest semver-ish
	// lexical version when version is empty.
	Resolve(ctx context.Context, slug, version string) (*IndexEntry, error)
	// Fetch copies the bundle for entry into destDir.
	Fetch(ctx context.Context, entry *IndexEntry, destDir string) error
}

// LocalAdapter reads an index.json and bundle directories from a local
// registry root — the simplest adapter, and the one the acceptance tests'
// "local registry contains list-docs@1.0.0" scenario exercises.
type LocalAdapter struct {
	RegistryRoot string
}

func (a *LocalAdapter) Resolve(_ context.Context, slug, version string) (*IndexEntry, error) {
	entries, err := a.readIndex()
	if err != nil {
		return nil, err
	}
	return resolveFromIndex(entries, slug, version)
}

func (a *LocalAdapter) Fetch(_ context.Context, entry *IndexEntry, destDir string) error {
	srcDir := filepath.Join(a.RegistryRoot, entry.Source)
	return copyDir(srcDir, destDir)
}

func (a *LocalAdapter) readIndex() ([]IndexEntry, error) {
	data, err := os.ReadFile(filepath.Join(a.RegistryRoot, "index.json"))
	if err != nil {
		return nil, fmt.Errorf("skills: read local registry index: %w", err)
	}
	var entries []IndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("skills: parse local registry index: %w", err)
	}
	return entries, nil
}

// GitAdapter fetches a bundle via a shallow clone, grounded on
// internal/gitai/supervisor/gateway.go's exec.Command process-spawning
// idiom for invoking an external binary rather than a git library.
type GitAdapter struct {
	RepoURL string
}

func (a *GitAdapter) Resolve(_ context.Context, slug, version string) (*IndexEntry, error) {
	if version == "" {
		return nil, fmt.Errorf("skills: git adapter requires an explicit version (tag)")
	}
	return &IndexEntry{Slug: slug, Version: version, Source: a.RepoURL}, nil
}

func (a *GitAdapter) Fetch(ctx context.Context, entry *IndexEntry, destDir string) error {
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", "--branch", entry.Version, a.RepoURL, destDir)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("skills: git clone %s@%s: %w: %s", a.RepoURL, entry.Version, err, string(out))
	}
	return nil
}

// HTTPAdapter fetches the registry index and a bundle over plain HTTPS,
// guarded the same way the tool executor's http_get is — no outbound
// fetch this package performs is exempt from the SSRF host guard. Fetch
// saves the bundle response body unchanged as destDir/bundle.tar and does
// not unpack it.
type HTTPAdapter struct {
	IndexURL string
	Client   *http.Client
}

func (a *HTTPAdapter) Resolve(ctx context.Context, slug, version string) (*IndexEntry, error) {
	if err := guard.CheckURL(a.IndexURL); err != nil {
		return nil, fmt.Errorf("skills: http registry: %w", err)
	}
	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.IndexURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("skills: fetch http registry index: %w", err)
	}
	defer resp.Body.Close()

	var entries []IndexEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("skills: parse http registry index: %w", err)
	}
	return resolveFromIndex(entries, slug, version)
}

func (a *HTTPAdapter) Fetch(ctx context.Context, entry *IndexEntry, destDir string) error {
	if err := guard.CheckURL(entry.Source); err != nil {
		return fmt.Errorf("skills: http fetch: %w", err)
	}
	client := a.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, entry.Source, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("skills: fetch bundle: %w", err)
	}
	defer resp.Body.Close()

	// The response body is written as-is to bundle.tar; no archive format
	// is unpacked here, so the destination holds no skill.toml. This
	// repo's acceptance scenarios exercise only the local adapter.
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return err
	}
	out, err := os.Create(filepath.Join(destDir, "bundle.tar"))
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, resp.Body)
	return err
}

func resolveFromIndex(entries []IndexEntry, slug, version string) (*IndexEntry, error) {
	var matches []IndexEntry
	for _, e := range entries {
		if e.Slug == slug {
			matches = append(matches, e)
		}
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("skills: %q not found in registry", slug)
	}
	if version != "" {
		for i := range matches {
			if matches[i].Version == version {
				return &matches[i], nil
			}
		}
		return nil, fmt.Errorf("skills: %q version %q not found in registry", slug, version)
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Version > matches[j].Version })
	return &matches[0], nil
}

func copyDir(src, dst string) error {
	return filepath.WalkDir(src, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
}
