package skills

import (
	"bytes"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// LockEntry is one skills.lock row.
type LockEntry struct {
	Slug    string `toml:"slug"`
	Version string `toml:"version"`
	Source  string `toml:"source"`
	Hash    string `toml:"hash"`
}

// Lock is the parsed skills.lock document — at most one entry per slug.
type Lock struct {
	Version int         `toml:"version"`
	Entries []LockEntry `toml:"entries"`
}

// LoadLock reads path, returning an empty v1 Lock when the file doesn't
// exist yet (a fresh install has no lock file).
func LoadLock(path string) (*Lock, error) {
	l := &Lock{Version: 1}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return l, nil
	}
	if _, err := toml.DecodeFile(path, l); err != nil {
		return nil, fmt.Errorf("skills: parse lock file %s: %w", path, err)
	}
	return l, nil
}

// Upsert replaces any existing entry for e.Slug with e, enforcing the
// at-most-one-entry-per-slug invariant.
func (l *Lock) Upsert(e LockEntry) {
	for i := range l.Entries {
		if l.Entries[i].Slug == e.Slug {
			l.Entries[i] = e
			return
		}
	}
	l.Entries = append(l.Entries, e)
}

// Save writes l to path as TOML.
func (l *Lock) Save(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(l); err != nil {
		return fmt.Errorf("skills: encode lock file: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("skills: write lock file %s: %w", path, err)
	}
	return nil
}
