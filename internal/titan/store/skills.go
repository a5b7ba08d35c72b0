package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// UpsertInstalledSkill records or updates a finalised skill install.
func (s *Store) UpsertInstalledSkill(sk *InstalledSkill) error {
	if sk.InstalledAt.IsZero() {
		sk.InstalledAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO installed_skills (slug, name, version, description, source, hash, signature_status,
			scopes, allowed_paths, allowed_hosts, last_run_goal_id, installed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slug) DO UPDATE SET name = excluded.name, version = excluded.version,
			description = excluded.description, source = excluded.source, hash = excluded.hash,
			signature_status = excluded.signature_status, scopes = excluded.scopes,
			allowed_paths = excluded.allowed_paths, allowed_hosts = excluded.allowed_hosts`,
		sk.Slug, sk.Name, sk.Version, nullableString(sk.Description), sk.Source, sk.Hash, sk.SignatureStatus,
		strings.Join(sk.Scopes, ","), strings.Join(sk.AllowedPaths, ","), strings.Join(sk.AllowedHosts, ","),
		nullableString(sk.LastRunGoalID), sk.InstalledAt,
	)
	if err != nil {
		return fmt.Errorf("store: upsert installed skill: %w", err)
	}
	return nil
}

// GetInstalledSkill returns an installed skill by slug.
func (s *Store) GetInstalledSkill(slug string) (*InstalledSkill, error) {
	sk := &InstalledSkill{}
	var scopes, allowedPaths, allowedHosts string
	err := s.db.QueryRow(`
		SELECT slug, name, version, COALESCE(description, ''), source, hash, signature_status,
			scopes, allowed_paths, allowed_hosts, COALESCE(last_run_goal_id, ''), installed_at
		FROM installed_skills WHERE slug = ?`, slug,
	).Scan(&sk.Slug, &sk.Name, &sk.Version, &sk.Description, &sk.Source, &sk.Hash, &sk.SignatureStatus,
		&scopes, &allowedPaths, &allowedHosts, &sk.LastRunGoalID, &sk.InstalledAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("store: installed skill %q not found", slug)
		}
		return nil, fmt.Errorf("store: get installed skill: %w", err)
	}
	sk.Scopes = splitNonEmpty(scopes)
	sk.AllowedPaths = splitNonEmpty(allowedPaths)
	sk.AllowedHosts = splitNonEmpty(allowedHosts)
	return sk, nil
}

// ListInstalledSkills returns every installed skill, ordered by slug.
func (s *Store) ListInstalledSkills() ([]*InstalledSkill, error) {
	rows, err := s.db.Query(`
		SELECT slug, name, version, COALESCE(description, ''), source, hash, signature_status,
			scopes, allowed_paths, allowed_hosts, COALESCE(last_run_goal_id, ''), installed_at
		FROM installed_skills ORDER BY slug ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list installed skills: %w", err)
	}
	defer rows.Close()

	var out []*InstalledSkill
	for rows.Next() {
		sk := &InstalledSkill{}
		var scopes, allowedPaths, allowedHosts string
		if err := rows.Scan(&sk.Slug, &sk.Name, &sk.Version, &sk.Description, &sk.Source, &sk.Hash, &sk.SignatureStatus,
			&scopes, &allowedPaths, &allowedHosts, &sk.LastRunGoalID, &sk.InstalledAt); err != nil {
			return nil, fmt.Errorf("store: scan installed skill: %w", err)
		}
		sk.Scopes = splitNonEmpty(scopes)
		sk.AllowedPaths = splitNonEmpty(allowedPaths)
		sk.AllowedHosts = splitNonEmpty(allowedHosts)
		out = append(out, sk)
	}
	return out, rows.Err()
}

// SetSkillLastRunGoal records the goal that most recently invoked slug.
func (s *Store) SetSkillLastRunGoal(slug, goalID string) error {
	_, err := s.db.Exec(`UPDATE installed_skills SET last_run_goal_id = ? WHERE slug = ?`, goalID, slug)
	if err != nil {
		return fmt.Errorf("store: set skill last run goal: %w", err)
	}
	return nil
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
