package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// ErrDuplicateGoal is returned by CreateGoal when id already exists.
var ErrDuplicateGoal = fmt.Errorf("store: goal id already exists")

// CreateGoal inserts a new goal row, rejecting a duplicate id.
func (s *Store) CreateGoal(g *Goal) error {
	now := time.Now()
	if g.CreatedAt.IsZero() {
		g.CreatedAt = now
	}
	g.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO goals (id, description, status, dedupe_key, session_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		g.ID, g.Description, g.Status, nullableString(g.DedupeKey), nullableString(g.SessionID), g.CreatedAt, g.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateGoal
		}
		return fmt.Errorf("store: create goal: %w", err)
	}
	return nil
}

// GetGoal returns the goal with the given id.
func (s *Store) GetGoal(id string) (*Goal, error) {
	return s.scanGoal(s.db.QueryRow(`
		SELECT id, description, status, COALESCE(dedupe_key, ''), COALESCE(session_id, ''), created_at, updated_at
		FROM goals WHERE id = ?`, id))
}

// FindGoalByDedupeKey returns the pre-existing goal for key, or (nil, nil)
// when no goal has claimed it.
func (s *Store) FindGoalByDedupeKey(key string) (*Goal, error) {
	if key == "" {
		return nil, nil
	}
	g, err := s.scanGoal(s.db.QueryRow(`
		SELECT id, description, status, COALESCE(dedupe_key, ''), COALESCE(session_id, ''), created_at, updated_at
		FROM goals WHERE dedupe_key = ?`, key))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return g, err
}

func (s *Store) scanGoal(row *sql.Row) (*Goal, error) {
	g := &Goal{}
	if err := row.Scan(&g.ID, &g.Description, &g.Status, &g.DedupeKey, &g.SessionID, &g.CreatedAt, &g.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan goal: %w", err)
	}
	return g, nil
}

// SetGoalStatus updates a goal's status and updated_at.
func (s *Store) SetGoalStatus(id string, status GoalStatus) error {
	_, err := s.db.Exec(`UPDATE goals SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("store: set goal status: %w", err)
	}
	return nil
}

// ListGoals returns up to limit goals, most recent first.
func (s *Store) ListGoals(limit int) ([]*Goal, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, description, status, COALESCE(dedupe_key, ''), COALESCE(session_id, ''), created_at, updated_at
		FROM goals ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list goals: %w", err)
	}
	defer rows.Close()

	var out []*Goal
	for rows.Next() {
		g := &Goal{}
		if err := rows.Scan(&g.ID, &g.Description, &g.Status, &g.DedupeKey, &g.SessionID, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
