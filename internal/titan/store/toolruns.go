package store

import (
	"fmt"
	"time"
)

// ErrApprovalAlreadyConsumed is returned by RecordToolRun when the
// approval_id has already been used to authorise an execution — the
// unique partial index on tool_runs.approval_id is what actually enforces
// at-most-once; this just gives callers a typed error instead of a raw
// constraint-violation string.
var ErrApprovalAlreadyConsumed = fmt.Errorf("store: approval already consumed by a tool run")

// RecordToolRun persists a tool invocation. When approvalID is non-empty
// and has already backed a run, the unique index rejects the insert and
// RecordToolRun returns ErrApprovalAlreadyConsumed.
func (s *Store) RecordToolRun(r *ToolRun) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO tool_runs (id, approval_id, tool_name, status, output, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, nullableString(r.ApprovalID), r.ToolName, r.Status, nullableString(r.Output), r.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrApprovalAlreadyConsumed
		}
		return fmt.Errorf("store: record tool run: %w", err)
	}
	return nil
}

// HasToolRunForApproval reports whether approvalID has already backed a
// tool run, i.e. whether replaying it would be a no-op.
func (s *Store) HasToolRunForApproval(approvalID string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM tool_runs WHERE approval_id = ?`, approvalID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("store: check tool run for approval: %w", err)
	}
	return count > 0, nil
}

// ListToolRuns returns every tool run, most recent first, capped at limit.
func (s *Store) ListToolRuns(limit int) ([]*ToolRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, COALESCE(approval_id, ''), tool_name, status, COALESCE(output, ''), created_at
		FROM tool_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list tool runs: %w", err)
	}
	defer rows.Close()

	var out []*ToolRun
	for rows.Next() {
		r := &ToolRun{}
		if err := rows.Scan(&r.ID, &r.ApprovalID, &r.ToolName, &r.Status, &r.Output, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan tool run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
