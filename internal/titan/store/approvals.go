package store

import (
	"database/sql"
	"fmt"
	"time"
)

// ErrApprovalNotFound is returned when no approval matches the given id.
var ErrApprovalNotFound = fmt.Errorf("store: approval not found")

// ErrApprovalNotPending is returned by ResolveApproval when the approval
// has already left the pending state — the resolution is a no-op rather
// than an overwrite, so a replayed /approve never flips a denied approval
// back to approved.
var ErrApprovalNotPending = fmt.Errorf("store: approval is not pending")

// CreateApproval inserts a new pending approval.
func (s *Store) CreateApproval(a *Approval) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO approvals (id, nonce, goal_id, tool_name, capability, input, status, requested_by, expires_at_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 'pending', ?, ?, ?)`,
		a.ID, a.Nonce, nullableString(a.GoalID), a.ToolName, a.Capability, nullableString(a.Input), nullableString(a.RequestedBy), a.ExpiresAtMS, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: create approval: %w", err)
	}
	return nil
}

// GetApproval returns the approval by id, first sweeping it to expired if
// its TTL has elapsed — every read observes an up-to-date status, matching
// the "sweep on read, not just on a ticker" guarantee.
func (s *Store) GetApproval(id string) (*Approval, error) {
	if err := s.expireOne(id); err != nil {
		return nil, err
	}
	a, err := s.scanApproval(s.db.QueryRow(`
		SELECT id, nonce, COALESCE(goal_id, ''), tool_name, capability, COALESCE(input, ''), status,
			COALESCE(requested_by, ''), COALESCE(resolved_by, ''), COALESCE(decision_reason, ''), expires_at_ms, created_at, resolved_at
		FROM approvals WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, ErrApprovalNotFound
	}
	return a, err
}

func (s *Store) scanApproval(row *sql.Row) (*Approval, error) {
	a := &Approval{}
	var resolvedAt sql.NullTime
	if err := row.Scan(&a.ID, &a.Nonce, &a.GoalID, &a.ToolName, &a.Capability, &a.Input, &a.Status,
		&a.RequestedBy, &a.ResolvedBy, &a.DecisionReason, &a.ExpiresAtMS, &a.CreatedAt, &resolvedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("store: scan approval: %w", err)
	}
	if resolvedAt.Valid {
		a.ResolvedAt = &resolvedAt.Time
	}
	return a, nil
}

// ListApprovals returns approvals in status, most recent first. Pass ""
// for every status.
func (s *Store) ListApprovals(status ApprovalStatus) ([]*Approval, error) {
	if err := s.ExpirePendingApprovals(); err != nil {
		return nil, err
	}
	query := `
		SELECT id, nonce, COALESCE(goal_id, ''), tool_name, capability, COALESCE(input, ''), status,
			COALESCE(requested_by, ''), COALESCE(resolved_by, ''), COALESCE(decision_reason, ''), expires_at_ms, created_at, resolved_at
		FROM approvals`
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = s.db.Query(query+" WHERE status = ? ORDER BY created_at DESC", status)
	} else {
		rows, err = s.db.Query(query + " ORDER BY created_at DESC")
	}
	if err != nil {
		return nil, fmt.Errorf("store: list approvals: %w", err)
	}
	defer rows.Close()

	var out []*Approval
	for rows.Next() {
		a := &Approval{}
		var resolvedAt sql.NullTime
		if err := rows.Scan(&a.ID, &a.Nonce, &a.GoalID, &a.ToolName, &a.Capability, &a.Input, &a.Status,
			&a.RequestedBy, &a.ResolvedBy, &a.DecisionReason, &a.ExpiresAtMS, &a.CreatedAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("store: scan approval: %w", err)
		}
		if resolvedAt.Valid {
			a.ResolvedAt = &resolvedAt.Time
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ResolveApproval transitions a pending approval to approved or denied.
// The UPDATE's WHERE clause only matches rows still in status='pending',
// so concurrent or replayed resolutions are idempotent: the first caller
// wins, every later caller observes RowsAffected == 0 and gets
// ErrApprovalNotPending.
func (s *Store) ResolveApproval(id string, approve bool, resolvedBy, reason string) (*Approval, error) {
	if err := s.expireOne(id); err != nil {
		return nil, err
	}

	status := ApprovalDenied
	if approve {
		status = ApprovalApproved
	}

	res, err := s.db.Exec(`
		UPDATE approvals SET status = ?, resolved_by = ?, decision_reason = ?, resolved_at = ?
		WHERE id = ? AND status = 'pending'`,
		status, nullableString(resolvedBy), nullableString(reason), time.Now(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("store: resolve approval: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("store: resolve approval rows affected: %w", err)
	}
	if n == 0 {
		existing, getErr := s.GetApproval(id)
		if getErr != nil {
			return nil, getErr
		}
		return existing, ErrApprovalNotPending
	}
	return s.GetApproval(id)
}

// ExpirePendingApprovals sweeps every pending approval whose TTL has
// elapsed to expired. Called by the background sweep ticker and inline
// before any read.
func (s *Store) ExpirePendingApprovals() error {
	nowMS := time.Now().UnixMilli()
	_, err := s.db.Exec(`
		UPDATE approvals SET status = 'expired', resolved_at = ?
		WHERE status = 'pending' AND expires_at_ms < ?`,
		time.Now(), nowMS,
	)
	if err != nil {
		return fmt.Errorf("store: expire pending approvals: %w", err)
	}
	return nil
}

func (s *Store) expireOne(id string) error {
	nowMS := time.Now().UnixMilli()
	_, err := s.db.Exec(`
		UPDATE approvals SET status = 'expired', resolved_at = ?
		WHERE id = ? AND status = 'pending' AND expires_at_ms < ?`,
		time.Now(), id, nowMS,
	)
	if err != nil {
		return fmt.Errorf("store: expire approval %s: %w", id, err)
	}
	return nil
}
