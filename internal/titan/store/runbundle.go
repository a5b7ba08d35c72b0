package store

import (
	"fmt"
	"time"
)

// ExecutedStep is one step's execution record, as handed to PersistRunBundle
// by the broker once a goal's plan has finished (or stalled on an
// approval) running.
type ExecutedStep struct {
	StepID     string
	ToolName   string
	Permission Permission
	Input      string
	Status     StepStatus
	Output     string
}

// PendingApproval describes the approval request to create when a run
// bundle stalls on a require-approval decision. Nil when the run reached
// a terminal status without needing one.
type PendingApproval struct {
	ID          string
	Nonce       string
	ToolName    string
	Capability  string
	Input       string
	RequestedBy string
	ExpiresAtMS int64
}

// RunBundle is everything PersistRunBundle must commit atomically: the
// goal's final status, the selected plan and its steps, the run's full
// trace, at most one new pending approval, and one episodic-memory
// reflection.
type RunBundle struct {
	Goal            *Goal
	FinalStatus     GoalStatus
	Plan            *Plan
	Steps           []ExecutedStep
	TraceEvents     []TraceEventInput
	PendingApproval *PendingApproval
	EpisodicSummary string
	RiskMode        RiskMode
}

// TraceEventInput is one trace event to append as part of the bundle.
type TraceEventInput struct {
	EventType string
	Detail    string
}

// PersistRunBundle commits an entire goal run as a single transaction:
// goal upsert, final status, plan + steps, the run's trace, an optional
// pending approval with its synthetic approval_queued trace event, and an
// episodic-memory append. Any failure rolls the whole bundle back so a
// goal never ends up with a plan but no trace, or an approval with no
// corresponding trace entry.
func (s *Store) PersistRunBundle(b *RunBundle) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin run bundle: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()

	if _, err := tx.Exec(`
		INSERT INTO goals (id, description, status, dedupe_key, session_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`,
		b.Goal.ID, b.Goal.Description, b.FinalStatus, nullableString(b.Goal.DedupeKey), nullableString(b.Goal.SessionID), now, now,
	); err != nil {
		return fmt.Errorf("store: run bundle upsert goal: %w", err)
	}

	if b.Plan != nil {
		if _, err := tx.Exec(`
			INSERT INTO plans (id, goal_id, intent_tag, selected_candidate_id, selected_score)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET intent_tag = excluded.intent_tag,
				selected_candidate_id = excluded.selected_candidate_id, selected_score = excluded.selected_score`,
			b.Plan.ID, b.Goal.ID, b.Plan.IntentTag, b.Plan.SelectedCandidateID, b.Plan.SelectedScore,
		); err != nil {
			return fmt.Errorf("store: run bundle insert plan: %w", err)
		}

		for _, st := range b.Steps {
			rowID := b.Plan.ID + ":" + st.StepID
			if _, err := tx.Exec(`
				INSERT INTO steps (id, goal_id, plan_id, step_id, tool_name, permission, input, status, output)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET status = excluded.status, output = excluded.output`,
				rowID, b.Goal.ID, b.Plan.ID, st.StepID, st.ToolName, st.Permission, nullableString(st.Input), st.Status, nullableString(st.Output),
			); err != nil {
				return fmt.Errorf("store: run bundle insert step %s: %w", st.StepID, err)
			}
		}
	}

	for _, te := range b.TraceEvents {
		if _, err := tx.Exec(`
			INSERT INTO trace_events (goal_id, event_type, detail, risk_mode)
			VALUES (?, ?, ?, ?)`,
			b.Goal.ID, te.EventType, nullableString(te.Detail), b.RiskMode,
		); err != nil {
			return fmt.Errorf("store: run bundle append trace: %w", err)
		}
	}

	if b.PendingApproval != nil {
		pa := b.PendingApproval
		if _, err := tx.Exec(`
			INSERT INTO approvals (id, nonce, goal_id, tool_name, capability, input, status, requested_by, expires_at_ms)
			VALUES (?, ?, ?, ?, ?, ?, 'pending', ?, ?)`,
			pa.ID, pa.Nonce, b.Goal.ID, pa.ToolName, pa.Capability, nullableString(pa.Input), nullableString(pa.RequestedBy), pa.ExpiresAtMS,
		); err != nil {
			return fmt.Errorf("store: run bundle insert approval: %w", err)
		}
		if _, err := tx.Exec(`
			INSERT INTO trace_events (goal_id, event_type, detail, risk_mode)
			VALUES (?, 'approval_queued', ?, ?)`,
			b.Goal.ID, pa.ID, b.RiskMode,
		); err != nil {
			return fmt.Errorf("store: run bundle approval_queued trace: %w", err)
		}
	}

	if b.EpisodicSummary != "" {
		if _, err := tx.Exec(`
			INSERT INTO episodic_memory (goal_id, summary) VALUES (?, ?)`,
			b.Goal.ID, b.EpisodicSummary,
		); err != nil {
			return fmt.Errorf("store: run bundle episodic append: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit run bundle: %w", err)
	}
	return nil
}
