package store

import "fmt"

// AppendTrace appends a trace event to a goal's timeline. Ordering within a
// goal is the autoincrement id, so callers never need to pass a timestamp
// to get a stable, insertion order.
func (s *Store) AppendTrace(goalID, eventType, detail string, riskMode RiskMode) (*TraceEvent, error) {
	res, err := s.db.Exec(`
		INSERT INTO trace_events (goal_id, event_type, detail, risk_mode)
		VALUES (?, ?, ?, ?)`,
		goalID, eventType, nullableString(detail), riskMode,
	)
	if err != nil {
		return nil, fmt.Errorf("store: append trace: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("store: append trace id: %w", err)
	}
	return &TraceEvent{ID: id, GoalID: goalID, EventType: eventType, Detail: detail, RiskMode: riskMode}, nil
}

// ListTraces returns every trace event for goalID in insertion order.
func (s *Store) ListTraces(goalID string) ([]*TraceEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, goal_id, event_type, COALESCE(detail, ''), risk_mode, created_at
		FROM trace_events WHERE goal_id = ? ORDER BY id ASC`, goalID)
	if err != nil {
		return nil, fmt.Errorf("store: list traces: %w", err)
	}
	defer rows.Close()
	return scanTraces(rows)
}

// SearchTraces returns trace events across all goals whose event_type or
// detail contains substr, most recent first, capped at limit.
func (s *Store) SearchTraces(substr string, limit int) ([]*TraceEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	like := "%" + substr + "%"
	rows, err := s.db.Query(`
		SELECT id, goal_id, event_type, COALESCE(detail, ''), risk_mode, created_at
		FROM trace_events
		WHERE event_type LIKE ? OR detail LIKE ?
		ORDER BY id DESC LIMIT ?`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search traces: %w", err)
	}
	defer rows.Close()
	return scanTraces(rows)
}

func scanTraces(rows interface {
	Next() bool
	Scan(...interface{}) error
	Err() error
}) ([]*TraceEvent, error) {
	var out []*TraceEvent
	for rows.Next() {
		t := &TraceEvent{}
		if err := rows.Scan(&t.ID, &t.GoalID, &t.EventType, &t.Detail, &t.RiskMode, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan trace: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
