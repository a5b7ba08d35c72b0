package store

import "fmt"

// GetPlan returns the plan selected for goalID, if one was persisted.
func (s *Store) GetPlan(goalID string) (*Plan, error) {
	p := &Plan{}
	err := s.db.QueryRow(`
		SELECT id, goal_id, intent_tag, selected_candidate_id, selected_score
		FROM plans WHERE goal_id = ?`, goalID,
	).Scan(&p.ID, &p.GoalID, &p.IntentTag, &p.SelectedCandidateID, &p.SelectedScore)
	if err != nil {
		return nil, fmt.Errorf("store: get plan: %w", err)
	}
	return p, nil
}

// ListSteps returns every step persisted for planID, in insertion order.
func (s *Store) ListSteps(planID string) ([]*Step, error) {
	rows, err := s.db.Query(`
		SELECT id, goal_id, plan_id, step_id, tool_name, permission, COALESCE(input, ''), status, COALESCE(output, '')
		FROM steps WHERE plan_id = ? ORDER BY rowid ASC`, planID)
	if err != nil {
		return nil, fmt.Errorf("store: list steps: %w", err)
	}
	defer rows.Close()

	var out []*Step
	for rows.Next() {
		st := &Step{}
		if err := rows.Scan(&st.ID, &st.GoalID, &st.PlanID, &st.StepID, &st.ToolName, &st.Permission, &st.Input, &st.Status, &st.Output); err != nil {
			return nil, fmt.Errorf("store: scan step: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
