package store

import "fmt"

// AppendEpisodic appends a goal-scoped reflection summary. Episodic memory
// is append-only: there is no update or delete operation, only new entries.
func (s *Store) AppendEpisodic(goalID, summary, metadata string) error {
	_, err := s.db.Exec(`
		INSERT INTO episodic_memory (goal_id, summary, metadata) VALUES (?, ?, ?)`,
		goalID, summary, nullableString(metadata),
	)
	if err != nil {
		return fmt.Errorf("store: append episodic memory: %w", err)
	}
	return nil
}

// ListEpisodic returns a goal's reflections in insertion order.
func (s *Store) ListEpisodic(goalID string) ([]*EpisodicMemory, error) {
	rows, err := s.db.Query(`
		SELECT id, goal_id, summary, COALESCE(metadata, ''), created_at
		FROM episodic_memory WHERE goal_id = ? ORDER BY id ASC`, goalID)
	if err != nil {
		return nil, fmt.Errorf("store: list episodic memory: %w", err)
	}
	defer rows.Close()

	var out []*EpisodicMemory
	for rows.Next() {
		m := &EpisodicMemory{}
		if err := rows.Scan(&m.ID, &m.GoalID, &m.Summary, &m.Metadata, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan episodic memory: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ListRecentEpisodic returns the most recent episodic memories across all
// goals, newest first, capped at limit — the cross-goal counterpart to
// ListEpisodic, backing the HTTP API's GET /api/memory/episodic.
func (s *Store) ListRecentEpisodic(limit int) ([]*EpisodicMemory, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, goal_id, summary, COALESCE(metadata, ''), created_at
		FROM episodic_memory ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list recent episodic memory: %w", err)
	}
	defer rows.Close()

	var out []*EpisodicMemory
	for rows.Next() {
		m := &EpisodicMemory{}
		if err := rows.Scan(&m.ID, &m.GoalID, &m.Summary, &m.Metadata, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan episodic memory: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AppendSemanticFact appends a namespaced fact. Append-only, same as
// episodic memory — facts are never edited in place, only superseded by a
// later append in the same namespace.
func (s *Store) AppendSemanticFact(namespace, fact, sourceGoalID string) error {
	_, err := s.db.Exec(`
		INSERT INTO semantic_facts (namespace, fact, source_goal_id) VALUES (?, ?, ?)`,
		namespace, fact, nullableString(sourceGoalID),
	)
	if err != nil {
		return fmt.Errorf("store: append semantic fact: %w", err)
	}
	return nil
}

// ListSemanticFacts returns every fact in namespace, in insertion order.
func (s *Store) ListSemanticFacts(namespace string) ([]*SemanticFact, error) {
	rows, err := s.db.Query(`
		SELECT id, namespace, fact, COALESCE(source_goal_id, ''), created_at
		FROM semantic_facts WHERE namespace = ? ORDER BY id ASC`, namespace)
	if err != nil {
		return nil, fmt.Errorf("store: list semantic facts: %w", err)
	}
	defer rows.Close()

	var out []*SemanticFact
	for rows.Next() {
		f := &SemanticFact{}
		if err := rows.Scan(&f.ID, &f.Namespace, &f.Fact, &f.SourceGoalID, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan semantic fact: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// AppendProceduralStrategy appends a namespaced strategy note.
func (s *Store) AppendProceduralStrategy(namespace, strategy, sourceGoalID string) error {
	_, err := s.db.Exec(`
		INSERT INTO procedural_strategies (namespace, strategy, source_goal_id) VALUES (?, ?, ?)`,
		namespace, strategy, nullableString(sourceGoalID),
	)
	if err != nil {
		return fmt.Errorf("store: append procedural strategy: %w", err)
	}
	return nil
}

// ListProceduralStrategies returns every strategy in namespace, in
// insertion order.
func (s *Store) ListProceduralStrategies(namespace string) ([]*ProceduralStrategy, error) {
	rows, err := s.db.Query(`
		SELECT id, namespace, strategy, COALESCE(source_goal_id, ''), created_at
		FROM procedural_strategies WHERE namespace = ? ORDER BY id ASC`, namespace)
	if err != nil {
		return nil, fmt.Errorf("store: list procedural strategies: %w", err)
	}
	defer rows.Close()

	var out []*ProceduralStrategy
	for rows.Next() {
		p := &ProceduralStrategy{}
		if err := rows.Scan(&p.ID, &p.Namespace, &p.Strategy, &p.SourceGoalID, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan procedural strategy: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
