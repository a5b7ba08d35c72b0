package store

import (
	"database/sql"
	"fmt"
	"time"
)

// CreateConnector inserts a configured external-API connector.
func (s *Store) CreateConnector(c *Connector) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO connectors (id, type, display_name, config_json, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Type, c.DisplayName, nullableString(c.ConfigJSON), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: create connector: %w", err)
	}
	return nil
}

// GetConnector returns a connector by id.
func (s *Store) GetConnector(id string) (*Connector, error) {
	c := &Connector{}
	var lastTestAt sql.NullInt64
	var lastTestStatus sql.NullString
	err := s.db.QueryRow(`
		SELECT id, type, display_name, COALESCE(config_json, ''), last_test_at_ms, last_test_status, created_at
		FROM connectors WHERE id = ?`, id,
	).Scan(&c.ID, &c.Type, &c.DisplayName, &c.ConfigJSON, &lastTestAt, &lastTestStatus, &c.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("store: connector %q not found", id)
		}
		return nil, fmt.Errorf("store: get connector: %w", err)
	}
	c.LastTestAtMS = lastTestAt.Int64
	c.LastTestStatus = lastTestStatus.String
	return c, nil
}

// ListConnectors returns every configured connector, ordered by creation.
func (s *Store) ListConnectors() ([]*Connector, error) {
	rows, err := s.db.Query(`
		SELECT id, type, display_name, COALESCE(config_json, ''), last_test_at_ms, last_test_status, created_at
		FROM connectors ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("store: list connectors: %w", err)
	}
	defer rows.Close()

	var out []*Connector
	for rows.Next() {
		c := &Connector{}
		var lastTestAt sql.NullInt64
		var lastTestStatus sql.NullString
		if err := rows.Scan(&c.ID, &c.Type, &c.DisplayName, &c.ConfigJSON, &lastTestAt, &lastTestStatus, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan connector: %w", err)
		}
		c.LastTestAtMS = lastTestAt.Int64
		c.LastTestStatus = lastTestStatus.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateConnectorTestResult records the outcome of a connector health
// check (the httpapi /connectors/{id}/test operation).
func (s *Store) UpdateConnectorTestResult(id, status string, atMS int64) error {
	_, err := s.db.Exec(`
		UPDATE connectors SET last_test_at_ms = ?, last_test_status = ? WHERE id = ?`,
		atMS, status, id,
	)
	if err != nil {
		return fmt.Errorf("store: update connector test result: %w", err)
	}
	return nil
}

// RecordConnectorToolUsage logs one invocation of a connector-backed tool,
// for the audit trail and for host-guard/rate-limiting decisions upstream.
func (s *Store) RecordConnectorToolUsage(connectorID, toolName, goalID string) error {
	_, err := s.db.Exec(`
		INSERT INTO connector_tool_usage (connector_id, tool_name, goal_id) VALUES (?, ?, ?)`,
		connectorID, toolName, nullableString(goalID),
	)
	if err != nil {
		return fmt.Errorf("store: record connector tool usage: %w", err)
	}
	return nil
}
