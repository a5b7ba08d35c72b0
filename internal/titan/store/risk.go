package store

import (
	"database/sql"
	"fmt"
	"time"
)

// GetRiskState returns the singleton runtime risk posture, sweeping a
// stale yolo arm back to secure first.
func (s *Store) GetRiskState() (*RuntimeRiskState, error) {
	if err := s.ApplyYoloExpiry(); err != nil {
		return nil, err
	}
	return s.scanRiskState()
}

func (s *Store) scanRiskState() (*RuntimeRiskState, error) {
	r := &RuntimeRiskState{}
	var token sql.NullString
	var armedAt, expiresAt sql.NullInt64
	var bypass int
	var changedBy sql.NullString
	err := s.db.QueryRow(`
		SELECT risk_mode, yolo_armed_token, yolo_armed_at_ms, yolo_expires_at_ms,
			yolo_bypass_path_guard, last_changed_at_ms, last_changed_by
		FROM runtime_risk_state WHERE id = 1`,
	).Scan(&r.RiskMode, &token, &armedAt, &expiresAt, &bypass, &r.LastChangedAtMS, &changedBy)
	if err != nil {
		return nil, fmt.Errorf("store: get risk state: %w", err)
	}
	r.YoloArmedToken = token.String
	r.YoloArmedAtMS = armedAt.Int64
	r.YoloExpiresAtMS = expiresAt.Int64
	r.YoloBypassPathGuard = bypass != 0
	r.LastChangedBy = changedBy.String
	return r, nil
}

// ArmYolo stores a single-use arm token with its own short TTL. The token
// must be presented, unconsumed, to EnableYolo before it expires; it is
// never itself sufficient to switch risk mode.
func (s *Store) ArmYolo(token string, armedAtMS, expiresAtMS int64, changedBy string) error {
	_, err := s.db.Exec(`
		UPDATE runtime_risk_state
		SET yolo_armed_token = ?, yolo_armed_at_ms = ?, yolo_expires_at_ms = ?,
			last_changed_at_ms = ?, last_changed_by = ?
		WHERE id = 1`,
		token, armedAtMS, expiresAtMS, armedAtMS, changedBy,
	)
	if err != nil {
		return fmt.Errorf("store: arm yolo: %w", err)
	}
	return nil
}

// EnableYolo consumes the pending arm token and switches risk_mode to
// yolo with a fresh session TTL. It fails if no token is armed, the
// presented token does not match, or the arm has already expired.
func (s *Store) EnableYolo(token string, nowMS, newExpiresAtMS int64, changedBy string) error {
	res, err := s.db.Exec(`
		UPDATE runtime_risk_state
		SET risk_mode = 'yolo', yolo_armed_token = NULL, yolo_armed_at_ms = NULL,
			yolo_expires_at_ms = ?, last_changed_at_ms = ?, last_changed_by = ?
		WHERE id = 1 AND yolo_armed_token = ? AND yolo_expires_at_ms >= ?`,
		newExpiresAtMS, nowMS, changedBy, token, nowMS,
	)
	if err != nil {
		return fmt.Errorf("store: enable yolo: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: enable yolo rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("store: no valid unexpired arm token matches")
	}
	return nil
}

// SetRiskMode forcibly sets risk_mode, clearing any yolo arm/expiry state.
// Used to drop back to secure, whether via explicit command or TTL sweep.
func (s *Store) SetRiskMode(mode RiskMode, changedBy string) error {
	_, err := s.db.Exec(`
		UPDATE runtime_risk_state
		SET risk_mode = ?, yolo_armed_token = NULL, yolo_armed_at_ms = NULL, yolo_expires_at_ms = NULL,
			last_changed_at_ms = ?, last_changed_by = ?
		WHERE id = 1`,
		mode, time.Now().UnixMilli(), changedBy,
	)
	if err != nil {
		return fmt.Errorf("store: set risk mode: %w", err)
	}
	return nil
}

// ApplyYoloExpiry drops risk_mode back to secure if yolo's TTL has
// elapsed. Called on every risk-state read and by the background sweep.
func (s *Store) ApplyYoloExpiry() error {
	nowMS := time.Now().UnixMilli()
	_, err := s.db.Exec(`
		UPDATE runtime_risk_state
		SET risk_mode = 'secure', yolo_armed_token = NULL, yolo_armed_at_ms = NULL, yolo_expires_at_ms = NULL,
			last_changed_at_ms = ?, last_changed_by = 'yolo_expiry_sweep'
		WHERE id = 1 AND risk_mode = 'yolo' AND yolo_expires_at_ms IS NOT NULL AND yolo_expires_at_ms < ?`,
		nowMS, nowMS,
	)
	if err != nil {
		return fmt.Errorf("store: apply yolo expiry: %w", err)
	}
	return nil
}
