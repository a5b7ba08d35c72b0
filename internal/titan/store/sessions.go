package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GetOrCreateSession looks up the session for (channel, peerID), creating
// one with documented defaults if it does not exist yet.
func (s *Store) GetOrCreateSession(channel, peerID string) (*Session, error) {
	sess, err := s.getSession(channel, peerID)
	if err == nil {
		return sess, nil
	}
	if err != sql.ErrNoRows {
		return nil, err
	}

	now := time.Now()
	sess = &Session{
		ID:             uuid.NewString(),
		Channel:        channel,
		PeerID:         peerID,
		UsageMode:      UsageOff,
		ActivationMode: ActivationAlways,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err = s.db.Exec(`
		INSERT INTO sessions (id, channel, peer_id, usage_mode, activation_mode, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Channel, sess.PeerID, sess.UsageMode, sess.ActivationMode, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Lost a create race; the winner's row is authoritative.
			return s.getSession(channel, peerID)
		}
		return nil, fmt.Errorf("store: create session: %w", err)
	}
	return sess, nil
}

func (s *Store) getSession(channel, peerID string) (*Session, error) {
	sess := &Session{}
	var stopRequested int
	err := s.db.QueryRow(`
		SELECT id, channel, peer_id, COALESCE(model_override, ''), COALESCE(mode_override, ''), usage_mode, activation_mode,
			compactions_count, queue_depth, stop_requested, created_at, updated_at
		FROM sessions WHERE channel = ? AND peer_id = ?`, channel, peerID,
	).Scan(&sess.ID, &sess.Channel, &sess.PeerID, &sess.ModelOverride, &sess.ModeOverride, &sess.UsageMode, &sess.ActivationMode,
		&sess.CompactionsCount, &sess.QueueDepth, &stopRequested, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("store: get session: %w", err)
	}
	sess.StopRequested = stopRequested != 0
	return sess, nil
}

// GetSession returns the session by id.
func (s *Store) GetSession(id string) (*Session, error) {
	sess := &Session{}
	var stopRequested int
	err := s.db.QueryRow(`
		SELECT id, channel, peer_id, COALESCE(model_override, ''), COALESCE(mode_override, ''), usage_mode, activation_mode,
			compactions_count, queue_depth, stop_requested, created_at, updated_at
		FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Channel, &sess.PeerID, &sess.ModelOverride, &sess.ModeOverride, &sess.UsageMode, &sess.ActivationMode,
		&sess.CompactionsCount, &sess.QueueDepth, &stopRequested, &sess.CreatedAt, &sess.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("store: get session: %w", err)
	}
	sess.StopRequested = stopRequested != 0
	return sess, nil
}

// UpdateSession persists mutable session fields (model override, usage
// mode, activation mode, queue depth, stop flag).
func (s *Store) UpdateSession(sess *Session) error {
	stopRequested := 0
	if sess.StopRequested {
		stopRequested = 1
	}
	_, err := s.db.Exec(`
		UPDATE sessions SET model_override = ?, mode_override = ?, usage_mode = ?, activation_mode = ?,
			queue_depth = ?, stop_requested = ?, updated_at = ?
		WHERE id = ?`,
		nullableString(sess.ModelOverride), nullableString(sess.ModeOverride), sess.UsageMode, sess.ActivationMode,
		sess.QueueDepth, stopRequested, time.Now(), sess.ID,
	)
	if err != nil {
		return fmt.Errorf("store: update session: %w", err)
	}
	return nil
}

// AppendMessage appends one transcript entry to a session.
func (s *Store) AppendMessage(sessionID string, role MessageRole, content string) error {
	_, err := s.db.Exec(`
		INSERT INTO messages (session_id, role, content) VALUES (?, ?, ?)`,
		sessionID, role, content,
	)
	if err != nil {
		return fmt.Errorf("store: append message: %w", err)
	}
	return nil
}

// ListVisibleMessages returns the last limit messages for a session in
// chronological order — "visible" meaning whatever the caller has not
// already compacted away via CompactMessages.
func (s *Store) ListVisibleMessages(sessionID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, session_id, role, content, created_at FROM (
			SELECT id, session_id, role, content, created_at
			FROM messages WHERE session_id = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		m := &Message{}
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CompactMessages replaces every message older than keepAfterID with a
// single summary entry, and increments the session's compaction counter.
// It runs as one transaction so a crash mid-compaction never leaves the
// transcript half-deleted.
func (s *Store) CompactMessages(sessionID string, keepAfterID int64, summary string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin compaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ? AND id < ?`, sessionID, keepAfterID); err != nil {
		return fmt.Errorf("store: compact delete: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO messages (session_id, role, content) VALUES (?, 'summary', ?)`,
		sessionID, summary,
	); err != nil {
		return fmt.Errorf("store: compact insert summary: %w", err)
	}
	if _, err := tx.Exec(`
		UPDATE sessions SET compactions_count = compactions_count + 1, updated_at = ? WHERE id = ?`,
		time.Now(), sessionID,
	); err != nil {
		return fmt.Errorf("store: compact update session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit compaction: %w", err)
	}
	return nil
}
