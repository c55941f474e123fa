package storage

// sessions.go contains Store methods for hosted-session history.
// Only session IDs and addresses are recorded, never PINs.

import (
	"database/sql"
	"fmt"
	"time"
)

// SessionRecord represents one hosted session.
type SessionRecord struct {
	ID        string
	Address   string
	StartedAt time.Time
	EndedAt   *time.Time // nil while the session is still running
}

// RecordSessionStart inserts a session row. Re-recording the same session
// ID resets its start time and clears any previous end time.
func (s *Store) RecordSessionStart(id, address string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const query = `
		INSERT INTO sessions (id, address, started_at, ended_at)
		VALUES (?, ?, ?, NULL)
		ON CONFLICT(id) DO UPDATE SET
			address = excluded.address,
			started_at = excluded.started_at,
			ended_at = NULL
	`

	if _, err := s.db.Exec(query, id, address, startedAt.Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("record session start: %w", err)
	}
	return nil
}

// RecordSessionEnd stamps a session's end time.
// Returns ErrSessionNotFound if the session was never recorded.
func (s *Store) RecordSessionEnd(id string, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(
		"UPDATE sessions SET ended_at = ? WHERE id = ?",
		endedAt.Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("record session end: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// ListSessions returns session history, newest first.
func (s *Store) ListSessions() ([]*SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const query = `
		SELECT id, address, started_at, ended_at
		FROM sessions
		ORDER BY started_at DESC
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var records []*SessionRecord
	for rows.Next() {
		var (
			rec       SessionRecord
			startedAt string
			endedAt   sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.Address, &startedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}

		t, err := time.Parse(time.RFC3339Nano, startedAt)
		if err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		rec.StartedAt = t

		if endedAt.Valid {
			t, err := time.Parse(time.RFC3339Nano, endedAt.String)
			if err != nil {
				return nil, fmt.Errorf("parse ended_at: %w", err)
			}
			rec.EndedAt = &t
		}

		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return records, nil
}
