package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"livecast/internal/models"
)

// CreateStream inserts the mirror row for a newly live session.
func (s *Store) CreateStream(rec *models.StreamRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO streams (id, stream_key, title, description, live, started_at, peak_viewers)
		 VALUES (?, ?, ?, ?, 1, ?, 0)`,
		rec.SessionID, rec.StreamKey, rec.Title, rec.Description, rec.StartedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("creating stream record: %w", err)
	}
	return nil
}

// MarkEnded flips a session's mirror row to ended and records its peak
// viewer count.
func (s *Store) MarkEnded(sessionID string, endedAt time.Time, peakViewers int) error {
	result, err := s.db.Exec(
		`UPDATE streams SET live = 0, ended_at = ?, peak_viewers = ? WHERE id = ? AND live = 1`,
		endedAt.UTC(), peakViewers, sessionID,
	)
	if err != nil {
		return fmt.Errorf("marking stream ended: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("stream %s: %w", sessionID, models.ErrNotFound)
	}
	return nil
}

// GetStream returns the mirror row for a session id.
func (s *Store) GetStream(sessionID string) (*models.StreamRecord, error) {
	rec, err := scanStream(s.db.QueryRow(
		`SELECT id, stream_key, title, description, live, started_at, ended_at, peak_viewers
		 FROM streams WHERE id = ?`, sessionID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("stream %s: %w", sessionID, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting stream: %w", err)
	}
	return &rec, nil
}

// LatestStreamByKey returns the most recently started mirror row for a
// stream key. Used to carry metadata over to sessions the ingest layer
// begins without the control plane.
func (s *Store) LatestStreamByKey(streamKey string) (*models.StreamRecord, error) {
	rec, err := scanStream(s.db.QueryRow(
		`SELECT id, stream_key, title, description, live, started_at, ended_at, peak_viewers
		 FROM streams WHERE stream_key = ? ORDER BY started_at DESC LIMIT 1`, streamKey,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("stream key: %w", models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting stream by key: %w", err)
	}
	return &rec, nil
}

// ListStreams returns mirror rows, most recently started first.
func (s *Store) ListStreams(liveOnly bool, limit int) ([]models.StreamRecord, error) {
	query := `SELECT id, stream_key, title, description, live, started_at, ended_at, peak_viewers
	          FROM streams`
	if liveOnly {
		query += ` WHERE live = 1`
	}
	query += ` ORDER BY started_at DESC LIMIT ?`

	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing streams: %w", err)
	}
	defer rows.Close()

	var result []models.StreamRecord
	for rows.Next() {
		rec, err := scanStream(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStream(row rowScanner) (models.StreamRecord, error) {
	var rec models.StreamRecord
	var live int
	var startedAt string
	var endedAt sql.NullString
	if err := row.Scan(&rec.SessionID, &rec.StreamKey, &rec.Title, &rec.Description,
		&live, &startedAt, &endedAt, &rec.PeakViewers); err != nil {
		return rec, err
	}
	rec.Live = live != 0

	var err error
	if rec.StartedAt, err = parseSQLiteTime(startedAt); err != nil {
		return rec, err
	}
	if endedAt.Valid {
		if rec.EndedAt, err = parseSQLiteTime(endedAt.String); err != nil {
			return rec, err
		}
	}
	return rec, nil
}
