package store

import (
	"fmt"
	"time"
)

// TotalSessions returns the number of sessions ever mirrored.
func (s *Store) TotalSessions() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM streams`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting sessions: %w", err)
	}
	return n, nil
}

// SessionsSince returns the number of sessions started at or after t.
func (s *Store) SessionsSince(t time.Time) (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM streams WHERE started_at >= ?`, t.UTC()).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting recent sessions: %w", err)
	}
	return n, nil
}

// PeakViewers returns the highest viewer count any mirrored session reached.
func (s *Store) PeakViewers() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COALESCE(MAX(peak_viewers), 0) FROM streams`).Scan(&n); err != nil {
		return 0, fmt.Errorf("getting peak viewers: %w", err)
	}
	return n, nil
}
