package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livecast/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate("../../migrations"))
	t.Cleanup(func() { s.Close() })
	return s
}

func insertStream(t *testing.T, s *Store, id, key, title string, startedAt time.Time) {
	t.Helper()
	require.NoError(t, s.CreateStream(&models.StreamRecord{
		SessionID: id,
		StreamKey: key,
		Title:     title,
		StartedAt: startedAt,
	}))
}

func TestCreateAndGetStream(t *testing.T) {
	s := newTestStore(t)
	started := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	insertStream(t, s, "s1", "key1", "My Stream", started)

	rec, err := s.GetStream("s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", rec.SessionID)
	assert.Equal(t, "key1", rec.StreamKey)
	assert.Equal(t, "My Stream", rec.Title)
	assert.True(t, rec.Live)
	assert.True(t, rec.StartedAt.Equal(started))
	assert.True(t, rec.EndedAt.IsZero())
}

func TestGetStreamNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetStream("missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMarkEnded(t *testing.T) {
	s := newTestStore(t)
	started := time.Now().UTC().Truncate(time.Second)
	insertStream(t, s, "s1", "key1", "T", started)

	ended := started.Add(90 * time.Second)
	require.NoError(t, s.MarkEnded("s1", ended, 7))

	rec, err := s.GetStream("s1")
	require.NoError(t, err)
	assert.False(t, rec.Live)
	assert.Equal(t, 7, rec.PeakViewers)
	assert.True(t, rec.EndedAt.Equal(ended))

	// Ending twice finds no live row.
	err = s.MarkEnded("s1", ended, 7)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestLatestStreamByKey(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	insertStream(t, s, "old", "key1", "Old Title", base)
	require.NoError(t, s.MarkEnded("old", base.Add(time.Minute), 1))
	insertStream(t, s, "new", "key1", "New Title", base.Add(30*time.Minute))

	rec, err := s.LatestStreamByKey("key1")
	require.NoError(t, err)
	assert.Equal(t, "new", rec.SessionID)
	assert.Equal(t, "New Title", rec.Title)

	_, err = s.LatestStreamByKey("unknown")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestListStreams(t *testing.T) {
	s := newTestStore(t)
	base := time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	insertStream(t, s, "a", "k1", "A", base)
	insertStream(t, s, "b", "k2", "B", base.Add(time.Minute))
	require.NoError(t, s.MarkEnded("a", base.Add(2*time.Minute), 0))

	all, err := s.ListStreams(false, 10)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[0].SessionID, "most recently started first")

	live, err := s.ListStreams(true, 10)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "b", live[0].SessionID)
}

func TestStats(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	insertStream(t, s, "a", "k1", "A", now.Add(-48*time.Hour))
	require.NoError(t, s.MarkEnded("a", now.Add(-47*time.Hour), 12))
	insertStream(t, s, "b", "k2", "B", now.Add(-time.Minute))

	total, err := s.TotalSessions()
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	recent, err := s.SessionsSince(now.Add(-time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, recent)

	peak, err := s.PeakViewers()
	require.NoError(t, err)
	assert.EqualValues(t, 12, peak)
}
