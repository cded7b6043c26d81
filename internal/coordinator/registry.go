package coordinator

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"livecast/internal/models"
)

// Registry is the authoritative in-memory map of stream sessions. Lifecycle
// transitions for a given stream key are serialized against each other while
// different keys proceed in parallel; duplicate or racing begin/end signals
// from the control plane and the ingest layer degrade to no-op outcomes
// (ErrAlreadyLive, ErrNotLive) instead of errors.
type Registry struct {
	mu    sync.RWMutex
	live  map[string]*models.StreamSession // stream key -> live session
	byID  map[string]*models.StreamSession // session id -> session, retained until eviction
	locks map[string]*sync.Mutex           // per-key transition locks
}

func NewRegistry() *Registry {
	return &Registry{
		live:  make(map[string]*models.StreamSession),
		byID:  make(map[string]*models.StreamSession),
		locks: make(map[string]*sync.Mutex),
	}
}

// keyLock returns the transition lock for a stream key, creating it on first
// use. Locks are released from the map when the key's last session is evicted.
func (r *Registry) keyLock(streamKey string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[streamKey]
	if !ok {
		l = &sync.Mutex{}
		r.locks[streamKey] = l
	}
	return l
}

// Begin transitions a stream key to live and returns the new session. If a
// session is already live under the key, the existing session is returned
// alongside models.ErrAlreadyLive.
func (r *Registry) Begin(streamKey, title, description string, source models.Source) (models.StreamSession, error) {
	lock := r.keyLock(streamKey)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	if existing, ok := r.live[streamKey]; ok {
		s := *existing
		r.mu.Unlock()
		return s, models.ErrAlreadyLive
	}
	session := &models.StreamSession{
		SessionID:   uuid.NewString(),
		StreamKey:   streamKey,
		Title:       title,
		Description: description,
		State:       models.SessionStateLive,
		Source:      source,
		StartedAt:   time.Now().UTC(),
	}
	r.live[streamKey] = session
	r.byID[session.SessionID] = session
	s := *session
	r.mu.Unlock()
	return s, nil
}

// End transitions the live session for a stream key to ended. Ending a key
// with no live session returns models.ErrNotLive; both producers may emit
// redundant stop signals and only the first one wins.
func (r *Registry) End(streamKey string, source models.Source) (models.StreamSession, error) {
	lock := r.keyLock(streamKey)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	session, ok := r.live[streamKey]
	if !ok {
		r.mu.Unlock()
		return models.StreamSession{}, models.ErrNotLive
	}
	session.State = models.SessionStateEnded
	session.Source = source
	session.EndedAt = time.Now().UTC()
	delete(r.live, streamKey)
	s := *session
	r.mu.Unlock()
	return s, nil
}

// Touch records an ingest signal (publish or heartbeat) for a live stream
// key. Unknown or ended keys return models.ErrNotLive.
func (r *Registry) Touch(streamKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.live[streamKey]
	if !ok {
		return models.ErrNotLive
	}
	session.LastSeen = time.Now().UTC()
	return nil
}

// Lookup returns the session with the given session id, live or ended, as
// long as it has not been evicted.
func (r *Registry) Lookup(sessionID string) (models.StreamSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.byID[sessionID]
	if !ok {
		return models.StreamSession{}, models.ErrNotFound
	}
	return *session, nil
}

// LookupKey returns the live session for a stream key.
func (r *Registry) LookupKey(streamKey string) (models.StreamSession, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.live[streamKey]
	if !ok {
		return models.StreamSession{}, models.ErrNotFound
	}
	return *session, nil
}

// ListLive returns all live sessions, most recently started first.
func (r *Registry) ListLive() []models.StreamSession {
	r.mu.RLock()
	result := make([]models.StreamSession, 0, len(r.live))
	for _, s := range r.live {
		result = append(result, *s)
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].StartedAt.After(result[j].StartedAt)
		}
		return result[i].SessionID < result[j].SessionID
	})
	return result
}

// Stale returns live sessions whose last ingest signal is older than cutoff.
// Sessions the ingest layer has never reported on are skipped: a control
// plane start may legitimately precede the first publish.
func (r *Registry) Stale(cutoff time.Time) []models.StreamSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []models.StreamSession
	for _, s := range r.live {
		if !s.LastSeen.IsZero() && s.LastSeen.Before(cutoff) {
			result = append(result, *s)
		}
	}
	return result
}

// EndedBefore returns ended, still-retained sessions whose EndedAt precedes
// cutoff.
func (r *Registry) EndedBefore(cutoff time.Time) []models.StreamSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []models.StreamSession
	for _, s := range r.byID {
		if s.State == models.SessionStateEnded && s.EndedAt.Before(cutoff) {
			result = append(result, *s)
		}
	}
	return result
}

// Evict removes an ended session from the registry. Evicting a session that
// is still live is an invalid transition. After eviction the stream key is
// idle again and may begin a brand-new session.
func (r *Registry) Evict(sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.byID[sessionID]
	if !ok {
		return models.ErrNotFound
	}
	if session.State == models.SessionStateLive {
		return models.ErrInvalidTransition
	}
	delete(r.byID, sessionID)
	if _, stillLive := r.live[session.StreamKey]; !stillLive {
		delete(r.locks, session.StreamKey)
	}
	return nil
}
