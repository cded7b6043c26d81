package models

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")
var ErrAlreadyLive = errors.New("already live")
var ErrNotLive = errors.New("not live")
var ErrInvalidTransition = errors.New("invalid transition")

type SessionState string

const (
	SessionStateIdle  SessionState = "idle"
	SessionStateLive  SessionState = "live"
	SessionStateEnded SessionState = "ended"
)

// Source identifies which producer asserted the current lifecycle state.
// Recorded for diagnostics only; it carries no authority.
type Source string

const (
	SourceControl Source = "control"
	SourceIngest  Source = "ingest"
)

// StreamSession is one live instantiation of a stream key, bounded by a
// begin/end pair. The stream key is the producer's secret and must never
// reach viewers; the session ID is the viewer-facing address.
type StreamSession struct {
	SessionID   string       `json:"session_id"`
	StreamKey   string       `json:"-"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	State       SessionState `json:"state"`
	Source      Source       `json:"source"`
	StartedAt   time.Time    `json:"started_at"`
	EndedAt     time.Time    `json:"ended_at,omitzero"`

	// LastSeen is the time of the most recent ingest signal (publish or
	// heartbeat). Zero until the ingest layer has reported in.
	LastSeen time.Time `json:"-"`
}

// PublicStream is the viewer-facing view of a session.
type PublicStream struct {
	SessionID   string    `json:"session_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	ViewerCount int       `json:"viewer_count"`
}

type EventType string

const (
	EventPresenceChanged EventType = "presence_changed"
	EventStreamStarted   EventType = "stream_started"
	EventStreamEnded     EventType = "stream_ended"
)

// Event is a single fan-out frame. PresenceChanged events go to the members
// of one room; stream lifecycle events go to every connected client.
type Event struct {
	Type      EventType     `json:"type"`
	SessionID string        `json:"session_id,omitempty"`
	Count     int           `json:"count,omitempty"`
	Stream    *PublicStream `json:"stream,omitempty"`
}

// StreamRecord is the durable mirror of a session kept in sqlite. The
// in-memory registry stays authoritative; rows here are best-effort.
type StreamRecord struct {
	SessionID   string    `json:"session_id"`
	StreamKey   string    `json:"-"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Live        bool      `json:"live"`
	StartedAt   time.Time `json:"started_at"`
	EndedAt     time.Time `json:"ended_at,omitzero"`
	PeakViewers int       `json:"peak_viewers"`
}

// GeoLocation is the result of a viewer IP lookup.
type GeoLocation struct {
	IP      string  `json:"ip"`
	City    string  `json:"city,omitempty"`
	Country string  `json:"country,omitempty"`
	Lat     float64 `json:"lat,omitempty"`
	Lng     float64 `json:"lng,omitempty"`
}
