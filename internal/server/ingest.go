package server

import (
	"errors"
	"net/http"

	"livecast/internal/models"
)

// The ingest layer posts lifecycle callbacks with the stream key in the
// "name" form field. Responses are always 2xx for valid requests: duplicate
// and out-of-order signals are expected from that side and must not look
// like failures to it.

func ingestStreamKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := r.FormValue("name")
	if key == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return "", false
	}
	return key, true
}

func (s *Server) handleIngestPrePublish(w http.ResponseWriter, r *http.Request) {
	key, ok := ingestStreamKey(w, r)
	if !ok {
		return
	}
	s.coord.HandlePrePublish(key)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleIngestPublish(w http.ResponseWriter, r *http.Request) {
	key, ok := ingestStreamKey(w, r)
	if !ok {
		return
	}
	s.coord.HandlePostPublish(key)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleIngestPublishDone(w http.ResponseWriter, r *http.Request) {
	key, ok := ingestStreamKey(w, r)
	if !ok {
		return
	}
	s.coord.HandleDonePublish(key)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleIngestHeartbeat(w http.ResponseWriter, r *http.Request) {
	key, ok := ingestStreamKey(w, r)
	if !ok {
		return
	}
	if err := s.coord.HandleHeartbeat(key); err != nil && !errors.Is(err, models.ErrNotLive) {
		writeError(w, http.StatusInternalServerError, "heartbeat failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
