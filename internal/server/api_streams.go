package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"livecast/internal/models"
)

type startSessionRequest struct {
	StreamKey   string `json:"stream_key"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type startSessionResponse struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.StreamKey == "" {
		writeError(w, http.StatusBadRequest, "stream_key is required")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	session, err := s.coord.StartSession(req.StreamKey, req.Title, req.Description)
	if errors.Is(err, models.ErrAlreadyLive) {
		writeError(w, http.StatusConflict, "stream already live")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to start stream")
		return
	}
	writeJSON(w, http.StatusCreated, startSessionResponse{SessionID: session.SessionID})
}

type stopSessionRequest struct {
	StreamKey string `json:"stream_key"`
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	var req stopSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.StreamKey == "" {
		writeError(w, http.StatusBadRequest, "stream_key is required")
		return
	}

	err := s.coord.StopSession(req.StreamKey)
	if errors.Is(err, models.ErrNotLive) {
		writeError(w, http.StatusNotFound, "stream not live")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to stop stream")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": true})
}

func (s *Server) handleListLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.ListLive())
}

const historyLimit = 50

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.ListStreams(false, historyLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list history")
		return
	}
	if records == nil {
		records = []models.StreamRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleGetStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	stream, err := s.coord.Lookup(id)
	if errors.Is(err, models.ErrNotFound) {
		writeError(w, http.StatusNotFound, "stream not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to look up stream")
		return
	}
	writeJSON(w, http.StatusOK, stream)
}
