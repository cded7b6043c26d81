package server

import (
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

type statsResponse struct {
	LiveStreams   int   `json:"live_streams"`
	Viewers       int   `json:"viewers"`
	TotalSessions int64 `json:"total_sessions"`
	SessionsToday int64 `json:"sessions_today"`
	PeakViewers   int64 `json:"peak_viewers"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	resp := statsResponse{
		LiveStreams: len(s.coord.ListLive()),
		Viewers:     s.coord.TotalViewers(),
	}

	var g errgroup.Group
	g.Go(func() error {
		var err error
		resp.TotalSessions, err = s.store.TotalSessions()
		return err
	})
	g.Go(func() error {
		midnight := time.Now().UTC().Truncate(24 * time.Hour)
		var err error
		resp.SessionsToday, err = s.store.SessionsSince(midnight)
		return err
	})
	g.Go(func() error {
		var err error
		resp.PeakViewers, err = s.store.PeakViewers()
		return err
	})
	if err := g.Wait(); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
