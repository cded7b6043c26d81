package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(limitBody)
		r.Use(jsonContentType)
		r.Use(corsMiddleware(s.corsOrigin))

		r.Post("/streams/start", s.handleStartSession)
		r.Post("/streams/stop", s.handleStopSession)
		r.Get("/streams", s.handleListLive)
		r.Get("/streams/history", s.handleListHistory)
		r.Get("/streams/{id}", s.handleGetStream)
		r.Get("/stats", s.handleGetStats)
	})

	// Lifecycle callbacks from the media-ingest layer, nginx-rtmp style
	// form posts carrying the stream key in "name".
	s.router.Route("/ingest", func(r chi.Router) {
		r.Use(limitBody)
		r.Post("/on_pre_publish", s.handleIngestPrePublish)
		r.Post("/on_publish", s.handleIngestPublish)
		r.Post("/on_publish_done", s.handleIngestPublishDone)
		r.Post("/on_heartbeat", s.handleIngestHeartbeat)
	})

	s.router.Group(func(r chi.Router) {
		r.Use(corsMiddleware(s.corsOrigin))
		r.Get("/api/events", s.handleDiscoverySSE)
		r.Get("/ws", s.handleViewerWS)
	})

	if s.metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.store.Ping(); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"error"}`))
		return
	}
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
