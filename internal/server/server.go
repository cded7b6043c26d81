package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"livecast/internal/coordinator"
	"livecast/internal/geoip"
	"livecast/internal/metrics"
	"livecast/internal/store"
)

type Server struct {
	router      chi.Router
	store       *store.Store
	coord       *coordinator.Coordinator
	corsOrigin  string
	geoResolver *geoip.Resolver
	metrics     *metrics.Metrics
}

func NewServer(s *store.Store, c *coordinator.Coordinator, opts ...Option) *Server {
	srv := &Server{
		router: chi.NewRouter(),
		store:  s,
		coord:  c,
	}
	for _, o := range opts {
		o(srv)
	}
	srv.router.Use(middleware.Logger)
	srv.router.Use(middleware.Recoverer)
	srv.routes()
	return srv
}

type Option func(*Server)

func WithCORSOrigin(origin string) Option {
	return func(s *Server) { s.corsOrigin = origin }
}

func WithGeoResolver(r *geoip.Resolver) Option {
	return func(s *Server) { s.geoResolver = r }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
