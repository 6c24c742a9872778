// Package ops exposes the operational HTTP surface of the pipeline:
// health, consumer stats and prometheus metrics. It carries no
// authentication and no business endpoints.
package ops

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/albumkeep/albumkeep/pkg/albumkeep/pubsub"
)

// Server serves the ops endpoints.
type Server struct {
	consumers []*pubsub.Consumer
}

// NewServer creates a server reporting on the given consumers.
func NewServer(consumers []*pubsub.Consumer) *Server {
	return &Server{consumers: consumers}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := make([]pubsub.ConsumerStats, 0, len(s.consumers))
	for _, c := range s.consumers {
		stats = append(stats, c.Stats())
	}
	render.JSON(w, r, stats)
}
