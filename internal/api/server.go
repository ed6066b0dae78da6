// Package api exposes the operational HTTP interface for a running crawl.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/jordanhale/snapcrawl/internal/crawler"
	"github.com/jordanhale/snapcrawl/internal/frontier"
)

// StateProvider reports the last known crawl state.
type StateProvider interface {
	State() crawler.CrawlState
}

// Server wires the ops endpoints to the flush controller and frontier.
type Server struct {
	router   chi.Router
	state    StateProvider
	frontier *frontier.Frontier
	logger   *zap.Logger
}

// NewServer constructs a Server with routes for health, metrics, and the
// live crawl state.
func NewServer(state StateProvider, front *frontier.Frontier, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		state:    state,
		frontier: front,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/v1/crawl/state", s.crawlState)
	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) crawlState(w http.ResponseWriter, _ *http.Request) {
	state := s.state.State()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"processedCount": state.ProcessedCount,
		"batchCount":     state.BatchCount,
		"frontierSize":   s.frontier.Len(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write response failed", zap.Error(err))
	}
}
