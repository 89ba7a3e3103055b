// Package httpadapter serves the read API over history, the feed and the
// forecast window, the manual observation endpoint, and the health, readiness
// and metrics probes.
package httpadapter

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/skycastle-service/internal/domain"
)

// HistoryReader is the read side of the history table.
type HistoryReader interface {
	Get(ctx context.Context, date time.Time) (domain.HistoryRecord, bool, error)
	List(ctx context.Context) ([]domain.HistoryRecord, error)
}

// ObservationRecorder applies a manual observation to one date.
type ObservationRecorder interface {
	Record(ctx context.Context, date time.Time, obs domain.ObservedFields) error
}

// Artifacts exposes the published JSON documents.
type Artifacts interface {
	Feed() (map[string]any, error)
	Predictions() (domain.ForecastPredictions, error)
}

// Server exposes the API and the health, readiness, and metrics endpoints.
type Server struct {
	httpServer *http.Server
	history    HistoryReader
	recorder   ObservationRecorder
	artifacts  Artifacts
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /api/v1 routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, history HistoryReader, recorder ObservationRecorder,
	artifacts Artifacts, logger *slog.Logger,
) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		history:   history,
		recorder:  recorder,
		artifacts: artifacts,
		logger:    logger,
	}

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(ready))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/feed", s.handleFeed)
		r.Get("/forecast", s.handleForecast)
		r.Route("/history", func(r chi.Router) {
			r.Get("/", s.handleHistory)
			r.Get("/{date}", s.handleHistoryDay)
			r.Put("/{date}/observation", s.handlePutObservation)
		})
	})

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}
