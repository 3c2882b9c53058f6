// Package http exposes the engine over a JSON API.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"sanatrack/safety-engine/internal/domain"
	"sanatrack/safety-engine/internal/export"
	"sanatrack/safety-engine/internal/metrics"
	"sanatrack/safety-engine/internal/pipeline"
	"sanatrack/safety-engine/internal/registry"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Locator finds entities whose last known position is near a point.
type Locator interface {
	Nearby(ctx context.Context, c domain.Coordinate, radius float64) ([]string, error)
}

type Server struct {
	pipeline *pipeline.Pipeline
	registry *registry.Registry
	planner  *export.Planner
	stream   http.Handler
	logger   *zap.Logger
	now      func() time.Time

	// BroadcastParallel caps concurrent dispatches of a broadcast alert.
	BroadcastParallel int
	// Checks are pinged by /healthz, keyed by name.
	Checks map[string]Pinger
	// Locator answers nearby queries. Defaults to the pipeline's in-memory
	// positions.
	Locator Locator
}

func NewServer(
	p *pipeline.Pipeline,
	reg *registry.Registry,
	planner *export.Planner,
	stream http.Handler,
	logger *zap.Logger,
) *Server {
	return &Server{
		pipeline:          p,
		registry:          reg,
		planner:           planner,
		stream:            stream,
		logger:            logger,
		now:               time.Now,
		BroadcastParallel: 8,
		Checks:            map[string]Pinger{},
		Locator:           p,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(NewRequestLogger(s.logger).Wrap)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", metrics.Handler())
	if s.stream != nil {
		r.Handle("/v1/stream", s.stream)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/telemetry", s.ingest)
		r.Post("/exports", s.export)
		r.Post("/alerts/broadcast", s.broadcast)

		r.Put("/contacts/{contact_id}", s.upsertContact)

		r.Get("/entities", s.listEntities)
		r.Post("/entities", s.enroll)
		r.Get("/entities/nearby", s.nearby)
		r.Route("/entities/{entity_id}", func(r chi.Router) {
			r.Get("/", s.getEntity)
			r.Delete("/", s.removeEntity)
			r.Put("/contacts/{contact_id}", s.addContact)
			r.Delete("/contacts/{contact_id}", s.removeContact)
			r.Put("/zones", s.setZones)

			r.Get("/status", s.status)
			r.Get("/latest", s.latest)
			r.Get("/telemetry", s.telemetry)
			r.Get("/alerts", s.activeAlerts)
			r.Get("/alerts/history", s.alertHistory)
			r.Post("/alerts/manual", s.manualAlert)
			r.Post("/alerts/{kind}/resolve", s.resolveAlert)
		})
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(s.Checks))
	for name, p := range s.Checks {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	writeJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": checks})
}
