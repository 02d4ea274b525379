// Package httptransport assembles the HTTP surface: the shared middleware
// chain, the domain handlers, and the operational endpoints.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tracecore/internal/platform/metrics"
	"tracecore/internal/platform/middleware"
	"tracecore/pkg/platform/httputil"
)

// DomainHandler mounts its routes. Reads go on r, mutations on authed.
type DomainHandler interface {
	Register(r chi.Router, authed chi.Router)
}

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// Config carries everything NewRouter wires together.
type Config struct {
	Logger         *slog.Logger
	Validator      middleware.TokenValidator
	ActorLimit     func(http.Handler) http.Handler
	Gatherer       prometheus.Gatherer
	HTTPMetrics    *metrics.HTTP
	RequestTimeout time.Duration
	Handlers       []DomainHandler
	HealthChecks   map[string]HealthCheck
}

// NewRouter wires all public endpoints.
func NewRouter(cfg Config) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(cfg.Logger, cfg.HTTPMetrics))
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readiness(cfg.HealthChecks))
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	authed := r.With(middleware.RequireActor(cfg.Validator, cfg.Logger))
	if cfg.ActorLimit != nil {
		authed = authed.With(cfg.ActorLimit)
	}
	for _, h := range cfg.Handlers {
		h.Register(r, authed)
	}
	return r
}

func readiness(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := make(map[string]string, len(checks))
		status := http.StatusOK
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				results[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		httputil.WriteJSON(w, status, results)
	}
}
