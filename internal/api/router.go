// Package api exposes stored prices, anomalies and run history over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"FuelPriceMonitor/internal/logging"
	"FuelPriceMonitor/internal/normalizer"
	"FuelPriceMonitor/internal/ports"
)

// Deps wires the router. Registry serves /metrics and receives the HTTP collectors.
type Deps struct {
	Store      ports.Storage
	Normalizer *normalizer.Normalizer
	Registry   *prometheus.Registry
	Clock      func() time.Time
	Logger     *slog.Logger
}

// NewRouter creates the chi router with all routes mounted.
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	h := &Handlers{
		store:      deps.Store,
		normalizer: deps.Normalizer,
		validate:   validator.New(),
		clock:      deps.Clock,
		logger:     deps.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	if deps.Registry != nil {
		r.Use(newHTTPMetrics(deps.Registry).handler)
	}

	r.Get("/healthz", h.Health)
	if deps.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{Registry: deps.Registry}))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))

		r.Get("/prices", h.ListPrices)
		r.Get("/alerts", h.ListAlerts)
		r.Post("/alerts", h.CreateAlert)
		r.Get("/runs", h.ListRuns)
	})

	return r
}
