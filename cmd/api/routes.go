package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	httphandlers "bankledger/internal/interfaces/http"
	"bankledger/internal/shared/config"
	"bankledger/internal/shared/middleware"
	"bankledger/internal/shared/telemetry"
)

// SetupRoutes configures all HTTP routes and returns the final handler with middleware.
func SetupRoutes(deps *Dependencies, cfg *config.Config, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Tracing)

	if cfg.Telemetry.Enabled && cfg.Telemetry.MetricsPort == "" {
		r.Handle("/metrics", telemetry.MetricsHandler())
	}

	httphandlers.RegisterRoutes(r, deps.TransactionHandler, deps.BalanceHandler)

	var handler http.Handler = r
	if cfg.Telemetry.Enabled {
		handler = middleware.Telemetry(handler)
	}
	return handler
}
