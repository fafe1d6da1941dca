// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/keeper/internal/api/handlers"
	apimiddleware "github.com/autobrr/keeper/internal/api/middleware"
	"github.com/autobrr/keeper/internal/config"
	"github.com/autobrr/keeper/internal/machine"
	"github.com/autobrr/keeper/internal/metrics"
	"github.com/autobrr/keeper/internal/web/swagger"
)

// Dependencies holds all the dependencies needed for the API
type Dependencies struct {
	Config         *config.AppConfig
	LicenseService handlers.LicenseService
	History        handlers.HistoryLister
	Clock          machine.Clock
	MetricsManager *metrics.Manager
}

// NewRouter creates and configures the main application router
func NewRouter(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apimiddleware.HTTPLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	licenseHandler := handlers.NewLicenseHandler(deps.LicenseService, deps.Clock)
	historyHandler := handlers.NewHistoryHandler(deps.History)

	r.Route("/api", func(r chi.Router) {
		r.Use(apimiddleware.RequireAPIKey(deps.Config.Config.APIToken))

		r.Route("/license", func(r chi.Router) {
			licenseHandler.RegisterRoutes(r)
			r.Get("/history", historyHandler.ListHistory)
		})
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	if deps.MetricsManager != nil {
		metricsHandler := handlers.NewMetricsHandler(deps.MetricsManager)
		r.Get("/metrics", metricsHandler.ServeMetrics)
	}

	swaggerHandler, err := swagger.NewHandler(deps.Config.Config.BaseURL)
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize API documentation")
	} else {
		swaggerHandler.RegisterRoutes(r)
	}

	return r
}
