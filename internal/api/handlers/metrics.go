// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/keeper/internal/metrics"
)

// promLogger forwards promhttp collection errors to zerolog.
type promLogger struct{}

func (promLogger) Println(v ...interface{}) {
	log.Warn().Interface("details", v).Msg("metrics collection error")
}

// MetricsHandler exposes the keeper registry. A failing license collector
// must not hide the workflow counters, so collection continues on error.
type MetricsHandler struct {
	handler http.Handler
}

func NewMetricsHandler(manager *metrics.Manager) *MetricsHandler {
	registry := manager.GetRegistry()
	handler := promhttp.InstrumentMetricHandler(registry, promhttp.HandlerFor(
		registry,
		promhttp.HandlerOpts{
			ErrorLog:          promLogger{},
			ErrorHandling:     promhttp.ContinueOnError,
			EnableOpenMetrics: true,
		},
	))

	return &MetricsHandler{handler: handler}
}

func (h *MetricsHandler) ServeMetrics(w http.ResponseWriter, r *http.Request) {
	log.Trace().Str("remote_addr", r.RemoteAddr).Msg("serving license metrics")
	h.handler.ServeHTTP(w, r)
}
