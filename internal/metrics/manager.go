// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/keeper/internal/license"
)

type Manager struct {
	registry         *prometheus.Registry
	licenseCollector *LicenseCollector

	workflowRuns     *prometheus.CounterVec
	workflowDuration *prometheus.HistogramVec
	faults           *prometheus.CounterVec
}

func NewManager(source StateSource) *Manager {
	registry := prometheus.NewRegistry()

	licenseCollector := NewLicenseCollector(source)
	registry.MustRegister(licenseCollector)

	m := &Manager{
		registry:         registry,
		licenseCollector: licenseCollector,
		workflowRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keeper_workflow_runs_total",
			Help: "Completed workflow invocations by workflow and outcome",
		}, []string{"workflow", "outcome"}),
		workflowDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "keeper_workflow_duration_seconds",
			Help:    "Workflow invocation duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"workflow"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "keeper_workflow_faults_total",
			Help: "Workflow faults by workflow and kind",
		}, []string{"workflow", "kind"}),
	}
	registry.MustRegister(m.workflowRuns, m.workflowDuration, m.faults)

	log.Debug().Msg("Metrics manager initialized with license collector")

	return m
}

// ObserveWorkflow records one finished workflow invocation
func (m *Manager) ObserveWorkflow(workflow string, outcome license.Outcome, err error, took time.Duration) {
	if m == nil {
		return
	}

	m.workflowRuns.WithLabelValues(workflow, outcome.String()).Inc()
	m.workflowDuration.WithLabelValues(workflow).Observe(took.Seconds())
	if err != nil {
		m.faults.WithLabelValues(workflow, string(license.KindOf(err))).Inc()
	}
}

func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}
