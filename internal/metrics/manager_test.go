// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/keeper/internal/license"
)

type staticSource struct {
	state LicenseState
}

func (s staticSource) LicenseState() LicenseState {
	return s.state
}

func TestNewManager(t *testing.T) {
	tests := []struct {
		name   string
		source StateSource
	}{
		{name: "creates manager with nil source", source: nil},
		{name: "creates manager with source", source: staticSource{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			manager := NewManager(tt.source)

			assert.NotNil(t, manager)
			assert.NotNil(t, manager.registry)
			assert.NotNil(t, manager.licenseCollector)
		})
	}
}

func TestManager_GetRegistry(t *testing.T) {
	manager := NewManager(nil)

	registry := manager.GetRegistry()

	assert.NotNil(t, registry)
	assert.IsType(t, &prometheus.Registry{}, registry)
}

func TestManager_RegistryIsolation(t *testing.T) {
	manager1 := NewManager(nil)
	manager2 := NewManager(nil)

	assert.NotSame(t, manager1.registry, manager2.registry, "Each manager should have its own registry")
	assert.NotSame(t, manager1.licenseCollector, manager2.licenseCollector, "Each manager should have its own collector")
}

func TestManager_MetricsCanBeScraped(t *testing.T) {
	manager := NewManager(nil)

	metricCount := testutil.CollectAndCount(manager.GetRegistry())
	assert.Equal(t, 0, metricCount, "Should collect 0 metrics with nil source and no workflow runs")
}

func TestManager_ObserveWorkflow(t *testing.T) {
	manager := NewManager(nil)

	manager.ObserveWorkflow("launch", license.OutcomeSuccess, nil, 10*time.Millisecond)
	manager.ObserveWorkflow("launch", license.OutcomeSuccess, nil, 20*time.Millisecond)
	manager.ObserveWorkflow("install", license.OutcomeFault, license.NewFault(license.FaultNetwork, "issue", errors.New("down")), time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(manager.workflowRuns.WithLabelValues("launch", "Success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(manager.workflowRuns.WithLabelValues("install", "Fault")))
	assert.Equal(t, 1.0, testutil.ToFloat64(manager.faults.WithLabelValues("install", "network")))

	var nilManager *Manager
	assert.NotPanics(t, func() {
		nilManager.ObserveWorkflow("launch", license.OutcomeSuccess, nil, 0)
	})
}

func TestLicenseCollector_Describe(t *testing.T) {
	collector := NewLicenseCollector(nil)

	descChan := make(chan *prometheus.Desc, 10)
	collector.Describe(descChan)
	close(descChan)

	var descs []*prometheus.Desc
	for desc := range descChan {
		descs = append(descs, desc)
	}

	assert.Len(t, descs, 5, "Should have 5 metric descriptors")
}

func TestLicenseCollector_UnknownState(t *testing.T) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(NewLicenseCollector(staticSource{}))

	assert.Equal(t, 0, testutil.CollectAndCount(registry))
}

func TestLicenseCollector_Collect(t *testing.T) {
	expires := time.Unix(1750000000, 0)
	collector := NewLicenseCollector(staticSource{state: LicenseState{
		Known:              true,
		Status:             license.StatusValidTrial,
		TrialDaysRemaining: 9,
		Expires:            &expires,
		LastCheck:          time.Unix(1740000000, 0),
	}})

	expected := `
# HELP keeper_license_status Current derived license status (1 for the active status, 0 otherwise)
# TYPE keeper_license_status gauge
keeper_license_status{status="Expired"} 0
keeper_license_status{status="InValidTrial"} 0
keeper_license_status{status="ReceiptExpired"} 0
keeper_license_status{status="ReceiptUnregistered"} 0
keeper_license_status{status="Valid"} 0
keeper_license_status{status="ValidTrial"} 1
# HELP keeper_license_trial_days_remaining Whole days left in the trial
# TYPE keeper_license_trial_days_remaining gauge
keeper_license_trial_days_remaining 9
`
	err := testutil.CollectAndCompare(collector, strings.NewReader(expected),
		"keeper_license_status", "keeper_license_trial_days_remaining")
	require.NoError(t, err)

	// status x6, trial days, expires, last check
	assert.Equal(t, 9, testutil.CollectAndCount(collector))
}

func BenchmarkLicenseCollector_Collect(b *testing.B) {
	collector := NewLicenseCollector(staticSource{state: LicenseState{Known: true, Status: license.StatusValid}})
	metricChan := make(chan prometheus.Metric, 20)

	for i := 0; i < b.N; i++ {
		collector.Collect(metricChan)
		for len(metricChan) > 0 {
			<-metricChan
		}
	}
}
