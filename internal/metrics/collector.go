// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/autobrr/keeper/internal/license"
)

// LicenseState is the point-in-time view the collector exports
type LicenseState struct {
	Known              bool
	Status             license.Status
	TrialDaysRemaining int
	Expires            *time.Time
	ReceiptExpires     *time.Time
	LastCheck          time.Time
}

// StateSource provides the current license state
type StateSource interface {
	LicenseState() LicenseState
}

type LicenseCollector struct {
	source StateSource

	statusDesc             *prometheus.Desc
	trialDaysRemainingDesc *prometheus.Desc
	expiresDesc            *prometheus.Desc
	receiptExpiresDesc     *prometheus.Desc
	lastCheckDesc          *prometheus.Desc
}

func NewLicenseCollector(source StateSource) *LicenseCollector {
	return &LicenseCollector{
		source: source,

		statusDesc: prometheus.NewDesc(
			"keeper_license_status",
			"Current derived license status (1 for the active status, 0 otherwise)",
			[]string{"status"},
			nil,
		),
		trialDaysRemainingDesc: prometheus.NewDesc(
			"keeper_license_trial_days_remaining",
			"Whole days left in the trial",
			nil,
			nil,
		),
		expiresDesc: prometheus.NewDesc(
			"keeper_license_expires_timestamp_seconds",
			"Expiry of the license file as unix time",
			nil,
			nil,
		),
		receiptExpiresDesc: prometheus.NewDesc(
			"keeper_license_receipt_expires_timestamp_seconds",
			"Expiry of the purchase receipt as unix time",
			nil,
			nil,
		),
		lastCheckDesc: prometheus.NewDesc(
			"keeper_license_last_check_timestamp_seconds",
			"Time of the last completed license check as unix time",
			nil,
			nil,
		),
	}
}

func (c *LicenseCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.statusDesc
	ch <- c.trialDaysRemainingDesc
	ch <- c.expiresDesc
	ch <- c.receiptExpiresDesc
	ch <- c.lastCheckDesc
}

func (c *LicenseCollector) Collect(ch chan<- prometheus.Metric) {
	if c.source == nil {
		log.Debug().Msg("License state source is nil, skipping metrics collection")
		return
	}

	state := c.source.LicenseState()
	if !state.Known {
		return
	}

	for _, st := range license.Statuses() {
		value := 0.0
		if st == state.Status {
			value = 1.0
		}
		ch <- prometheus.MustNewConstMetric(c.statusDesc, prometheus.GaugeValue, value, st.String())
	}

	ch <- prometheus.MustNewConstMetric(c.trialDaysRemainingDesc, prometheus.GaugeValue, float64(state.TrialDaysRemaining))

	if state.Expires != nil {
		ch <- prometheus.MustNewConstMetric(c.expiresDesc, prometheus.GaugeValue, float64(state.Expires.Unix()))
	}
	if state.ReceiptExpires != nil {
		ch <- prometheus.MustNewConstMetric(c.receiptExpiresDesc, prometheus.GaugeValue, float64(state.ReceiptExpires.Unix()))
	}
	if !state.LastCheck.IsZero() {
		ch <- prometheus.MustNewConstMetric(c.lastCheckDesc, prometheus.GaugeValue, float64(state.LastCheck.Unix()))
	}
}
