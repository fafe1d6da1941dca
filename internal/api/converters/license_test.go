// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package converters

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/keeper/internal/license"
)

func TestConvertContext(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	trialEnd := now.Add(72 * time.Hour)

	tests := []struct {
		name       string
		hc         license.Context
		wantStatus string
		wantActive bool
		check      func(t *testing.T, out License)
	}{
		{
			// the status stored inside the file is never trusted
			name: "stored status is ignored when nothing was evaluated",
			hc: license.Context{
				Record: &license.Record{Status: license.StatusValid, Product: license.Product{ID: "widget"}},
			},
			wantStatus: "Unknown",
			check: func(t *testing.T, out License) {
				assert.False(t, out.CanUnregister)
				assert.Equal(t, "widget", out.ProductID)
			},
		},
		{
			name: "trial reports days left",
			hc: license.Context{
				Status:  license.StatusValidTrial,
				Outcome: license.OutcomeTrialValid,
				Record:  &license.Record{TrialEndDate: &trialEnd},
			},
			wantStatus: string(license.StatusValidTrial),
			wantActive: true,
			check: func(t *testing.T, out License) {
				assert.True(t, out.Trial)
				assert.Equal(t, 3, out.TrialDaysRemaining)
				assert.Equal(t, "TrialValid", out.Outcome)
			},
		},
		{
			name: "fault keeps the stale record",
			hc: license.Context{
				Status:  license.StatusValid,
				Outcome: license.OutcomeFault,
				Err:     license.NewFault(license.FaultNetwork, "issue license", assert.AnError),
				Record: &license.Record{
					Computer: &license.Computer{Name: "desk"},
					Receipt:  &license.Receipt{Code: "PAID-0001"},
				},
			},
			wantStatus: string(license.StatusValid),
			check: func(t *testing.T, out License) {
				require.NotNil(t, out.Error)
				assert.Equal(t, "network", out.Error.Kind)
				assert.Equal(t, "desk", out.ComputerName)
				require.NotNil(t, out.Receipt)
				assert.Equal(t, "PAID***", out.Receipt.Code)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ConvertContext(tt.hc, now)
			assert.Equal(t, tt.wantStatus, out.Status)
			assert.Equal(t, tt.wantActive, out.Active)
			if tt.check != nil {
				tt.check(t, out)
			}
		})
	}
}
