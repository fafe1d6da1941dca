// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPreferences(t *testing.T) {
	tests := []struct {
		name    string
		in      Preferences
		want    Preferences
		wantErr string
	}{
		{
			name: "defaults applied",
			in:   Preferences{VendorID: " v ", ProductID: "p", APIKey: "k", PublicKey: "pem"},
			want: Preferences{VendorID: "v", ProductID: "p", APIKey: "k", PublicKey: "pem", ValidDays: 90, TrialDays: 14},
		},
		{
			name: "explicit days kept",
			in:   Preferences{VendorID: "v", ProductID: "p", APIKey: "k", PublicKey: "pem", ValidDays: 30, TrialDays: 7},
			want: Preferences{VendorID: "v", ProductID: "p", APIKey: "k", PublicKey: "pem", ValidDays: 30, TrialDays: 7},
		},
		{
			name:    "missing vendor",
			in:      Preferences{ProductID: "p", APIKey: "k", PublicKey: "pem"},
			wantErr: "VendorID",
		},
		{
			name:    "missing key",
			in:      Preferences{VendorID: "v", ProductID: "p", APIKey: "k"},
			wantErr: "PublicKey",
		},
		{
			name:    "negative trial",
			in:      Preferences{VendorID: "v", ProductID: "p", APIKey: "k", PublicKey: "pem", TrialDays: -1},
			wantErr: "TrialDays",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewPreferences(tt.in)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContextTransitions(t *testing.T) {
	hc := NewContext(Preferences{VendorID: "v"})
	assert.False(t, hc.HasRecord())
	assert.Equal(t, OutcomeNone, hc.Outcome)

	rec := &Record{Status: StatusExpired}
	hc = hc.WithRecord(rec, StatusValid)
	assert.True(t, hc.HasRecord())
	assert.Equal(t, StatusValid, hc.Record.Status)
	assert.Equal(t, StatusExpired, rec.Status, "caller record must not be modified")

	faulted := hc.WithFault(ErrNetwork)
	assert.True(t, faulted.Faulted())
	assert.Equal(t, OutcomeFault, faulted.Outcome)
	assert.Equal(t, StatusValid, faulted.Status)
	assert.NotNil(t, faulted.Record)
	assert.False(t, hc.Faulted(), "value semantics")

	ok := faulted.WithOutcome(OutcomeSuccess)
	assert.False(t, ok.Faulted())
}

func TestOutcomeForStatus(t *testing.T) {
	assert.Equal(t, OutcomeSuccess, OutcomeForStatus(StatusValid))
	assert.Equal(t, OutcomeTrialValid, OutcomeForStatus(StatusValidTrial))
	assert.Equal(t, OutcomeTrialEnded, OutcomeForStatus(StatusInValidTrial))
	assert.Equal(t, OutcomeReceiptExp, OutcomeForStatus(StatusReceiptExpired))
	assert.Equal(t, OutcomeExpired, OutcomeForStatus(StatusExpired))
	assert.Equal(t, OutcomeUnregistered, OutcomeForStatus(StatusReceiptUnregistered))
	assert.Equal(t, OutcomeNone, OutcomeForStatus(""))
}
