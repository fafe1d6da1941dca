// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	for _, st := range Statuses() {
		got, err := ParseStatus(st.String())
		require.NoError(t, err)
		assert.Equal(t, st, got)
		assert.True(t, got.Known())
	}

	_, err := ParseStatus("Bogus")
	assert.Error(t, err)
	assert.False(t, Status("Bogus").Known())
	assert.Equal(t, "Unknown", Status("").String())
}

func TestStatusAvailability(t *testing.T) {
	tests := []struct {
		status     Status
		active     bool
		unregister bool
		renew      bool
	}{
		{StatusValid, true, true, false},
		{StatusValidTrial, true, false, false},
		{StatusInValidTrial, false, false, false},
		{StatusExpired, false, false, true},
		{StatusReceiptExpired, false, false, false},
		{StatusReceiptUnregistered, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.Equal(t, tt.active, tt.status.IsActive())
			assert.Equal(t, tt.unregister, tt.status.AllowsUnregister())
			assert.Equal(t, tt.renew, tt.status.AllowsRenew())
			assert.NotEqual(t, "Unknown", tt.status.Message())
		})
	}
}

func TestStatusJSON(t *testing.T) {
	rec := Record{Status: StatusInValidTrial}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"InValidTrial"`)

	var decoded Record
	require.NoError(t, json.Unmarshal([]byte(`{"status":"Nonsense","product":{"id":"p","vendor":{"id":"v"}}}`), &decoded))
	assert.Equal(t, Status(""), decoded.Status)
}
