// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/keeper/internal/devserver"
)

func TestParseCodes(t *testing.T) {
	tests := []struct {
		name    string
		values  []string
		want    []devserver.Code
		wantErr bool
	}{
		{
			name:   "default seats",
			values: []string{"DEV-0001"},
			want:   []devserver.Code{{Code: "DEV-0001", Seats: 1}},
		},
		{
			name:   "explicit and unlimited",
			values: []string{"TEAM-1:5", " SITE-1:0 "},
			want:   []devserver.Code{{Code: "TEAM-1", Seats: 5}, {Code: "SITE-1", Seats: 0}},
		},
		{name: "empty code", values: []string{":3"}, wantErr: true},
		{name: "bad seats", values: []string{"X:many"}, wantErr: true},
		{name: "negative seats", values: []string{"X:-1"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCodes(tt.values)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRootCommandFlags(t *testing.T) {
	command := newRootCommand()
	for _, name := range []string{"addr", "private-key", "public-key-out", "vendor-id", "product-id", "api-key", "trial", "code"} {
		assert.NotNil(t, command.Flags().Lookup(name), name)
	}
}
