// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

const testMachine = "aa:bb:cc:dd:ee:ff"

func tp(t time.Time) *time.Time { return &t }

func TestEvaluate(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	here := &Computer{Name: "desk", MacAddress: testMachine}
	elsewhere := &Computer{Name: "laptop", MacAddress: "11:22:33:44:55:66"}

	tests := []struct {
		name   string
		record *Record
		want   Status
	}{
		{
			name:   "nil record",
			record: nil,
			want:   StatusReceiptUnregistered,
		},
		{
			name:   "bare record is valid",
			record: &Record{},
			want:   StatusValid,
		},
		{
			name:   "fresh issue",
			record: &Record{Expires: tp(now.Add(90 * 24 * time.Hour)), Computer: here},
			want:   StatusValid,
		},
		{
			name:   "expired without receipt",
			record: &Record{Expires: tp(now.Add(-time.Hour))},
			want:   StatusExpired,
		},
		{
			name:   "trial running",
			record: &Record{TrialEndDate: tp(now.Add(24 * time.Hour)), Expires: tp(now.Add(-time.Hour))},
			want:   StatusValidTrial,
		},
		{
			name:   "trial ended",
			record: &Record{TrialEndDate: tp(now.Add(-time.Hour))},
			want:   StatusInValidTrial,
		},
		{
			name: "receipt expired wins over unexpired expiry",
			record: &Record{
				Expires:  tp(now.Add(30 * 24 * time.Hour)),
				Computer: here,
				Receipt:  &Receipt{Code: "CODE", Expires: tp(now.Add(-time.Second))},
			},
			want: StatusReceiptExpired,
		},
		{
			name: "receipt on another machine",
			record: &Record{
				Expires:  tp(now.Add(30 * 24 * time.Hour)),
				Computer: elsewhere,
				Receipt:  &Receipt{Code: "CODE", Expires: tp(now.Add(time.Hour))},
			},
			want: StatusReceiptUnregistered,
		},
		{
			name:   "receipt without computer",
			record: &Record{Receipt: &Receipt{Code: "CODE"}},
			want:   StatusReceiptUnregistered,
		},
		{
			name: "unregistered wins over expired receipt",
			record: &Record{
				Computer: elsewhere,
				Receipt:  &Receipt{Code: "CODE", Expires: tp(now.Add(-time.Hour))},
			},
			want: StatusReceiptUnregistered,
		},
		{
			name: "receipt ignores trial end date",
			record: &Record{
				TrialEndDate: tp(now.Add(-time.Hour)),
				Expires:      tp(now.Add(time.Hour)),
				Computer:     here,
				Receipt:      &Receipt{Code: "CODE", Expires: tp(now.Add(time.Hour))},
			},
			want: StatusValid,
		},
		{
			name: "paid license past expiry",
			record: &Record{
				Expires:  tp(now.Add(-time.Minute)),
				Computer: here,
				Receipt:  &Receipt{Code: "CODE", Expires: tp(now.Add(time.Hour))},
			},
			want: StatusExpired,
		},
		{
			name: "mac comparison ignores case and separators",
			record: &Record{
				Computer: &Computer{MacAddress: "AA-BB-CC-DD-EE-FF"},
				Receipt:  &Receipt{Code: "CODE"},
			},
			want: StatusValid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.record, now, testMachine))
		})
	}
}

func TestEvaluateTrialBoundary(t *testing.T) {
	end := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	rec := &Record{TrialEndDate: tp(end)}

	assert.Equal(t, StatusValidTrial, Evaluate(rec, end.Add(-time.Second), testMachine))
	assert.Equal(t, StatusValidTrial, Evaluate(rec, end, testMachine))
	assert.Equal(t, StatusInValidTrial, Evaluate(rec, end.Add(time.Second), testMachine))
}

func TestEvaluateReceiptBoundary(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rec := &Record{
		Computer: &Computer{MacAddress: testMachine},
		Receipt:  &Receipt{Code: "CODE", Expires: tp(now)},
	}

	assert.Equal(t, StatusValid, Evaluate(rec, now, testMachine))
	assert.Equal(t, StatusReceiptExpired, Evaluate(rec, now.Add(time.Second), testMachine))
}

func TestEvaluateIsPure(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rec := &Record{TrialEndDate: tp(now.Add(time.Hour)), Status: StatusExpired}
	before := rec.Clone()

	first := Evaluate(rec, now, testMachine)
	second := Evaluate(rec, now, testMachine)

	assert.Equal(t, first, second)
	assert.Equal(t, before, rec)
}

func TestTrialDaysRemaining(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		rec  *Record
		want int
	}{
		{name: "nil", rec: nil, want: 0},
		{name: "no trial", rec: &Record{}, want: 0},
		{name: "ended", rec: &Record{TrialEndDate: tp(now.Add(-48 * time.Hour))}, want: 0},
		{name: "partial day floors", rec: &Record{TrialEndDate: tp(now.Add(36 * time.Hour))}, want: 1},
		{name: "full trial", rec: &Record{TrialEndDate: tp(now.Add(14 * 24 * time.Hour))}, want: 14},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TrialDaysRemaining(tt.rec, now))
		})
	}
}
