// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"time"
)

// Evaluate derives the status of a record at the given instant for the given
// local machine. The first matching rule wins:
//
//  1. receipt without a binding to this machine  -> ReceiptUnregistered
//  2. receipt expired                             -> ReceiptExpired
//  3. no receipt, trial end date passed           -> InValidTrial
//  4. no receipt, trial end date not yet passed   -> ValidTrial
//  5. expiry passed                               -> Expired
//  6. otherwise                                   -> Valid
//
// A record without receipt and without trial end date falls through to the expiry
// rules, so a fresh record carrying neither is Valid.
func Evaluate(rec *Record, now time.Time, machineID string) Status {
	if rec == nil {
		return StatusReceiptUnregistered
	}

	if rec.Receipt != nil {
		if !rec.Computer.Matches(machineID) {
			return StatusReceiptUnregistered
		}
		if rec.Receipt.Expires != nil && rec.Receipt.Expires.Before(now) {
			return StatusReceiptExpired
		}
	} else if rec.TrialEndDate != nil {
		if now.After(*rec.TrialEndDate) {
			return StatusInValidTrial
		}
		return StatusValidTrial
	}

	if rec.Expires != nil && now.After(*rec.Expires) {
		return StatusExpired
	}

	return StatusValid
}

// TrialDaysRemaining returns the whole days left in the trial, never negative
func TrialDaysRemaining(rec *Record, now time.Time) int {
	if rec == nil || rec.TrialEndDate == nil {
		return 0
	}

	remaining := rec.TrialEndDate.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int(remaining / (24 * time.Hour))
}
