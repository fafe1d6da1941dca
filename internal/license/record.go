// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"strings"
	"time"
)

// Vendor identifies the publisher of a product
type Vendor struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Product is the licensed product
type Product struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	Vendor Vendor `json:"vendor"`
}

// Computer is the seat binding of a license
type Computer struct {
	Name       string `json:"name,omitempty"`
	MacAddress string `json:"macAddress"`
}

// Matches reports whether the computer is bound to the given machine identifier
func (c *Computer) Matches(machineID string) bool {
	if c == nil || machineID == "" {
		return false
	}
	return NormalizeMachineID(c.MacAddress) == NormalizeMachineID(machineID)
}

// Receipt is the proof of a paid purchase
type Receipt struct {
	Code       string     `json:"code"`
	Expires    *time.Time `json:"expires,omitempty"`
	BuyerEmail string     `json:"buyerEmail,omitempty"`
}

// Record is the signed license record stored on disk
type Record struct {
	Created      *time.Time `json:"created,omitempty"`
	Updated      *time.Time `json:"updated,omitempty"`
	Expires      *time.Time `json:"expires,omitempty"`
	Status       Status     `json:"status,omitempty"`
	TrialEndDate *time.Time `json:"trialEndDate,omitempty"`
	Computer     *Computer  `json:"computer,omitempty"`
	Product      Product    `json:"product"`
	Receipt      *Receipt   `json:"receipt,omitempty"`
}

// Clone returns a deep copy of the record
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}

	out := *r
	out.Created = cloneTime(r.Created)
	out.Updated = cloneTime(r.Updated)
	out.Expires = cloneTime(r.Expires)
	out.TrialEndDate = cloneTime(r.TrialEndDate)
	if r.Computer != nil {
		c := *r.Computer
		out.Computer = &c
	}
	if r.Receipt != nil {
		rc := *r.Receipt
		rc.Expires = cloneTime(r.Receipt.Expires)
		out.Receipt = &rc
	}
	return &out
}

// IsActivated reports whether the server has populated an expiry for the record
func (r *Record) IsActivated() bool {
	return r != nil && r.Expires != nil
}

// HasReceipt reports whether a paid code has been redeemed for the record
func (r *Record) HasReceipt() bool {
	return r != nil && r.Receipt != nil
}

// NormalizeMachineID lowercases a hardware address and strips separators so that
// "AA-BB-CC-..." and "aa:bb:cc:..." compare equal.
func NormalizeMachineID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	return strings.NewReplacer(":", "", "-", "", ".", "").Replace(id)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
