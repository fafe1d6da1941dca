// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package converters

import (
	"time"

	"github.com/autobrr/keeper/internal/license"
	"github.com/autobrr/keeper/internal/models"
)

// License is the API and CLI view of a handling context. On fault the last
// verified record is still rendered and Error describes what went wrong.
type License struct {
	Status             string     `json:"status"`
	Message            string     `json:"message"`
	Outcome            string     `json:"outcome"`
	Active             bool       `json:"active"`
	Trial              bool       `json:"trial"`
	TrialDaysRemaining int        `json:"trialDaysRemaining"`
	CanUnregister      bool       `json:"canUnregister"`
	CanRenew           bool       `json:"canRenew"`
	ProductID          string     `json:"productId,omitempty"`
	ProductName        string     `json:"productName,omitempty"`
	VendorName         string     `json:"vendorName,omitempty"`
	ComputerName       string     `json:"computerName,omitempty"`
	Created            *time.Time `json:"created,omitempty"`
	Expires            *time.Time `json:"expires,omitempty"`
	TrialEndDate       *time.Time `json:"trialEndDate,omitempty"`
	Receipt            *Receipt   `json:"receipt,omitempty"`
	Error              *Fault     `json:"error,omitempty"`
}

type Receipt struct {
	Code       string     `json:"code"`
	Expires    *time.Time `json:"expires,omitempty"`
	BuyerEmail string     `json:"buyerEmail,omitempty"`
}

type Fault struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// HistoryEntry is the API view of one recorded workflow run
type HistoryEntry struct {
	ID           int64     `json:"id"`
	InvocationID string    `json:"invocationId"`
	Workflow     string    `json:"workflow"`
	Outcome      string    `json:"outcome"`
	Status       string    `json:"status,omitempty"`
	FaultKind    string    `json:"faultKind,omitempty"`
	Message      string    `json:"message,omitempty"`
	DurationMs   int64     `json:"durationMs"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ConvertContext renders a handling context at the given time
func ConvertContext(hc license.Context, now time.Time) License {
	status := hc.Status

	out := License{
		Status:        string(status),
		Message:       status.Message(),
		Outcome:       hc.Outcome.String(),
		Active:        status.IsActive() && !hc.Faulted(),
		Trial:         status == license.StatusValidTrial,
		CanUnregister: status.AllowsUnregister(),
		CanRenew:      status.AllowsRenew(),
	}
	if !status.Known() {
		out.Status = "Unknown"
	}

	if rec := hc.Record; rec != nil {
		out.ProductID = rec.Product.ID
		out.ProductName = rec.Product.Name
		out.VendorName = rec.Product.Vendor.Name
		out.Created = rec.Created
		out.Expires = rec.Expires
		out.TrialEndDate = rec.TrialEndDate
		if out.Trial {
			out.TrialDaysRemaining = license.TrialDaysRemaining(rec, now)
		}
		if rec.Computer != nil {
			out.ComputerName = rec.Computer.Name
		}
		if rec.Receipt != nil {
			out.Receipt = &Receipt{
				Code:       MaskCode(rec.Receipt.Code),
				Expires:    rec.Receipt.Expires,
				BuyerEmail: rec.Receipt.BuyerEmail,
			}
		}
	}

	if hc.Err != nil {
		out.Error = &Fault{
			Kind:    string(license.KindOf(hc.Err)),
			Message: hc.Err.Error(),
		}
	}

	return out
}

func ConvertHistory(entries []*models.HistoryEntry) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntry{
			ID:           e.ID,
			InvocationID: e.InvocationID,
			Workflow:     e.Workflow,
			Outcome:      e.Outcome,
			Status:       e.Status,
			FaultKind:    e.FaultKind,
			Message:      e.Message,
			DurationMs:   e.DurationMs,
			CreatedAt:    e.CreatedAt,
		})
	}
	return out
}

// MaskCode hides all but the first four characters of a product key
func MaskCode(code string) string {
	if len(code) <= 4 {
		return "***"
	}
	return code[:4] + "***"
}
