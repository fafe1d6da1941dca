// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/autobrr/keeper/internal/api/converters"
)

const timeLayout = "2006-01-02 15:04 MST"

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printLicense renders a license view. On fault the stale record is shown
// followed by the error.
func printLicense(w io.Writer, view converters.License) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintf(tw, "Status:\t%s\n", view.Status)
	fmt.Fprintf(tw, "Message:\t%s\n", view.Message)
	if view.ProductName != "" || view.ProductID != "" {
		product := view.ProductName
		if product == "" {
			product = view.ProductID
		}
		if view.VendorName != "" {
			product += " (" + view.VendorName + ")"
		}
		fmt.Fprintf(tw, "Product:\t%s\n", product)
	}
	if view.ComputerName != "" {
		fmt.Fprintf(tw, "Computer:\t%s\n", view.ComputerName)
	}
	if view.Trial {
		fmt.Fprintf(tw, "Trial days left:\t%d\n", view.TrialDaysRemaining)
	}
	if view.TrialEndDate != nil {
		fmt.Fprintf(tw, "Trial ends:\t%s\n", formatTime(view.TrialEndDate))
	}
	if view.Expires != nil {
		fmt.Fprintf(tw, "Expires:\t%s\n", formatTime(view.Expires))
	}
	if view.Receipt != nil {
		fmt.Fprintf(tw, "Product key:\t%s\n", view.Receipt.Code)
		if view.Receipt.Expires != nil {
			fmt.Fprintf(tw, "Receipt expires:\t%s\n", formatTime(view.Receipt.Expires))
		}
	}
	if view.CanRenew {
		fmt.Fprintf(tw, "Hint:\t%s\n", "run 'keeper install' to download a renewed license")
	}
	if view.Error != nil {
		fmt.Fprintf(tw, "Error:\t%s: %s\n", view.Error.Kind, view.Error.Message)
	}

	tw.Flush()
}

func printHistory(w io.Writer, entries []converters.HistoryEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No workflow runs recorded")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tWORKFLOW\tOUTCOME\tSTATUS\tDURATION\tERROR")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%dms\t%s\n",
			e.CreatedAt.Local().Format(timeLayout), e.Workflow, e.Outcome, e.Status, e.DurationMs, e.FaultKind)
	}
	tw.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Local().Format(timeLayout)
}
