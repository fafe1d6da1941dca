// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"fmt"
)

// Status is the derived state of a license record. It is recomputed from the
// record timestamps and the local machine identity on every check.
type Status string

const (
	StatusValid               Status = "Valid"
	StatusValidTrial          Status = "ValidTrial"
	StatusInValidTrial        Status = "InValidTrial"
	StatusExpired             Status = "Expired"
	StatusReceiptExpired      Status = "ReceiptExpired"
	StatusReceiptUnregistered Status = "ReceiptUnregistered"
)

var allStatuses = []Status{
	StatusValid,
	StatusValidTrial,
	StatusInValidTrial,
	StatusExpired,
	StatusReceiptExpired,
	StatusReceiptUnregistered,
}

// Statuses returns every status value in evaluation-independent order
func Statuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus parses the textual form of a status
func ParseStatus(s string) (Status, error) {
	for _, st := range allStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown license status %q", s)
}

func (s Status) String() string {
	if s == "" {
		return "Unknown"
	}
	return string(s)
}

// Known reports whether s is one of the six status values
func (s Status) Known() bool {
	_, err := ParseStatus(string(s))
	return err == nil
}

// Message returns the user facing description of the status
func (s Status) Message() string {
	switch s {
	case StatusExpired:
		return "License file expired."
	case StatusValid:
		return "Paid and active."
	case StatusValidTrial:
		return "Trial and active."
	case StatusInValidTrial:
		return "Trial ended and requires activation."
	case StatusReceiptExpired:
		return "Payment is suspended or subscription needs renewal."
	case StatusReceiptUnregistered:
		return "Computer has been unregistered."
	default:
		return "Unknown"
	}
}

// IsActive reports whether the product may be used under this status
func (s Status) IsActive() bool {
	return s == StatusValid || s == StatusValidTrial
}

// AllowsUnregister reports whether releasing the seat makes sense. Only a paid,
// active license holds a seat worth freeing.
func (s Status) AllowsUnregister() bool {
	return s == StatusValid
}

// AllowsRenew reports whether the license file should be downloaded again
func (s Status) AllowsRenew() bool {
	return s == StatusExpired
}

// MarshalText implements encoding.TextMarshaler
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown values decode to the
// empty status instead of failing, the stored status is never trusted anyway.
func (s *Status) UnmarshalText(text []byte) error {
	st, err := ParseStatus(string(text))
	if err != nil {
		*s = ""
		return nil
	}
	*s = st
	return nil
}
