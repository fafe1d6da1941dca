// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	DefaultValidDays = 90
	DefaultTrialDays = 14
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Preferences is the immutable publisher configuration a workflow runs with
type Preferences struct {
	VendorID  string `json:"vendorId" validate:"required"`
	ProductID string `json:"productId" validate:"required"`
	APIKey    string `json:"-" validate:"required"`
	PublicKey string `json:"-" validate:"required"`
	ValidDays int    `json:"validDays" validate:"gt=0"`
	TrialDays int    `json:"trialDays" validate:"gt=0"`
}

// NewPreferences applies defaults for zero day counts and validates the result
func NewPreferences(p Preferences) (Preferences, error) {
	p.VendorID = strings.TrimSpace(p.VendorID)
	p.ProductID = strings.TrimSpace(p.ProductID)
	p.APIKey = strings.TrimSpace(p.APIKey)

	if p.ValidDays == 0 {
		p.ValidDays = DefaultValidDays
	}
	if p.TrialDays == 0 {
		p.TrialDays = DefaultTrialDays
	}

	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return Preferences{}, fmt.Errorf("invalid publisher preferences: %s", strings.Join(fields, ", "))
		}
		return Preferences{}, fmt.Errorf("invalid publisher preferences: %w", err)
	}

	return p, nil
}
