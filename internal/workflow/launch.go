// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package workflow

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/keeper/internal/license"
)

// LaunchCallbacks are the optional hooks Launch dispatches to. A nil hook is a
// no-op. Records and computers passed to hooks are copies.
type LaunchCallbacks struct {
	// OnLicFileNotFound runs when the file is missing or fails verification. It is
	// expected to run Install and return the resulting context.
	OnLicFileNotFound func(ctx context.Context, hc license.Context) (license.Context, error)
	// OnCustomerMustEnterProductKey returns a product key, or "" to skip redemption.
	OnCustomerMustEnterProductKey func() string

	OnTrialEnded                 func(prefs license.Preferences)
	OnComputerUnregistered       func(computer *license.Computer)
	OnTrialValidated             func(rec *license.Record)
	OnReceiptExpired             func(prefs license.Preferences)
	OnLicenseExpired             func(prefs license.Preferences)
	OnLicenseHandledSuccessfully func(rec *license.Record)
}

// Launch determines the current license state and dispatches exactly one branch.
// The returned context carries the derived status, the terminal outcome and, on
// fault, the error together with the last verified record.
func (e *Engine) Launch(ctx context.Context, hc license.Context, cb LaunchCallbacks) (license.Context, error) {
	rec, err := e.load(hc.Preferences)
	if err != nil {
		if !isFileFault(err) {
			return hc.WithFault(err), err
		}

		log.Info().Err(err).Msg("License file unavailable")
		if cb.OnLicFileNotFound == nil {
			return hc.WithFault(err), err
		}

		hc, err = cb.OnLicFileNotFound(ctx, hc)
		if err == nil && hc.Err != nil {
			err = hc.Err
		}
		if err != nil {
			return hc.WithFault(err), err
		}

		// re-read exactly once
		rec, err = e.load(hc.Preferences)
		if err != nil {
			return hc.WithFault(err), err
		}
	}

	hc, err = e.evaluate(hc, rec)
	if err != nil {
		return hc.WithFault(err), err
	}

	return e.dispatch(ctx, hc, cb, true)
}

func (e *Engine) dispatch(ctx context.Context, hc license.Context, cb LaunchCallbacks, promptForKey bool) (license.Context, error) {
	log.Debug().Str("status", hc.Status.String()).Msg("Dispatching license branch")

	switch hc.Status {
	case license.StatusReceiptUnregistered:
		if cb.OnComputerUnregistered != nil {
			cb.OnComputerUnregistered(hc.Record.Clone().Computer)
		}

	case license.StatusInValidTrial:
		if !promptForKey {
			break
		}
		if cb.OnTrialEnded != nil {
			cb.OnTrialEnded(hc.Preferences)
		}

		var code string
		if cb.OnCustomerMustEnterProductKey != nil {
			code = cb.OnCustomerMustEnterProductKey()
		}
		if code == "" {
			break
		}

		redeemed, err := e.redeem(ctx, hc, code)
		if err != nil {
			return redeemed.WithFault(err), err
		}
		return e.dispatch(ctx, redeemed, cb, false)

	case license.StatusValidTrial:
		if cb.OnTrialValidated != nil {
			cb.OnTrialValidated(hc.Record.Clone())
		}

	case license.StatusReceiptExpired:
		if cb.OnReceiptExpired != nil {
			cb.OnReceiptExpired(hc.Preferences)
		}

	case license.StatusExpired:
		if cb.OnLicenseExpired != nil {
			cb.OnLicenseExpired(hc.Preferences)
		}

	case license.StatusValid:
		if cb.OnLicenseHandledSuccessfully != nil {
			cb.OnLicenseHandledSuccessfully(hc.Record.Clone())
		}
	}

	return hc.WithOutcome(license.OutcomeForStatus(hc.Status)), nil
}
