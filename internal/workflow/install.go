// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package workflow

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/keeper/internal/activation"
	"github.com/autobrr/keeper/internal/license"
	"github.com/autobrr/keeper/internal/machine"
)

// Install requests a fresh license from the activation service and replaces the
// local file with it. On any failure the existing file is left untouched.
func (e *Engine) Install(ctx context.Context, hc license.Context, onSuccess func(rec *license.Record)) (license.Context, error) {
	id, name, err := e.host()
	if err != nil {
		return hc.WithFault(err), err
	}

	prefs := hc.Preferences
	data, err := e.activator.Issue(ctx, activation.IssueRequest{
		APIKey:       prefs.APIKey,
		VendorID:     prefs.VendorID,
		ProductID:    prefs.ProductID,
		MachineID:    id,
		ComputerName: name,
		ValidDays:    prefs.ValidDays,
		TrialDays:    prefs.TrialDays,
	})
	if err != nil {
		log.Error().Err(err).Msg("License install failed")
		return hc.WithFault(err), err
	}

	hc, err = e.persist(hc, data)
	if err != nil {
		log.Error().Err(err).Msg("Issued license rejected")
		return hc.WithFault(err), err
	}

	log.Info().
		Str("status", hc.Status.String()).
		Str("machine", machine.Digest(id)).
		Msg("License installed")

	if onSuccess != nil {
		onSuccess(hc.Record.Clone())
	}
	return hc.WithOutcome(license.OutcomeSuccess), nil
}

// Uninstall releases the seat held by this machine and removes the local file. On
// failure the file is left intact.
func (e *Engine) Uninstall(ctx context.Context, hc license.Context, onSuccess func()) (license.Context, error) {
	if rec, err := e.load(hc.Preferences); err == nil {
		if evaluated, evalErr := e.evaluate(hc, rec); evalErr == nil {
			hc = evaluated
		}
	}

	id, _, err := e.host()
	if err != nil {
		return hc.WithFault(err), err
	}

	prefs := hc.Preferences
	if err := e.activator.Release(ctx, activation.ReleaseRequest{
		APIKey:    prefs.APIKey,
		VendorID:  prefs.VendorID,
		ProductID: prefs.ProductID,
		MachineID: id,
	}); err != nil {
		log.Error().Err(err).Msg("License release failed")
		return hc.WithFault(err), err
	}

	if err := e.store.Delete(); err != nil {
		return hc.WithFault(err), err
	}

	log.Info().Str("machine", machine.Digest(id)).Msg("License released")

	hc = hc.WithRecord(nil, "")
	if onSuccess != nil {
		onSuccess()
	}
	return hc.WithOutcome(license.OutcomeReleased), nil
}

// Activate redeems a product key regardless of the current trial state
func (e *Engine) Activate(ctx context.Context, hc license.Context, code string, onSuccess func(rec *license.Record)) (license.Context, error) {
	hc, err := e.redeem(ctx, hc, code)
	if err != nil {
		return hc.WithFault(err), err
	}

	if hc.Status == license.StatusValid && onSuccess != nil {
		onSuccess(hc.Record.Clone())
	}
	return hc.WithOutcome(license.OutcomeForStatus(hc.Status)), nil
}

// redeem validates the code, exchanges it for a license, verifies and persists
// the result and re-evaluates.
func (e *Engine) redeem(ctx context.Context, hc license.Context, code string) (license.Context, error) {
	if err := license.ValidateReceiptCode(code); err != nil {
		return hc, err
	}

	id, name, err := e.host()
	if err != nil {
		return hc, err
	}

	prefs := hc.Preferences
	data, err := e.activator.Redeem(ctx, activation.RedeemRequest{
		APIKey:       prefs.APIKey,
		VendorID:     prefs.VendorID,
		ProductID:    prefs.ProductID,
		MachineID:    id,
		ComputerName: name,
		Code:         code,
	})
	if err != nil {
		log.Error().Err(err).Msg("Product key redemption failed")
		return hc, err
	}

	hc, err = e.persist(hc, data)
	if err != nil {
		return hc, err
	}

	log.Info().Str("status", hc.Status.String()).Msg("Product key redeemed")
	return hc, nil
}
