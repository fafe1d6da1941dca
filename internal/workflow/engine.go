// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/keeper/internal/activation"
	"github.com/autobrr/keeper/internal/license"
	"github.com/autobrr/keeper/internal/machine"
)

// Store is the license file persistence the engine needs
type Store interface {
	Read() ([]byte, error)
	Write(data []byte) error
	Delete() error
}

// Activator is the activation service the engine talks to
type Activator interface {
	Issue(ctx context.Context, req activation.IssueRequest) ([]byte, error)
	Redeem(ctx context.Context, req activation.RedeemRequest) ([]byte, error)
	Release(ctx context.Context, req activation.ReleaseRequest) error
}

// Verifier checks envelope signatures
type Verifier interface {
	VerifyAlgorithm(payload, sig []byte, publicKey, algorithm string) bool
}

// Engine runs the license workflows. It holds no per-invocation state; every
// workflow takes a license.Context and returns the updated one.
type Engine struct {
	store     Store
	activator Activator
	verifier  Verifier
	clock     machine.Clock
	identity  machine.Identity
}

func NewEngine(store Store, activator Activator, verifier Verifier, clock machine.Clock, identity machine.Identity) *Engine {
	if clock == nil {
		clock = machine.SystemClock{}
	}
	return &Engine{
		store:     store,
		activator: activator,
		verifier:  verifier,
		clock:     clock,
		identity:  identity,
	}
}

// Check reads, verifies and evaluates the local file without any callbacks or
// network traffic.
func (e *Engine) Check(hc license.Context) (license.Context, error) {
	rec, err := e.load(hc.Preferences)
	if err != nil {
		return hc.WithFault(err), err
	}

	hc, err = e.evaluate(hc, rec)
	if err != nil {
		return hc.WithFault(err), err
	}
	return hc.WithOutcome(license.OutcomeForStatus(hc.Status)), nil
}

// load reads the license file and returns its record once the envelope decodes,
// the signature verifies and the record belongs to the configured product.
func (e *Engine) load(prefs license.Preferences) (*license.Record, error) {
	data, err := e.store.Read()
	if err != nil {
		return nil, err
	}
	return e.open(data, prefs)
}

func (e *Engine) open(data []byte, prefs license.Preferences) (*license.Record, error) {
	env, err := license.Open(data)
	if err != nil {
		return nil, err
	}

	if !e.verifier.VerifyAlgorithm(env.License, env.Signature, prefs.PublicKey, env.Algorithm) {
		return nil, &license.Fault{Kind: license.FaultFileCorrupt, Op: "verify license", Message: "signature verification failed"}
	}

	rec, err := env.Record()
	if err != nil {
		return nil, err
	}

	if rec.Product.ID != prefs.ProductID || rec.Product.Vendor.ID != prefs.VendorID {
		return nil, &license.Fault{
			Kind:    license.FaultFileCorrupt,
			Op:      "verify license",
			Message: fmt.Sprintf("license issued for product %q of vendor %q", rec.Product.ID, rec.Product.Vendor.ID),
		}
	}
	return rec, nil
}

func (e *Engine) evaluate(hc license.Context, rec *license.Record) (license.Context, error) {
	machineID, err := e.identity.MachineID()
	if err != nil {
		return hc, license.NewFault(license.FaultInternal, "resolve machine id", err)
	}

	status := license.Evaluate(rec, e.clock.Now(), machineID)
	log.Debug().
		Str("status", status.String()).
		Str("machine", machine.Digest(machineID)).
		Msg("License evaluated")

	return hc.WithRecord(rec, status), nil
}

func (e *Engine) host() (id, name string, err error) {
	id, err = e.identity.MachineID()
	if err != nil {
		return "", "", license.NewFault(license.FaultInternal, "resolve machine id", err)
	}
	name, err = e.identity.ComputerName()
	if err != nil {
		log.Warn().Err(err).Msg("Could not resolve computer name")
		name = ""
	}
	return id, name, nil
}

// persist verifies a license returned by the service and only then replaces the
// local file.
func (e *Engine) persist(hc license.Context, data []byte) (license.Context, error) {
	rec, err := e.open(data, hc.Preferences)
	if err != nil {
		return hc, err
	}

	if err := e.store.Write(data); err != nil {
		return hc, fmt.Errorf("persist license: %w", err)
	}

	return e.evaluate(hc, rec)
}

func isFileFault(err error) bool {
	return errors.Is(err, license.ErrFileMissing) || errors.Is(err, license.ErrFileCorrupt)
}
