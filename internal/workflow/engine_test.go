// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package workflow

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/keeper/internal/activation"
	"github.com/autobrr/keeper/internal/devserver"
	"github.com/autobrr/keeper/internal/license"
	"github.com/autobrr/keeper/internal/machine"
	"github.com/autobrr/keeper/internal/signature"
	"github.com/autobrr/keeper/internal/store"
)

const (
	localMachine = "aa:bb:cc:dd:ee:ff"
	otherMachine = "11:22:33:44:55:66"
	paidCode     = "PAID-0001"
)

// countingActivator records calls and can fail them
type countingActivator struct {
	next Activator

	mu      sync.Mutex
	calls   map[string]int
	failErr error
}

func (a *countingActivator) count(op string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls[op]++
	return a.failErr
}

func (a *countingActivator) Calls(op string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[op]
}

func (a *countingActivator) Total() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, c := range a.calls {
		n += c
	}
	return n
}

func (a *countingActivator) Fail(err error) {
	a.mu.Lock()
	a.failErr = err
	a.mu.Unlock()
}

func (a *countingActivator) Issue(ctx context.Context, req activation.IssueRequest) ([]byte, error) {
	if err := a.count("issue"); err != nil {
		return nil, err
	}
	return a.next.Issue(ctx, req)
}

func (a *countingActivator) Redeem(ctx context.Context, req activation.RedeemRequest) ([]byte, error) {
	if err := a.count("redeem"); err != nil {
		return nil, err
	}
	return a.next.Redeem(ctx, req)
}

func (a *countingActivator) Release(ctx context.Context, req activation.ReleaseRequest) error {
	if err := a.count("release"); err != nil {
		return err
	}
	return a.next.Release(ctx, req)
}

type testEnv struct {
	engine    *Engine
	store     *store.FileStore
	dev       *devserver.Server
	activator *countingActivator
	clock     *machine.FixedClock
	signer    *signature.Signer
	prefs     license.Preferences
}

func newTestEnv(t *testing.T, trial bool) *testEnv {
	t.Helper()

	priv, pub, err := signature.GenerateEd25519()
	require.NoError(t, err)
	signer, err := signature.NewSignerFromPEM(priv)
	require.NoError(t, err)

	clock := machine.NewFixedClock(time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC))

	dev := devserver.New(devserver.Config{
		VendorID:     "vendor",
		ProductID:    "product",
		ProductName:  "Keeper Pro",
		APIKey:       "api-key",
		TrialEnabled: trial,
		Codes:        []devserver.Code{{Code: paidCode, Seats: 2}},
	}, signer, clock)
	ts := httptest.NewServer(dev.Routes())
	t.Cleanup(ts.Close)

	client, err := activation.New(activation.Config{ServerURL: ts.URL})
	require.NoError(t, err)
	counting := &countingActivator{next: client, calls: make(map[string]int)}

	fs, err := store.New(afero.NewMemMapFs(), "/keeper/license.json")
	require.NoError(t, err)

	prefs, err := license.NewPreferences(license.Preferences{
		VendorID:  "vendor",
		ProductID: "product",
		APIKey:    "api-key",
		PublicKey: pub,
	})
	require.NoError(t, err)

	engine := NewEngine(fs, counting, signature.NewVerifier(), clock, machine.Static{ID: localMachine, Name: "desk"})

	return &testEnv{
		engine:    engine,
		store:     fs,
		dev:       dev,
		activator: counting,
		clock:     clock,
		signer:    signer,
		prefs:     prefs,
	}
}

// writeRecord seals rec with the service key and stores it as the local file
func (e *testEnv) writeRecord(t *testing.T, rec *license.Record) []byte {
	t.Helper()
	rec.Product = license.Product{ID: "product", Vendor: license.Vendor{ID: "vendor"}}
	data, err := license.Seal(rec, e.signer.Algorithm(), e.signer.Sign)
	require.NoError(t, err)
	require.NoError(t, e.store.Write(data))
	return data
}

func (e *testEnv) at(d time.Duration) *time.Time {
	t := e.clock.Now().Add(d)
	return &t
}

func (e *testEnv) readFile(t *testing.T) []byte {
	t.Helper()
	data, err := e.store.Read()
	require.NoError(t, err)
	return data
}

const day = 24 * time.Hour

// forgedActivator answers with licenses signed by a key the client does not trust
type forgedActivator struct {
	signer *signature.Signer
}

func (f forgedActivator) sealed() ([]byte, error) {
	exp := time.Now().Add(365 * day)
	rec := &license.Record{
		Expires:  &exp,
		Computer: &license.Computer{MacAddress: localMachine},
		Product:  license.Product{ID: "product", Vendor: license.Vendor{ID: "vendor"}},
	}
	return license.Seal(rec, f.signer.Algorithm(), f.signer.Sign)
}

func (f forgedActivator) Issue(context.Context, activation.IssueRequest) ([]byte, error) {
	return f.sealed()
}

func (f forgedActivator) Redeem(context.Context, activation.RedeemRequest) ([]byte, error) {
	return f.sealed()
}

func (f forgedActivator) Release(context.Context, activation.ReleaseRequest) error {
	return nil
}

func staticIdentity(id string) machine.Static {
	return machine.Static{ID: id, Name: "host-" + id[:2]}
}

func devCode(code string, seats int) devserver.Code {
	return devserver.Code{Code: code, Seats: seats}
}
