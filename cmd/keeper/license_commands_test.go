// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobrr/keeper/internal/api/converters"
	"github.com/autobrr/keeper/internal/devserver"
	"github.com/autobrr/keeper/internal/license"
	"github.com/autobrr/keeper/internal/machine"
	"github.com/autobrr/keeper/internal/signature"
)

const testCode = "PAID-0001"

type keeperEnv struct {
	configDir string
	dev       *devserver.Server
}

func newKeeperEnv(t *testing.T, devClock machine.Clock) *keeperEnv {
	t.Helper()

	original := newIdentity
	newIdentity = func() machine.Identity {
		return machine.Static{ID: "aa:bb:cc:dd:ee:ff", Name: "test-desk"}
	}
	t.Cleanup(func() { newIdentity = original })

	priv, pub, err := signature.GenerateEd25519()
	require.NoError(t, err)
	signer, err := signature.NewSignerFromPEM(priv)
	require.NoError(t, err)

	dev := devserver.New(devserver.Config{
		VendorID:     "acme",
		VendorName:   "Acme",
		ProductID:    "widget",
		ProductName:  "Widget",
		APIKey:       "secret",
		TrialEnabled: true,
		Codes:        []devserver.Code{{Code: testCode, Seats: 1}},
	}, signer, devClock)
	ts := httptest.NewServer(dev.Routes())
	t.Cleanup(ts.Close)

	configDir := t.TempDir()
	keyPath := filepath.Join(configDir, "publisher.pem")
	require.NoError(t, os.WriteFile(keyPath, []byte(pub), 0644))

	configContent := `
host = "localhost"
port = 0
logLevel = "ERROR"

[publisher]
vendorId = "acme"
productId = "widget"
apiKey = "secret"
publicKeyFile = "` + filepath.ToSlash(keyPath) + `"

[activation]
serverUrl = "` + ts.URL + `"
timeout = 5
`
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "config.toml"), []byte(configContent), 0644))

	return &keeperEnv{configDir: configDir, dev: dev}
}

func (e *keeperEnv) run(t *testing.T, command *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()

	var output bytes.Buffer
	command.SetOut(&output)
	command.SetErr(&output)
	command.SetIn(strings.NewReader(stdin))
	command.SetArgs(append(args, "--config-dir", e.configDir))

	err := command.Execute()
	return output.String(), err
}

func TestCheckInstallsTrial(t *testing.T) {
	env := newKeeperEnv(t, nil)

	output, err := env.run(t, RunCheckCommand(), "", "--no-prompt")
	require.NoError(t, err)

	assert.Contains(t, output, "ValidTrial")
	assert.Contains(t, output, "Widget (Acme)")
	assert.Contains(t, output, "Trial days left:")
	assert.Equal(t, 1, env.dev.Requests("issue"))
	assert.FileExists(t, filepath.Join(env.configDir, "license.json"))

	// the second check reads the installed file
	_, err = env.run(t, RunCheckCommand(), "", "--no-prompt")
	require.NoError(t, err)
	assert.Equal(t, 1, env.dev.Requests("issue"))
}

func TestCheckFailsWhenTrialEnded(t *testing.T) {
	env := newKeeperEnv(t, machine.NewFixedClock(time.Now().Add(-30*24*time.Hour)))

	output, err := env.run(t, RunCheckCommand(), "", "--no-prompt", "--json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "InValidTrial")

	// cobra appends the error after the JSON document
	var view converters.License
	require.NoError(t, json.NewDecoder(strings.NewReader(output)).Decode(&view))
	assert.Equal(t, "InValidTrial", view.Status)
	assert.False(t, view.Active)
	assert.Zero(t, env.dev.Requests("redeem"))
}

func TestStatusWithoutLicenseStaysOffline(t *testing.T) {
	env := newKeeperEnv(t, nil)

	output, err := env.run(t, RunStatusCommand(), "")
	require.NoError(t, err)

	assert.Contains(t, output, "Unknown")
	assert.Contains(t, output, "file_missing")
	assert.Zero(t, env.dev.Requests("issue"))
}

func TestActivateStatusUninstall(t *testing.T) {
	env := newKeeperEnv(t, nil)

	output, err := env.run(t, RunActivateCommand(), "", testCode)
	require.NoError(t, err)
	assert.Contains(t, output, "Product key activated")
	assert.Equal(t, 1, env.dev.SeatsUsed(testCode))

	output, err = env.run(t, RunStatusCommand(), "")
	require.NoError(t, err)
	assert.Contains(t, output, "Paid and active.")
	assert.Contains(t, output, "PAID***")
	assert.NotContains(t, output, testCode)

	output, err = env.run(t, RunUninstallCommand(), "")
	require.NoError(t, err)
	assert.Contains(t, output, "Computer unregistered")
	assert.Zero(t, env.dev.SeatsUsed(testCode))
	assert.NoFileExists(t, filepath.Join(env.configDir, "license.json"))
}

func TestActivateReadsCodeFromStdin(t *testing.T) {
	env := newKeeperEnv(t, nil)

	output, err := env.run(t, RunActivateCommand(), testCode+"\n")
	require.NoError(t, err)
	assert.Contains(t, output, "Enter product key")
	assert.Contains(t, output, "Product key activated")
	assert.Equal(t, 1, env.dev.Requests("redeem"))
}

func TestActivateRejectsInvalidCode(t *testing.T) {
	env := newKeeperEnv(t, nil)

	_, err := env.run(t, RunActivateCommand(), "", strings.Repeat("A", license.MaxReceiptCodeLength+1))
	require.Error(t, err)
	assert.ErrorIs(t, err, license.ErrInvalidReceiptCode)
	assert.Zero(t, env.dev.Requests("redeem"))

	_, err = env.run(t, RunActivateCommand(), "UNKNOWN-CODE")
	require.Error(t, err)
	assert.ErrorIs(t, err, license.ErrInvalidReceiptCode)
	assert.Equal(t, 1, env.dev.Requests("redeem"))
}

func TestHistoryJSON(t *testing.T) {
	env := newKeeperEnv(t, nil)

	_, err := env.run(t, RunCheckCommand(), "", "--no-prompt")
	require.NoError(t, err)
	_, err = env.run(t, RunActivateCommand(), "", testCode)
	require.NoError(t, err)

	output, err := env.run(t, RunHistoryCommand(), "", "--json")
	require.NoError(t, err)

	var entries []converters.HistoryEntry
	require.NoError(t, json.Unmarshal([]byte(output), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "activate", entries[0].Workflow)
	assert.Equal(t, "Success", entries[0].Outcome)
	assert.Equal(t, "launch", entries[1].Workflow)
	assert.Equal(t, "TrialValid", entries[1].Outcome)

	output, err = env.run(t, RunHistoryCommand(), "")
	require.NoError(t, err)
	assert.Contains(t, output, "WORKFLOW")
	assert.Contains(t, output, "activate")
}

func TestKeygen(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "keys")

	command := RunKeygenCommand()
	var output bytes.Buffer
	command.SetOut(&output)
	command.SetArgs([]string{"--out", outDir})
	require.NoError(t, command.Execute())

	privatePEM, err := os.ReadFile(filepath.Join(outDir, "publisher.key"))
	require.NoError(t, err)
	publicPEM, err := os.ReadFile(filepath.Join(outDir, "publisher.pem"))
	require.NoError(t, err)
	assert.Contains(t, output.String(), string(publicPEM))

	signer, err := signature.NewSignerFromPEM(string(privatePEM))
	require.NoError(t, err)
	sig, err := signer.Sign([]byte("payload"))
	require.NoError(t, err)
	assert.True(t, signature.NewVerifier().Verify([]byte("payload"), sig, string(publicPEM)))

	info, err := os.Stat(filepath.Join(outDir, "publisher.key"))
	require.NoError(t, err)
	if info.Mode().Perm()&0o077 != 0 && goruntime.GOOS != "windows" {
		t.Errorf("private key is readable by others: %v", info.Mode().Perm())
	}

	// refuses to overwrite
	command = RunKeygenCommand()
	command.SetOut(&output)
	command.SetErr(&output)
	command.SetArgs([]string{"--out", outDir})
	assert.Error(t, command.Execute())
}

func TestRunServerStopsOnCancel(t *testing.T) {
	env := newKeeperEnv(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- runServer(ctx, runtimeOptions{configDir: env.configDir, autoInstall: true, withMetrics: true}, false)
	}()

	// the startup check installs the license
	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(env.configDir, "license.json"))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(35 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.Equal(t, 1, env.dev.Requests("issue"))
}
