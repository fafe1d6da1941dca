// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/autobrr/keeper/internal/activation"
	"github.com/autobrr/keeper/internal/config"
	"github.com/autobrr/keeper/internal/database"
	"github.com/autobrr/keeper/internal/license"
	"github.com/autobrr/keeper/internal/machine"
	"github.com/autobrr/keeper/internal/metrics"
	"github.com/autobrr/keeper/internal/models"
	"github.com/autobrr/keeper/internal/services"
	"github.com/autobrr/keeper/internal/signature"
	"github.com/autobrr/keeper/internal/store"
	"github.com/autobrr/keeper/internal/workflow"
)

// newIdentity is replaced in tests, where the host may have no network interfaces
var newIdentity = func() machine.Identity {
	return machine.NewHost()
}

// runtime wires the components every license command needs
type runtime struct {
	cfg      *config.AppConfig
	db       *database.DB
	store    *store.FileStore
	clock    machine.Clock
	history  *models.HistoryStore
	metrics  *metrics.Manager
	service  *services.LicenseService
	prefs    license.Preferences
	identity machine.Identity
}

type runtimeOptions struct {
	configDir   string
	dataDir     string
	logPath     string
	autoInstall bool
	withMetrics bool
}

func newRuntime(opts runtimeOptions) (*runtime, error) {
	cfg, err := config.New(opts.configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize configuration: %w", err)
	}

	if opts.dataDir != "" {
		cfg.SetDataDir(opts.dataDir)
	}
	if opts.logPath != "" {
		cfg.Config.LogPath = opts.logPath
	}
	cfg.ApplyLogConfig()

	prefs, err := cfg.Preferences()
	if err != nil {
		return nil, err
	}

	db, err := database.New(cfg.GetDatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	fileStore, err := store.NewOS(cfg.GetLicenseFilePath())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize license store: %w", err)
	}

	client, err := activation.New(activation.Config{
		ServerURL:       cfg.Config.Activation.ServerURL,
		UserAgent:       "keeper/" + Version,
		Timeout:         time.Duration(cfg.Config.Activation.Timeout) * time.Second,
		RedeemPerMinute: cfg.Config.Activation.RedeemRatePerMinute,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize activation client: %w", err)
	}

	clock := machine.SystemClock{}
	identity := newIdentity()
	engine := workflow.NewEngine(fileStore, client, signature.NewVerifier(), clock, identity)
	history := models.NewHistoryStore(db.Conn())

	rt := &runtime{
		cfg:      cfg,
		db:       db,
		store:    fileStore,
		clock:    clock,
		history:  history,
		prefs:    prefs,
		identity: identity,
	}

	opt := services.Options{
		Engine:      engine,
		Preferences: prefs,
		Clock:       clock,
		Identity:    identity,
		History:     history,
		Watcher:     fileStore,
		AutoInstall: opts.autoInstall,
	}

	if opts.withMetrics {
		// the collector reads state back from the service, so it needs a late bound source
		source := &stateSource{}
		rt.metrics = metrics.NewManager(source)
		opt.Metrics = rt.metrics

		rt.service, err = services.NewLicenseService(opt)
		source.service = rt.service
	} else {
		rt.service, err = services.NewLicenseService(opt)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize license service: %w", err)
	}

	log.Debug().
		Str("config", cfg.ConfigPath()).
		Str("database", cfg.GetDatabasePath()).
		Str("licenseFile", fileStore.Path()).
		Str("activation", cfg.Config.Activation.ServerURL).
		Msg("Runtime initialized")

	return rt, nil
}

func (rt *runtime) Close() {
	rt.service.Close()
	if err := rt.db.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close database")
	}
}

type stateSource struct {
	service *services.LicenseService
}

func (s *stateSource) LicenseState() metrics.LicenseState {
	if s.service == nil {
		return metrics.LicenseState{}
	}
	return s.service.LicenseState()
}
