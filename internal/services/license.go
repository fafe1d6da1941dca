// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/autobrr/keeper/internal/license"
	"github.com/autobrr/keeper/internal/machine"
	"github.com/autobrr/keeper/internal/metrics"
	"github.com/autobrr/keeper/internal/models"
	"github.com/autobrr/keeper/internal/workflow"
)

const (
	WorkflowLaunch    = "launch"
	WorkflowInstall   = "install"
	WorkflowUninstall = "uninstall"
	WorkflowActivate  = "activate"

	contextCacheKey = "license:context"
	defaultCacheTTL = 5 * time.Minute
)

// Watcher notifies about license file changes made outside the service
type Watcher interface {
	Watch(ctx context.Context, fn func()) error
}

// Options configure a LicenseService
type Options struct {
	Engine      *workflow.Engine
	Preferences license.Preferences
	Clock       machine.Clock
	Identity    machine.Identity
	History     *models.HistoryStore
	Metrics     *metrics.Manager
	Watcher     Watcher
	// AutoInstall downloads a license when the local file is missing or untrusted
	AutoInstall bool
	CacheTTL    time.Duration
}

// LicenseService serialises workflow runs, caches the last handling context and
// records every run in the history database.
type LicenseService struct {
	engine      *workflow.Engine
	prefs       license.Preferences
	clock       machine.Clock
	identity    machine.Identity
	history     *models.HistoryStore
	metrics     *metrics.Manager
	watcher     Watcher
	autoInstall bool
	ttl         time.Duration

	cache *ristretto.Cache
	group singleflight.Group
	runMu sync.Mutex

	stateMu   sync.RWMutex
	lastCheck time.Time

	promptMu  sync.RWMutex
	keyPrompt func() string
}

func NewLicenseService(opts Options) (*LicenseService, error) {
	if opts.Engine == nil {
		return nil, errors.New("license service requires an engine")
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e3,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	clock := opts.Clock
	if clock == nil {
		clock = machine.SystemClock{}
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	return &LicenseService{
		engine:      opts.Engine,
		prefs:       opts.Preferences,
		clock:       clock,
		identity:    opts.Identity,
		history:     opts.History,
		metrics:     opts.Metrics,
		watcher:     opts.Watcher,
		autoInstall: opts.AutoInstall,
		ttl:         ttl,
		cache:       cache,
	}, nil
}

// SetKeyPrompt installs the callback asked for a product key when the trial has
// ended. Without one an ended trial is reported and nothing is redeemed.
func (s *LicenseService) SetKeyPrompt(fn func() string) {
	s.promptMu.Lock()
	s.keyPrompt = fn
	s.promptMu.Unlock()
}

// ValidateLicense runs Launch. Concurrent callers share one run.
func (s *LicenseService) ValidateLicense(ctx context.Context) (license.Context, error) {
	v, err, shared := s.group.Do(WorkflowLaunch, func() (interface{}, error) {
		return s.run(ctx, WorkflowLaunch, func(hc license.Context) (license.Context, error) {
			return s.engine.Launch(ctx, hc, s.callbacks())
		})
	})
	if shared {
		log.Trace().Msg("License check shared with concurrent caller")
	}

	// every caller gets its own record
	hc, _ := v.(license.Context)
	return copyContext(hc), err
}

// DownloadLicense runs Install, replacing the local file with a fresh one
func (s *LicenseService) DownloadLicense(ctx context.Context) (license.Context, error) {
	return s.run(ctx, WorkflowInstall, func(hc license.Context) (license.Context, error) {
		return s.engine.Install(ctx, hc, func(rec *license.Record) {
			log.Info().Str("status", rec.Status.String()).Msg("License downloaded")
		})
	})
}

// UnregisterLicense runs Uninstall, freeing this machine's seat
func (s *LicenseService) UnregisterLicense(ctx context.Context) (license.Context, error) {
	return s.run(ctx, WorkflowUninstall, func(hc license.Context) (license.Context, error) {
		return s.engine.Uninstall(ctx, hc, func() {
			log.Info().Msg("License unregistered from this computer")
		})
	})
}

// ActivateLicense redeems a product key
func (s *LicenseService) ActivateLicense(ctx context.Context, code string) (license.Context, error) {
	return s.run(ctx, WorkflowActivate, func(hc license.Context) (license.Context, error) {
		return s.engine.Activate(ctx, hc, code, func(rec *license.Record) {
			log.Info().Str("code", maskCode(code)).Msg("Product key activated")
		})
	})
}

// GetCachedContext returns the last handling context, running a check when the
// cache is empty or expired.
func (s *LicenseService) GetCachedContext(ctx context.Context) (license.Context, error) {
	if v, ok := s.cache.Get(contextCacheKey); ok {
		if hc, ok := v.(license.Context); ok {
			return copyContext(hc), hc.Err
		}
	}
	return s.ValidateLicense(ctx)
}

// HasProAccess reports whether a paid license is active
func (s *LicenseService) HasProAccess(ctx context.Context) bool {
	hc, _ := s.GetCachedContext(ctx)
	return hc.Status == license.StatusValid
}

// IsTrialMode reports whether a running trial is active
func (s *LicenseService) IsTrialMode(ctx context.Context) bool {
	hc, _ := s.GetCachedContext(ctx)
	return hc.Status == license.StatusValidTrial
}

// GetTrialDaysRemaining returns the whole days left in the trial
func (s *LicenseService) GetTrialDaysRemaining(ctx context.Context) int {
	hc, _ := s.GetCachedContext(ctx)
	if hc.Status != license.StatusValidTrial {
		return 0
	}
	return license.TrialDaysRemaining(hc.Record, s.clock.Now())
}

// Invalidate drops the cached context
func (s *LicenseService) Invalidate() {
	s.cache.Del(contextCacheKey)
	s.cache.Wait()
}

// WatchLicenseFile invalidates the cache whenever another process changes the
// license file. It blocks until ctx is done.
func (s *LicenseService) WatchLicenseFile(ctx context.Context) error {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Watch(ctx, func() {
		log.Debug().Msg("License file changed on disk, invalidating cached state")
		s.Invalidate()
	})
}

// LicenseState implements metrics.StateSource
func (s *LicenseService) LicenseState() metrics.LicenseState {
	v, ok := s.cache.Get(contextCacheKey)
	if !ok {
		return metrics.LicenseState{}
	}
	hc, ok := v.(license.Context)
	if !ok || !hc.Status.Known() {
		return metrics.LicenseState{}
	}

	s.stateMu.RLock()
	lastCheck := s.lastCheck
	s.stateMu.RUnlock()

	state := metrics.LicenseState{
		Known:              true,
		Status:             hc.Status,
		TrialDaysRemaining: license.TrialDaysRemaining(hc.Record, s.clock.Now()),
		LastCheck:          lastCheck,
	}
	if hc.Record != nil {
		state.Expires = hc.Record.Expires
		if hc.Record.Receipt != nil {
			state.ReceiptExpires = hc.Record.Receipt.Expires
		}
	}
	return state
}

// Close releases the cache
func (s *LicenseService) Close() {
	s.cache.Close()
}

// run executes one workflow invocation at a time and records its result
func (s *LicenseService) run(ctx context.Context, name string, fn func(license.Context) (license.Context, error)) (license.Context, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	invocationID := uuid.NewString()
	logger := log.With().Str("workflow", name).Str("invocation", invocationID).Logger()
	logger.Debug().Msg("Workflow started")

	start := time.Now()
	hc, err := fn(license.NewContext(s.prefs))
	took := time.Since(start)

	if err != nil {
		logger.Warn().Err(err).Str("kind", string(license.KindOf(err))).Dur("took", took).Msg("Workflow ended with fault")
	} else {
		logger.Info().Str("status", hc.Status.String()).Str("outcome", hc.Outcome.String()).Dur("took", took).Msg("Workflow completed")
	}

	s.remember(hc)
	s.metrics.ObserveWorkflow(name, hc.Outcome, err, took)
	s.recordHistory(ctx, invocationID, name, hc, err, took)

	return copyContext(hc), err
}

func (s *LicenseService) remember(hc license.Context) {
	s.cache.SetWithTTL(contextCacheKey, copyContext(hc), 1, s.ttl)
	s.cache.Wait()

	s.stateMu.Lock()
	s.lastCheck = s.clock.Now()
	s.stateMu.Unlock()
}

func (s *LicenseService) recordHistory(ctx context.Context, invocationID, name string, hc license.Context, err error, took time.Duration) {
	if s.history == nil {
		return
	}

	entry := &models.HistoryEntry{
		InvocationID: invocationID,
		Workflow:     name,
		Outcome:      hc.Outcome.String(),
		DurationMs:   took.Milliseconds(),
	}
	if hc.Status != "" {
		entry.Status = hc.Status.String()
	}
	if err != nil {
		entry.FaultKind = string(license.KindOf(err))
		entry.Message = err.Error()
	}
	if s.identity != nil {
		if id, idErr := s.identity.MachineID(); idErr == nil {
			entry.MachineDigest = machine.Digest(id)
		}
	}

	// the workflow result stands even when the caller has gone away
	if err := s.history.Create(context.WithoutCancel(ctx), entry); err != nil {
		log.Error().Err(err).Str("workflow", name).Msg("Failed to record workflow history")
	}
}

func (s *LicenseService) callbacks() workflow.LaunchCallbacks {
	s.promptMu.RLock()
	prompt := s.keyPrompt
	s.promptMu.RUnlock()

	cb := workflow.LaunchCallbacks{
		OnCustomerMustEnterProductKey: prompt,
		OnTrialEnded: func(prefs license.Preferences) {
			log.Warn().Str("product", prefs.ProductID).Msg("Trial has ended, a product key is required")
		},
		OnComputerUnregistered: func(c *license.Computer) {
			ev := log.Warn()
			if c != nil {
				ev = ev.Str("computer", c.Name).Str("machine", machine.Digest(c.MacAddress))
			}
			ev.Msg("License is registered to another computer")
		},
		OnTrialValidated: func(rec *license.Record) {
			log.Info().Int("daysRemaining", license.TrialDaysRemaining(rec, s.clock.Now())).Msg("Trial is active")
		},
		OnReceiptExpired: func(license.Preferences) {
			log.Warn().Msg("Payment is suspended or the subscription needs renewal")
		},
		OnLicenseExpired: func(license.Preferences) {
			log.Warn().Msg("License file expired, download it again to renew")
		},
		OnLicenseHandledSuccessfully: func(rec *license.Record) {
			log.Debug().Msg("License is valid")
		},
	}

	if s.autoInstall {
		cb.OnLicFileNotFound = func(ctx context.Context, hc license.Context) (license.Context, error) {
			log.Info().Msg("Downloading a new license file")
			return s.engine.Install(ctx, hc, nil)
		}
	}
	return cb
}

func copyContext(hc license.Context) license.Context {
	hc.Record = hc.Record.Clone()
	return hc
}

// maskCode masks a product key for logging (shows first 4 chars + ***)
func maskCode(code string) string {
	if len(code) <= 4 {
		return "***"
	}
	return code[:4] + "***"
}
