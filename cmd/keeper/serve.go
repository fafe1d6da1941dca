// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autobrr/keeper/internal/api"
	"github.com/autobrr/keeper/internal/services"
	"github.com/autobrr/keeper/internal/store"
)

func RunServeCommand() *cobra.Command {
	var (
		opts      runtimeOptions
		pprofFlag bool
	)

	command := &cobra.Command{
		Use:   "serve",
		Short: "Keep the license checked and serve the local API",
		Long: `Run keeper as a daemon: the license is checked at startup and every
checkInterval, changes to the license file made by other processes are picked
up, and the local JSON API is served on host:port.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.autoInstall = true
			opts.withMetrics = true
			return runServer(cmd.Context(), opts, pprofFlag)
		},
	}

	addRuntimeFlags(command, &opts)
	command.Flags().StringVar(&opts.logPath, "log-path", "", "log file path (default is stderr)")
	command.Flags().BoolVar(&pprofFlag, "pprof", false, "enable pprof server on :6060")

	return command
}

func runServer(parent context.Context, opts runtimeOptions, pprofFlag bool) error {
	log.Info().Str("version", Version).Msg("Starting keeper")

	rt, err := newRuntime(opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := rt.cfg
	if pprofFlag {
		cfg.Config.PprofEnabled = true
	}
	cfg.Watch()

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	refresher := services.NewRefresher(rt.service, cfg.CheckInterval())
	go refresher.Run(ctx)

	go func() {
		if err := rt.service.WatchLicenseFile(ctx); err != nil && !errors.Is(err, store.ErrWatchUnsupported) {
			log.Error().Err(err).Msg("Failed to watch license file")
		}
	}()

	deps := &api.Dependencies{
		Config:         cfg,
		LicenseService: rt.service,
		History:        rt.history,
		Clock:          rt.clock,
	}
	if cfg.Config.MetricsEnabled {
		deps.MetricsManager = rt.metrics
		log.Info().Msg("Prometheus metrics enabled at /metrics endpoint")
	}

	router := api.NewRouter(deps)

	// If baseURL is configured, mount the entire app under that path
	var handler http.Handler
	if cfg.Config.BaseURL != "" && cfg.Config.BaseURL != "/" {
		parentRouter := chi.NewRouter()
		mountPath := strings.TrimSuffix(cfg.Config.BaseURL, "/")
		parentRouter.Mount(mountPath, router)
		parentRouter.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, cfg.Config.BaseURL, http.StatusMovedPermanently)
		})
		handler = parentRouter
	} else {
		handler = router
	}

	readTimeout := time.Duration(cfg.Config.HTTPTimeouts.ReadTimeout) * time.Second
	writeTimeout := time.Duration(cfg.Config.HTTPTimeouts.WriteTimeout) * time.Second
	idleTimeout := time.Duration(cfg.Config.HTTPTimeouts.IdleTimeout) * time.Second

	// Use defaults if not configured
	if readTimeout == 0 {
		readTimeout = 60 * time.Second
	}
	if writeTimeout == 0 {
		writeTimeout = 120 * time.Second
	}
	if idleTimeout == 0 {
		idleTimeout = 180 * time.Second
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Config.Host, cfg.Config.Port),
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("address", srv.Addr).
			Dur("readTimeout", readTimeout).
			Dur("writeTimeout", writeTimeout).
			Dur("idleTimeout", idleTimeout).
			Msg("Starting HTTP server")
		if cfg.Config.BaseURL != "" {
			log.Info().Str("baseURL", cfg.Config.BaseURL).Msg("Serving under base URL")
		}

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if cfg.Config.PprofEnabled {
		go func() {
			log.Info().Msg("Starting pprof server on :6060")
			if err := http.ListenAndServe(":6060", nil); err != nil {
				log.Error().Err(err).Msg("Profiling server failed")
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("Server stopped")
	return nil
}
