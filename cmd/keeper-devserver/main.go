// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autobrr/keeper/internal/devserver"
	"github.com/autobrr/keeper/internal/machine"
	"github.com/autobrr/keeper/internal/signature"
)

var Version = "dev"

type options struct {
	addr           string
	privateKeyFile string
	publicKeyOut   string
	vendorID       string
	vendorName     string
	productID      string
	productName    string
	apiKey         string
	trial          bool
	codes          []string
	logLevel       string
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var opts options

	command := &cobra.Command{
		Use:   "keeper-devserver",
		Short: "In-memory activation service for local development",
		Long: `keeper-devserver issues trial licenses, redeems product keys against a seat
limit and releases seats. State lives in memory and is lost on exit.

Without --private-key an ephemeral Ed25519 key is generated and its public key
is printed (or written to --public-key-out) for the client configuration.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	command.Version = Version
	command.Flags().StringVar(&opts.addr, "addr", "localhost:7478", "listen address")
	command.Flags().StringVar(&opts.privateKeyFile, "private-key", "", "PEM private key used to sign licenses")
	command.Flags().StringVar(&opts.publicKeyOut, "public-key-out", "", "write the public key to this file")
	command.Flags().StringVar(&opts.vendorID, "vendor-id", "dev-vendor", "vendor id")
	command.Flags().StringVar(&opts.vendorName, "vendor-name", "Dev Vendor", "vendor name")
	command.Flags().StringVar(&opts.productID, "product-id", "dev-product", "product id")
	command.Flags().StringVar(&opts.productName, "product-name", "Dev Product", "product name")
	command.Flags().StringVar(&opts.apiKey, "api-key", "", "required X-Api-Key value, empty accepts any")
	command.Flags().BoolVar(&opts.trial, "trial", true, "issue trial licenses")
	command.Flags().StringSliceVar(&opts.codes, "code", []string{"DEV-0001:1"}, "product key as CODE[:SEATS], repeatable")
	command.Flags().StringVar(&opts.logLevel, "log-level", "info", "log level")

	return command
}

func run(cmd *cobra.Command, opts options) error {
	if lvl, err := zerolog.ParseLevel(opts.logLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	signer, err := loadSigner(cmd, opts)
	if err != nil {
		return err
	}

	codes, err := parseCodes(opts.codes)
	if err != nil {
		return err
	}

	srv := devserver.New(devserver.Config{
		VendorID:     opts.vendorID,
		VendorName:   opts.vendorName,
		ProductID:    opts.productID,
		ProductName:  opts.productName,
		APIKey:       opts.apiKey,
		TrialEnabled: opts.trial,
		Codes:        codes,
	}, signer, machine.SystemClock{})

	httpServer := &http.Server{
		Addr:              opts.addr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("address", opts.addr).
			Str("vendor", opts.vendorID).
			Str("product", opts.productID).
			Int("codes", len(codes)).
			Bool("trial", opts.trial).
			Msg("Starting activation dev server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Msg("Server stopped")
	return nil
}

func loadSigner(cmd *cobra.Command, opts options) (*signature.Signer, error) {
	var privatePEM, publicPEM string

	if opts.privateKeyFile != "" {
		data, err := os.ReadFile(opts.privateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key: %w", err)
		}
		privatePEM = string(data)
	} else {
		var err error
		privatePEM, publicPEM, err = signature.GenerateEd25519()
		if err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
		log.Warn().Msg("Using an ephemeral signing key, licenses will not verify after restart")
	}

	signer, err := signature.NewSignerFromPEM(privatePEM)
	if err != nil {
		return nil, err
	}

	if publicPEM == "" {
		if publicPEM, err = signer.PublicKeyPEM(); err != nil {
			return nil, err
		}
	}

	if opts.publicKeyOut != "" {
		if err := os.WriteFile(opts.publicKeyOut, []byte(publicPEM), 0644); err != nil {
			return nil, fmt.Errorf("failed to write public key: %w", err)
		}
		log.Info().Str("path", opts.publicKeyOut).Msg("Public key written")
	} else if opts.privateKeyFile == "" {
		cmd.Print(publicPEM)
	}

	return signer, nil
}

// parseCodes reads CODE[:SEATS] values. Zero seats means unlimited.
func parseCodes(values []string) ([]devserver.Code, error) {
	codes := make([]devserver.Code, 0, len(values))
	for _, v := range values {
		code, seatsRaw, hasSeats := strings.Cut(strings.TrimSpace(v), ":")
		if code == "" {
			return nil, fmt.Errorf("invalid code %q", v)
		}

		seats := 1
		if hasSeats {
			n, err := strconv.Atoi(seatsRaw)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("invalid seat count in %q", v)
			}
			seats = n
		}
		codes = append(codes, devserver.Code{Code: code, Seats: seats})
	}
	return codes, nil
}
