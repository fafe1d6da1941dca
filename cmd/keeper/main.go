// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/autobrr/keeper/internal/config"
	"github.com/autobrr/keeper/internal/signature"
)

var Version = "dev"

func main() {
	var rootCmd = &cobra.Command{
		Use:   "keeper",
		Short: "License lifecycle daemon",
		Long: `keeper - verifies the signed license file of a product on this computer,
derives its status and drives trial issue, product key activation, renewal
and unregistration against the publisher's activation service.`,
	}

	// Initialize logger
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	rootCmd.Version = Version

	rootCmd.AddCommand(RunCheckCommand())
	rootCmd.AddCommand(RunStatusCommand())
	rootCmd.AddCommand(RunInstallCommand())
	rootCmd.AddCommand(RunUninstallCommand())
	rootCmd.AddCommand(RunActivateCommand())
	rootCmd.AddCommand(RunHistoryCommand())
	rootCmd.AddCommand(RunServeCommand())
	rootCmd.AddCommand(RunKeygenCommand())
	rootCmd.AddCommand(RunGenerateConfigCommand())
	rootCmd.AddCommand(RunVersionCommand(Version))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func RunVersionCommand(version string) *cobra.Command {
	var command = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of keeper",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	}

	return command
}

func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	command := &cobra.Command{
		Use:   "generate-config",
		Short: "Generate a default configuration file",
		Long: `Generate a default configuration file without starting the server.

If no --config-dir is specified, uses the OS-specific default location:
- Linux/macOS: ~/.config/keeper/config.toml
- Windows: %APPDATA%\keeper\config.toml

You can specify either a directory path or a direct file path:
- Directory: keeper generate-config --config-dir /path/to/config/
- File: keeper generate-config --config-dir /path/to/myconfig.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath := resolveConfigFile(configDir)

			if _, err := os.Stat(configPath); err == nil {
				cmd.Printf("Configuration file already exists at: %s\n", configPath)
				cmd.Println("Skipping generation to avoid overwriting existing configuration.")
				return nil
			}

			if err := config.WriteDefaultConfig(configPath); err != nil {
				return fmt.Errorf("failed to create configuration file: %w", err)
			}

			cmd.Printf("Configuration file created successfully at: %s\n", configPath)
			return nil
		},
	}

	command.Flags().StringVar(&configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")

	return command
}

func RunKeygenCommand() *cobra.Command {
	var (
		outDir string
		force  bool
	)

	command := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an Ed25519 publisher key pair",
		Long: `Generate an Ed25519 key pair for signing license files.

The private key (publisher.key) stays with the activation service. The public
key (publisher.pem) is configured as publisher.publicKeyFile on every client.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if outDir == "" {
				outDir = config.GetDefaultConfigDir()
			}

			privatePath := filepath.Join(outDir, "publisher.key")
			publicPath := filepath.Join(outDir, "publisher.pem")

			if !force {
				for _, p := range []string{privatePath, publicPath} {
					if _, err := os.Stat(p); err == nil {
						return fmt.Errorf("%s already exists, use --force to overwrite", p)
					}
				}
			}

			privatePEM, publicPEM, err := signature.GenerateEd25519()
			if err != nil {
				return fmt.Errorf("failed to generate key pair: %w", err)
			}

			if err := os.MkdirAll(outDir, 0755); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
			if err := os.WriteFile(privatePath, []byte(privatePEM), 0600); err != nil {
				return fmt.Errorf("failed to write private key: %w", err)
			}
			if err := os.WriteFile(publicPath, []byte(publicPEM), 0644); err != nil {
				return fmt.Errorf("failed to write public key: %w", err)
			}

			cmd.Printf("Private key written to: %s\n", privatePath)
			cmd.Printf("Public key written to: %s\n", publicPath)
			cmd.Print(publicPEM)
			return nil
		},
	}

	command.Flags().StringVar(&outDir, "out", "", "output directory (defaults to the config directory)")
	command.Flags().BoolVar(&force, "force", false, "overwrite existing keys")

	return command
}

// resolveConfigFile mirrors the config package's directory-or-file handling
func resolveConfigFile(configDir string) string {
	if configDir == "" {
		return filepath.Join(config.GetDefaultConfigDir(), "config.toml")
	}
	if strings.HasSuffix(strings.ToLower(configDir), ".toml") {
		return configDir
	}
	if info, err := os.Stat(configDir); err == nil && !info.IsDir() {
		return configDir
	}
	return filepath.Join(configDir, "config.toml")
}
