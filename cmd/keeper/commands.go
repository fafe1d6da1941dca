// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/autobrr/keeper/internal/api/converters"
	"github.com/autobrr/keeper/internal/license"
)

func addRuntimeFlags(command *cobra.Command, opts *runtimeOptions) {
	command.Flags().StringVar(&opts.configDir, "config-dir", "",
		"config directory or file path (defaults to OS-specific location)")
	command.Flags().StringVar(&opts.dataDir, "data-dir", "",
		"data directory for the database and license file (default is next to config file)")
}

func RunCheckCommand() *cobra.Command {
	var (
		opts     runtimeOptions
		noPrompt bool
		asJSON   bool
	)

	command := &cobra.Command{
		Use:          "check",
		Short:        "Check the license and handle its current state",
		SilenceUsage: true,
		Long: `Run the launch workflow: read and verify the local license file, derive its
status and handle it. A missing or untrusted file is replaced with a freshly
issued one. When the trial has ended you are asked for a product key.

Exits non-zero when the license does not allow using the product.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.autoInstall = true
			rt, err := newRuntime(opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			if !noPrompt && isTerminal() {
				rt.service.SetKeyPrompt(func() string {
					code, err := readProductKey(cmd, "Trial has ended. Enter product key (empty to skip): ")
					if err != nil {
						return ""
					}
					return code
				})
			}

			hc, err := rt.service.ValidateLicense(cmd.Context())
			view := converters.ConvertContext(hc, rt.clock.Now())
			if renderErr := render(cmd.OutOrStdout(), view, asJSON); renderErr != nil {
				return renderErr
			}
			if err != nil {
				return err
			}
			if !view.Active {
				return fmt.Errorf("license is not active: %s", view.Status)
			}
			return nil
		},
	}

	addRuntimeFlags(command, &opts)
	command.Flags().BoolVar(&noPrompt, "no-prompt", false, "never ask for a product key")
	command.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")

	return command
}

func RunStatusCommand() *cobra.Command {
	var (
		opts   runtimeOptions
		asJSON bool
	)

	command := &cobra.Command{
		Use:          "status",
		Short:        "Show the license status without contacting the activation service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			hc, _ := rt.service.GetCachedContext(cmd.Context())
			return render(cmd.OutOrStdout(), converters.ConvertContext(hc, rt.clock.Now()), asJSON)
		},
	}

	addRuntimeFlags(command, &opts)
	command.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")

	return command
}

func RunInstallCommand() *cobra.Command {
	var opts runtimeOptions

	command := &cobra.Command{
		Use:          "install",
		Short:        "Download a fresh license file for this computer",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			hc, err := rt.service.DownloadLicense(cmd.Context())
			printLicense(cmd.OutOrStdout(), converters.ConvertContext(hc, rt.clock.Now()))
			if err != nil {
				return fmt.Errorf("failed to install license: %w", err)
			}

			cmd.Printf("License installed at: %s\n", rt.store.Path())
			return nil
		},
	}

	addRuntimeFlags(command, &opts)

	return command
}

func RunUninstallCommand() *cobra.Command {
	var opts runtimeOptions

	command := &cobra.Command{
		Use:          "uninstall",
		Short:        "Unregister this computer and remove the license file",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			hc, err := rt.service.UnregisterLicense(cmd.Context())
			if err != nil {
				printLicense(cmd.OutOrStdout(), converters.ConvertContext(hc, rt.clock.Now()))
				return fmt.Errorf("failed to unregister computer: %w", err)
			}

			cmd.Println("Computer unregistered and license file removed")
			return nil
		},
	}

	addRuntimeFlags(command, &opts)

	return command
}

func RunActivateCommand() *cobra.Command {
	var opts runtimeOptions

	command := &cobra.Command{
		Use:          "activate [product-key]",
		Short:        "Redeem a product key",
		Long:         `Redeem a product key for this computer. You are prompted for the key when it is not given as an argument.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var code string
			if len(args) == 1 {
				code = args[0]
			} else {
				var err error
				code, err = readProductKey(cmd, "Enter product key: ")
				if err != nil {
					return err
				}
			}

			// rejected before anything is opened
			if err := license.ValidateReceiptCode(code); err != nil {
				return err
			}

			rt, err := newRuntime(opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			hc, err := rt.service.ActivateLicense(cmd.Context(), code)
			printLicense(cmd.OutOrStdout(), converters.ConvertContext(hc, rt.clock.Now()))
			if err != nil {
				return fmt.Errorf("failed to activate product key: %w", err)
			}

			cmd.Println("Product key activated")
			return nil
		},
	}

	addRuntimeFlags(command, &opts)

	return command
}

func RunHistoryCommand() *cobra.Command {
	var (
		opts   runtimeOptions
		limit  int
		asJSON bool
	)

	command := &cobra.Command{
		Use:          "history",
		Short:        "List recorded workflow runs",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(opts)
			if err != nil {
				return err
			}
			defer rt.Close()

			entries, err := rt.history.List(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("failed to list history: %w", err)
			}

			view := converters.ConvertHistory(entries)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), view)
			}
			printHistory(cmd.OutOrStdout(), view)
			return nil
		},
	}

	addRuntimeFlags(command, &opts)
	command.Flags().IntVar(&limit, "limit", 20, "number of runs to show")
	command.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")

	return command
}

func render(w io.Writer, view converters.License, asJSON bool) error {
	if asJSON {
		return writeJSON(w, view)
	}
	printLicense(w, view)
	return nil
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// readProductKey prompts for a product key, hiding input on a terminal
func readProductKey(cmd *cobra.Command, prompt string) (string, error) {
	if isTerminal() {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
		key, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read product key: %w", err)
		}
		return strings.TrimSpace(string(key)), nil
	}

	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read product key from stdin: %w", err)
	}
	return strings.TrimSpace(line), nil
}
