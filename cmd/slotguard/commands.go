// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/SlotGuard/cmd/slotguard/config"
	"github.com/AleutianAI/SlotGuard/pkg/logging"
	"github.com/AleutianAI/SlotGuard/pkg/ux"
)

// =============================================================================
// EXIT CODES
// =============================================================================

// Exit codes shared by every command.
const (
	// ExitSuccess: the command ran and, for check, the layout is safe.
	// Warnings do not change the exit code.
	ExitSuccess = 0

	// ExitUnsafe: the check ran to completion and found an unsafe
	// layout change.
	ExitUnsafe = 1

	// ExitError: the command itself failed (bad flags, missing tools,
	// store or chain trouble). Never used for layout verdicts.
	ExitError = 2
)

// buildVersion is stamped at link time:
//
//	go build -ldflags "-X main.buildVersion=v1.2.0"
var buildVersion = "dev"

// =============================================================================
// GLOBAL COMMAND VARIABLES
// =============================================================================

var (
	cfgFile  string
	logLevel string
	logJSON  bool
	quiet    bool

	rootCmd = &cobra.Command{
		Use:   "slotguard",
		Short: "A cli to guard smart contract upgrades against storage layout corruption",
		Long: `SlotGuard compares the storage layout of a proposed contract upgrade
				against the layout of the deployed version and refuses layouts that
				would silently corrupt live state behind a proxy.`,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the slotguard version",
		Run:   runVersion,
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Config file (default: ./"+config.DefaultFile+" when present)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Minimum log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false,
		"Write stderr logs as JSON")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false,
		"Disable stderr logging; report output is unaffected")

	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, args []string) {
	fmt.Printf("slotguard %s (%s %s/%s)\n",
		buildVersion, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// loadConfig resolves the effective configuration.
//
// An explicit --config path must exist; without the flag, a missing
// ./slotguard.yaml just means defaults.
func loadConfig() (config.Config, error) {
	if cfgFile != "" {
		return config.Load(cfgFile)
	}
	return config.LoadOrDefault(config.DefaultFile)
}

// newLogger builds the command logger from the config with the
// persistent flags folded in.
func newLogger(cfg config.Config, service string) *logging.Logger {
	level := cfg.Log.Level
	if logLevel != "" {
		level = logLevel
	}
	return logging.New(logging.Config{
		Level:   logging.ParseLevel(level),
		LogDir:  cfg.Log.Dir,
		Service: service,
		JSON:    cfg.Log.JSON || logJSON,
		Quiet:   cfg.Log.Quiet || quiet,
	})
}

// resolveContract picks the contract under check: the flag wins, then a
// sole configured contract. Anything else needs the flag.
func resolveContract(cfg config.Config, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	switch len(cfg.Project.Contracts) {
	case 0:
		return "", fmt.Errorf("no contract given: use --contract or configure project.contracts")
	case 1:
		return cfg.Project.Contracts[0], nil
	default:
		return "", fmt.Errorf("%d contracts configured, use --contract to pick one", len(cfg.Project.Contracts))
	}
}

// resolveSource derives the head source path when the flag is empty. A
// qualified contract spec (src/Vault.sol:Vault) carries its own path.
func resolveSource(contract, flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if i := strings.LastIndexByte(contract, ':'); i > 0 {
		return contract[:i], nil
	}
	return "", fmt.Errorf("no source given: use --source or a qualified contract spec (src/Vault.sol:Vault)")
}

// fail prints an error to stderr and exits with ExitError.
func fail(msg string, err error) {
	styles := ux.AutoStyles(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s %s: %v\n", ux.IconError.Render(styles), msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "%s %s\n", ux.IconError.Render(styles), msg)
	}
	os.Exit(ExitError)
}
