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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/SlotGuard/pkg/ux"
	"github.com/AleutianAI/SlotGuard/pkg/validation"
	"github.com/AleutianAI/SlotGuard/services/upgrade"
	"github.com/AleutianAI/SlotGuard/services/upgrade/report"
)

// =============================================================================
// CONSTANTS
// =============================================================================

// Report formats.
const (
	FormatText        = "text"
	FormatJSON        = "json"
	FormatMarkdown    = "markdown"
	FormatAnnotations = "annotations"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	checkContract   string
	checkSource     string
	checkBaseRef    string
	checkBaseKey    string
	checkBaseLayout string
	checkHeadLayout string
	checkRemovals   bool
	checkAddress    string
	checkRPCURL     string
	checkFormat     string
	checkOutput     string
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check a contract upgrade for unsafe storage layout changes",
	Long: `Compare the storage layout of the working tree against a baseline.

The head layout comes from forge inspect (or --head-layout). The base
layout comes from the snapshot store under --base-ref / --base-key, or
from a local file via --base-layout. Every difference is classified,
anchored to its declaration in the head source, and rendered.

Examples:
  slotguard check --contract src/Vault.sol:Vault --base-ref v1.4.0
  slotguard check --base-key snapshots/Vault/v1.4.0.zip --format json
  slotguard check --base-layout old.json --head-layout new.json --source src/Vault.sol
  slotguard check --base-ref v1.4.0 --check-removals \
      --address 0x12..ef --rpc-url wss://mainnet.example.org

Exit Codes:
  0 = Layout is safe (warnings allowed)
  1 = Unsafe layout change found
  2 = Error (bad flags, tool, store, or chain failure)`,
	Args: cobra.NoArgs,
	Run:  runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkContract, "contract", "",
		"Contract under check, bare (Vault) or qualified (src/Vault.sol:Vault)")
	checkCmd.Flags().StringVar(&checkSource, "source", "",
		"Head source file for location anchoring (default: path part of a qualified --contract)")
	checkCmd.Flags().StringVar(&checkBaseRef, "base-ref", "",
		"Baseline snapshot ref, e.g. a release tag")
	checkCmd.Flags().StringVar(&checkBaseKey, "base-key", "",
		"Explicit baseline snapshot store key, overrides --base-ref derivation")
	checkCmd.Flags().StringVar(&checkBaseLayout, "base-layout", "",
		"Baseline layout JSON file, bypasses the snapshot store")
	checkCmd.Flags().StringVar(&checkHeadLayout, "head-layout", "",
		"Head layout JSON file, bypasses forge")
	checkCmd.Flags().BoolVar(&checkRemovals, "check-removals", false,
		"Surface removed variables as errors")
	checkCmd.Flags().StringVar(&checkAddress, "address", "",
		"Deployed contract address for on-chain removal evidence")
	checkCmd.Flags().StringVar(&checkRPCURL, "rpc-url", "",
		"Ethereum JSON-RPC endpoint (http, https, ws, or wss)")
	checkCmd.Flags().StringVar(&checkFormat, "format", FormatText,
		"Report format: text, json, markdown, annotations")
	checkCmd.Flags().StringVarP(&checkOutput, "output", "o", "",
		"Write the report to a file instead of stdout")

	rootCmd.AddCommand(checkCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runCheck(cmd *cobra.Command, args []string) {
	// Reject a typoed format before any tool or store work happens.
	if err := validateFormat(checkFormat); err != nil {
		fail("Invalid flags", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		fail("Failed to load config", err)
	}
	logger := newLogger(cfg, "cli")
	defer logger.Close()

	contract, err := resolveContract(cfg, checkContract)
	if err != nil {
		fail("Invalid request", err)
	}
	source, err := resolveSource(contract, checkSource)
	if err != nil {
		fail("Invalid request", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Check.Timeout.Duration())
	defer cancel()

	opts := []upgrade.Option{
		upgrade.WithLogger(logger.Slog()),
		upgrade.WithKeyPrefix(cfg.Artifacts.Prefix),
	}

	// Head side: the layout tool, unless a file bypasses it.
	if checkHeadLayout == "" {
		runner := newForgeRunner(cfg, logger)
		if err := checkForge(ctx, runner, cfg); err != nil {
			fail("Layout tool unavailable", err)
		}
		opts = append(opts, upgrade.WithInspector(runner))
	}

	// Base side: the snapshot store, unless a file bypasses it.
	if checkBaseLayout == "" {
		store, cleanup, err := openStore(ctx, cfg, logger)
		if err != nil {
			fail("Snapshot store unavailable", err)
		}
		defer cleanup()
		opts = append(opts, upgrade.WithBaseline(newFetcher(store, cfg, logger)))
	}

	// On-chain evidence needs both an address and an endpoint.
	address := cfg.Check.Address
	if checkAddress != "" {
		address = checkAddress
	}
	rpcURL := cfg.Check.RPCURL
	if checkRPCURL != "" {
		rpcURL = checkRPCURL
	}
	if address != "" {
		if rpcURL == "" {
			fail("Invalid request", errors.New("--address needs --rpc-url (or check.rpc_url in the config)"))
		}
		normalized, err := validation.NormalizeAddress(address)
		if err != nil {
			fail("Invalid address", err)
		}
		address = normalized
		verifier, closeRPC, err := newVerifier(rpcURL, cfg, logger)
		if err != nil {
			fail("RPC endpoint unavailable", err)
		}
		defer closeRPC()
		opts = append(opts, upgrade.WithVerifier(verifier))
	}

	removals := cfg.Check.Removals
	if cmd.Flags().Changed("check-removals") {
		removals = checkRemovals
	}

	checker := upgrade.NewChecker(opts...)
	rep, err := checker.Run(ctx, upgrade.CheckRequest{
		Contract:       contract,
		SourcePath:     source,
		BaseRef:        checkBaseRef,
		BaseKey:        checkBaseKey,
		BaseLayoutPath: checkBaseLayout,
		HeadLayoutPath: checkHeadLayout,
		CheckRemovals:  removals,
		Address:        address,
	})
	if err != nil {
		fail("Check failed", err)
	}

	if err := writeReport(rep, checkFormat, checkOutput); err != nil {
		fail("Failed to write report", err)
	}
	if rep.Passed {
		os.Exit(ExitSuccess)
	}
	os.Exit(ExitUnsafe)
}

// =============================================================================
// OUTPUT
// =============================================================================

func validateFormat(format string) error {
	switch format {
	case FormatText, FormatJSON, FormatMarkdown, FormatAnnotations:
		return nil
	default:
		return fmt.Errorf("unknown format %q: want text, json, markdown, or annotations", format)
	}
}

// writeReport renders the report to stdout or, with a path, to a file.
// File output always renders plain; color codes in a CI artifact help
// nobody.
func writeReport(rep *upgrade.Report, format, path string) error {
	w := io.Writer(os.Stdout)
	styles := ux.AutoStyles(os.Stdout)

	var f *os.File
	if path != "" {
		var err error
		f, err = os.Create(path)
		if err != nil {
			return err
		}
		w = f
		styles = ux.PlainStyles()
	}

	var err error
	switch format {
	case FormatJSON:
		err = report.JSON(w, rep)
	case FormatMarkdown:
		err = report.Markdown(w, rep)
	case FormatAnnotations:
		err = report.Annotations(w, rep)
	default:
		err = report.Text(w, rep, styles)
	}

	if f != nil {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
