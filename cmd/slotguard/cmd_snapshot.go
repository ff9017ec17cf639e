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
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/SlotGuard/pkg/ux"
	"github.com/AleutianAI/SlotGuard/services/upgrade"
	"github.com/AleutianAI/SlotGuard/services/upgrade/artifact"
	"github.com/AleutianAI/SlotGuard/services/upgrade/layout"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	snapshotContract string
	snapshotRef      string
	snapshotCommit   string
	snapshotOut      string
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Publish the current storage layout as a baseline snapshot",
	Long: `Build the contract's storage layout and publish it under a ref.

This is the main-branch CI leg: every release publishes its layout so
later upgrade checks have a baseline to compare against. The layout is
parsed before publishing; a malformed layout never reaches the store.

Examples:
  slotguard snapshot --contract src/Vault.sol:Vault --ref v1.4.0
  slotguard snapshot --ref main --commit "$GITHUB_SHA"
  slotguard snapshot --ref v1.4.0 --out vault-v1.4.0.zip`,
	Args: cobra.NoArgs,
	Run:  runSnapshot,
}

func init() {
	snapshotCmd.Flags().StringVar(&snapshotContract, "contract", "",
		"Contract to snapshot, bare (Vault) or qualified (src/Vault.sol:Vault)")
	snapshotCmd.Flags().StringVar(&snapshotRef, "ref", "",
		"Ref to publish under, e.g. a release tag (required)")
	snapshotCmd.Flags().StringVar(&snapshotCommit, "commit", "",
		"Commit the layout was built from (default: $GITHUB_SHA)")
	snapshotCmd.Flags().StringVar(&snapshotOut, "out", "",
		"Write the snapshot archive to a file instead of uploading")
	_ = snapshotCmd.MarkFlagRequired("ref")

	rootCmd.AddCommand(snapshotCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runSnapshot(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fail("Failed to load config", err)
	}
	logger := newLogger(cfg, "cli")
	defer logger.Close()

	contract, err := resolveContract(cfg, snapshotContract)
	if err != nil {
		fail("Invalid request", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Check.Timeout.Duration())
	defer cancel()

	runner := newForgeRunner(cfg, logger)
	if err := checkForge(ctx, runner, cfg); err != nil {
		fail("Layout tool unavailable", err)
	}

	raw, err := runner.InspectLayout(ctx, contract)
	if err != nil {
		fail("Failed to build layout", err)
	}
	parsed, err := layout.ParseLayout(raw)
	if err != nil {
		fail("Layout tool emitted a malformed layout", err)
	}

	snap := artifact.NewSnapshot(contract, snapshotRef, raw)
	snap.Commit = snapshotCommit
	if snap.Commit == "" {
		snap.Commit = os.Getenv("GITHUB_SHA")
	}
	// Version is provenance, not a gate; a snapshot without it is fine.
	if v, err := runner.Version(ctx); err == nil {
		snap.ToolVersion = v
	}

	styles := ux.AutoStyles(os.Stdout)

	if snapshotOut != "" {
		if err := writeSnapshotArchive(snap, snapshotOut); err != nil {
			fail("Failed to write archive", err)
		}
		fmt.Printf("%s snapshot written: %s (%s, %d variables)\n",
			ux.IconSuccess.Render(styles), snapshotOut, snapshotRef, len(parsed.Variables))
		return
	}

	store, cleanup, err := openStore(ctx, cfg, logger)
	if err != nil {
		fail("Snapshot store unavailable", err)
	}
	defer cleanup()

	prefix := cfg.Artifacts.Prefix
	if prefix == "" {
		prefix = upgrade.DefaultKeyPrefix
	}
	key := artifact.Key(prefix, contract, snapshotRef)
	if err := snap.Publish(ctx, store, key); err != nil {
		fail("Failed to publish snapshot", err)
	}
	fmt.Printf("%s snapshot published: %s (%d variables)\n",
		ux.IconSuccess.Render(styles), key, len(parsed.Variables))
}

func writeSnapshotArchive(snap *artifact.Snapshot, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := snap.WriteArchive(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
