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
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/SlotGuard/pkg/ux"
	"github.com/AleutianAI/SlotGuard/services/upgrade"
	"github.com/AleutianAI/SlotGuard/services/upgrade/artifact"
	"github.com/AleutianAI/SlotGuard/services/upgrade/report"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	watchContract   string
	watchSource     string
	watchBaseRef    string
	watchBaseKey    string
	watchBaseLayout string
	watchRemovals   bool
	watchDebounce   time.Duration
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run the layout check on every source change",
	Long: `Watch the contract source and re-check the layout after each save.

The base is pinned once at startup; every save rebuilds the head layout
and prints a fresh report. The dev loop never reads the chain, so
removal findings carry no on-chain evidence here.

Examples:
  slotguard watch --contract src/Vault.sol:Vault --base-ref v1.4.0
  slotguard watch --base-layout old.json --check-removals`,
	Args: cobra.NoArgs,
	Run:  runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchContract, "contract", "",
		"Contract under check, bare (Vault) or qualified (src/Vault.sol:Vault)")
	watchCmd.Flags().StringVar(&watchSource, "source", "",
		"Source file to watch (default: path part of a qualified --contract)")
	watchCmd.Flags().StringVar(&watchBaseRef, "base-ref", "",
		"Baseline snapshot ref, e.g. a release tag")
	watchCmd.Flags().StringVar(&watchBaseKey, "base-key", "",
		"Explicit baseline snapshot store key")
	watchCmd.Flags().StringVar(&watchBaseLayout, "base-layout", "",
		"Baseline layout JSON file, bypasses the snapshot store")
	watchCmd.Flags().BoolVar(&watchRemovals, "check-removals", false,
		"Surface removed variables as errors")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond,
		"Quiet period after a save before the check runs")

	rootCmd.AddCommand(watchCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runWatch(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fail("Failed to load config", err)
	}
	logger := newLogger(cfg, "watch")
	defer logger.Close()

	contract, err := resolveContract(cfg, watchContract)
	if err != nil {
		fail("Invalid request", err)
	}
	source, err := resolveSource(contract, watchSource)
	if err != nil {
		fail("Invalid request", err)
	}
	if watchBaseRef == "" && watchBaseKey == "" && watchBaseLayout == "" {
		fail("Invalid request", fmt.Errorf("a base is required: use --base-ref, --base-key, or --base-layout"))
	}
	if _, err := os.Stat(source); err != nil {
		fail("Cannot watch source", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := newForgeRunner(cfg, logger)
	if err := checkForge(ctx, runner, cfg); err != nil {
		fail("Layout tool unavailable", err)
	}
	opts := []upgrade.Option{
		upgrade.WithLogger(logger.Slog()),
		upgrade.WithKeyPrefix(cfg.Artifacts.Prefix),
		upgrade.WithInspector(runner),
	}

	if watchBaseLayout == "" {
		store, cleanup, err := openStore(ctx, cfg, logger)
		if err != nil {
			fail("Snapshot store unavailable", err)
		}
		defer cleanup()
		if cfg.Artifacts.CacheDir == "" {
			// The loop re-reads the pinned base on every save; without a
			// configured cache, keep it in memory instead of re-fetching.
			if cache, err := artifact.NewCache(store, artifact.InMemoryCacheConfig()); err == nil {
				defer cache.Close()
				store = cache
			}
		}
		opts = append(opts, upgrade.WithBaseline(newFetcher(store, cfg, logger)))
	}

	removals := cfg.Check.Removals
	if cmd.Flags().Changed("check-removals") {
		removals = watchRemovals
	}

	checker := upgrade.NewChecker(opts...)
	req := upgrade.CheckRequest{
		Contract:       contract,
		SourcePath:     source,
		BaseRef:        watchBaseRef,
		BaseKey:        watchBaseKey,
		BaseLayoutPath: watchBaseLayout,
		CheckRemovals:  removals,
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fail("Failed to create watcher", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors replace files on save
	// and a watch on the old inode goes quiet.
	dir := filepath.Dir(source)
	if err := watcher.Add(dir); err != nil {
		fail("Failed to watch "+dir, err)
	}

	styles := ux.AutoStyles(os.Stdout)
	fmt.Printf("%s watching %s (contract %s)\n",
		ux.IconPending.Render(styles), dir, contract)

	// One check up front so a broken layout shows before the first save.
	watchCheck(ctx, checker, req, cfg.Check.Timeout.Duration(), styles)

	debounce := time.NewTimer(watchDebounce)
	if !debounce.Stop() {
		<-debounce.C
	}
	var lastChanged string

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !relevantSourceEvent(event) {
				continue
			}
			logger.Debug("source changed", "path", event.Name, "op", event.Op.String())
			lastChanged = filepath.Base(event.Name)
			debounce.Reset(watchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("watcher error", "error", err)

		case <-debounce.C:
			fmt.Printf("%s %s changed\n", ux.IconArrow.Render(styles), lastChanged)
			watchCheck(ctx, checker, req, cfg.Check.Timeout.Duration(), styles)

		case <-ctx.Done():
			fmt.Printf("\n%s watch stopped\n", ux.IconPending.Render(styles))
			return
		}
	}
}

// relevantSourceEvent filters the directory stream down to contract
// source changes.
func relevantSourceEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	return strings.EqualFold(filepath.Ext(event.Name), ".sol")
}

// watchCheck runs one check and prints the report. Failures are shown
// and swallowed; the loop outlives a broken intermediate state.
func watchCheck(ctx context.Context, checker *upgrade.Checker, req upgrade.CheckRequest, timeout time.Duration, styles ux.Styles) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stamp := time.Now().Format("15:04:05")
	fmt.Printf("\n%s\n", styles.Muted.Render("--- "+stamp+" ---"))

	rep, err := checker.Run(runCtx, req)
	if err != nil {
		fmt.Printf("%s check failed: %v\n", ux.IconError.Render(styles), err)
		return
	}
	if err := report.Text(os.Stdout, rep, styles); err != nil {
		fmt.Printf("%s failed to render report: %v\n", ux.IconError.Render(styles), err)
	}
}
