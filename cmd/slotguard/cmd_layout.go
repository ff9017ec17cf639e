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
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/SlotGuard/pkg/ux"
	"github.com/AleutianAI/SlotGuard/services/upgrade/layout"
	"github.com/AleutianAI/SlotGuard/services/upgrade/report"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	layoutContract string
	layoutFile     string
	layoutJSON     bool
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var layoutCmd = &cobra.Command{
	Use:   "layout",
	Short: "Print a contract's parsed storage layout",
	Long: `Build (or read) a storage layout and print it slot by slot.

A debugging aid: shows the layout exactly as the checker sees it, after
parsing and validation.

Examples:
  slotguard layout --contract src/Vault.sol:Vault
  slotguard layout --file layout.json
  slotguard layout --contract Vault --json`,
	Args: cobra.NoArgs,
	Run:  runLayoutCmd,
}

func init() {
	layoutCmd.Flags().StringVar(&layoutContract, "contract", "",
		"Contract to inspect, bare (Vault) or qualified (src/Vault.sol:Vault)")
	layoutCmd.Flags().StringVar(&layoutFile, "file", "",
		"Read the layout from a JSON file instead of running forge")
	layoutCmd.Flags().BoolVar(&layoutJSON, "json", false,
		"Print the parsed layout as JSON")

	rootCmd.AddCommand(layoutCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runLayoutCmd(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fail("Failed to load config", err)
	}
	logger := newLogger(cfg, "cli")
	defer logger.Close()

	var l *layout.StorageLayout
	if layoutFile != "" {
		l, err = layout.ParseLayoutFile(layoutFile)
		if err != nil {
			fail("Failed to parse layout file", err)
		}
	} else {
		contract, err := resolveContract(cfg, layoutContract)
		if err != nil {
			fail("Invalid request", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		ctx, cancel := context.WithTimeout(ctx, cfg.Forge.Timeout.Duration())
		defer cancel()

		runner := newForgeRunner(cfg, logger)
		if err := checkForge(ctx, runner, cfg); err != nil {
			fail("Layout tool unavailable", err)
		}
		raw, err := runner.InspectLayout(ctx, contract)
		if err != nil {
			fail("Failed to build layout", err)
		}
		if l, err = layout.ParseLayout(raw); err != nil {
			fail("Layout tool emitted a malformed layout", err)
		}
	}

	if layoutJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(l); err != nil {
			fail("Failed to encode layout", err)
		}
		return
	}
	printLayout(l)
}

func printLayout(l *layout.StorageLayout) {
	styles := ux.AutoStyles(os.Stdout)

	name := l.Contract
	if name == "" {
		name = "(unnamed contract)"
	}
	slots := make(map[uint64]struct{})
	for _, v := range l.Variables {
		slots[v.Slot] = struct{}{}
	}
	fmt.Printf("%s  %s\n\n",
		styles.Title.Render(name),
		styles.Muted.Render(fmt.Sprintf("%s in %s", plural(len(l.Variables), "variable"), plural(len(slots), "slot"))))

	for _, line := range report.LayoutListing(l) {
		fmt.Printf("  %s\n", line)
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
