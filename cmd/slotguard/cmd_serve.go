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
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/SlotGuard/services/upgrade/httpapi"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	serveAddr  string
	serveDebug bool
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the stateless layout diff service",
	Long: `Serve layout diffs over HTTP.

POST /v1/diff takes base and head layout JSON in the request body and
returns the full report; no forge, snapshot store, or chain access is
involved. GET /healthz and GET /metrics round out the surface.

The server drains in-flight requests on SIGINT/SIGTERM.`,
	Args: cobra.NoArgs,
	Run:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"Listen address (default from config, :8799)")
	serveCmd.Flags().BoolVar(&serveDebug, "debug", false,
		"Verbose request handling")

	rootCmd.AddCommand(serveCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		fail("Failed to load config", err)
	}
	logger := newLogger(cfg, "serve")
	defer logger.Close()

	addr := cfg.Serve.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := httpapi.NewServer(httpapi.Config{
		Addr:   addr,
		Logger: logger.Slog(),
		Debug:  cfg.Serve.Debug || serveDebug,
	})
	if err := srv.Run(ctx); err != nil {
		fail("Server failed", err)
	}
}
