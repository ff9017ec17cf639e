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

	"github.com/AleutianAI/SlotGuard/cmd/slotguard/config"
	"github.com/AleutianAI/SlotGuard/pkg/logging"
	"github.com/AleutianAI/SlotGuard/pkg/validation"
	"github.com/AleutianAI/SlotGuard/services/upgrade/artifact"
	"github.com/AleutianAI/SlotGuard/services/upgrade/chain"
	"github.com/AleutianAI/SlotGuard/services/upgrade/forge"
)

// =============================================================================
// COMPONENT WIRING
// =============================================================================

// newForgeRunner builds the layout tool runner from the config.
func newForgeRunner(cfg config.Config, logger *logging.Logger) *forge.Runner {
	return forge.NewRunner(
		forge.WithBin(cfg.Forge.Bin),
		forge.WithRoot(cfg.Project.Root),
		forge.WithTimeout(cfg.Forge.Timeout.Duration()),
		forge.WithLogger(logger.Slog()),
	)
}

// checkForge verifies the tool is present and new enough before any
// command depends on its output.
func checkForge(ctx context.Context, runner *forge.Runner, cfg config.Config) error {
	if err := runner.Available(); err != nil {
		return err
	}
	if cfg.Forge.MinVersion == "" {
		return nil
	}
	return runner.RequireVersion(ctx, cfg.Forge.MinVersion)
}

// openStore opens the snapshot store, wrapped in the local cache when
// one is configured. The returned cleanup closes whatever was opened
// and is safe to call once.
func openStore(ctx context.Context, cfg config.Config, logger *logging.Logger) (artifact.Store, func(), error) {
	if cfg.Artifacts.Bucket == "" {
		return nil, nil, fmt.Errorf("no artifact bucket configured: set artifacts.bucket or use --base-layout")
	}

	gcs, err := artifact.NewGCSStore(ctx, cfg.Artifacts.Bucket, cfg.Artifacts.CredentialsFile)
	if err != nil {
		return nil, nil, fmt.Errorf("open snapshot store: %w", err)
	}
	if cfg.Artifacts.CacheDir == "" {
		return gcs, func() { _ = gcs.Close() }, nil
	}

	cacheCfg := artifact.DefaultCacheConfig(cfg.Artifacts.CacheDir)
	cacheCfg.Logger = logger.Slog()
	cache, err := artifact.NewCache(gcs, cacheCfg)
	if err != nil {
		_ = gcs.Close()
		return nil, nil, fmt.Errorf("open snapshot cache: %w", err)
	}
	cleanup := func() {
		_ = cache.Close()
		_ = gcs.Close()
	}
	return cache, cleanup, nil
}

// newFetcher wraps a store in the polling fetcher.
func newFetcher(store artifact.Store, cfg config.Config, logger *logging.Logger) *artifact.Fetcher {
	return artifact.NewFetcher(store,
		artifact.WithPollInterval(cfg.Artifacts.PollInterval.Duration()),
		artifact.WithMaxWait(cfg.Artifacts.MaxWait.Duration()),
		artifact.WithLogger(logger.Slog()),
	)
}

// newVerifier dials the RPC endpoint and builds the removal verifier.
// The cleanup closes the underlying connection.
func newVerifier(rpcURL string, cfg config.Config, logger *logging.Logger) (*chain.Verifier, func(), error) {
	if err := validation.ValidateEndpoint(rpcURL); err != nil {
		return nil, nil, err
	}
	client, err := chain.NewRPCClient(rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rpc endpoint: %w", err)
	}
	verifier := chain.NewVerifier(client,
		chain.WithReadTimeout(cfg.Check.ReadTimeout.Duration()),
		chain.WithLogger(logger.Slog()),
	)
	return verifier, func() { _ = client.Close() }, nil
}
