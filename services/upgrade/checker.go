// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package upgrade orchestrates a storage layout safety check.
//
// A check compares the storage layout of a proposed contract upgrade
// (the head) against the layout of the deployed version (the base),
// classifies every difference, anchors each one in the head source, and
// renders a verdict. The CLI and the HTTP surface both run checks
// through this package; everything it needs (the layout tool, the
// snapshot store, the on-chain verifier) is injected, so callers decide
// what a check is allowed to touch.
//
// A check that runs to completion returns a Report even when the layout
// is unsafe; the Report carries the verdict. An error return means the
// check itself could not be carried out: a tool, store, decode, or
// source-resolution failure. Callers map the two outcomes to different
// exit codes.
package upgrade

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/SlotGuard/services/upgrade/artifact"
	"github.com/AleutianAI/SlotGuard/services/upgrade/diff"
	"github.com/AleutianAI/SlotGuard/services/upgrade/layout"
	"github.com/AleutianAI/SlotGuard/services/upgrade/resolve"
	"github.com/AleutianAI/SlotGuard/services/upgrade/solidity"
)

// DefaultKeyPrefix is the store prefix snapshots are published under
// when none is configured.
const DefaultKeyPrefix = "snapshots"

// =============================================================================
// COLLABORATORS
// =============================================================================

// LayoutInspector produces raw layout JSON for a contract, typically by
// running the build tool.
type LayoutInspector interface {
	InspectLayout(ctx context.Context, contract string) ([]byte, error)
}

// SnapshotFetcher obtains a published baseline snapshot, waiting for one
// that a concurrent publish job has not written yet.
type SnapshotFetcher interface {
	WaitDownload(ctx context.Context, key string) (*artifact.Snapshot, error)
}

// RemovalVerifier reads the storage words behind removal records on a
// live deployment and returns annotated copies.
type RemovalVerifier interface {
	AnnotateRemovals(ctx context.Context, address string, recs []diff.Record) []diff.Record
}

// =============================================================================
// CHECK REQUEST
// =============================================================================

// CheckRequest describes one layout check.
//
// The head side comes from HeadLayoutPath when set, otherwise from the
// configured layout tool. The base side comes from BaseLayoutPath when
// set, otherwise from the snapshot store under BaseKey, or under the
// key derived from Contract and BaseRef.
type CheckRequest struct {
	// Contract identifies the contract under check, bare (Vault) or
	// fully qualified (src/Vault.sol:Vault). Required.
	Contract string

	// SourcePath is the head branch's source file for the contract,
	// used to anchor findings to declarations. Required.
	SourcePath string

	// BaseRef selects the published baseline snapshot by ref.
	BaseRef string

	// BaseKey selects the baseline snapshot by explicit store key,
	// overriding the derivation from Contract and BaseRef.
	BaseKey string

	// BaseLayoutPath reads the baseline layout from a local JSON file,
	// bypassing the snapshot store entirely.
	BaseLayoutPath string

	// HeadLayoutPath reads the head layout from a local JSON file
	// instead of running the layout tool.
	HeadLayoutPath string

	// CheckRemovals surfaces removed variables as findings. Off, they
	// are still detected and logged but cannot fail the check.
	CheckRemovals bool

	// Address is the deployed contract address. When set and a verifier
	// is configured, removed variables' slots are read on-chain and the
	// words attached as evidence.
	Address string
}

func (req *CheckRequest) validate() error {
	if req.Contract == "" {
		return errors.New("contract is required")
	}
	if req.SourcePath == "" {
		return errors.New("source path is required")
	}
	if req.BaseLayoutPath == "" && req.BaseKey == "" && req.BaseRef == "" {
		return errors.New("a base ref, base key, or base layout file is required")
	}
	return nil
}

// =============================================================================
// CHECKER
// =============================================================================

// Checker runs layout checks with injected collaborators.
//
// Thread Safety: Safe for concurrent use once constructed.
type Checker struct {
	inspector LayoutInspector
	baseline  SnapshotFetcher
	verifier  RemovalVerifier
	scanner   *solidity.Scanner
	keyPrefix string
	logger    *slog.Logger
}

// Option configures the Checker.
type Option func(*Checker)

// WithInspector sets the layout tool used for the head side.
func WithInspector(i LayoutInspector) Option {
	return func(c *Checker) { c.inspector = i }
}

// WithBaseline sets the snapshot fetcher used for the base side.
func WithBaseline(f SnapshotFetcher) Option {
	return func(c *Checker) { c.baseline = f }
}

// WithVerifier sets the on-chain removal verifier.
func WithVerifier(v RemovalVerifier) Option {
	return func(c *Checker) { c.verifier = v }
}

// WithKeyPrefix sets the store prefix baseline keys are derived under.
func WithKeyPrefix(prefix string) Option {
	return func(c *Checker) {
		if prefix != "" {
			c.keyPrefix = prefix
		}
	}
}

// WithScanner overrides the source scanner.
func WithScanner(s *solidity.Scanner) Option {
	return func(c *Checker) {
		if s != nil {
			c.scanner = s
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewChecker creates a checker. Collaborators left unset simply make
// the request forms that need them fail with a clear error.
func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		scanner:   solidity.NewScanner(),
		keyPrefix: DefaultKeyPrefix,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes one layout check.
//
// # Description
//
// Obtains the head and base layouts, aligns them, optionally reads
// removed variables' slots on-chain, anchors every surfaced difference
// in the head source, and tallies the verdict. The returned Report is
// complete even when the check fails: Passed is false and the diffs
// carry the reasons.
//
// # Inputs
//
//   - ctx: Context for cancellation; bounds tool runs, store waits and
//     chain reads.
//   - req: The check to run.
//
// # Outputs
//
//   - *Report: The rendered outcome. Nil iff err is non-nil.
//   - error: Non-nil when the check could not be carried out: invalid
//     request, tool or store failure, malformed layout, or a head
//     variable missing from the scanned source.
func (c *Checker) Run(ctx context.Context, req CheckRequest) (*Report, error) {
	start := time.Now()
	if err := req.validate(); err != nil {
		return nil, err
	}

	head, err := c.headLayout(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("head layout: %w", err)
	}
	base, baseRef, err := c.baseLayout(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("base layout: %w", err)
	}
	if base.Contract != "" && head.Contract != "" && base.Contract != head.Contract {
		c.logger.Warn("base and head layouts name different contracts",
			slog.String("base", base.Contract),
			slog.String("head", head.Contract),
		)
	}

	result := diff.Compare(base, head, diff.Options{CheckRemovals: req.CheckRemovals})

	// Work on a copy; Compare's result stays immutable.
	records := make([]diff.Record, len(result.Records))
	copy(records, result.Records)

	removals := result.Removals
	if c.verifier != nil && req.Address != "" && len(removals) > 0 {
		removals = c.verifier.AnnotateRemovals(ctx, req.Address, removals)
		if req.CheckRemovals {
			spliceEvidence(records, removals)
		}
	}
	if !req.CheckRemovals {
		c.logGatedRemovals(removals)
	}

	file, err := c.scanner.ParseFile(ctx, req.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("scan head source %s: %w", req.SourcePath, err)
	}
	resolver, err := resolve.NewResolver(file, req.Contract)
	if err != nil {
		return nil, err
	}
	diffs, err := resolver.ResolveAll(records)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Contract:    req.Contract,
		BaseRef:     baseRef,
		GeneratedAt: time.Now().UTC(),
		DurationMs:  time.Since(start).Milliseconds(),
		Diffs:       diffs,
		Base:        base,
		Head:        head,
	}
	report.Tally()

	c.logger.Info("layout check completed",
		slog.String("contract", req.Contract),
		slog.Bool("passed", report.Passed),
		slog.Int("errors", report.Errors),
		slog.Int("warnings", report.Warnings),
		slog.Duration("duration", time.Since(start)),
	)
	return report, nil
}

// =============================================================================
// LAYOUT SOURCES
// =============================================================================

func (c *Checker) headLayout(ctx context.Context, req CheckRequest) (*layout.StorageLayout, error) {
	if req.HeadLayoutPath != "" {
		return layout.ParseLayoutFile(req.HeadLayoutPath)
	}
	if c.inspector == nil {
		return nil, errors.New("no layout tool configured and no head layout file given")
	}
	raw, err := c.inspector.InspectLayout(ctx, req.Contract)
	if err != nil {
		return nil, err
	}
	return layout.ParseLayout(raw)
}

func (c *Checker) baseLayout(ctx context.Context, req CheckRequest) (*layout.StorageLayout, string, error) {
	if req.BaseLayoutPath != "" {
		l, err := layout.ParseLayoutFile(req.BaseLayoutPath)
		return l, "", err
	}
	if c.baseline == nil {
		return nil, "", errors.New("no snapshot store configured and no base layout file given")
	}

	key := req.BaseKey
	if key == "" {
		key = artifact.Key(c.keyPrefix, req.Contract, req.BaseRef)
	}
	snap, err := c.baseline.WaitDownload(ctx, key)
	if err != nil {
		return nil, "", err
	}
	l, err := layout.ParseLayout(snap.Layout)
	if err != nil {
		return nil, "", err
	}
	return l, snap.Ref, nil
}

// =============================================================================
// REMOVAL EVIDENCE
// =============================================================================

// spliceEvidence copies evidence read onto the removal list across to
// the surfaced removal records, which are distinct copies of the same
// differences.
func spliceEvidence(records, removals []diff.Record) {
	byName := make(map[string][]byte, len(removals))
	for _, rec := range removals {
		if len(rec.OnChainEvidence) > 0 {
			byName[rec.Name] = rec.OnChainEvidence
		}
	}
	for i := range records {
		if records[i].Kind != diff.KindVariableRemoved {
			continue
		}
		if ev, ok := byName[records[i].Name]; ok {
			records[i].OnChainEvidence = ev
		}
	}
}

// logGatedRemovals records removals that removal checking kept out of
// the surfaced list. The check result hides them, the log does not.
func (c *Checker) logGatedRemovals(removals []diff.Record) {
	for _, rec := range removals {
		if rec.Base == nil {
			continue
		}
		args := []any{
			slog.String("variable", rec.Name),
			slog.Uint64("slot", rec.Base.Slot),
		}
		if len(rec.OnChainEvidence) > 0 {
			args = append(args, slog.String("evidence", "0x"+hex.EncodeToString(rec.OnChainEvidence)))
		}
		c.logger.Info("variable removed, not surfaced: removal checking is off", args...)
	}
}
