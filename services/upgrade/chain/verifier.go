// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chain

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/SlotGuard/services/upgrade/diff"
)

const (
	// DefaultReadTimeout bounds one storage read.
	DefaultReadTimeout = 15 * time.Second

	// DefaultConcurrency bounds parallel reads against one endpoint.
	DefaultConcurrency = 4
)

// Verifier reads live storage for removed variables and attaches the
// words as evidence.
//
// Thread Safety: Safe for concurrent use.
type Verifier struct {
	client      Client
	timeout     time.Duration
	concurrency int
	logger      *slog.Logger
}

// VerifierOption configures a Verifier.
type VerifierOption func(*Verifier)

// WithReadTimeout bounds each individual read.
func WithReadTimeout(d time.Duration) VerifierOption {
	return func(v *Verifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// WithConcurrency bounds parallel reads.
func WithConcurrency(n int) VerifierOption {
	return func(v *Verifier) {
		if n > 0 {
			v.concurrency = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) VerifierOption {
	return func(v *Verifier) {
		if l != nil {
			v.logger = l
		}
	}
}

// NewVerifier creates a verifier reading through the given client.
func NewVerifier(client Client, opts ...VerifierOption) *Verifier {
	v := &Verifier{
		client:      client,
		timeout:     DefaultReadTimeout,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// AnnotateRemovals reads the storage word behind every removal record and
// returns annotated copies.
//
// # Description
//
// For each VARIABLE_REMOVED record, reads the removed variable's slot on
// the deployed contract at the latest block and attaches the 32-byte word
// as evidence. Reads run concurrently with a per-read timeout. Evidence
// is informational: classification and severity never change, a zero and
// a non-zero word are both worth showing, and any read failure simply
// leaves that record unannotated. The input slice is not modified.
//
// # Inputs
//
//   - ctx: Context for cancellation.
//   - address: Deployed contract address (0x-prefixed).
//   - recs: Records to annotate; non-removal records pass through as-is.
//
// # Outputs
//
//   - []diff.Record: Annotated copies, same order and length as recs.
func (v *Verifier) AnnotateRemovals(ctx context.Context, address string, recs []diff.Record) []diff.Record {
	out := make([]diff.Record, len(recs))
	copy(out, recs)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.concurrency)

	start := time.Now()
	reads := 0
	for i := range out {
		if out[i].Kind != diff.KindVariableRemoved || out[i].Base == nil {
			continue
		}
		reads++
		i := i
		g.Go(func() error {
			readCtx, cancel := context.WithTimeout(gctx, v.timeout)
			defer cancel()

			word, err := v.client.StorageAt(readCtx, address, out[i].Base.Slot)
			if err != nil {
				v.logger.Warn("storage read failed, removal left unannotated",
					slog.String("variable", out[i].Name),
					slog.Uint64("slot", out[i].Base.Slot),
					slog.String("error", err.Error()),
				)
				return nil // Evidence is optional; reads never fail the check.
			}
			out[i].OnChainEvidence = word.Bytes()
			return nil
		})
	}
	_ = g.Wait()

	if reads > 0 {
		v.logger.Debug("removal verification completed",
			slog.String("address", address),
			slog.Int("reads", reads),
			slog.Duration("duration", time.Since(start)),
		)
	}
	return out
}
