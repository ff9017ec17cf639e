// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package artifact

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultPollInterval is how often the fetcher probes for a snapshot
	// that has not appeared yet.
	DefaultPollInterval = 10 * time.Second

	// DefaultMaxWait caps the total time spent waiting for a snapshot.
	// Publish jobs that take longer than this have failed; waiting more
	// only hides that.
	DefaultMaxWait = 5 * time.Minute
)

// =============================================================================
// FETCHER
// =============================================================================

// Fetcher downloads snapshots, waiting a bounded time for ones that a
// concurrent publish job has not written yet.
//
// Thread Safety: Safe for concurrent use.
type Fetcher struct {
	store    Store
	interval time.Duration
	maxWait  time.Duration
	logger   *slog.Logger
}

// Option configures the Fetcher.
type Option func(*Fetcher)

// WithPollInterval sets how often the store is probed while waiting.
func WithPollInterval(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.interval = d
		}
	}
}

// WithMaxWait caps the total wait for a snapshot to appear.
func WithMaxWait(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.maxWait = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFetcher creates a fetcher over the given store.
func NewFetcher(store Store, opts ...Option) *Fetcher {
	f := &Fetcher{
		store:    store,
		interval: DefaultPollInterval,
		maxWait:  DefaultMaxWait,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// WaitDownload fetches the snapshot under key, polling until it appears.
//
// Description:
//
//	Probes the store on a fixed interval until the object exists, then
//	downloads and decodes it. The first probe happens immediately, so a
//	snapshot that is already present costs no wait at all. When the wait
//	budget runs out the error wraps ErrSnapshotNotFound; a snapshot that
//	exists but fails to decode is reported as a decode error, not as
//	missing.
//
// Inputs:
//
//	ctx - Context for cancellation; bounds the whole wait
//	key - Store key, as built by Key
//
// Outputs:
//
//	*Snapshot - Decoded snapshot
//	error - ErrSnapshotNotFound after expiry, ctx.Err() on cancel, or a
//	probe/decode failure
func (f *Fetcher) WaitDownload(ctx context.Context, key string) (*Snapshot, error) {
	deadline := time.NewTimer(f.maxWait)
	defer deadline.Stop()
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	start := time.Now()
	for {
		ok, err := f.store.Exists(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("probe snapshot %s: %w", key, err)
		}
		if ok {
			return f.download(ctx, key, start)
		}

		f.logger.Info("waiting for snapshot",
			slog.String("key", key),
			slog.Duration("elapsed", time.Since(start).Round(time.Second)),
		)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, fmt.Errorf("snapshot %s did not appear within %s: %w", key, f.maxWait, ErrSnapshotNotFound)
		case <-ticker.C:
		}
	}
}

func (f *Fetcher) download(ctx context.Context, key string, start time.Time) (*Snapshot, error) {
	rc, err := f.store.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rc.Close(); cerr != nil {
			f.logger.Warn("close snapshot download", slog.String("error", cerr.Error()))
		}
	}()

	snap, err := ReadArchive(rc)
	if err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", key, err)
	}

	f.logger.Debug("snapshot downloaded",
		slog.String("key", key),
		slog.String("contract", snap.Contract),
		slog.String("ref", snap.Ref),
		slog.Duration("duration", time.Since(start)),
	)
	return snap, nil
}
