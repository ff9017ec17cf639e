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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// CacheConfig holds configuration for the local snapshot cache.
type CacheConfig struct {
	// Path is the directory for the BadgerDB files.
	// Required unless InMemory is true.
	Path string

	// InMemory keeps the cache in RAM only. Useful for testing.
	InMemory bool

	// SyncWrites forces every write to disk. A cache holds rebuildable
	// data, so this defaults off.
	SyncWrites bool

	// GCInterval is how often to run value log garbage collection.
	// Default 5 minutes; 0 disables GC. Ignored in memory.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum garbage ratio before GC rewrites a
	// value log file.
	GCDiscardRatio float64

	// Logger receives cache and BadgerDB events. BadgerDB's own logging
	// is disabled when nil.
	Logger *slog.Logger
}

// DefaultCacheConfig returns the persistent-runner defaults.
func DefaultCacheConfig(path string) CacheConfig {
	return CacheConfig{
		Path:           path,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

/// InMemoryCacheConfig returns a RAM-only configuration: no disk, no
// sync, no GC loop. Used by the watch loop and in tests.
func InMemoryCacheConfig() CacheConfig {
	return CacheConfig{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// =============================================================================
// CACHE
// =============================================================================

// Cache is a Store that keeps downloaded snapshot archives in a local
// BadgerDB so persistent runners skip the network on re-runs.
//
// Reads check the cache first and fall through to the wrapped store on
// a miss or a corrupt entry; the caller never sees a cache failure.
// Uploads write through to the store and then seed the cache. Listing
// always goes to the store, which owns the authoritative key set.
//
// Thread Safety: Safe for concurrent use.
type Cache struct {
	inner  Store
	db     *badger.DB
	logger *slog.Logger

	stopGC    chan struct{}
	doneGC    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewCache opens a snapshot cache in front of a store.
//
// Description:
//
//	Opens a BadgerDB at cfg.Path (created if missing) or in memory, and
//	starts a periodic value log GC for persistent caches. The returned
//	Cache implements Store and can stand in for the wrapped store
//	everywhere.
//
// Inputs:
//
//	inner - The store of record. Must not be nil.
//	cfg - Cache configuration.
//
// Outputs:
//
//	*Cache - The opened cache. Caller must Close when done.
//	error - Non-nil if inputs are invalid or the database fails to open.
func NewCache(inner Store, cfg CacheConfig) (*Cache, error) {
	if inner == nil {
		return nil, errors.New("inner store must not be nil")
	}
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for a persistent cache")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open snapshot cache: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		inner:  inner,
		db:     db,
		logger: logger,
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		c.stopGC = make(chan struct{})
		c.doneGC = make(chan struct{})
		go c.gcLoop(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return c, nil
}

// Upload writes through to the store and seeds the cache on success.
func (c *Cache) Upload(ctx context.Context, key string, r io.Reader) error {
	buf, err := io.ReadAll(io.LimitReader(r, maxArchiveBytes+1))
	if err != nil {
		return fmt.Errorf("read snapshot for upload: %w", err)
	}
	if len(buf) > maxArchiveBytes {
		return fmt.Errorf("%w: over %d bytes", ErrArchiveTooLarge, maxArchiveBytes)
	}

	if err := c.inner.Upload(ctx, key, bytes.NewReader(buf)); err != nil {
		return err
	}
	c.put(key, buf)
	return nil
}

// Download serves from the cache when it holds a readable archive for
// key, otherwise downloads from the store and caches the bytes.
func (c *Cache) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if buf, ok := c.get(key); ok {
		if _, err := ReadArchive(bytes.NewReader(buf)); err == nil {
			c.logger.Debug("snapshot cache hit", slog.String("key", key))
			return io.NopCloser(bytes.NewReader(buf)), nil
		}
		// Corrupt entry. Drop it and refetch from the store of record.
		c.logger.Debug("dropping corrupt cache entry", slog.String("key", key))
		c.delete(key)
	}

	rc, err := c.inner.Download(ctx, key)
	if err != nil {
		return nil, err
	}
	buf, err := io.ReadAll(io.LimitReader(rc, maxArchiveBytes+1))
	cerr := rc.Close()
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", key, err)
	}
	if cerr != nil {
		return nil, fmt.Errorf("close snapshot download %s: %w", key, cerr)
	}
	if len(buf) > maxArchiveBytes {
		return nil, fmt.Errorf("%w: over %d bytes", ErrArchiveTooLarge, maxArchiveBytes)
	}

	c.put(key, buf)
	return io.NopCloser(bytes.NewReader(buf)), nil
}

// Exists reports presence, answering from the cache when it can.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if _, ok := c.get(key); ok {
		return true, nil
	}
	return c.inner.Exists(ctx, key)
}

// List always asks the store; the cache holds no authoritative listing.
func (c *Cache) List(ctx context.Context, prefix string) ([]string, error) {
	return c.inner.List(ctx, prefix)
}

// Close stops garbage collection and closes the database.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		if c.stopGC != nil {
			close(c.stopGC)
			<-c.doneGC
		}
		c.closeErr = c.db.Close()
	})
	return c.closeErr
}

// =============================================================================
// INTERNALS
// =============================================================================

// get returns the cached bytes for key. Badger failures other than a
// plain miss are logged and reported as a miss so reads fall through.
func (c *Cache) get(key string) ([]byte, bool) {
	var buf []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		buf, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false
	}
	if err != nil {
		c.logger.Warn("snapshot cache read failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	return buf, true
}

// put stores bytes for key. Best effort: a full or broken cache must
// not fail the download that produced the bytes.
func (c *Cache) put(key string, buf []byte) {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), buf)
	})
	if err != nil {
		c.logger.Warn("snapshot cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Cache) delete(key string) {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		c.logger.Warn("snapshot cache delete failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Cache) gcLoop(interval time.Duration, ratio float64) {
	defer close(c.doneGC)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopGC:
			return
		case <-ticker.C:
			// RunValueLogGC returns ErrNoRewrite when there is nothing
			// worth collecting.
			err := c.db.RunValueLogGC(ratio)
			if err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				c.logger.Warn("snapshot cache GC", slog.String("error", err.Error()))
			}
		}
	}
}
