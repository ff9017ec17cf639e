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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// archiveBytes builds a valid snapshot archive for tests.
func archiveBytes(t *testing.T, contract, ref string) []byte {
	t.Helper()
	snap := NewSnapshot(contract, ref, testLayoutJSON)
	var buf bytes.Buffer
	require.NoError(t, snap.WriteArchive(&buf))
	return buf.Bytes()
}

func TestFetcherDefaults(t *testing.T) {
	f := NewFetcher(newMemStore())
	assert.Equal(t, DefaultPollInterval, f.interval)
	assert.Equal(t, DefaultMaxWait, f.maxWait)
}

func TestWaitDownloadImmediate(t *testing.T) {
	store := newMemStore()
	key := Key("snapshots", "Vault", "v1")
	store.set(key, archiveBytes(t, "Vault", "v1"))

	f := NewFetcher(store, WithPollInterval(time.Hour), WithMaxWait(time.Hour))

	start := time.Now()
	snap, err := f.WaitDownload(context.Background(), key)
	require.NoError(t, err)

	assert.Equal(t, "Vault", snap.Contract)
	assert.Equal(t, "v1", snap.Ref)
	assert.Less(t, time.Since(start), time.Second, "present snapshot should cost no wait")

	exists, downloads, _ := store.counts()
	assert.Equal(t, 1, exists)
	assert.Equal(t, 1, downloads)
}

func TestWaitDownloadAppearsLater(t *testing.T) {
	store := newMemStore()
	key := Key("snapshots", "Vault", "v2")
	blob := archiveBytes(t, "Vault", "v2")

	go func() {
		time.Sleep(30 * time.Millisecond)
		store.set(key, blob)
	}()

	f := NewFetcher(store,
		WithPollInterval(10*time.Millisecond),
		WithMaxWait(2*time.Second),
	)

	snap, err := f.WaitDownload(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "v2", snap.Ref)

	exists, _, _ := store.counts()
	assert.Greater(t, exists, 1, "should have polled more than once")
}

func TestWaitDownloadExpires(t *testing.T) {
	store := newMemStore()
	f := NewFetcher(store,
		WithPollInterval(5*time.Millisecond),
		WithMaxWait(30*time.Millisecond),
	)

	start := time.Now()
	_, err := f.WaitDownload(context.Background(), "snapshots/Vault/never.zip")
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrSnapshotNotFound), "expiry should wrap ErrSnapshotNotFound, got %v", err)
	assert.Contains(t, err.Error(), "snapshots/Vault/never.zip")
	assert.Less(t, time.Since(start), time.Second, "wait must stay bounded")
}

func TestWaitDownloadContextCancelled(t *testing.T) {
	store := newMemStore()
	f := NewFetcher(store,
		WithPollInterval(10*time.Millisecond),
		WithMaxWait(time.Minute),
	)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(25 * time.Millisecond)
		cancel()
	}()

	_, err := f.WaitDownload(ctx, "snapshots/Vault/never.zip")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestWaitDownloadProbeError(t *testing.T) {
	store := newMemStore()
	store.failExists = errors.New("bucket is gone")

	f := NewFetcher(store)

	_, err := f.WaitDownload(context.Background(), "snapshots/Vault/v1.zip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "probe snapshot")
	assert.Contains(t, err.Error(), "bucket is gone")
}

func TestWaitDownloadDecodeError(t *testing.T) {
	store := newMemStore()
	key := Key("snapshots", "Vault", "v1")
	store.set(key, []byte("garbage, not a zip"))

	f := NewFetcher(store)

	_, err := f.WaitDownload(context.Background(), key)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode snapshot")
	assert.False(t, errors.Is(err, ErrSnapshotNotFound),
		"a snapshot that exists but will not decode is not missing")
}
