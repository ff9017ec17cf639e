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
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLayoutJSON = []byte(`{"storage":[{"label":"owner","offset":0,"slot":"0","type":"t_address"}],"types":{"t_address":{"label":"address","numberOfBytes":"20"}}}`)

// =============================================================================
// Snapshot Tests
// =============================================================================

func TestNewSnapshot(t *testing.T) {
	before := time.Now().UTC()
	snap := NewSnapshot("src/Vault.sol:Vault", "v1.4.0", testLayoutJSON)

	_, err := uuid.Parse(snap.ID)
	require.NoError(t, err, "ID should be a valid UUID")

	assert.Equal(t, "src/Vault.sol:Vault", snap.Contract)
	assert.Equal(t, "v1.4.0", snap.Ref)
	assert.Equal(t, testLayoutJSON, []byte(snap.Layout))
	assert.False(t, snap.CreatedAt.Before(before), "CreatedAt should not predate construction")
	assert.Equal(t, time.UTC, snap.CreatedAt.Location())
}

func TestNewSnapshotUniqueIDs(t *testing.T) {
	a := NewSnapshot("Vault", "v1", testLayoutJSON)
	b := NewSnapshot("Vault", "v1", testLayoutJSON)
	assert.NotEqual(t, a.ID, b.ID)
}

// =============================================================================
// Key Tests
// =============================================================================

func TestKey(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		contract string
		ref      string
		want     string
	}{
		{
			name:     "bare contract",
			prefix:   "snapshots",
			contract: "Vault",
			ref:      "v1.4.0",
			want:     "snapshots/Vault/v1.4.0.zip",
		},
		{
			name:     "fully qualified contract",
			prefix:   "snapshots",
			contract: "src/Vault.sol:Vault",
			ref:      "v1.4.0",
			want:     "snapshots/Vault/v1.4.0.zip",
		},
		{
			name:     "no prefix",
			prefix:   "",
			contract: "Vault",
			ref:      "v2",
			want:     "Vault/v2.zip",
		},
		{
			name:     "trailing slash prefix",
			prefix:   "snapshots/",
			contract: "Vault",
			ref:      "v2",
			want:     "snapshots/Vault/v2.zip",
		},
		{
			name:     "ref with path separator",
			prefix:   "snapshots",
			contract: "Vault",
			ref:      "release/2026-01",
			want:     "snapshots/Vault/release-2026-01.zip",
		},
		{
			name:     "commit sha ref",
			prefix:   "s",
			contract: "contracts/token/ERC20.sol:ERC20",
			ref:      "8f14e45f",
			want:     "s/ERC20/8f14e45f.zip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Key(tt.prefix, tt.contract, tt.ref))
		})
	}
}

// =============================================================================
// Archive Tests
// =============================================================================

func TestArchiveRoundTrip(t *testing.T) {
	snap := NewSnapshot("src/Vault.sol:Vault", "v1.4.0", testLayoutJSON)
	snap.Commit = "8f14e45fceea167a5a36dedd4bea2543"
	snap.ToolVersion = "1.0.0"

	var buf bytes.Buffer
	require.NoError(t, snap.WriteArchive(&buf))

	got, err := ReadArchive(&buf)
	require.NoError(t, err)

	assert.Equal(t, snap.ID, got.ID)
	assert.Equal(t, snap.Contract, got.Contract)
	assert.Equal(t, snap.Commit, got.Commit)
	assert.Equal(t, snap.Ref, got.Ref)
	assert.Equal(t, snap.ToolVersion, got.ToolVersion)
	assert.True(t, snap.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, testLayoutJSON, []byte(got.Layout), "layout bytes must survive untouched")
}

func TestWriteArchiveNoLayout(t *testing.T) {
	snap := NewSnapshot("Vault", "v1", nil)

	var buf bytes.Buffer
	err := snap.WriteArchive(&buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no layout bytes")
}

func TestReadArchiveNotAZip(t *testing.T) {
	_, err := ReadArchive(bytes.NewReader([]byte("this is not a zip archive")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open snapshot archive")
}

func TestReadArchiveMissingLayout(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("manifest.json")
	require.NoError(t, err)
	_, err = f.Write([]byte(`{"id":"x","contract":"Vault","ref":"v1"}`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = ReadArchive(&buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "layout.json")
}

func TestReadArchiveMissingManifest(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	f, err := zw.Create("layout.json")
	require.NoError(t, err)
	_, err = f.Write(testLayoutJSON)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = ReadArchive(&buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest.json")
}

func TestReadArchiveBadManifest(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	mf, err := zw.Create("manifest.json")
	require.NoError(t, err)
	_, err = mf.Write([]byte("{broken"))
	require.NoError(t, err)
	lf, err := zw.Create("layout.json")
	require.NoError(t, err)
	_, err = lf.Write(testLayoutJSON)
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = ReadArchive(&buf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "manifest.json")
}

func TestReadArchiveIgnoresExtraEntries(t *testing.T) {
	snap := NewSnapshot("Vault", "v1", testLayoutJSON)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	manifest, err := zw.Create("manifest.json")
	require.NoError(t, err)
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	_, err = manifest.Write(data)
	require.NoError(t, err)
	layout, err := zw.Create("layout.json")
	require.NoError(t, err)
	_, err = layout.Write(testLayoutJSON)
	require.NoError(t, err)
	extra, err := zw.Create("README.txt")
	require.NoError(t, err)
	_, err = extra.Write([]byte("ignore me"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	got, err := ReadArchive(&buf)
	require.NoError(t, err)
	assert.Equal(t, "Vault", got.Contract)
	assert.Equal(t, testLayoutJSON, []byte(got.Layout))
}

// =============================================================================
// Publish Tests
// =============================================================================

func TestPublish(t *testing.T) {
	store := newMemStore()
	snap := NewSnapshot("src/Vault.sol:Vault", "v1.4.0", testLayoutJSON)
	key := Key("snapshots", snap.Contract, snap.Ref)

	require.NoError(t, snap.Publish(context.Background(), store, key))

	ok, err := store.Exists(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := store.Download(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	got, err := ReadArchive(rc)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, got.ID)
}

func TestPublishNoLayout(t *testing.T) {
	store := newMemStore()
	snap := NewSnapshot("Vault", "v1", nil)

	err := snap.Publish(context.Background(), store, "snapshots/Vault/v1.zip")
	require.Error(t, err)

	keys, err := store.List(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, keys, "nothing should be uploaded on encode failure")
}
