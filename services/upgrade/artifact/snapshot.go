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
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// CONSTANTS AND ERRORS
// =============================================================================

const (
	// manifestName is the archive entry holding snapshot metadata.
	manifestName = "manifest.json"

	// layoutName is the archive entry holding the raw layout JSON.
	layoutName = "layout.json"

	// maxArchiveBytes bounds how much of an archive ReadArchive will
	// buffer. Layout JSON for even pathological contracts is a few MB;
	// anything larger is not a snapshot.
	maxArchiveBytes = 32 << 20
)

// ErrArchiveTooLarge means the archive exceeds the read bound.
var ErrArchiveTooLarge = errors.New("snapshot archive too large")

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is one contract's storage layout frozen at a ref.
//
// The manifest fields travel as manifest.json inside the archive; the
// layout bytes travel untouched as layout.json so the decoder on the
// other side sees exactly what the tool emitted.
type Snapshot struct {
	// ID uniquely identifies this snapshot instance.
	ID string `json:"id"`

	// Contract is the identifier the layout was generated for, bare or
	// fully qualified (src/Vault.sol:Vault).
	Contract string `json:"contract"`

	// Commit is the VCS commit the layout was generated from, if known.
	Commit string `json:"commit,omitempty"`

	// Ref is the release tag or branch the snapshot is published under.
	Ref string `json:"ref"`

	// ToolVersion is the forge version that produced the layout.
	ToolVersion string `json:"tool_version,omitempty"`

	// CreatedAt is when the snapshot was taken, in UTC.
	CreatedAt time.Time `json:"created_at"`

	// Layout is the raw layout JSON. It ships as its own archive entry,
	// not inside the manifest.
	Layout json.RawMessage `json:"-"`
}

// NewSnapshot freezes layout bytes for a contract at a ref.
func NewSnapshot(contract, ref string, layoutJSON []byte) *Snapshot {
	return &Snapshot{
		ID:        uuid.NewString(),
		Contract:  contract,
		Ref:       ref,
		CreatedAt: time.Now().UTC(),
		Layout:    layoutJSON,
	}
}

// Key builds the store key a snapshot lives under.
//
// The scheme is <prefix>/<contract>/<ref>.zip with the contract reduced
// to its bare name (src/Vault.sol:Vault becomes Vault) and path
// separators in the ref flattened so the key depth stays fixed.
func Key(prefix, contract, ref string) string {
	name := contract
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		name = name[i+1:]
	}
	ref = strings.ReplaceAll(ref, "/", "-")

	key := name + "/" + ref + ".zip"
	if prefix != "" {
		key = strings.TrimSuffix(prefix, "/") + "/" + key
	}
	return key
}

// =============================================================================
// ARCHIVE CODEC
// =============================================================================

// WriteArchive writes the snapshot as a zip of manifest.json and
// layout.json.
func (s *Snapshot) WriteArchive(w io.Writer) error {
	if len(s.Layout) == 0 {
		return errors.New("snapshot has no layout bytes")
	}

	manifest, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot manifest: %w", err)
	}

	zw := zip.NewWriter(w)
	entries := []struct {
		name string
		data []byte
	}{
		{manifestName, manifest},
		{layoutName, s.Layout},
	}
	for _, e := range entries {
		f, err := zw.Create(e.name)
		if err != nil {
			return fmt.Errorf("create archive entry %s: %w", e.name, err)
		}
		if _, err := f.Write(e.data); err != nil {
			return fmt.Errorf("write archive entry %s: %w", e.name, err)
		}
	}
	return zw.Close()
}

// ReadArchive decodes a snapshot archive.
//
// Description:
//
//	Buffers the archive (bounded by maxArchiveBytes), opens it as a zip
//	and extracts the manifest and the layout bytes. Both entries are
//	required; extra entries are ignored. The layout bytes come back raw,
//	ready for the layout decoder.
//
// Inputs:
//
//	r - Archive bytes, typically a Store download
//
// Outputs:
//
//	*Snapshot - Decoded snapshot with Layout populated
//	error - ErrArchiveTooLarge, or a decode error naming the bad entry
func ReadArchive(r io.Reader) (*Snapshot, error) {
	buf, err := io.ReadAll(io.LimitReader(r, maxArchiveBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read snapshot archive: %w", err)
	}
	if len(buf) > maxArchiveBytes {
		return nil, fmt.Errorf("%w: over %d bytes", ErrArchiveTooLarge, maxArchiveBytes)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, fmt.Errorf("open snapshot archive: %w", err)
	}

	var snap Snapshot
	var haveManifest, haveLayout bool
	for _, f := range zr.File {
		switch f.Name {
		case manifestName:
			data, err := readEntry(f)
			if err != nil {
				return nil, err
			}
			if err := json.Unmarshal(data, &snap); err != nil {
				return nil, fmt.Errorf("decode %s: %w", manifestName, err)
			}
			haveManifest = true
		case layoutName:
			data, err := readEntry(f)
			if err != nil {
				return nil, err
			}
			snap.Layout = data
			haveLayout = true
		}
	}
	if !haveManifest {
		return nil, fmt.Errorf("snapshot archive missing %s", manifestName)
	}
	if !haveLayout {
		return nil, fmt.Errorf("snapshot archive missing %s", layoutName)
	}
	return &snap, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > maxArchiveBytes {
		return nil, fmt.Errorf("%w: entry %s", ErrArchiveTooLarge, f.Name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open archive entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxArchiveBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read archive entry %s: %w", f.Name, err)
	}
	if len(data) > maxArchiveBytes {
		return nil, fmt.Errorf("%w: entry %s", ErrArchiveTooLarge, f.Name)
	}
	return data, nil
}

// Publish archives the snapshot and uploads it under key.
func (s *Snapshot) Publish(ctx context.Context, store Store, key string) error {
	var buf bytes.Buffer
	if err := s.WriteArchive(&buf); err != nil {
		return err
	}
	if err := store.Upload(ctx, key, &buf); err != nil {
		return fmt.Errorf("publish snapshot %s: %w", key, err)
	}
	return nil
}
