// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package artifact moves layout snapshots between check runs.
//
// A snapshot is the storage layout of a contract at a known ref, zipped
// together with enough metadata to trust it later. The deploy pipeline
// publishes one per release; the upgrade check downloads it as the base
// side of the diff. The package provides the blob store abstraction, the
// archive codec, a bounded-wait fetcher for pipelines where publish and
// check race each other, and a local cache for persistent runners.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// ErrSnapshotNotFound means no snapshot exists under the requested key,
// either immediately or after the fetcher's wait budget ran out.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// =============================================================================
// STORE INTERFACE
// =============================================================================

// Store is a flat keyed blob store holding snapshot archives.
//
// Implementations must be safe for concurrent use. Keys follow the
// layout produced by Key; the store itself treats them as opaque.
type Store interface {
	// Upload writes the blob under key, replacing any previous object.
	Upload(ctx context.Context, key string, r io.Reader) error

	// Download opens the blob under key. A missing object reports
	// ErrSnapshotNotFound. The caller closes the reader.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists reports whether an object is present under key.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns every key with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// =============================================================================
// GOOGLE CLOUD STORAGE
// =============================================================================

// GCSStore stores snapshot archives as objects in one GCS bucket.
//
// Thread Safety: Safe for concurrent use; the underlying client is.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore connects to a bucket.
//
// Description:
//
//	Dials GCS with an explicit service account key when one is given,
//	otherwise with application default credentials. The bucket is not
//	probed here; a wrong name surfaces on first use.
//
// Inputs:
//
//	ctx - Context for the client handshake
//	bucket - Bucket name, required
//	credentialsFile - Path to a service account key, or "" for ADC
//
// Outputs:
//
//	*GCSStore - Connected store. Caller must Close when done.
//	error - Non-nil if the key file is missing or the client fails.
func NewGCSStore(ctx context.Context, bucket, credentialsFile string) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("bucket must not be empty")
	}

	var opts []option.ClientOption
	if credentialsFile != "" {
		if _, err := os.Stat(credentialsFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s. Please ensure you have the correct key and it is accessible", credentialsFile)
		}
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	return &GCSStore{client: client, bucket: bucket}, nil
}

// Upload writes the blob under key.
func (s *GCSStore) Upload(ctx context.Context, key string, r io.Reader) error {
	obj := s.client.Bucket(s.bucket).Object(key)
	writer := obj.NewWriter(ctx)
	writer.ContentType = "application/zip"
	writer.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(writer, r); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to copy snapshot to GCS object %s: %w", key, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", key, err)
	}
	return nil
}

// Download opens the blob under key.
func (s *GCSStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	reader, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%s: %w", key, ErrSnapshotNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open GCS object %s: %w", key, err)
	}
	return reader, nil
}

// Exists reports whether an object is present under key.
func (s *GCSStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.Bucket(s.bucket).Object(key).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to stat GCS object %s: %w", key, err)
	}
	return true, nil
}

// List returns every object key with the given prefix.
func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list GCS objects under %s: %w", prefix, err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
