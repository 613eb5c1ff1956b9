// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/AleutianAI/beamsearch/services/beam/search"
)

// GCSConfig configures the Google Cloud Storage backend.
type GCSConfig struct {
	// Bucket is the bucket name. Required.
	Bucket string `yaml:"bucket" json:"bucket"`

	// Prefix is prepended to every object name.
	Prefix string `yaml:"prefix" json:"prefix"`

	// CredentialsFile is a service account key. Empty uses Application
	// Default Credentials.
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
}

// GCSStore keeps one object per run under a name prefix.
//
// Thread Safety: Safe for concurrent use.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
	codec  *Codec
}

// NewGCSStore connects to GCS and creates a store.
func NewGCSStore(ctx context.Context, cfg GCSConfig, codec *Codec) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); err != nil {
			return nil, fmt.Errorf("service account key not found at path: %s: %w", cfg.CredentialsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCSStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		codec:  codec,
	}, nil
}

func (s *GCSStore) object(runKey string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(path.Join(s.prefix, runKey+fileExt))
}

// Save implements search.Checkpointer.
func (s *GCSStore) Save(ctx context.Context, cp *search.Checkpoint) error {
	if err := checkSave(cp); err != nil {
		return err
	}
	data, err := s.codec.Encode(cp)
	if err != nil {
		return err
	}

	w := s.object(cp.RunKey).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	w.CacheControl = "no-cache, no-store, must-revalidate"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write checkpoint to gs://%s: %w", s.bucket, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close GCS writer for %s: %w", cp.RunKey, err)
	}
	return nil
}

// Load implements search.Checkpointer.
func (s *GCSStore) Load(ctx context.Context, runKey string) (*search.Checkpoint, error) {
	if err := ValidateRunKey(runKey); err != nil {
		return nil, err
	}
	r, err := s.object(runKey).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, runKey)
		}
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	return s.codec.Decode(data)
}

// List implements Store.
func (s *GCSStore) List(ctx context.Context) ([]string, error) {
	prefix := s.prefix
	if prefix != "" {
		prefix += "/"
	}
	it := s.client.Bucket(s.bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list checkpoints: %w", err)
		}
		name := strings.TrimPrefix(attrs.Name, prefix)
		if strings.Contains(name, "/") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, fileExt))
	}
	slices.Sort(keys)
	return keys, nil
}

// Delete implements Store.
func (s *GCSStore) Delete(ctx context.Context, runKey string) error {
	if err := ValidateRunKey(runKey); err != nil {
		return err
	}
	if err := s.object(runKey).Delete(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("%w: %q", ErrNotFound, runKey)
		}
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// Close closes the GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
