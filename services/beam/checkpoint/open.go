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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendS3     = "s3"
	BackendGCS    = "gcs"
)

// Config selects and configures a checkpoint backend.
type Config struct {
	// Backend is one of memory, file, badger, s3, gcs.
	Backend string `yaml:"backend" json:"backend" validate:"oneof=memory file badger s3 gcs"`

	// Compress enables zstd compression of new checkpoints.
	Compress bool `yaml:"compress" json:"compress"`

	// CompressionLevel is the zstd level (1-22, 0 = default).
	CompressionLevel int `yaml:"compression_level" json:"compression_level" validate:"gte=0,lte=22"`

	// Dir is the directory of the file backend.
	Dir string `yaml:"dir" json:"dir"`

	Badger BadgerConfig `yaml:"badger" json:"badger"`
	S3     S3Config     `yaml:"s3" json:"s3"`
	GCS    GCSConfig    `yaml:"gcs" json:"gcs"`
}

// DefaultConfig returns a file backend under ~/.beamsearch/checkpoints.
func DefaultConfig() Config {
	return Config{
		Backend: BackendFile,
		Dir:     "~/.beamsearch/checkpoints",
		Badger:  DefaultBadgerConfig(),
	}
}

// Open creates the configured store.
//
// Inputs:
//   - ctx: Context for backend connection setup.
//   - cfg: Backend configuration. "~" in paths expands to the home directory.
//   - logger: Logger for backend internals; nil disables them.
//
// Outputs:
//   - Store: The store. Call Close when done.
//   - error: ErrUnknownBackend, or a backend connection error.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	codec, err := NewCodec(cfg.Compress, cfg.CompressionLevel)
	if err != nil {
		return nil, err
	}

	var store Store
	switch cfg.Backend {
	case BackendMemory:
		store = NewMemoryStore(codec)
	case BackendFile:
		store, err = NewFileStore(expandPath(cfg.Dir), codec)
	case BackendBadger:
		bcfg := cfg.Badger
		bcfg.Path = expandPath(bcfg.Path)
		store, err = OpenBadgerStore(bcfg, codec, logger)
	case BackendS3:
		client, cerr := NewS3Client(ctx, cfg.S3)
		if cerr != nil {
			err = cerr
			break
		}
		store, err = NewS3Store(client, cfg.S3.Bucket, cfg.S3.Prefix, codec)
	case BackendGCS:
		store, err = NewGCSStore(ctx, cfg.GCS, codec)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	if err != nil {
		codec.Close()
		return nil, err
	}
	if logger != nil {
		logger.Debug("checkpoint store opened",
			slog.String("backend", cfg.Backend),
			slog.Bool("compress", cfg.Compress),
		)
	}
	return &codecOwner{Store: store, codec: codec}, nil
}

// codecOwner releases the codec Open created when the store closes.
type codecOwner struct {
	Store
	codec *Codec
}

func (o *codecOwner) Close() error {
	err := o.Store.Close()
	o.codec.Close()
	return err
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}
