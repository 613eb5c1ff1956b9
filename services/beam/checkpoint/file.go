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
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/AleutianAI/beamsearch/services/beam/search"
)

const fileExt = ".ckpt"

// FileStore keeps one file per run in a directory.
//
// Saves write a temporary file in the same directory, fsync it and rename
// it over the previous checkpoint, so a crash leaves either the old or the
// new checkpoint on disk.
//
// Thread Safety: Safe for concurrent use. Concurrent saves of the same run
// key race; the last rename wins.
type FileStore struct {
	dir   string
	codec *Codec
}

// NewFileStore creates a file store rooted at dir, creating it if needed.
func NewFileStore(dir string, codec *Codec) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("checkpoint directory is required")
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create checkpoint directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir, codec: codec}, nil
}

// Dir returns the store directory.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(runKey string) string {
	return filepath.Join(s.dir, runKey+fileExt)
}

// Save implements search.Checkpointer.
func (s *FileStore) Save(ctx context.Context, cp *search.Checkpoint) error {
	if err := checkSave(cp); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := s.codec.Encode(cp)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "."+cp.RunKey+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, s.path(cp.RunKey)); err != nil {
		cleanup()
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

// Load implements search.Checkpointer.
func (s *FileStore) Load(ctx context.Context, runKey string) (*search.Checkpoint, error) {
	if err := ValidateRunKey(runKey); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(runKey))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %q", ErrNotFound, runKey)
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	return s.codec.Decode(data)
}

// List implements Store.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, fileExt))
	}
	slices.Sort(keys)
	return keys, nil
}

// Delete implements Store.
func (s *FileStore) Delete(ctx context.Context, runKey string) error {
	if err := ValidateRunKey(runKey); err != nil {
		return err
	}
	if err := os.Remove(s.path(runKey)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %q", ErrNotFound, runKey)
		}
		return fmt.Errorf("delete checkpoint: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *FileStore) Close() error {
	return nil
}
