// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package checkpoint persists search checkpoints by run key.
//
// Every store encodes checkpoints with the same Codec, so a checkpoint
// written by one backend can be copied byte-for-byte to another:
//
//	memory  - process-local, for tests and the API server default
//	file    - one file per run, atomic temp-file + rename
//	badger  - embedded key-value store, key "checkpoint/<runKey>"
//	s3      - one object per run under a prefix
//	gcs     - one object per run under a prefix
//
// All stores implement search.Checkpointer.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/AleutianAI/beamsearch/services/beam/search"
)

var (
	// ErrNotFound is returned when no checkpoint exists for a run key.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrCorrupt is returned when stored bytes cannot be decoded.
	ErrCorrupt = errors.New("checkpoint corrupt")

	// ErrVersion is returned when a checkpoint has an unsupported layout version.
	ErrVersion = errors.New("unsupported checkpoint version")

	// ErrInvalidRunKey is returned for run keys that cannot be used as
	// file names or object keys.
	ErrInvalidRunKey = errors.New("invalid run key")

	// ErrUnknownBackend is returned by Open for an unrecognized backend.
	ErrUnknownBackend = errors.New("unknown checkpoint backend")

	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("checkpoint store closed")
)

// Store persists checkpoints by run key.
//
// Thread Safety: Implementations are safe for concurrent use.
type Store interface {
	search.Checkpointer

	// List returns all run keys with a checkpoint, sorted.
	List(ctx context.Context) ([]string, error)

	// Delete removes the checkpoint of a run. Returns ErrNotFound if none exists.
	Delete(ctx context.Context, runKey string) error

	// Close releases resources held by the store.
	Close() error
}

var runKeyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateRunKey checks that a run key is safe to use as a storage key.
//
// Run keys are 1-128 characters of [A-Za-z0-9._-] starting with an
// alphanumeric character. UUIDs qualify.
func ValidateRunKey(runKey string) error {
	if !runKeyPattern.MatchString(runKey) {
		return fmt.Errorf("%w: %q", ErrInvalidRunKey, runKey)
	}
	return nil
}

// checkSave validates a checkpoint before it is written.
func checkSave(cp *search.Checkpoint) error {
	if cp == nil {
		return errors.New("nil checkpoint")
	}
	return ValidateRunKey(cp.RunKey)
}
