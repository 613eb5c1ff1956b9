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
	"slices"
	"sync"

	"github.com/AleutianAI/beamsearch/services/beam/search"
)

// MemoryStore keeps encoded checkpoints in a map.
//
// Checkpoints are stored encoded, so a loaded checkpoint never aliases a
// saved one.
//
// Thread Safety: Safe for concurrent use.
type MemoryStore struct {
	codec *Codec

	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(codec *Codec) *MemoryStore {
	return &MemoryStore{
		codec: codec,
		data:  make(map[string][]byte),
	}
}

// Save implements search.Checkpointer.
func (s *MemoryStore) Save(ctx context.Context, cp *search.Checkpoint) error {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.data[cp.RunKey] = data
	return nil
}

// Load implements search.Checkpointer.
func (s *MemoryStore) Load(ctx context.Context, runKey string) (*search.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	data, ok := s.data[runKey]
	closed := s.closed
	s.mu.RUnlock()

	if closed {
		return nil, ErrClosed
	}
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, runKey)
	}
	return s.codec.Decode(data)
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, runKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.data[runKey]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, runKey)
	}
	delete(s.data, runKey)
	return nil
}

// Close implements Store. Stored checkpoints are dropped.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.data = nil
	return nil
}
