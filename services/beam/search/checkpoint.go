// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"context"
	"time"
)

// CheckpointVersion is the current checkpoint layout version.
const CheckpointVersion = 1

// Checkpoint is a consistent snapshot of a run at a round boundary.
type Checkpoint struct {
	// Version is the layout version (CheckpointVersion).
	Version int `json:"version"`

	// RunKey identifies the run.
	RunKey string `json:"run_key"`

	// Config is the resolved configuration of the run.
	Config Config `json:"config"`

	// State is the committed search state. Its ScoredPool is empty.
	State State `json:"state"`

	// Best is the best candidate seen so far, carried across resumes.
	Best *ScoredCandidate `json:"best,omitempty"`

	// Reason is set once the run has terminated.
	Reason Reason `json:"reason,omitempty"`

	// SavedAt is when the snapshot was taken (UTC).
	SavedAt time.Time `json:"saved_at"`
}

// Checkpointer persists checkpoints by run key.
//
// Implementations live in the checkpoint package.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Checkpointer interface {
	// Save stores cp, replacing any previous checkpoint of the same run.
	Save(ctx context.Context, cp *Checkpoint) error

	// Load returns the latest checkpoint of a run.
	Load(ctx context.Context, runKey string) (*Checkpoint, error)
}

// newCheckpoint snapshots the committed state.
func newCheckpoint(runKey string, cfg Config, state State, best *ScoredCandidate, reason Reason) *Checkpoint {
	cp := &Checkpoint{
		Version: CheckpointVersion,
		RunKey:  runKey,
		Config:  cfg,
		State:   state.Clone(),
		Reason:  reason,
		SavedAt: time.Now().UTC(),
	}
	if best != nil {
		b := best.clone()
		cp.Best = &b
	}
	return cp
}
