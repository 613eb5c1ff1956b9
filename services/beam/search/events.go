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

	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/beamsearch/services/beam/events"
)

// StepDelta is the payload of expand, score and prune events: the state
// change applied by one transition.
type StepDelta struct {
	// Stage is the transition.
	Stage Stage `json:"stage"`

	// Round is the 1-based round number.
	Round int `json:"round"`

	// Added lists the candidates the transition placed in the pool it
	// writes (live for expand and prune, scored for score).
	Added []Candidate `json:"added"`

	// Mode is the reducer mode used for the written pool.
	Mode string `json:"mode"`

	// LiveCleared is the number of live candidates the transition removed.
	//
	// For expand it counts the seeds handed to the generators: the retained
	// beam leaves the live pool at dispatch, before Added is appended to the
	// now empty pool. Consumers apply the clear first, then Mode.
	LiveCleared int `json:"live_cleared"`

	// ScoredCleared is the number of scored candidates the transition removed.
	ScoredCleared int `json:"scored_cleared"`

	// DepthIncrement is 1 for prune, 0 otherwise.
	DepthIncrement int `json:"depth_increment"`

	// Depth is the depth after the transition.
	Depth int `json:"depth"`
}

// StartedData is the payload of search_started.
type StartedData struct {
	Problem Problem `json:"problem"`
	Config  Config  `json:"config"`
	Depth   int     `json:"depth"`
	Resumed bool    `json:"resumed"`
}

// AbortedData is the payload of round_aborted.
type AbortedData struct {
	Round int    `json:"round"`
	Stage Stage  `json:"stage"`
	Error string `json:"error"`
}

// CheckpointData is the payload of checkpoint_saved.
type CheckpointData struct {
	Depth int `json:"depth"`
}

// TerminatedData is the payload of search_terminated.
type TerminatedData struct {
	Reason         Reason           `json:"reason"`
	Depth          int              `json:"depth"`
	LiveCandidates []Candidate      `json:"live_candidates"`
	Best           *ScoredCandidate `json:"best,omitempty"`
}

// emit publishes an event with trace correlation. A nil emitter is a no-op.
func emit(ctx context.Context, emitter *events.Emitter, t events.Type, data any) {
	if emitter == nil {
		return
	}
	var meta *events.EventMetadata
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		meta = &events.EventMetadata{
			TraceID: sc.TraceID().String(),
			SpanID:  sc.SpanID().String(),
			Source:  beamTracerName,
		}
	}
	emitter.EmitWithMetadata(t, data, meta)
}
