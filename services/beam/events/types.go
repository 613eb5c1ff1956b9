// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package events provides the progress stream of a search run.
//
// The controller emits one event per EXPAND/SCORE/PRUNE transition plus
// run lifecycle events. Presentation layers (CLI, HTTP, WebSocket)
// subscribe to an Emitter or read its replay buffer.
//
// Thread Safety:
//
//	All types in this package are designed for concurrent use.
package events

import (
	"time"
)

// Type identifies the kind of event.
type Type string

const (
	// TypeSearchStarted is emitted once when a run starts or resumes.
	TypeSearchStarted Type = "search_started"

	// TypeExpand is emitted when a round's EXPAND barrier completes.
	TypeExpand Type = "expand"

	// TypeScore is emitted when a round's SCORE barrier completes.
	TypeScore Type = "score"

	// TypePrune is emitted when a round's PRUNE step commits.
	TypePrune Type = "prune"

	// TypeRoundAborted is emitted when a round is discarded on cancellation.
	TypeRoundAborted Type = "round_aborted"

	// TypeCheckpointSaved is emitted after a round-boundary checkpoint.
	TypeCheckpointSaved Type = "checkpoint_saved"

	// TypeSearchTerminated is emitted once with the final result.
	TypeSearchTerminated Type = "search_terminated"
)

// IsTransition returns true for the three state machine transitions.
func (t Type) IsTransition() bool {
	return t == TypeExpand || t == TypeScore || t == TypePrune
}

// IsTerminal returns true if no further events follow for the run.
func (t Type) IsTerminal() bool {
	return t == TypeSearchTerminated
}

// Event is one entry of the append-only progress stream.
//
// The structure of Data depends on Type; the search package defines the
// payload structs.
type Event struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`

	// Seq is the position of the event in the emitter's stream, from 1.
	Seq uint64 `json:"seq"`

	// Type is the kind of event.
	Type Type `json:"type"`

	// RunKey identifies the run.
	RunKey string `json:"run_key"`

	// Timestamp is when the event was emitted.
	Timestamp time.Time `json:"timestamp"`

	// Round is the round the event belongs to (0 for lifecycle events
	// emitted before the first round).
	Round int `json:"round"`

	// Data is the event payload.
	Data any `json:"data,omitempty"`

	// Metadata carries trace correlation.
	Metadata *EventMetadata `json:"metadata,omitempty"`
}

// EventMetadata contains additional context for events.
type EventMetadata struct {
	// TraceID links the event to a distributed trace.
	TraceID string `json:"trace_id,omitempty"`

	// SpanID links the event to a specific span.
	SpanID string `json:"span_id,omitempty"`

	// Source identifies where the event originated.
	Source string `json:"source,omitempty"`
}
