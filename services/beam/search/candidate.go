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
	"bytes"
	"encoding/json"
	"fmt"
)

// Problem identifies the problem instance a search explores.
//
// Spec is opaque to the controller; only the generator and scorer interpret
// it. A Problem is constant for the lifetime of a run.
type Problem struct {
	// ID is a stable identifier for the instance (used as a cache key).
	ID string `json:"id"`

	// Description is a human-readable summary for logs and presentation.
	Description string `json:"description,omitempty"`

	// Spec is the domain-specific problem encoding.
	Spec json.RawMessage `json:"spec,omitempty"`
}

// Candidate is one proposed solution.
//
// A Candidate is unscored until both Score and Feedback are set; the pair is
// always set together. Candidates are values: scoring produces a new
// ScoredCandidate rather than mutating the original.
type Candidate struct {
	// ID is assigned by the controller at fan-in: r<round>.b<branch>.c<index>.
	ID string `json:"id"`

	// ParentID is the ID of the seed this candidate was generated from.
	// Empty for candidates produced by the root branch.
	ParentID string `json:"parent_id,omitempty"`

	// Payload is the problem-specific representation of the solution.
	Payload json.RawMessage `json:"payload"`

	// Score is the normalized quality in [0, 1], nil until scored.
	Score *float64 `json:"score,omitempty"`

	// Feedback is the scorer's explanation, nil until scored.
	Feedback *string `json:"feedback,omitempty"`
}

// IsScored reports whether the candidate carries a score and feedback.
func (c Candidate) IsScored() bool {
	return c.Score != nil && c.Feedback != nil
}

// AsScored converts a scored Candidate into a ScoredCandidate.
//
// Outputs:
//   - ScoredCandidate: The scored view.
//   - bool: False if the candidate is not scored.
func (c Candidate) AsScored() (ScoredCandidate, bool) {
	if !c.IsScored() {
		return ScoredCandidate{}, false
	}
	return ScoredCandidate{
		ID:       c.ID,
		ParentID: c.ParentID,
		Payload:  c.Payload,
		Score:    *c.Score,
		Feedback: *c.Feedback,
	}, true
}

// String returns a compact representation for logs.
func (c Candidate) String() string {
	if c.IsScored() {
		return fmt.Sprintf("%s(%s score=%.4f)", c.ID, compactPayload(c.Payload), *c.Score)
	}
	return fmt.Sprintf("%s(%s)", c.ID, compactPayload(c.Payload))
}

// ScoredCandidate is a Candidate with a mandatory score and feedback.
type ScoredCandidate struct {
	ID       string          `json:"id"`
	ParentID string          `json:"parent_id,omitempty"`
	Payload  json.RawMessage `json:"payload"`
	Score    float64         `json:"score"`
	Feedback string          `json:"feedback"`
}

// AsCandidate returns the Candidate form with score and feedback set.
func (s ScoredCandidate) AsCandidate() Candidate {
	score := s.Score
	feedback := s.Feedback
	return Candidate{
		ID:       s.ID,
		ParentID: s.ParentID,
		Payload:  s.Payload,
		Score:    &score,
		Feedback: &feedback,
	}
}

// clone returns a copy that shares no mutable memory with s.
func (s ScoredCandidate) clone() ScoredCandidate {
	s.Payload = cloneRaw(s.Payload)
	return s
}

// clone returns a deep copy of c.
func (c Candidate) clone() Candidate {
	out := Candidate{
		ID:       c.ID,
		ParentID: c.ParentID,
		Payload:  cloneRaw(c.Payload),
	}
	if c.Score != nil {
		score := *c.Score
		out.Score = &score
	}
	if c.Feedback != nil {
		feedback := *c.Feedback
		out.Feedback = &feedback
	}
	return out
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}

// CanonicalPayload returns raw in the form encoding/json writes embedded
// raw messages: compact, with <, >, & and U+2028/U+2029 escaped. A payload
// in this form is byte-identical after a checkpoint round trip.
//
// Outputs:
//   - json.RawMessage: A new slice; raw is not modified.
//   - error: Non-nil if raw is not valid JSON.
func CanonicalPayload(raw json.RawMessage) (json.RawMessage, error) {
	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return nil, err
	}
	var out bytes.Buffer
	out.Grow(compact.Len())
	json.HTMLEscape(&out, compact.Bytes())
	return json.RawMessage(out.Bytes()), nil
}

func compactPayload(raw json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	s := buf.String()
	if len(s) > 80 {
		return s[:77] + "..."
	}
	return s
}

// candidateID formats the deterministic lineage identifier of a candidate.
func candidateID(round, branch, index int) string {
	return fmt.Sprintf("r%d.b%d.c%d", round, branch, index)
}
