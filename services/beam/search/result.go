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

// Reason explains why a search stopped.
type Reason string

const (
	// ReasonQualityMet means the best retained candidate reached the threshold.
	ReasonQualityMet Reason = "quality_met"

	// ReasonDepthExhausted means max_depth rounds completed.
	ReasonDepthExhausted Reason = "depth_exhausted"

	// ReasonNoViableCandidates means a round retained nothing.
	ReasonNoViableCandidates Reason = "no_viable_candidates"

	// ReasonIncomplete means the search was canceled or timed out between
	// round boundaries. The committed state is intact and resumable.
	ReasonIncomplete Reason = "incomplete"
)

// IsSuccess returns true for reasons that end a search normally.
func (r Reason) IsSuccess() bool {
	return r == ReasonQualityMet || r == ReasonDepthExhausted
}

// IsFinal returns true if the search cannot make further progress.
// Incomplete searches can be resumed.
func (r Reason) IsFinal() bool {
	return r != ReasonIncomplete && r != ""
}

// Result is the outcome of a search.
//
// A Result is always returned, including for failed and incomplete
// searches; it carries the last committed state.
type Result struct {
	// RunKey identifies the run for resume and checkpoint lookup.
	RunKey string `json:"run_key"`

	// LiveCandidates is the terminal (or last committed) retained beam,
	// best first.
	LiveCandidates []Candidate `json:"live_candidates"`

	// Depth is the number of completed rounds.
	Depth int `json:"depth"`

	// Reason explains why the search stopped.
	Reason Reason `json:"reason"`

	// Best is the highest-scored candidate seen in any completed round.
	Best *ScoredCandidate `json:"best,omitempty"`

	// Config is the configuration the run used.
	Config Config `json:"config"`

	// Err is the context error for incomplete searches.
	Err error `json:"-"`
}

// Top returns the head of the terminal beam.
func (r *Result) Top() (ScoredCandidate, bool) {
	if r == nil || len(r.LiveCandidates) == 0 {
		return ScoredCandidate{}, false
	}
	return r.LiveCandidates[0].AsScored()
}

// terminationReason evaluates the termination test on a pruned state.
//
// Outputs:
//   - Reason: The terminal reason, or "" to continue.
func terminationReason(state State, cfg Config) Reason {
	best, ok := state.Best()
	if !ok {
		return ReasonNoViableCandidates
	}
	if best.Score >= cfg.QualityThreshold {
		return ReasonQualityMet
	}
	if state.Depth >= cfg.MaxDepth {
		return ReasonDepthExhausted
	}
	return ""
}
