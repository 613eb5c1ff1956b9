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

// Stage is a state of the search controller's state machine.
type Stage string

const (
	// StageExpand generates candidates from each seed.
	StageExpand Stage = "expand"

	// StageScore evaluates every live candidate.
	StageScore Stage = "score"

	// StagePrune retains the top beam of the scored pool.
	StagePrune Stage = "prune"

	// StageTerminated is the terminal state.
	StageTerminated Stage = "terminated"
)

// IsTerminal returns true for StageTerminated.
func (s Stage) IsTerminal() bool {
	return s == StageTerminated
}

// State is the complete, serializable state of one search.
//
// State is owned by the controller. It is only ever changed through Apply,
// which returns a new value; the receiver is never mutated.
type State struct {
	// Problem is constant for the run.
	Problem Problem `json:"problem"`

	// LiveCandidates holds fresh unscored candidates between EXPAND and SCORE,
	// and the retained scored candidates after PRUNE.
	LiveCandidates []Candidate `json:"live_candidates,omitempty"`

	// ScoredPool holds the current round's scored candidates until PRUNE.
	// It is empty at every round boundary.
	ScoredPool []ScoredCandidate `json:"scored_pool,omitempty"`

	// Depth is the number of completed rounds.
	Depth int `json:"depth"`
}

// NewState returns the initial state for a problem: empty pools, depth 0.
//
// A valid JSON Spec is stored in canonical form (see CanonicalPayload) so
// the state survives a checkpoint round trip unchanged.
func NewState(problem Problem) State {
	if len(problem.Spec) > 0 {
		if spec, err := CanonicalPayload(problem.Spec); err == nil {
			problem.Spec = spec
		} else {
			problem.Spec = cloneRaw(problem.Spec)
		}
	}
	return State{Problem: problem}
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	out := State{
		Problem: Problem{
			ID:          s.Problem.ID,
			Description: s.Problem.Description,
			Spec:        cloneRaw(s.Problem.Spec),
		},
		Depth: s.Depth,
	}
	if s.LiveCandidates != nil {
		out.LiveCandidates = make([]Candidate, len(s.LiveCandidates))
		for i, c := range s.LiveCandidates {
			out.LiveCandidates[i] = c.clone()
		}
	}
	if s.ScoredPool != nil {
		out.ScoredPool = make([]ScoredCandidate, len(s.ScoredPool))
		for i, c := range s.ScoredPool {
			out.ScoredPool[i] = c.clone()
		}
	}
	return out
}

// AtRoundBoundary reports whether the state can be checkpointed.
func (s State) AtRoundBoundary() bool {
	return len(s.ScoredPool) == 0
}

// Best returns the top-ranked live candidate after PRUNE.
//
// Outputs:
//   - ScoredCandidate: LiveCandidates[0] in scored form.
//   - bool: False if the pool is empty or its head is unscored.
func (s State) Best() (ScoredCandidate, bool) {
	if len(s.LiveCandidates) == 0 {
		return ScoredCandidate{}, false
	}
	return s.LiveCandidates[0].AsScored()
}

// =============================================================================
// Reducers
// =============================================================================

// UpdateMode selects how a list field is combined with a partial update.
type UpdateMode int

const (
	// UpdateKeep leaves the field unchanged.
	UpdateKeep UpdateMode = iota

	// UpdateAppend appends the update values after the existing entries.
	UpdateAppend

	// UpdateReplace discards the existing entries. Replacing with no values
	// clears the field.
	UpdateReplace
)

// String returns the mode name.
func (m UpdateMode) String() string {
	switch m {
	case UpdateKeep:
		return "keep"
	case UpdateAppend:
		return "append"
	case UpdateReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// ListUpdate is a partial update of one list-valued state field.
type ListUpdate[T any] struct {
	Mode   UpdateMode
	Values []T
}

// Keep returns an update that leaves a field unchanged.
func Keep[T any]() ListUpdate[T] {
	return ListUpdate[T]{Mode: UpdateKeep}
}

// Append returns an update that appends values.
func Append[T any](values ...T) ListUpdate[T] {
	return ListUpdate[T]{Mode: UpdateAppend, Values: values}
}

// Replace returns an update that replaces the field with values.
func Replace[T any](values ...T) ListUpdate[T] {
	return ListUpdate[T]{Mode: UpdateReplace, Values: values}
}

// Clear returns an update that empties the field.
func Clear[T any]() ListUpdate[T] {
	return ListUpdate[T]{Mode: UpdateReplace}
}

// reduce applies the update to existing and returns a new slice.
//
// An empty result is always nil, so cleared fields serialize identically
// no matter how they were emptied.
func (u ListUpdate[T]) reduce(existing []T) []T {
	var out []T
	switch u.Mode {
	case UpdateAppend:
		if len(existing)+len(u.Values) == 0 {
			return nil
		}
		out = make([]T, 0, len(existing)+len(u.Values))
		out = append(out, existing...)
		out = append(out, u.Values...)
	case UpdateReplace:
		if len(u.Values) == 0 {
			return nil
		}
		out = make([]T, len(u.Values))
		copy(out, u.Values)
	default:
		if len(existing) == 0 {
			return nil
		}
		out = make([]T, len(existing))
		copy(out, existing)
	}
	return out
}

// StateUpdate is a partial update produced by one controller step.
//
// Each list field declares its own mode; Depth is incremented by
// DepthIncrement. The zero value changes nothing.
type StateUpdate struct {
	Live           ListUpdate[Candidate]
	Scored         ListUpdate[ScoredCandidate]
	DepthIncrement int
}

// Apply folds an update into the state and returns the resulting state.
//
// Inputs:
//   - u: The partial update.
//
// Outputs:
//   - State: A new state; s is not modified.
//
// Thread Safety: Safe for concurrent use (pure function).
func (s State) Apply(u StateUpdate) State {
	return State{
		Problem:        s.Problem,
		LiveCandidates: u.Live.reduce(s.LiveCandidates),
		ScoredPool:     u.Scored.reduce(s.ScoredPool),
		Depth:          s.Depth + u.DepthIncrement,
	}
}

// expandUpdate appends one branch's candidates to the live pool.
func expandUpdate(batch []Candidate) StateUpdate {
	return StateUpdate{Live: Append(batch...)}
}

// scoreUpdate replaces the scored pool and consumes the live pool.
func scoreUpdate(scored []ScoredCandidate) StateUpdate {
	return StateUpdate{
		Live:   Clear[Candidate](),
		Scored: Replace(scored...),
	}
}

// pruneUpdate installs the retained beam, clears the pool and ends the round.
func pruneUpdate(retained []ScoredCandidate) StateUpdate {
	live := make([]Candidate, len(retained))
	for i, c := range retained {
		live[i] = c.AsCandidate()
	}
	return StateUpdate{
		Live:           Replace(live...),
		Scored:         Clear[ScoredCandidate](),
		DepthIncrement: 1,
	}
}

// dispatchUpdate hands the retained beam to the branches as seeds.
func dispatchUpdate() StateUpdate {
	return StateUpdate{Live: Clear[Candidate]()}
}
