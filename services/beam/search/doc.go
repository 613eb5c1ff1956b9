// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package search implements a beam-limited iterative tree search.
//
// # State Machine
//
//	EXPAND ──► SCORE ──► PRUNE ──┬──► EXPAND (one branch per retained candidate)
//	                             └──► TERMINATED
//
// EXPAND appends each branch's candidates to the live pool in branch order.
// SCORE replaces the scored pool and clears the live pool. PRUNE keeps the
// top BeamWidth scored candidates (stable on ties), clears the scored pool
// and increments Depth. The termination test then stops the search with
//
//   - no_viable_candidates when nothing was retained,
//   - quality_met when the best score is >= QualityThreshold,
//   - depth_exhausted when Depth >= MaxDepth.
//
// State changes are expressed as StateUpdate values folded in by
// State.Apply, one explicit reducer mode per list field.
//
// # Adapters
//
// Generators and scorers are wrapped by GeneratorAdapter and ScorerAdapter,
// which never fail: generation failures become empty batches and scoring
// failures become MinScore with explanatory feedback.
//
// # Usage
//
//	cfg, err := search.ResolveConfig(search.Overrides{BeamWidth: &width})
//	if err != nil {
//	    return err
//	}
//	ctrl, err := search.NewController(
//	    search.NewGeneratorAdapter(gen),
//	    search.NewScorerAdapter(scorer, search.WithScoreCache()),
//	    cfg,
//	    search.WithCheckpointer(store),
//	)
//	result, err := ctrl.Run(ctx, problem)
package search
