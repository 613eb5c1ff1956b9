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
	"cmp"
	"slices"
)

// Prune ranks a scored pool and keeps the top beamWidth entries.
//
// Ranking is by score, highest first. Ties keep their pool order, so the
// earlier-generated candidate wins.
//
// Inputs:
//   - pool: The round's scored pool, in fan-in order. Not modified.
//   - beamWidth: Number of entries to keep (values < 1 keep nothing).
//
// Outputs:
//   - []ScoredCandidate: At most beamWidth entries, best first. Nil if none.
//
// Thread Safety: Safe for concurrent use (pure function).
func Prune(pool []ScoredCandidate, beamWidth int) []ScoredCandidate {
	if len(pool) == 0 || beamWidth < 1 {
		return nil
	}
	ranked := slices.Clone(pool)
	slices.SortStableFunc(ranked, func(a, b ScoredCandidate) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(ranked) > beamWidth {
		ranked = ranked[:beamWidth]
	}
	return slices.Clip(ranked)
}
