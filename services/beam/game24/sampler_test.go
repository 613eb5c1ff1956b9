// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package game24

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/beamsearch/services/beam/search"
)

func seedCandidate(t *testing.T, id, equation string) *search.ScoredCandidate {
	t.Helper()
	return &search.ScoredCandidate{ID: id, Payload: equationPayload(t, equation), Score: 0.2, Feedback: "Result: 20"}
}

func TestSampler_RootUsesAllNumbers(t *testing.T) {
	puzzle, problem := testPuzzle(t)
	out, err := NewSampler().Generate(context.Background(), search.GenerateRequest{Problem: problem, FanOut: 5})
	require.NoError(t, err)
	require.Len(t, out, 5)

	for _, raw := range out {
		eq, err := DecodeEquation(raw)
		require.NoError(t, err)
		expr, err := Parse(eq.Tokens)
		require.NoError(t, err)
		assert.True(t, usesExactly(expr.Leaves(), puzzle.Numbers), eq.Tokens)
	}
}

func TestSampler_Deterministic(t *testing.T) {
	_, problem := testPuzzle(t)
	s := NewSampler()
	req := search.GenerateRequest{Problem: problem, Seed: seedCandidate(t, "r1.b0.c0", "6 + 4 + 1 * 1"), FanOut: 5}

	a, err := s.Generate(context.Background(), req)
	require.NoError(t, err)
	b, err := s.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSampler_SeedNeighbors(t *testing.T) {
	_, problem := testPuzzle(t)
	seed := seedCandidate(t, "r1.b0.c0", "6 * 4 + 1 * 1")

	out, err := NewSampler().Generate(context.Background(), search.GenerateRequest{Problem: problem, Seed: seed, FanOut: 5})
	require.NoError(t, err)
	require.Len(t, out, 5)

	// Changing the root + to * or / solves it, so the closest neighbor is a solution.
	eq, err := DecodeEquation(out[0])
	require.NoError(t, err)
	expr, err := Parse(eq.Tokens)
	require.NoError(t, err)
	v, err := expr.Eval()
	require.NoError(t, err)
	assert.Equal(t, "24", v.RatString())

	for _, raw := range out[:4] {
		assert.NotEqual(t, string(seed.Payload), string(raw), "seed is never re-proposed as a neighbor")
	}
}

func TestSampler_UnparseableSeedFallsBackToRandom(t *testing.T) {
	_, problem := testPuzzle(t)
	seed := &search.ScoredCandidate{ID: "r1.b0.c0", Payload: json.RawMessage(`{"tokens":["("]}`)}

	out, err := NewSampler().Generate(context.Background(), search.GenerateRequest{Problem: problem, Seed: seed, FanOut: 3})
	require.NoError(t, err)
	assert.Len(t, out, 3)
}

func TestSampler_Errors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, problem := testPuzzle(t)
	_, err := NewSampler().Generate(ctx, search.GenerateRequest{Problem: problem, FanOut: 2})
	assert.ErrorIs(t, err, context.Canceled)

	_, err = NewSampler().Generate(context.Background(), search.GenerateRequest{Problem: search.Problem{ID: "x"}, FanOut: 2})
	assert.ErrorIs(t, err, ErrInvalidPuzzle)
}

func TestProposeNeighbors(t *testing.T) {
	seed, err := ParseString("6 * 4 + 1 * 1")
	require.NoError(t, err)
	rng := rand.New(rand.NewPCG(1, 2))

	got := proposeNeighbors(seed, 24, 5, rng)
	assert.Len(t, got, 4, "one slot is left for a random equation")

	one := proposeNeighbors(seed, 24, 1, rng)
	assert.Len(t, one, 1)
	assert.Nil(t, proposeNeighbors(seed, 24, 0, rng))

	seen := map[string]bool{}
	for _, e := range neighbors(seed) {
		seen[e.String()] = true
	}
	assert.True(t, seen["6 * 4 - 1 * 1"])
	assert.True(t, seen["6 * 4 * 1 * 1"])
	assert.True(t, seen["6 * 1 + 4 * 1"], "swap")
}

// The classic [1, 1, 4, 6] instance is solved with the default parameters.
func TestSearch_SolvesPuzzle(t *testing.T) {
	_, problem := testPuzzle(t)
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))

	gen := search.NewGeneratorAdapter(NewSampler(), search.WithGeneratorLogger(quiet))
	scorer := search.NewScorerAdapter(NewScorer(), search.WithScoreCache(), search.WithScorerLogger(quiet))
	ctrl, err := search.NewController(gen, scorer, search.DefaultConfig(), search.WithLogger(quiet))
	require.NoError(t, err)

	result, err := ctrl.Run(context.Background(), problem)
	require.NoError(t, err)

	assert.Equal(t, search.ReasonQualityMet, result.Reason)
	top, ok := result.Top()
	require.True(t, ok)
	assert.Equal(t, 1.0, top.Score)
	assert.Equal(t, "Result: 24", top.Feedback)
	require.NotNil(t, result.Best)
	assert.Equal(t, 1.0, result.Best.Score)
	assert.LessOrEqual(t, result.Depth, search.DefaultMaxDepth)
}
