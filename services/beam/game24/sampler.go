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
	"hash/fnv"
	"math/big"
	"math/rand/v2"
	"slices"

	"github.com/AleutianAI/beamsearch/services/beam/search"
)

var operators = [...]byte{'+', '-', '*', '/'}

// Sampler is an offline generator.
//
// For the root branch it draws random equations over the puzzle numbers.
// For a seed it proposes neighbors of the seed's equation: one operator
// changed, two numbers swapped, or one node regrouped. Most of the batch is
// the neighbors closest to the target; one slot is left for a fresh random
// equation so identical beams do not stall.
//
// Output depends only on (problem, seed ID, seed payload, fan-out), so runs
// are reproducible and resumes replay the same proposals.
//
// Thread Safety: Safe for concurrent use.
type Sampler struct{}

// NewSampler creates a sampler.
func NewSampler() *Sampler {
	return &Sampler{}
}

// Generate implements search.Generator.
func (s *Sampler) Generate(ctx context.Context, req search.GenerateRequest) ([]json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	puzzle, err := FromProblem(req.Problem)
	if err != nil {
		return nil, err
	}

	var seedID string
	var seedPayload json.RawMessage
	if req.Seed != nil {
		seedID, seedPayload = req.Seed.ID, req.Seed.Payload
	}
	rng := newRand(req.Problem.ID, seedID, seedPayload)

	var exprs []*Expr
	if req.Seed != nil {
		if eq, err := DecodeEquation(req.Seed.Payload); err == nil {
			if seed, err := Parse(eq.Tokens); err == nil {
				exprs = proposeNeighbors(seed, puzzle.Target, req.FanOut, rng)
			}
		}
	}
	for len(exprs) < req.FanOut {
		exprs = append(exprs, randomExpr(puzzle.Numbers, rng))
	}

	out := make([]json.RawMessage, 0, len(exprs))
	for _, e := range exprs {
		raw, err := NewEquation(e).Marshal()
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

// newRand seeds a PCG source from the problem and seed.
func newRand(problemID, seedID string, seed json.RawMessage) *rand.Rand {
	h := fnv.New64a()
	h.Write([]byte(problemID))
	h.Write([]byte{0})
	h.Write([]byte(seedID))
	h.Write([]byte{0})
	h.Write(seed)
	sum := h.Sum64()
	return rand.New(rand.NewPCG(sum, sum^0x9e3779b97f4a7c15))
}

// randomExpr combines the numbers in random order with random operators
// into a random tree shape.
func randomExpr(numbers []int, rng *rand.Rand) *Expr {
	if len(numbers) == 0 {
		return Leaf(new(big.Rat))
	}
	parts := make([]*Expr, len(numbers))
	for i, n := range numbers {
		parts[i] = Leaf(big.NewRat(int64(n), 1))
	}
	rng.Shuffle(len(parts), func(i, j int) { parts[i], parts[j] = parts[j], parts[i] })
	for len(parts) > 1 {
		i := rng.IntN(len(parts) - 1)
		op := operators[rng.IntN(len(operators))]
		merged := Binary(op, parts[i], parts[i+1])
		parts = slices.Replace(parts, i, i+2, merged)
	}
	return parts[0]
}

type neighbor struct {
	expr *Expr
	dist *big.Rat
}

// proposeNeighbors returns up to n-1 distinct neighbors of seed (1 if n is 1).
func proposeNeighbors(seed *Expr, target int, n int, rng *rand.Rand) []*Expr {
	if n < 1 {
		return nil
	}
	seen := map[string]bool{seed.String(): true}
	var cands []neighbor
	for _, e := range neighbors(seed) {
		key := e.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		cands = append(cands, neighbor{expr: e, dist: distance(e, target)})
	}

	slices.SortStableFunc(cands, func(a, b neighbor) int {
		switch {
		case a.dist == nil && b.dist == nil:
			return 0
		case a.dist == nil:
			return 1
		case b.dist == nil:
			return -1
		}
		return a.dist.Cmp(b.dist)
	})

	limit := max(n-1, 1)
	greedy := min(n-n/3, limit, len(cands))
	out := make([]*Expr, 0, n)
	for _, c := range cands[:greedy] {
		out = append(out, c.expr)
	}
	rest := cands[greedy:]
	rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
	for _, c := range rest {
		if len(out) >= limit {
			break
		}
		out = append(out, c.expr)
	}
	return out
}

// distance is |target - value|, or nil if e does not evaluate.
func distance(e *Expr, target int) *big.Rat {
	v, err := e.Eval()
	if err != nil {
		return nil
	}
	d := v.Sub(big.NewRat(int64(target), 1), v)
	return d.Abs(d)
}

// neighbors enumerates single-edit variants of e in a fixed order.
func neighbors(e *Expr) []*Expr {
	var out []*Expr
	count := len(e.nodes())

	// Operator changes.
	for k := 0; k < count; k++ {
		for _, op := range operators {
			c := e.clone()
			node := c.nodes()[k]
			if node.IsLeaf() || node.op == op {
				continue
			}
			node.op = op
			out = append(out, c)
		}
	}

	// Number swaps.
	leaves := e.Leaves()
	for i := 0; i < len(leaves); i++ {
		for j := i + 1; j < len(leaves); j++ {
			if leaves[i].Cmp(leaves[j]) == 0 {
				continue
			}
			c := e.clone()
			var ls []*Expr
			for _, node := range c.nodes() {
				if node.IsLeaf() {
					ls = append(ls, node)
				}
			}
			ls[i].value, ls[j].value = ls[j].value, ls[i].value
			out = append(out, c)
		}
	}

	// Regroupings.
	for k := 0; k < count; k++ {
		if c := e.clone(); rotateLeft(c.nodes()[k]) {
			out = append(out, c)
		}
		if c := e.clone(); rotateRight(c.nodes()[k]) {
			out = append(out, c)
		}
	}
	return out
}

// rotateLeft turns (a o (b p c)) into ((a o b) p c) in place.
func rotateLeft(n *Expr) bool {
	if n.IsLeaf() || n.right.IsLeaf() {
		return false
	}
	r := n.right
	n.left = Binary(n.op, n.left, r.left)
	n.op = r.op
	n.right = r.right
	return true
}

// rotateRight turns ((a o b) p c) into (a o (b p c)) in place.
func rotateRight(n *Expr) bool {
	if n.IsLeaf() || n.left.IsLeaf() {
		return false
	}
	l := n.left
	n.right = Binary(n.op, l.right, n.right)
	n.op = l.op
	n.left = l.left
	return true
}
