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
	"fmt"
	"math/big"

	"github.com/AleutianAI/beamsearch/services/beam/search"
)

// Equation is the candidate payload: an infix equation as tokens.
type Equation struct {
	Tokens []string `json:"tokens"`
}

// NewEquation renders e as a payload.
func NewEquation(e *Expr) Equation {
	return Equation{Tokens: e.Tokens()}
}

// Marshal encodes the equation as a candidate payload.
func (q Equation) Marshal() (json.RawMessage, error) {
	return json.Marshal(q)
}

// DecodeEquation decodes a candidate payload.
func DecodeEquation(payload json.RawMessage) (Equation, error) {
	var q Equation
	if err := json.Unmarshal(payload, &q); err != nil {
		return Equation{}, fmt.Errorf("decode equation: %w", err)
	}
	return q, nil
}

// Scorer rates equations by closeness to the target.
//
// A valid equation scores 1/(1+|target-value|), so exactly 1.0 on a
// solution. Equations that do not use every number exactly once, do not
// parse, or divide by zero score 0 with explanatory feedback.
//
// Thread Safety: Safe for concurrent use. Deterministic.
type Scorer struct{}

// NewScorer creates a scorer.
func NewScorer() *Scorer {
	return &Scorer{}
}

// Score implements search.Scorer.
//
// Outputs:
//   - search.Evaluation: The verdict.
//   - error: Only for an undecodable problem or payload.
func (s *Scorer) Score(_ context.Context, problem search.Problem, payload json.RawMessage) (search.Evaluation, error) {
	puzzle, err := FromProblem(problem)
	if err != nil {
		return search.Evaluation{}, err
	}
	eq, err := DecodeEquation(payload)
	if err != nil {
		return search.Evaluation{}, err
	}
	return Evaluate(puzzle, eq), nil
}

// Evaluate scores one equation against a puzzle.
func Evaluate(puzzle Puzzle, eq Equation) search.Evaluation {
	expr, err := Parse(eq.Tokens)
	if err != nil {
		return search.Evaluation{Score: search.MinScore, Feedback: err.Error()}
	}
	if !usesExactly(expr.Leaves(), puzzle.Numbers) {
		return search.Evaluation{
			Score:    search.MinScore,
			Feedback: fmt.Sprintf("The equation must use all %d numbers exactly once.", len(puzzle.Numbers)),
		}
	}
	value, err := expr.Eval()
	if err != nil {
		return search.Evaluation{Score: search.MinScore, Feedback: err.Error()}
	}
	return search.Evaluation{
		Score:    closeness(value, puzzle.Target),
		Feedback: "Result: " + formatValue(value),
	}
}

// closeness returns 1/(1+|target-value|).
func closeness(value *big.Rat, target int) float64 {
	d := new(big.Rat).Sub(big.NewRat(int64(target), 1), value)
	d.Abs(d)
	d.Add(d, big.NewRat(1, 1))
	score, _ := d.Inv(d).Float64()
	return score
}

// formatValue prints integers plainly and fractions as a/b.
func formatValue(v *big.Rat) string {
	return v.RatString()
}
