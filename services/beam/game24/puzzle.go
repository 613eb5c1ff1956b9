// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package game24 is an example search domain: combine a multiset of
// numbers with + - * / and parentheses to reach a target.
//
// Candidates are Equation payloads. The Scorer evaluates them exactly with
// math/big; the Sampler and LLMGenerator propose them.
package game24

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"slices"
	"strconv"
	"strings"

	"github.com/AleutianAI/beamsearch/services/beam/search"
)

// DefaultTarget is the classic game target.
const DefaultTarget = 24

// MaxNumbers bounds the puzzle size.
const MaxNumbers = 8

// ErrInvalidPuzzle indicates a malformed puzzle.
var ErrInvalidPuzzle = errors.New("invalid puzzle")

// Puzzle is one game instance.
type Puzzle struct {
	// Numbers must each be used exactly once.
	Numbers []int `json:"numbers"`

	// Target is the value to reach.
	Target int `json:"target"`
}

// Validate checks the puzzle.
func (p Puzzle) Validate() error {
	if len(p.Numbers) == 0 {
		return fmt.Errorf("%w: no numbers", ErrInvalidPuzzle)
	}
	if len(p.Numbers) > MaxNumbers {
		return fmt.Errorf("%w: at most %d numbers (got %d)", ErrInvalidPuzzle, MaxNumbers, len(p.Numbers))
	}
	for _, n := range p.Numbers {
		if n < 0 {
			return fmt.Errorf("%w: negative number %d", ErrInvalidPuzzle, n)
		}
	}
	return nil
}

// ID returns a stable identifier such as "game24:1,1,4,6=24".
func (p Puzzle) ID() string {
	return fmt.Sprintf("game24:%s=%d", joinInts(p.Numbers), p.Target)
}

// Problem encodes the puzzle for the search controller.
func (p Puzzle) Problem() (search.Problem, error) {
	if err := p.Validate(); err != nil {
		return search.Problem{}, err
	}
	spec, err := json.Marshal(p)
	if err != nil {
		return search.Problem{}, fmt.Errorf("encode puzzle: %w", err)
	}
	return search.Problem{
		ID:          p.ID(),
		Description: fmt.Sprintf("reach %d using %s", p.Target, joinInts(p.Numbers)),
		Spec:        spec,
	}, nil
}

// FromProblem decodes the puzzle carried by a problem.
func FromProblem(problem search.Problem) (Puzzle, error) {
	var p Puzzle
	if err := json.Unmarshal(problem.Spec, &p); err != nil {
		return Puzzle{}, fmt.Errorf("%w: %v", ErrInvalidPuzzle, err)
	}
	if err := p.Validate(); err != nil {
		return Puzzle{}, err
	}
	return p, nil
}

// ParseNumbers parses "1,1,4,6" or "1 1 4 6".
func ParseNumbers(s string) ([]int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	nums := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an integer", ErrInvalidPuzzle, f)
		}
		nums = append(nums, n)
	}
	return nums, nil
}

// usesExactly reports whether leaves equal numbers as multisets.
func usesExactly(leaves []*big.Rat, numbers []int) bool {
	if len(leaves) != len(numbers) {
		return false
	}
	got := make([]*big.Rat, len(leaves))
	copy(got, leaves)
	slices.SortFunc(got, func(a, b *big.Rat) int { return a.Cmp(b) })
	want := slices.Clone(numbers)
	slices.Sort(want)
	for i, n := range want {
		if got[i].Cmp(new(big.Rat).SetInt64(int64(n))) != 0 {
			return false
		}
	}
	return true
}

func joinInts(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ",")
}
