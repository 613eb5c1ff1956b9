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
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"6*4", []string{"6", "*", "4"}},
		{" (1 + 1) × 12 ", []string{"(", "1", "+", "1", ")", "*", "12"}},
		{"8 ÷ 2.5", []string{"8", "/", "2.5"}},
	}
	for _, tt := range tests {
		got, err := Tokenize(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := Tokenize("6 ^ 2")
	assert.ErrorIs(t, err, ErrSyntax)
}

func TestParseAndEval(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"6 * 4", "24"},
		{"1 + 2 * 3", "7"},
		{"(1 + 2) * 3", "9"},
		{"8 - 3 - 2", "3"},
		{"8 / 4 / 2", "1"},
		{"8 / (4 / 2)", "4"},
		{"1 / 3", "1/3"},
		{"((6))", "6"},
		{"2.5 * 2", "5"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			e, err := ParseString(tt.in)
			require.NoError(t, err)
			v, err := e.Eval()
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.RatString())
		})
	}
}

func TestParse_Errors(t *testing.T) {
	for _, in := range []string{"", "6 *", "(1 + 2", "1 + 2)", "* 3", "1 2", "1/2e3"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseString(in)
			assert.ErrorIs(t, err, ErrSyntax)
		})
	}

	_, err := Parse([]string{"1/2"})
	assert.ErrorIs(t, err, ErrSyntax, "fraction literals are rejected")
}

func TestEval_DivisionByZero(t *testing.T) {
	e, err := ParseString("4 / (1 - 1)")
	require.NoError(t, err)
	_, err = e.Eval()
	assert.ErrorIs(t, err, ErrDivisionByZero)
}

func TestTokens_MinimalParens(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"(1 + 2) * 3", "( 1 + 2 ) * 3"},
		{"1 + (2 * 3)", "1 + 2 * 3"},
		{"8 - (3 - 2)", "8 - ( 3 - 2 )"},
		{"(8 - 3) - 2", "8 - 3 - 2"},
		{"8 / (4 * 2)", "8 / ( 4 * 2 )"},
		{"1.50 + 2", "1.5 + 2"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			e, err := ParseString(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, e.String())

			// Rendering round-trips to the same value.
			back, err := Parse(e.Tokens())
			require.NoError(t, err)
			v1, _ := e.Eval()
			v2, _ := back.Eval()
			assert.Zero(t, v1.Cmp(v2))
		})
	}
}

func TestLeaves(t *testing.T) {
	e, err := ParseString("(6 - 1) * (4 + 1)")
	require.NoError(t, err)
	var got []string
	for _, l := range e.Leaves() {
		got = append(got, l.RatString())
	}
	assert.Equal(t, []string{"6", "1", "4", "1"}, got)
}

func TestRotations(t *testing.T) {
	e, err := ParseString("1 - (2 + 3)")
	require.NoError(t, err)

	c := e.clone()
	require.True(t, rotateLeft(c))
	assert.Equal(t, "1 - 2 + 3", c.String())
	assert.Equal(t, "1 - ( 2 + 3 )", e.String(), "clone is independent")

	require.True(t, rotateRight(c))
	assert.Equal(t, "1 - ( 2 + 3 )", c.String())

	assert.False(t, rotateLeft(Leaf(big.NewRat(1, 1))))
}
