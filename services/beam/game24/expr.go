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
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode"
)

var (
	// ErrSyntax indicates an equation could not be tokenized or parsed.
	ErrSyntax = errors.New("invalid equation")

	// ErrDivisionByZero indicates evaluation divided by zero.
	ErrDivisionByZero = errors.New("division by zero")
)

// Expr is an arithmetic expression tree over + - * /.
//
// A leaf has op == 0 and a value; an internal node has both children.
type Expr struct {
	op    byte
	value *big.Rat
	left  *Expr
	right *Expr
}

// Leaf returns a number leaf.
func Leaf(v *big.Rat) *Expr {
	return &Expr{value: new(big.Rat).Set(v)}
}

// Binary returns the node (left op right).
func Binary(op byte, left, right *Expr) *Expr {
	return &Expr{op: op, left: left, right: right}
}

// IsLeaf reports whether e is a number.
func (e *Expr) IsLeaf() bool {
	return e.op == 0
}

// Tokenize splits an equation string into number, operator and
// parenthesis tokens. × and ÷ are accepted as * and /.
func Tokenize(s string) ([]string, error) {
	var tokens []string
	runes := []rune(s)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '+' || r == '-' || r == '*' || r == '/' || r == '(' || r == ')':
			tokens = append(tokens, string(r))
			i++
		case r == '×':
			tokens = append(tokens, "*")
			i++
		case r == '÷':
			tokens = append(tokens, "/")
			i++
		case unicode.IsDigit(r) || r == '.':
			j := i
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}
			tokens = append(tokens, string(runes[i:j]))
			i = j
		default:
			return nil, fmt.Errorf("%w: unexpected character %q", ErrSyntax, r)
		}
	}
	return tokens, nil
}

// Parse builds an expression from tokens.
//
// Grammar:
//
//	expr   = term { ("+" | "-") term }
//	term   = factor { ("*" | "/") factor }
//	factor = number | "(" expr ")"
//
// Outputs:
//   - *Expr: The expression tree.
//   - error: Wraps ErrSyntax on malformed input.
func Parse(tokens []string) (*Expr, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrSyntax)
	}
	p := &parser{tokens: tokens}
	e, err := p.expr()
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.tokens) {
		return nil, fmt.Errorf("%w: unexpected %q at position %d", ErrSyntax, p.tokens[p.pos], p.pos)
	}
	return e, nil
}

// ParseString tokenizes and parses s.
func ParseString(s string) (*Expr, error) {
	tokens, err := Tokenize(s)
	if err != nil {
		return nil, err
	}
	return Parse(tokens)
}

type parser struct {
	tokens []string
	pos    int
}

func (p *parser) peek() string {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return ""
}

func (p *parser) expr() (*Expr, error) {
	left, err := p.term()
	if err != nil {
		return nil, err
	}
	for tok := p.peek(); tok == "+" || tok == "-"; tok = p.peek() {
		p.pos++
		right, err := p.term()
		if err != nil {
			return nil, err
		}
		left = Binary(tok[0], left, right)
	}
	return left, nil
}

func (p *parser) term() (*Expr, error) {
	left, err := p.factor()
	if err != nil {
		return nil, err
	}
	for tok := p.peek(); tok == "*" || tok == "/"; tok = p.peek() {
		p.pos++
		right, err := p.factor()
		if err != nil {
			return nil, err
		}
		left = Binary(tok[0], left, right)
	}
	return left, nil
}

func (p *parser) factor() (*Expr, error) {
	tok := p.peek()
	switch tok {
	case "":
		return nil, fmt.Errorf("%w: unexpected end of equation", ErrSyntax)
	case "(":
		p.pos++
		e, err := p.expr()
		if err != nil {
			return nil, err
		}
		if p.peek() != ")" {
			return nil, fmt.Errorf("%w: missing )", ErrSyntax)
		}
		p.pos++
		return e, nil
	}
	v, ok := new(big.Rat).SetString(tok)
	if !ok || strings.ContainsAny(tok, "/eE") {
		return nil, fmt.Errorf("%w: expected number, got %q", ErrSyntax, tok)
	}
	p.pos++
	return &Expr{value: v}, nil
}

// Eval computes the exact value of e.
//
// Outputs:
//   - *big.Rat: The value.
//   - error: ErrDivisionByZero if any divisor evaluates to zero.
func (e *Expr) Eval() (*big.Rat, error) {
	if e.IsLeaf() {
		return new(big.Rat).Set(e.value), nil
	}
	l, err := e.left.Eval()
	if err != nil {
		return nil, err
	}
	r, err := e.right.Eval()
	if err != nil {
		return nil, err
	}
	switch e.op {
	case '+':
		return l.Add(l, r), nil
	case '-':
		return l.Sub(l, r), nil
	case '*':
		return l.Mul(l, r), nil
	case '/':
		if r.Sign() == 0 {
			return nil, ErrDivisionByZero
		}
		return l.Quo(l, r), nil
	default:
		return nil, fmt.Errorf("%w: operator %q", ErrSyntax, e.op)
	}
}

// Leaves returns the numbers of e from left to right.
func (e *Expr) Leaves() []*big.Rat {
	if e.IsLeaf() {
		return []*big.Rat{e.value}
	}
	return append(e.left.Leaves(), e.right.Leaves()...)
}

// Tokens renders e with the minimal parentheses.
func (e *Expr) Tokens() []string {
	if e.IsLeaf() {
		return []string{formatNumber(e.value)}
	}
	var out []string
	out = append(out, wrap(e.left, precedence(e.left) < precedence(e))...)
	out = append(out, string(e.op))
	needRight := precedence(e.right) < precedence(e) ||
		(precedence(e.right) == precedence(e) && (e.op == '-' || e.op == '/'))
	out = append(out, wrap(e.right, needRight)...)
	return out
}

// String renders e as a space-separated equation.
func (e *Expr) String() string {
	return strings.Join(e.Tokens(), " ")
}

// formatNumber renders integers plainly and decimals without trailing zeros.
func formatNumber(v *big.Rat) string {
	if v.IsInt() {
		return v.Num().String()
	}
	s := strings.TrimRight(v.FloatString(10), "0")
	return strings.TrimSuffix(s, ".")
}

func wrap(e *Expr, parens bool) []string {
	if !parens {
		return e.Tokens()
	}
	return append(append([]string{"("}, e.Tokens()...), ")")
}

func precedence(e *Expr) int {
	switch e.op {
	case '+', '-':
		return 1
	case '*', '/':
		return 2
	default:
		return 3
	}
}

func (e *Expr) clone() *Expr {
	if e == nil {
		return nil
	}
	c := &Expr{op: e.op, left: e.left.clone(), right: e.right.clone()}
	if e.value != nil {
		c.value = new(big.Rat).Set(e.value)
	}
	return c
}

// nodes returns every node of e in preorder.
func (e *Expr) nodes() []*Expr {
	if e.IsLeaf() {
		return []*Expr{e}
	}
	return append(append([]*Expr{e}, e.left.nodes()...), e.right.nodes()...)
}
