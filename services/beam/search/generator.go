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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// GenerateRequest is the read-only input of one generator call.
type GenerateRequest struct {
	// Problem is the problem instance.
	Problem Problem

	// Seed is the retained candidate to refine, or nil for the root branch.
	Seed *ScoredCandidate

	// FanOut is the number of candidates requested.
	FanOut int
}

// Generator proposes candidate payloads.
//
// Implementations may be arbitrarily complex (LLM calls, samplers) and may
// fail; failures are absorbed by GeneratorAdapter.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Generator interface {
	// Generate returns up to req.FanOut candidate payloads.
	//
	// Inputs:
	//   - ctx: Context for cancellation and timeout.
	//   - req: The problem, optional seed and fan-out.
	//
	// Outputs:
	//   - []json.RawMessage: Candidate payloads in preference order.
	//   - error: Non-nil on failure.
	Generate(ctx context.Context, req GenerateRequest) ([]json.RawMessage, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req GenerateRequest) ([]json.RawMessage, error)

// Generate implements Generator.
func (f GeneratorFunc) Generate(ctx context.Context, req GenerateRequest) ([]json.RawMessage, error) {
	return f(ctx, req)
}

// GeneratorAdapter gives the controller a total generator contract:
// Generate never fails and never returns more than fan_out candidates.
//
// Errors, panics, malformed payloads and circuit-breaker rejections all
// degrade to fewer (possibly zero) candidates.
//
// Thread Safety: Safe for concurrent use.
type GeneratorAdapter struct {
	generator Generator
	breaker   *CircuitBreaker
	limiter   *Limiter
	logger    *slog.Logger
}

// GeneratorAdapterOption configures a GeneratorAdapter.
type GeneratorAdapterOption func(*GeneratorAdapter)

// WithCircuitBreaker guards generator calls with a circuit breaker.
func WithCircuitBreaker(cb *CircuitBreaker) GeneratorAdapterOption {
	return func(a *GeneratorAdapter) {
		a.breaker = cb
	}
}

// WithGeneratorLimiter bounds and paces generator calls.
func WithGeneratorLimiter(l *Limiter) GeneratorAdapterOption {
	return func(a *GeneratorAdapter) {
		a.limiter = l
	}
}

// WithGeneratorLogger sets the logger for absorbed failures.
func WithGeneratorLogger(logger *slog.Logger) GeneratorAdapterOption {
	return func(a *GeneratorAdapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewGeneratorAdapter wraps a generator.
//
// Inputs:
//   - generator: The generator to wrap. Must not be nil.
//   - opts: Optional configuration.
//
// Outputs:
//   - *GeneratorAdapter: The adapter.
func NewGeneratorAdapter(generator Generator, opts ...GeneratorAdapterOption) *GeneratorAdapter {
	a := &GeneratorAdapter{
		generator: generator,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Generate requests up to fanOut candidates for one branch.
//
// Inputs:
//   - ctx: Context for cancellation and timeout.
//   - problem: The problem instance.
//   - seed: The branch seed, or nil for the root branch.
//   - fanOut: Maximum number of candidates to return.
//
// Outputs:
//   - []Candidate: Unscored candidates carrying only a payload, in the
//     generator's order. Empty on any failure.
func (a *GeneratorAdapter) Generate(ctx context.Context, problem Problem, seed *ScoredCandidate, fanOut int) []Candidate {
	if fanOut < 1 {
		return nil
	}

	req := GenerateRequest{Problem: problem, FanOut: fanOut}
	if seed != nil {
		s := seed.clone()
		req.Seed = &s
	}

	logger := a.logger.With(slog.String("problem_id", problem.ID))
	if seed != nil {
		logger = logger.With(slog.String("seed_id", seed.ID))
	}

	payloads, err := a.call(ctx, req)
	if err != nil {
		cause := "error"
		switch {
		case errors.Is(err, ErrCircuitOpen):
			cause = "circuit_open"
		case ctx.Err() != nil:
			cause = "canceled"
		case errors.Is(err, errGeneratorPanic):
			cause = "panic"
		}
		generationFailuresTotal.WithLabelValues(cause).Inc()
		logger.WarnContext(ctx, "generator failed, branch yields no candidates",
			slog.String("cause", cause),
			slog.String("error", err.Error()),
		)
		return nil
	}

	if len(payloads) > fanOut {
		generationTruncatedTotal.Inc()
		logger.WarnContext(ctx, "generator exceeded fan_out, truncating",
			slog.Int("returned", len(payloads)),
			slog.Int("fan_out", fanOut),
		)
		payloads = payloads[:fanOut]
	}

	candidates := make([]Candidate, 0, len(payloads))
	for i, p := range payloads {
		canonical, err := CanonicalPayload(p)
		if err != nil {
			generationFailuresTotal.WithLabelValues("malformed").Inc()
			logger.WarnContext(ctx, "dropping malformed candidate payload", slog.Int("index", i))
			continue
		}
		candidates = append(candidates, Candidate{Payload: canonical})
	}
	candidatesGeneratedTotal.Add(float64(len(candidates)))
	return candidates
}

var errGeneratorPanic = errors.New("generator panicked")

// call invokes the generator under the limiter and circuit breaker,
// converting panics to errors.
func (a *GeneratorAdapter) call(ctx context.Context, req GenerateRequest) (payloads []json.RawMessage, err error) {
	release, err := a.limiter.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	invoke := func() (callErr error) {
		defer func() {
			if r := recover(); r != nil {
				callErr = fmt.Errorf("%w: %v", errGeneratorPanic, r)
			}
		}()
		payloads, callErr = a.generator.Generate(ctx, req)
		return callErr
	}

	if a.breaker != nil {
		err = a.breaker.Execute(ctx, invoke)
	} else {
		err = invoke()
	}
	if err != nil {
		return nil, err
	}
	return payloads, nil
}
