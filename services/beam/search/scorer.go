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
	"math"
	"sync"

	"golang.org/x/sync/singleflight"
)

// MinScore is the score assigned to candidates whose scoring failed.
const MinScore = 0.0

// Evaluation is a scorer's verdict on one candidate.
type Evaluation struct {
	// Score is the normalized quality in [0, 1].
	Score float64 `json:"score"`

	// Feedback explains the score in human-readable form.
	Feedback string `json:"feedback"`
}

// Scorer evaluates candidate payloads.
//
// Scoring must be deterministic for a given (problem, payload) pair.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Scorer interface {
	// Score evaluates one payload.
	//
	// Inputs:
	//   - ctx: Context for cancellation and timeout.
	//   - problem: The problem instance.
	//   - payload: The candidate payload.
	//
	// Outputs:
	//   - Evaluation: Score in [0, 1] and feedback.
	//   - error: Non-nil on failure.
	Score(ctx context.Context, problem Problem, payload json.RawMessage) (Evaluation, error)
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(ctx context.Context, problem Problem, payload json.RawMessage) (Evaluation, error)

// Score implements Scorer.
func (f ScorerFunc) Score(ctx context.Context, problem Problem, payload json.RawMessage) (Evaluation, error) {
	return f(ctx, problem, payload)
}

// ScorerAdapter gives the controller a total scorer contract: every
// candidate comes back scored.
//
// Errors, panics and scores outside [0, 1] become MinScore with feedback
// describing the failure. Successful evaluations can be memoized per
// (problem ID, problem spec, payload); concurrent requests for the same
// key share one call.
//
// Thread Safety: Safe for concurrent use.
type ScorerAdapter struct {
	scorer  Scorer
	limiter *Limiter
	logger  *slog.Logger

	cacheEnabled bool
	flight       singleflight.Group
	mu           sync.RWMutex
	cache        map[string]Evaluation
}

// ScorerAdapterOption configures a ScorerAdapter.
type ScorerAdapterOption func(*ScorerAdapter)

// WithScoreCache enables memoization of successful evaluations.
func WithScoreCache() ScorerAdapterOption {
	return func(a *ScorerAdapter) {
		a.cacheEnabled = true
	}
}

// WithScorerLimiter bounds and paces scorer calls.
func WithScorerLimiter(l *Limiter) ScorerAdapterOption {
	return func(a *ScorerAdapter) {
		a.limiter = l
	}
}

// WithScorerLogger sets the logger for absorbed failures.
func WithScorerLogger(logger *slog.Logger) ScorerAdapterOption {
	return func(a *ScorerAdapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewScorerAdapter wraps a scorer.
//
// Inputs:
//   - scorer: The scorer to wrap. Must not be nil.
//   - opts: Optional configuration.
//
// Outputs:
//   - *ScorerAdapter: The adapter.
func NewScorerAdapter(scorer Scorer, opts ...ScorerAdapterOption) *ScorerAdapter {
	a := &ScorerAdapter{
		scorer: scorer,
		logger: slog.Default(),
		cache:  make(map[string]Evaluation),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Score evaluates one candidate.
//
// Inputs:
//   - ctx: Context for cancellation and timeout.
//   - problem: The problem instance.
//   - candidate: The candidate to score. Not modified.
//
// Outputs:
//   - ScoredCandidate: A new value carrying the candidate's identity and
//     payload with a score in [0, 1] and non-empty feedback.
func (a *ScorerAdapter) Score(ctx context.Context, problem Problem, candidate Candidate) ScoredCandidate {
	scored := ScoredCandidate{
		ID:       candidate.ID,
		ParentID: candidate.ParentID,
		Payload:  cloneRaw(candidate.Payload),
	}

	eval, err := a.evaluate(ctx, problem, scored.Payload)
	if err == nil {
		err = checkEvaluation(eval)
	}
	if err != nil {
		cause := "error"
		switch {
		case ctx.Err() != nil:
			cause = "canceled"
		case errors.Is(err, errScorerPanic):
			cause = "panic"
		case errors.Is(err, errScoreOutOfRange):
			cause = "out_of_range"
		}
		scoringFailuresTotal.WithLabelValues(cause).Inc()
		a.logger.WarnContext(ctx, "scorer failed, assigning minimum score",
			slog.String("candidate_id", candidate.ID),
			slog.String("cause", cause),
			slog.String("error", err.Error()),
		)
		scored.Score = MinScore
		scored.Feedback = fmt.Sprintf("scoring failed: %v", err)
		return scored
	}

	scored.Score = eval.Score
	scored.Feedback = eval.Feedback
	return scored
}

var (
	errScorerPanic     = errors.New("scorer panicked")
	errScoreOutOfRange = errors.New("score outside [0, 1]")
)

func checkEvaluation(eval Evaluation) error {
	if math.IsNaN(eval.Score) || eval.Score < 0 || eval.Score > 1 {
		return fmt.Errorf("%w: %v", errScoreOutOfRange, eval.Score)
	}
	return nil
}

// errLeaderCanceled marks a shared scorer call that failed because the
// caller running it was canceled. Waiters with a live context retry.
var errLeaderCanceled = errors.New("shared scorer call canceled")

// evaluate consults the cache, then calls the scorer.
//
// Concurrent requests for one key share a single call, which runs under
// the context of the caller that started it. When that caller is canceled
// the others start a new call instead of inheriting its error.
func (a *ScorerAdapter) evaluate(ctx context.Context, problem Problem, payload json.RawMessage) (Evaluation, error) {
	if !a.cacheEnabled {
		return a.call(ctx, problem, payload)
	}

	key := cacheKey(problem, payload)
	for {
		a.mu.RLock()
		eval, ok := a.cache[key]
		a.mu.RUnlock()
		if ok {
			scoreCacheTotal.WithLabelValues("hit").Inc()
			return eval, nil
		}
		scoreCacheTotal.WithLabelValues("miss").Inc()

		v, err, _ := a.flight.Do(key, func() (any, error) {
			eval, err := a.call(ctx, problem, payload)
			if err != nil {
				if ctx.Err() != nil {
					return Evaluation{}, fmt.Errorf("%w: %w", errLeaderCanceled, err)
				}
				return Evaluation{}, err
			}
			if checkEvaluation(eval) == nil {
				a.mu.Lock()
				a.cache[key] = eval
				a.mu.Unlock()
			}
			return eval, nil
		})
		if errors.Is(err, errLeaderCanceled) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Evaluation{}, ctxErr
			}
			continue
		}
		if err != nil {
			return Evaluation{}, err
		}
		return v.(Evaluation), nil
	}
}

// cacheKey identifies a (problem, payload) pair. Problem ID and Spec are
// length-prefixed so no two pairs share a key.
func cacheKey(problem Problem, payload json.RawMessage) string {
	return fmt.Sprintf("%d:%s%d:%s%s", len(problem.ID), problem.ID, len(problem.Spec), problem.Spec, payload)
}

// call invokes the scorer under the limiter, converting panics to errors.
func (a *ScorerAdapter) call(ctx context.Context, problem Problem, payload json.RawMessage) (eval Evaluation, err error) {
	release, err := a.limiter.Acquire(ctx)
	if err != nil {
		return Evaluation{}, err
	}
	defer release()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errScorerPanic, r)
		}
	}()
	return a.scorer.Score(ctx, problem, payload)
}

// CacheSize returns the number of memoized evaluations.
func (a *ScorerAdapter) CacheSize() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.cache)
}
