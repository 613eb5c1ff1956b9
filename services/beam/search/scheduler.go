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

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limiter bounds and paces adapter calls.
//
// One Limiter is usually shared by every controller that talks to the same
// backend, so the in-flight bound holds across concurrent runs.
//
// Thread Safety: Safe for concurrent use. A nil *Limiter imposes no limits.
type Limiter struct {
	inFlight *semaphore.Weighted
	pace     *rate.Limiter
}

// NewLimiter creates a limiter.
//
// Inputs:
//   - maxInFlight: Maximum concurrent adapter calls. <= 0 means unbounded.
//   - requestsPerSecond: Sustained call rate. <= 0 disables pacing.
//   - burst: Token bucket size. Values < 1 are treated as 1.
//
// Outputs:
//   - *Limiter: The limiter.
func NewLimiter(maxInFlight int, requestsPerSecond float64, burst int) *Limiter {
	l := &Limiter{}
	if maxInFlight > 0 {
		l.inFlight = semaphore.NewWeighted(int64(maxInFlight))
	}
	if requestsPerSecond > 0 {
		if burst < 1 {
			burst = 1
		}
		l.pace = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
	return l
}

// Acquire blocks until a call may start.
//
// Outputs:
//   - func(): Release function; always non-nil when err is nil.
//   - error: The context error if ctx ends first.
func (l *Limiter) Acquire(ctx context.Context) (func(), error) {
	if l == nil {
		return func() {}, nil
	}
	if l.inFlight != nil {
		if err := l.inFlight.Acquire(ctx, 1); err != nil {
			return nil, err
		}
	}
	if l.pace != nil {
		if err := l.pace.Wait(ctx); err != nil {
			if l.inFlight != nil {
				l.inFlight.Release(1)
			}
			return nil, err
		}
	}
	return func() {
		if l.inFlight != nil {
			l.inFlight.Release(1)
		}
	}, nil
}

// scatter runs fn for every index in [0, n) and gathers the results in
// index order. At most limit calls run at once (limit <= 0 means n).
//
// fn must absorb its own failures; scatter is a barrier and returns only
// after every call has finished.
func scatter[T any](ctx context.Context, n, limit int, fn func(ctx context.Context, i int) T) []T {
	out := make([]T, n)
	if n == 0 {
		return out
	}
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := 0; i < n; i++ {
		g.Go(func() error {
			out[i] = fn(gctx, i)
			return nil
		})
	}
	_ = g.Wait()
	return out
}
