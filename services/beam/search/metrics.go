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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the search controller and its adapters.
var (
	roundsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beam_rounds_total",
		Help: "Total search rounds by outcome",
	}, []string{"outcome"})

	roundDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "beam_round_duration_seconds",
		Help:    "Wall time of one EXPAND/SCORE/PRUNE round",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})

	candidatesGeneratedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beam_candidates_generated_total",
		Help: "Total candidates accepted from the generator",
	})

	generationFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beam_generation_failures_total",
		Help: "Generator calls absorbed as empty batches, by cause",
	}, []string{"cause"})

	generationTruncatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "beam_generation_truncated_total",
		Help: "Generator calls that returned more than fan_out candidates",
	})

	scoringFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beam_scoring_failures_total",
		Help: "Scorer calls absorbed as minimum scores, by cause",
	}, []string{"cause"})

	scoreCacheTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beam_score_cache_total",
		Help: "Score cache lookups by result",
	}, []string{"result"})

	terminationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beam_terminations_total",
		Help: "Finished searches by termination reason",
	}, []string{"reason"})

	bestScore = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "beam_best_score",
		Help:    "Best score reached by finished searches",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})

	checkpointSavesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "beam_checkpoint_saves_total",
		Help: "Round-boundary checkpoint saves by status",
	}, []string{"status"})

	circuitStateGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "beam_generator_circuit_state",
		Help: "Generator circuit breaker state (0 closed, 1 open, 2 half-open)",
	})
)
