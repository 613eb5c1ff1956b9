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

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const beamTracerName = "beamsearch.search"

// Tracer provides OpenTelemetry spans for runs, rounds and stages.
//
// A disabled Tracer returns noop spans so call sites never branch.
//
// Thread Safety: Safe for concurrent use.
type Tracer struct {
	tracer  trace.Tracer
	enabled bool
}

// NewTracer creates a tracer backed by the global TracerProvider.
//
// Inputs:
//   - enabled: When false every Start* returns a noop span.
//
// Outputs:
//   - *Tracer: Tracer instance.
func NewTracer(enabled bool) *Tracer {
	return &Tracer{
		tracer:  otel.Tracer(beamTracerName),
		enabled: enabled,
	}
}

// StartRun starts the span covering a whole search.
func (t *Tracer) StartRun(ctx context.Context, runKey string, problem Problem, cfg Config, resumed bool) (context.Context, trace.Span) {
	if t == nil || !t.enabled {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "beam.run",
		trace.WithAttributes(
			attribute.String("beam.run_key", runKey),
			attribute.String("beam.problem_id", problem.ID),
			attribute.Int("beam.config.max_depth", cfg.MaxDepth),
			attribute.Float64("beam.config.quality_threshold", cfg.QualityThreshold),
			attribute.Int("beam.config.fan_out", cfg.FanOut),
			attribute.Int("beam.config.beam_width", cfg.BeamWidth),
			attribute.Bool("beam.resumed", resumed),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndRun records the result on the run span and ends it.
func (t *Tracer) EndRun(span trace.Span, result *Result) {
	if span == nil {
		return
	}
	if result != nil {
		span.SetAttributes(
			attribute.String("beam.result.reason", string(result.Reason)),
			attribute.Int("beam.result.depth", result.Depth),
			attribute.Int("beam.result.live", len(result.LiveCandidates)),
		)
		if result.Best != nil {
			span.SetAttributes(attribute.Float64("beam.result.best_score", result.Best.Score))
		}
		if result.Err != nil {
			span.RecordError(result.Err)
			span.SetStatus(codes.Error, result.Err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
	span.End()
}

// StartRound starts the span for one round.
func (t *Tracer) StartRound(ctx context.Context, round, seeds int) (context.Context, trace.Span) {
	if t == nil || !t.enabled {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "beam.round",
		trace.WithAttributes(
			attribute.Int("beam.round", round),
			attribute.Int("beam.seeds", seeds),
		),
	)
}

// EndRound ends a round span, marking aborted rounds as errors.
func (t *Tracer) EndRound(span trace.Span, retained int, err error) {
	if span == nil {
		return
	}
	span.SetAttributes(attribute.Int("beam.retained", retained))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "round aborted")
	}
	span.End()
}

// StartStage starts the span for one stage of a round.
func (t *Tracer) StartStage(ctx context.Context, stage Stage, inputs int) (context.Context, trace.Span) {
	if t == nil || !t.enabled {
		return ctx, noop.Span{}
	}
	return t.tracer.Start(ctx, "beam."+string(stage),
		trace.WithAttributes(attribute.Int("beam.stage.inputs", inputs)),
	)
}

// EndStage ends a stage span.
func (t *Tracer) EndStage(span trace.Span, outputs int) {
	if span == nil {
		return
	}
	span.SetAttributes(attribute.Int("beam.stage.outputs", outputs))
	span.End()
}
