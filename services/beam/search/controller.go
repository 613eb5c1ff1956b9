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
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/beamsearch/services/beam/events"
)

// checkpointTimeout bounds one round-boundary save.
const checkpointTimeout = 30 * time.Second

// Controller runs beam searches.
//
// Each round dispatches the retained beam as seeds, expands every seed
// concurrently, scores every new candidate concurrently, prunes to the beam
// width and applies the termination test. A round is computed on a working
// copy and committed only after PRUNE, so cancellation never leaves a
// partially applied round behind.
//
// A Controller holds no per-run state and may run several searches
// concurrently, but an attached Emitter stamps every event with one run
// key; use one Controller per run when streaming events.
//
// Thread Safety: Safe for concurrent use.
type Controller struct {
	generator    *GeneratorAdapter
	scorer       *ScorerAdapter
	config       Config
	checkpointer Checkpointer
	emitter      *events.Emitter
	tracer       *Tracer
	logger       *slog.Logger
	roundTimeout time.Duration
	maxParallel  int
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTracer sets the OpenTelemetry tracer.
func WithTracer(t *Tracer) ControllerOption {
	return func(c *Controller) {
		if t != nil {
			c.tracer = t
		}
	}
}

// WithEmitter attaches the progress stream.
func WithEmitter(e *events.Emitter) ControllerOption {
	return func(c *Controller) {
		c.emitter = e
	}
}

// WithCheckpointer enables round-boundary checkpoints and Resume.
func WithCheckpointer(cp Checkpointer) ControllerOption {
	return func(c *Controller) {
		c.checkpointer = cp
	}
}

// WithRoundTimeout bounds the wall time of one round. Zero means no limit.
func WithRoundTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) {
		c.roundTimeout = d
	}
}

// WithMaxParallel bounds concurrent adapter calls within one stage.
// Zero means one goroutine per branch or candidate.
func WithMaxParallel(n int) ControllerOption {
	return func(c *Controller) {
		c.maxParallel = n
	}
}

// NewController creates a controller.
//
// Inputs:
//   - generator: Generator adapter. Must not be nil.
//   - scorer: Scorer adapter. Must not be nil.
//   - cfg: Resolved search configuration.
//   - opts: Optional configuration.
//
// Outputs:
//   - *Controller: The controller.
//   - error: ErrNilAdapter, or a *ConfigError if cfg is invalid.
func NewController(generator *GeneratorAdapter, scorer *ScorerAdapter, cfg Config, opts ...ControllerOption) (*Controller, error) {
	if generator == nil || scorer == nil {
		return nil, ErrNilAdapter
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		generator: generator,
		scorer:    scorer,
		config:    cfg,
		tracer:    NewTracer(false),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Config returns the controller's configuration.
func (c *Controller) Config() Config {
	return c.config
}

// RunOption configures a single Run.
type RunOption func(*runOptions)

type runOptions struct {
	runKey string
}

// WithRunKey sets the run key instead of generating one.
func WithRunKey(key string) RunOption {
	return func(o *runOptions) {
		o.runKey = key
	}
}

// Run starts a fresh search at depth 0.
//
// Inputs:
//   - ctx: Cancels the search. Cancellation yields ReasonIncomplete.
//   - problem: The problem instance.
//   - opts: Optional run configuration.
//
// Outputs:
//   - *Result: Always non-nil when err is nil.
//   - error: Non-nil only if the configuration is invalid.
func (c *Controller) Run(ctx context.Context, problem Problem, opts ...RunOption) (*Result, error) {
	if err := c.config.Validate(); err != nil {
		return nil, err
	}
	o := runOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.runKey == "" {
		o.runKey = uuid.NewString()
	}
	if c.emitter != nil && c.emitter.RunKey() == "" {
		c.emitter.SetRunKey(o.runKey)
	}

	return c.execute(ctx, o.runKey, c.config, NewState(problem), nil, false), nil
}

// Resume continues a run from its last checkpoint.
//
// The run continues with the configuration stored in the checkpoint. A run
// whose checkpoint is already terminal returns its final result without
// executing further rounds.
//
// Inputs:
//   - ctx: Cancels the search. Cancellation yields ReasonIncomplete.
//   - runKey: The run to resume.
//
// Outputs:
//   - *Result: The outcome.
//   - error: ErrNoCheckpointer, a load error, ErrCheckpointMismatch, or an
//     invalid stored configuration.
func (c *Controller) Resume(ctx context.Context, runKey string) (*Result, error) {
	if c.checkpointer == nil {
		return nil, ErrNoCheckpointer
	}
	cp, err := c.checkpointer.Load(ctx, runKey)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %q: %w", runKey, err)
	}
	if cp.RunKey != runKey || !cp.State.AtRoundBoundary() {
		return nil, fmt.Errorf("%w: %q", ErrCheckpointMismatch, runKey)
	}
	if err := cp.Config.Validate(); err != nil {
		return nil, fmt.Errorf("checkpoint %q: %w", runKey, err)
	}
	if c.emitter != nil && c.emitter.RunKey() == "" {
		c.emitter.SetRunKey(runKey)
	}
	return c.execute(ctx, runKey, cp.Config, cp.State, cp.Best, true), nil
}

// execute drives rounds from a committed state until termination or
// cancellation.
func (c *Controller) execute(ctx context.Context, runKey string, cfg Config, state State, best *ScoredCandidate, resumed bool) *Result {
	ctx, span := c.tracer.StartRun(ctx, runKey, state.Problem, cfg, resumed)
	logger := c.logger.With(
		slog.String("run_key", runKey),
		slog.String("problem_id", state.Problem.ID),
	)

	emit(ctx, c.emitter, events.TypeSearchStarted, StartedData{
		Problem: state.Problem,
		Config:  cfg,
		Depth:   state.Depth,
		Resumed: resumed,
	})
	logger.InfoContext(ctx, "search started",
		slog.Int("depth", state.Depth),
		slog.Bool("resumed", resumed),
		slog.Int("max_depth", cfg.MaxDepth),
		slog.Float64("quality_threshold", cfg.QualityThreshold),
		slog.Int("fan_out", cfg.FanOut),
		slog.Int("beam_width", cfg.BeamWidth),
	)

	finish := func(reason Reason, err error) *Result {
		result := &Result{
			RunKey:         runKey,
			LiveCandidates: state.Clone().LiveCandidates,
			Depth:          state.Depth,
			Reason:         reason,
			Best:           best,
			Config:         cfg,
			Err:            err,
		}
		terminationsTotal.WithLabelValues(string(reason)).Inc()
		if best != nil {
			bestScore.Observe(best.Score)
		}
		emit(ctx, c.emitter, events.TypeSearchTerminated, TerminatedData{
			Reason:         reason,
			Depth:          state.Depth,
			LiveCandidates: result.LiveCandidates,
			Best:           best,
		})
		attrs := []any{
			slog.String("reason", string(reason)),
			slog.Int("depth", state.Depth),
		}
		if best != nil {
			attrs = append(attrs, slog.Float64("best_score", best.Score), slog.String("best_id", best.ID))
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		logger.InfoContext(ctx, "search finished", attrs...)
		c.tracer.EndRun(span, result)
		return result
	}

	if !resumed {
		c.saveCheckpoint(ctx, runKey, cfg, state, nil, "", logger)
	}
	if state.Depth > 0 {
		if reason := terminationReason(state, cfg); reason != "" {
			return finish(reason, nil)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(ReasonIncomplete, err)
		}

		next, err := c.round(ctx, cfg, state, logger)
		if err != nil {
			return finish(ReasonIncomplete, err)
		}
		state = next
		if top, ok := state.Best(); ok && (best == nil || top.Score > best.Score) {
			best = &top
		}

		reason := terminationReason(state, cfg)
		c.saveCheckpoint(ctx, runKey, cfg, state, best, reason, logger)
		if reason != "" {
			return finish(reason, nil)
		}
	}
}

// round executes one EXPAND/SCORE/PRUNE cycle on a copy of committed.
//
// Outputs:
//   - State: The new committed state.
//   - error: The context error if the round was aborted; committed is
//     then the state to keep.
func (c *Controller) round(ctx context.Context, cfg Config, committed State, logger *slog.Logger) (State, error) {
	roundNum := committed.Depth + 1
	start := time.Now()
	if c.emitter != nil {
		c.emitter.SetRound(roundNum)
	}

	rctx := ctx
	if c.roundTimeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, c.roundTimeout)
		defer cancel()
	}

	working := committed.Clone()
	problem := working.Problem

	var seeds []*ScoredCandidate
	if working.Depth == 0 {
		seeds = []*ScoredCandidate{nil}
	} else {
		for _, cand := range working.LiveCandidates {
			if sc, ok := cand.AsScored(); ok {
				seeds = append(seeds, &sc)
			}
		}
	}
	dispatched := len(working.LiveCandidates)
	working = working.Apply(dispatchUpdate())

	rctx, span := c.tracer.StartRound(rctx, roundNum, len(seeds))
	abort := func(stage Stage, err error) (State, error) {
		roundsTotal.WithLabelValues("aborted").Inc()
		c.tracer.EndRound(span, 0, err)
		emit(ctx, c.emitter, events.TypeRoundAborted, AbortedData{
			Round: roundNum,
			Stage: stage,
			Error: err.Error(),
		})
		logger.WarnContext(ctx, "round aborted, keeping last committed state",
			slog.Int("round", roundNum),
			slog.String("stage", string(stage)),
			slog.String("error", err.Error()),
		)
		return committed, err
	}

	// EXPAND: one branch per seed, fan-in in branch order.
	stageCtx, stageSpan := c.tracer.StartStage(rctx, StageExpand, len(seeds))
	batches := scatter(stageCtx, len(seeds), c.maxParallel, func(ctx context.Context, i int) []Candidate {
		return c.generator.Generate(ctx, problem, seeds[i], cfg.FanOut)
	})
	if err := rctx.Err(); err != nil {
		c.tracer.EndStage(stageSpan, 0)
		return abort(StageExpand, err)
	}
	var added []Candidate
	for i, batch := range batches {
		parentID := ""
		if seeds[i] != nil {
			parentID = seeds[i].ID
		}
		for j := range batch {
			batch[j].ID = candidateID(roundNum, i, j)
			batch[j].ParentID = parentID
		}
		working = working.Apply(expandUpdate(batch))
		added = append(added, batch...)
	}
	c.tracer.EndStage(stageSpan, len(added))
	emit(rctx, c.emitter, events.TypeExpand, StepDelta{
		Stage:       StageExpand,
		Round:       roundNum,
		Added:       added,
		Mode:        UpdateAppend.String(),
		LiveCleared: dispatched,
		Depth:       working.Depth,
	})

	// SCORE: every live candidate, results in live order.
	live := working.LiveCandidates
	stageCtx, stageSpan = c.tracer.StartStage(rctx, StageScore, len(live))
	scored := scatter(stageCtx, len(live), c.maxParallel, func(ctx context.Context, i int) ScoredCandidate {
		return c.scorer.Score(ctx, problem, live[i])
	})
	if err := rctx.Err(); err != nil {
		c.tracer.EndStage(stageSpan, 0)
		return abort(StageScore, err)
	}
	working = working.Apply(scoreUpdate(scored))
	c.tracer.EndStage(stageSpan, len(scored))
	scoredView := make([]Candidate, len(scored))
	for i, s := range scored {
		scoredView[i] = s.AsCandidate()
	}
	emit(rctx, c.emitter, events.TypeScore, StepDelta{
		Stage:       StageScore,
		Round:       roundNum,
		Added:       scoredView,
		Mode:        UpdateReplace.String(),
		LiveCleared: len(live),
		Depth:       working.Depth,
	})

	// PRUNE
	_, stageSpan = c.tracer.StartStage(rctx, StagePrune, len(working.ScoredPool))
	pool := len(working.ScoredPool)
	retained := Prune(working.ScoredPool, cfg.BeamWidth)
	working = working.Apply(pruneUpdate(retained))
	c.tracer.EndStage(stageSpan, len(retained))
	emit(rctx, c.emitter, events.TypePrune, StepDelta{
		Stage:          StagePrune,
		Round:          roundNum,
		Added:          working.Clone().LiveCandidates,
		Mode:           UpdateReplace.String(),
		ScoredCleared:  pool,
		DepthIncrement: 1,
		Depth:          working.Depth,
	})

	elapsed := time.Since(start)
	roundsTotal.WithLabelValues("committed").Inc()
	roundDuration.Observe(elapsed.Seconds())
	c.tracer.EndRound(span, len(retained), nil)

	attrs := []any{
		slog.Int("round", roundNum),
		slog.Int("seeds", len(seeds)),
		slog.Int("generated", len(added)),
		slog.Int("retained", len(retained)),
		slog.Duration("elapsed", elapsed),
	}
	if len(retained) > 0 {
		attrs = append(attrs, slog.Float64("best_score", retained[0].Score))
	}
	logger.InfoContext(rctx, "round committed", attrs...)

	return working, nil
}

// saveCheckpoint persists the committed state. Failures are logged and
// counted; the search continues.
func (c *Controller) saveCheckpoint(ctx context.Context, runKey string, cfg Config, state State, best *ScoredCandidate, reason Reason, logger *slog.Logger) {
	if c.checkpointer == nil {
		return
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), checkpointTimeout)
	defer cancel()

	if err := c.checkpointer.Save(sctx, newCheckpoint(runKey, cfg, state, best, reason)); err != nil {
		checkpointSavesTotal.WithLabelValues("error").Inc()
		logger.WarnContext(ctx, "checkpoint save failed",
			slog.String("run_key", runKey),
			slog.Int("depth", state.Depth),
			slog.String("error", err.Error()),
		)
		return
	}
	checkpointSavesTotal.WithLabelValues("ok").Inc()
	emit(ctx, c.emitter, events.TypeCheckpointSaved, CheckpointData{Depth: state.Depth})
}
