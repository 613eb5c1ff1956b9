// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/beamsearch/services/beam/checkpoint"
	"github.com/AleutianAI/beamsearch/services/beam/config"
	"github.com/AleutianAI/beamsearch/services/beam/events"
	"github.com/AleutianAI/beamsearch/services/beam/game24"
	"github.com/AleutianAI/beamsearch/services/beam/search"
)

type runOptions struct {
	numbers      string
	target       int
	generator    string
	runKey       string
	noCheckpoint bool

	maxDepth  int
	threshold float64
	fanOut    int
	beamWidth int
}

// overrides returns the search parameters set explicitly on the command line.
func (o *runOptions) overrides(cmd *cobra.Command) search.Overrides {
	var ov search.Overrides
	flags := cmd.Flags()
	if flags.Changed("max-depth") {
		ov.MaxDepth = &o.maxDepth
	}
	if flags.Changed("threshold") {
		ov.QualityThreshold = &o.threshold
	}
	if flags.Changed("fan-out") {
		ov.FanOut = &o.fanOut
	}
	if flags.Changed("beam-width") {
		ov.BeamWidth = &o.beamWidth
	}
	return ov
}

func newRunCmd(a *app) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Search for an equation that reaches the target",
		Example: `  beamsearch run --numbers 1,1,4,6
  beamsearch run --numbers "3 3 8 8" --beam-width 5 --max-depth 20`,
		Args: cobra.NoArgs,
	}
	cmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		return a.runSearch(cmd, o)
	})

	f := cmd.Flags()
	f.StringVarP(&o.numbers, "numbers", "n", "", "Puzzle numbers, comma or space separated (required)")
	f.IntVarP(&o.target, "target", "t", game24.DefaultTarget, "Target value")
	f.StringVarP(&o.generator, "generator", "g", "", "Candidate generator: sampler or llm (default from config)")
	f.StringVar(&o.runKey, "run-key", "", "Run key for checkpoints (default: random UUID)")
	f.BoolVar(&o.noCheckpoint, "no-checkpoint", false, "Do not persist checkpoints")
	f.IntVar(&o.maxDepth, "max-depth", search.DefaultMaxDepth, "Maximum number of rounds")
	f.Float64Var(&o.threshold, "threshold", search.DefaultQualityThreshold, "Quality threshold in [0, 1]")
	f.IntVar(&o.fanOut, "fan-out", search.DefaultFanOut, "Candidates requested per generator call")
	f.IntVar(&o.beamWidth, "beam-width", search.DefaultBeamWidth, "Candidates kept after each round")
	_ = cmd.MarkFlagRequired("numbers")
	return cmd
}

func (a *app) runSearch(cmd *cobra.Command, o *runOptions) error {
	numbers, err := game24.ParseNumbers(o.numbers)
	if err != nil {
		return err
	}
	problem, err := game24.Puzzle{Numbers: numbers, Target: o.target}.Problem()
	if err != nil {
		return err
	}

	cfg := o.overrides(cmd).ApplyTo(a.cfg.Search)
	if err := cfg.Validate(); err != nil {
		return err
	}

	if o.generator != "" {
		if o.generator != config.GeneratorSampler && o.generator != config.GeneratorLLM {
			return fmt.Errorf("unknown generator %q (want %s or %s)", o.generator, config.GeneratorSampler, config.GeneratorLLM)
		}
		a.cfg.Generator.Kind = o.generator
	}

	runKey := o.runKey
	if runKey == "" {
		runKey = uuid.NewString()
	}
	if err := checkpoint.ValidateRunKey(runKey); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store checkpoint.Store
	if !o.noCheckpoint {
		store, err = a.openStore(ctx)
		if err != nil {
			return fmt.Errorf("open checkpoint store: %w", err)
		}
		defer store.Close()
	}

	gen, err := a.generator()
	if err != nil {
		return err
	}

	emitter := a.newEmitter(runKey, cfg.MaxDepth)
	defer emitter.Close()

	ctrl, err := a.newController(cfg, gen, emitter, store)
	if err != nil {
		return err
	}

	a.printer.Title(fmt.Sprintf("Beam search: %s", problem.Description))
	result, err := ctrl.Run(ctx, problem, search.WithRunKey(runKey))
	if err != nil {
		return err
	}
	return a.finish(result)
}

func newResumeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resume <run-key>",
		Short: "Continue a run from its last checkpoint",
		Long: `Continue a run from its last round-boundary checkpoint. The run keeps the
search parameters it was started with. Resuming a finished run prints its
final result.`,
		Args: cobra.ExactArgs(1),
	}
	cmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		return a.resumeSearch(cmd.Context(), args[0])
	})
	return cmd
}

func (a *app) resumeSearch(parent context.Context, runKey string) error {
	if err := checkpoint.ValidateRunKey(runKey); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer store.Close()

	cp, err := store.Load(ctx, runKey)
	if err != nil {
		return fmt.Errorf("load checkpoint %q: %w", runKey, err)
	}

	gen, err := a.generator()
	if err != nil {
		return err
	}

	emitter := a.newEmitter(runKey, cp.Config.MaxDepth)
	defer emitter.Close()

	ctrl, err := a.newController(cp.Config, gen, emitter, store)
	if err != nil {
		return err
	}

	a.printer.Title(fmt.Sprintf("Resuming %s at depth %d", runKey, cp.State.Depth))
	result, err := ctrl.Resume(ctx, runKey)
	if err != nil {
		return err
	}
	return a.finish(result)
}

// newEmitter creates the run's event stream with a progress subscriber.
func (a *app) newEmitter(runKey string, maxDepth int) *events.Emitter {
	emitter := events.NewEmitter(
		events.WithRunKey(runKey),
		events.WithBufferSize(a.cfg.Server.EventBuffer),
		events.WithLogger(a.logger.Slog()),
	)
	emitter.Subscribe(progressPrinter(a.printer, maxDepth))
	return emitter
}
