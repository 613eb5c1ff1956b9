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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/beamsearch/pkg/logging"
	"github.com/AleutianAI/beamsearch/pkg/ux"
	"github.com/AleutianAI/beamsearch/services/beam/checkpoint"
	"github.com/AleutianAI/beamsearch/services/beam/config"
	"github.com/AleutianAI/beamsearch/services/beam/events"
	"github.com/AleutianAI/beamsearch/services/beam/game24"
	"github.com/AleutianAI/beamsearch/services/beam/search"
	"github.com/AleutianAI/beamsearch/services/beam/telemetry"
)

// exitError carries a process exit code for a run that completed without
// success.
type exitError struct {
	code   int
	reason search.Reason
}

func (e *exitError) Error() string {
	return fmt.Sprintf("search ended: %s", e.reason)
}

// exitCodeFor maps a termination reason to the process exit code.
func exitCodeFor(reason search.Reason) int {
	switch reason {
	case search.ReasonQualityMet, search.ReasonDepthExhausted:
		return 0
	case search.ReasonNoViableCandidates:
		return 2
	default:
		return 3
	}
}

// app holds the per-invocation runtime shared by every command.
type app struct {
	// Flags.
	configPath string
	output     string
	logLevel   string

	cfg       config.Config
	logger    *logging.Logger
	printer   *ux.Printer
	telemetry func(context.Context) error
}

// setup loads configuration and starts logging and telemetry.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		if _, err := logging.ParseLevel(a.logLevel); err != nil {
			return err
		}
		cfg.Observability.LogLevel = a.logLevel
	}
	a.cfg = cfg

	logCfg := cfg.Logging("beamsearch")
	logCfg.Output = cmd.ErrOrStderr()
	a.logger = logging.New(logCfg)
	slog.SetDefault(a.logger.Slog())

	shutdown, err := telemetry.Init(cmd.Context(), cfg.Observability.Telemetry)
	if err != nil {
		return err
	}
	a.telemetry = shutdown

	mode := ux.DetectMode(os.Stdout)
	if a.output != "" {
		mode = ux.ParseMode(a.output)
	}
	a.printer = ux.NewPrinter(cmd.OutOrStdout(), mode)
	return nil
}

// teardown flushes telemetry and closes the log file.
func (a *app) teardown() {
	if a.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.telemetry(ctx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}
	if a.logger != nil {
		_ = a.logger.Close()
	}
}

// openStore opens the configured checkpoint backend.
func (a *app) openStore(ctx context.Context) (checkpoint.Store, error) {
	return checkpoint.Open(ctx, a.cfg.Checkpoint, a.logger.Slog())
}

// generator builds the configured candidate generator.
func (a *app) generator() (search.Generator, error) {
	gc := a.cfg.Generator
	switch gc.Kind {
	case config.GeneratorLLM:
		key, err := game24.SealAPIKeyFromEnv(gc.APIKeyEnv)
		if err != nil {
			return nil, fmt.Errorf("%w (set %s)", err, gc.APIKeyEnv)
		}
		gen := game24.NewLLMGenerator(
			game24.NewOpenAIClient(key, gc.BaseURL),
			gc.Model,
			game24.WithTemperature(gc.Temperature),
			game24.WithLLMLogger(a.logger.Slog()),
		)
		if gc.Timeout <= 0 {
			return gen, nil
		}
		return search.GeneratorFunc(func(ctx context.Context, req search.GenerateRequest) ([]json.RawMessage, error) {
			ctx, cancel := context.WithTimeout(ctx, gc.Timeout)
			defer cancel()
			return gen.Generate(ctx, req)
		}), nil
	case config.GeneratorSampler, "":
		return game24.NewSampler(), nil
	default:
		return nil, fmt.Errorf("unknown generator %q", gc.Kind)
	}
}

// newController wires the adapters, limiter, breaker, emitter and
// checkpointer into a controller for cfg.
func (a *app) newController(cfg search.Config, gen search.Generator, emitter *events.Emitter, store checkpoint.Store) (*search.Controller, error) {
	logger := a.logger.Slog()
	limiter := a.cfg.Limiter()

	breaker := search.NewCircuitBreaker(a.cfg.CircuitBreaker, search.WithBreakerLogger(logger))
	genAdapter := search.NewGeneratorAdapter(gen,
		search.WithCircuitBreaker(breaker),
		search.WithGeneratorLimiter(limiter),
		search.WithGeneratorLogger(logger),
	)

	scorerOpts := []search.ScorerAdapterOption{
		search.WithScorerLimiter(limiter),
		search.WithScorerLogger(logger),
	}
	if a.cfg.Parallel.CacheScores {
		scorerOpts = append(scorerOpts, search.WithScoreCache())
	}
	scorer := search.NewScorerAdapter(game24.NewScorer(), scorerOpts...)

	opts := []search.ControllerOption{
		search.WithLogger(logger),
		search.WithTracer(search.NewTracer(a.cfg.Observability.Telemetry.Enabled())),
		search.WithEmitter(emitter),
		search.WithRoundTimeout(a.cfg.Parallel.RoundTimeout),
		search.WithMaxParallel(a.cfg.Parallel.MaxConcurrency),
	}
	if store != nil {
		opts = append(opts, search.WithCheckpointer(store))
	}
	return search.NewController(genAdapter, scorer, cfg, opts...)
}

// finish renders the result and converts unsuccessful reasons to exit codes.
func (a *app) finish(result *search.Result) error {
	renderResult(a.printer, result)
	if result.Reason == search.ReasonIncomplete {
		a.printer.Info(fmt.Sprintf("resume with: beamsearch resume %s", result.RunKey))
	}
	if code := exitCodeFor(result.Reason); code != 0 {
		return &exitError{code: code, reason: result.Reason}
	}
	return nil
}
