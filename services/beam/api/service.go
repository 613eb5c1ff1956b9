// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api serves beam searches over HTTP.
//
// Searches run asynchronously; clients poll the run status, read the
// buffered event stream, or follow it over a WebSocket.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/beamsearch/services/beam/checkpoint"
	"github.com/AleutianAI/beamsearch/services/beam/events"
	"github.com/AleutianAI/beamsearch/services/beam/search"
)

var (
	// ErrRunInProgress indicates a run with the same key is still running.
	ErrRunInProgress = errors.New("run in progress")

	// ErrRunNotFound indicates the registry has no run with the key.
	ErrRunNotFound = errors.New("run not found")

	// ErrShuttingDown indicates the service no longer accepts runs.
	ErrShuttingDown = errors.New("service shutting down")
)

var meter = otel.Meter("github.com/AleutianAI/beamsearch/services/beam/api")

// ControllerFactory builds the controller for one run.
//
// The emitter belongs to the run; the factory must pass it to the
// controller with search.WithEmitter.
type ControllerFactory func(cfg search.Config, emitter *events.Emitter) (*search.Controller, error)

// run is one registry entry.
type run struct {
	key       string
	resumed   bool
	emitter   *events.Emitter
	cancel    context.CancelFunc
	startedAt time.Time
	done      chan struct{}

	mu         sync.RWMutex
	finishedAt time.Time
	result     *search.Result
	err        error
}

func (r *run) finish(result *search.Result, err error) {
	r.mu.Lock()
	r.result = result
	r.err = err
	r.finishedAt = time.Now()
	r.mu.Unlock()
	close(r.done)
}

func (r *run) running() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

func (r *run) status() SearchStatusResponse {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resp := SearchStatusResponse{
		RunKey:    r.key,
		Resumed:   r.resumed,
		StartedAt: r.startedAt,
		Round:     r.emitter.Round(),
		Status:    StatusRunning,
	}
	if r.running() {
		return resp
	}
	finished := r.finishedAt
	resp.FinishedAt = &finished
	switch {
	case r.err != nil:
		resp.Status = StatusFailed
		resp.Error = r.err.Error()
	default:
		resp.Status = StatusFinished
		resp.Result = r.result
		if r.result != nil && r.result.Err != nil {
			resp.Error = r.result.Err.Error()
		}
	}
	return resp
}

// Service owns the run registry.
//
// Thread Safety: Safe for concurrent use.
type Service struct {
	factory    ControllerFactory
	base       search.Config
	store      checkpoint.Store
	bufferSize int
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu   sync.RWMutex
	runs map[string]*run

	runsAccepted metric.Int64Counter
	runsActive   metric.Int64UpDownCounter
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithBaseConfig sets the search parameters request overrides apply to.
func WithBaseConfig(cfg search.Config) ServiceOption {
	return func(s *Service) {
		s.base = cfg
	}
}

// WithStore enables resume and the checkpoint endpoints.
func WithStore(store checkpoint.Store) ServiceOption {
	return func(s *Service) {
		s.store = store
	}
}

// WithEventBuffer sets the per-run event replay buffer size.
func WithEventBuffer(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.bufferSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a service.
//
// Inputs:
//   - factory: Builds one controller per run. Must not be nil.
//   - opts: Optional configuration.
func NewService(factory ControllerFactory, opts ...ServiceOption) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		factory:    factory,
		base:       search.DefaultConfig(),
		bufferSize: 1000,
		logger:     slog.Default(),
		ctx:        ctx,
		cancel:     cancel,
		runs:       make(map[string]*run),
	}
	for _, opt := range opts {
		opt(s)
	}

	var err error
	if s.runsAccepted, err = meter.Int64Counter("beamsearch.api.runs",
		metric.WithDescription("Searches accepted by the API"),
		metric.WithUnit("{run}")); err != nil {
		s.logger.Warn("create runs counter", slog.String("error", err.Error()))
	}
	if s.runsActive, err = meter.Int64UpDownCounter("beamsearch.api.runs_active",
		metric.WithDescription("Searches currently running"),
		metric.WithUnit("{run}")); err != nil {
		s.logger.Warn("create active runs counter", slog.String("error", err.Error()))
	}
	return s
}

// BaseConfig returns the search parameters overrides apply to.
func (s *Service) BaseConfig() search.Config {
	return s.base
}

// Store returns the checkpoint store, or nil.
func (s *Service) Store() checkpoint.Store {
	return s.store
}

// Start runs a new search in the background.
//
// Outputs:
//   - error: ErrRunInProgress, ErrShuttingDown, or a factory error.
func (s *Service) Start(runKey string, cfg search.Config, problem search.Problem) error {
	return s.launch(runKey, cfg, false, func(ctx context.Context, ctrl *search.Controller) (*search.Result, error) {
		return ctrl.Run(ctx, problem, search.WithRunKey(runKey))
	})
}

// Resume continues a checkpointed run in the background.
//
// Outputs:
//   - error: search.ErrNoCheckpointer without a store, checkpoint.ErrNotFound
//     for unknown runs, ErrRunInProgress, or ErrShuttingDown.
func (s *Service) Resume(ctx context.Context, runKey string) error {
	if s.store == nil {
		return search.ErrNoCheckpointer
	}
	if _, err := s.store.Load(ctx, runKey); err != nil {
		return err
	}
	return s.launch(runKey, s.base, true, func(ctx context.Context, ctrl *search.Controller) (*search.Result, error) {
		return ctrl.Resume(ctx, runKey)
	})
}

func (s *Service) launch(runKey string, cfg search.Config, resumed bool, fn func(context.Context, *search.Controller) (*search.Result, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ctx.Err() != nil {
		return ErrShuttingDown
	}
	if existing, ok := s.runs[runKey]; ok && existing.running() {
		return fmt.Errorf("%w: %q", ErrRunInProgress, runKey)
	}

	emitter := events.NewEmitter(
		events.WithBufferSize(s.bufferSize),
		events.WithRunKey(runKey),
		events.WithLogger(s.logger),
	)
	ctrl, err := s.factory(cfg, emitter)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(s.ctx)
	r := &run{
		key:       runKey,
		resumed:   resumed,
		emitter:   emitter,
		cancel:    cancel,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	s.runs[runKey] = r

	attrs := metric.WithAttributes(attribute.Bool("resumed", resumed))
	if s.runsAccepted != nil {
		s.runsAccepted.Add(ctx, 1, attrs)
	}
	if s.runsActive != nil {
		s.runsActive.Add(ctx, 1)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		if s.runsActive != nil {
			defer s.runsActive.Add(context.Background(), -1)
		}
		result, err := fn(ctx, ctrl)
		if err != nil {
			s.logger.Warn("search failed", slog.String("run_key", runKey), slog.String("error", err.Error()))
		}
		r.finish(result, err)
		r.emitter.Close()
	}()

	s.logger.Info("search accepted", slog.String("run_key", runKey), slog.Bool("resumed", resumed))
	return nil
}

func (s *Service) get(runKey string) (*run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runKey]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrRunNotFound, runKey)
	}
	return r, nil
}

// Status returns the current status of a run.
func (s *Service) Status(runKey string) (SearchStatusResponse, error) {
	r, err := s.get(runKey)
	if err != nil {
		return SearchStatusResponse{}, err
	}
	return r.status(), nil
}

// Events returns buffered events with Seq greater than after.
func (s *Service) Events(runKey string, after uint64) ([]events.Event, error) {
	r, err := s.get(runKey)
	if err != nil {
		return nil, err
	}
	return r.emitter.GetBufferAfter(after), nil
}

// Cancel stops a running search. The run finishes as incomplete with its
// committed state checkpointed.
//
// Outputs:
//   - bool: False if the run had already finished.
//   - error: ErrRunNotFound.
func (s *Service) Cancel(runKey string) (bool, error) {
	r, err := s.get(runKey)
	if err != nil {
		return false, err
	}
	if !r.running() {
		return false, nil
	}
	r.cancel()
	return true, nil
}

// Wait blocks until the run finishes or ctx ends.
func (s *Service) Wait(ctx context.Context, runKey string) (SearchStatusResponse, error) {
	r, err := s.get(runKey)
	if err != nil {
		return SearchStatusResponse{}, err
	}
	select {
	case <-r.done:
		return r.status(), nil
	case <-ctx.Done():
		return r.status(), ctx.Err()
	}
}

// Runs returns the registered run keys in sorted order.
func (s *Service) Runs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.runs))
	for k := range s.runs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Shutdown cancels every running search and waits for them to finish.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
