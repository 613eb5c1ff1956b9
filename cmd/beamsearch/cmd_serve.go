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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/beamsearch/services/beam/api"
	"github.com/AleutianAI/beamsearch/services/beam/events"
	"github.com/AleutianAI/beamsearch/services/beam/search"
	"github.com/AleutianAI/beamsearch/services/beam/telemetry"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve searches over HTTP",
		Long: `Start the HTTP API. Searches run in the background; progress is available
from the events endpoint and over a WebSocket.

Endpoints:
  POST   /v1/searches                   start a search
  GET    /v1/searches/:runKey           run status and result
  POST   /v1/searches/:runKey/cancel    cancel a running search
  POST   /v1/searches/:runKey/resume    resume from the last checkpoint
  GET    /v1/searches/:runKey/events    buffered events (?after=seq)
  GET    /v1/searches/:runKey/ws        live event stream
  GET    /v1/checkpoints                list checkpoints
  GET    /health, /metrics`,
		Args: cobra.NoArgs,
	}
	cmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("addr") {
			a.cfg.Server.Addr = addr
		}
		return a.serve(cmd.Context())
	})
	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	return cmd
}

func (a *app) serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.cfg.Observability.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer store.Close()

	gen, err := a.generator()
	if err != nil {
		return err
	}

	factory := func(cfg search.Config, emitter *events.Emitter) (*search.Controller, error) {
		return a.newController(cfg, gen, emitter, store)
	}
	svc := api.NewService(factory,
		api.WithBaseConfig(a.cfg.Search),
		api.WithStore(store),
		api.WithEventBuffer(a.cfg.Server.EventBuffer),
		api.WithLogger(a.logger.Slog()),
	)

	srv := &http.Server{
		Addr:    a.cfg.Server.Addr,
		Handler: api.NewRouter(svc, telemetry.MetricsHandler()),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting beamsearch server", slog.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen %s: %w", srv.Addr, err)
		}
	case <-ctx.Done():
	}

	slog.Info("Shutting down beamsearch server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}
	if err := svc.Shutdown(shutdownCtx); err != nil {
		slog.Warn("searches still running at shutdown", "error", err)
	}
	return nil
}
