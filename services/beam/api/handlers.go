// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/beamsearch/services/beam/checkpoint"
	"github.com/AleutianAI/beamsearch/services/beam/game24"
	"github.com/AleutianAI/beamsearch/services/beam/search"
)

// Handlers serves the HTTP endpoints of a Service.
type Handlers struct {
	svc *Service
}

// NewHandlers creates the handlers.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// HandleStartSearch handles POST /v1/searches.
//
// Description:
//
//	Resolves the request overrides against the server's search
//	parameters and starts the run in the background. The response carries
//	the run key and the resolved configuration.
//
// Responses:
//   - 202: Run accepted.
//   - 400: Invalid request, puzzle, configuration, or run key.
//   - 409: A run with the same key is still running.
//   - 503: The server is shutting down.
func (h *Handlers) HandleStartSearch(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleStartSearch")

	var req StartSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request: " + err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	puzzle := game24.Puzzle{Numbers: req.Numbers, Target: game24.DefaultTarget}
	if req.Target != nil {
		puzzle.Target = *req.Target
	}
	problem, err := puzzle.Problem()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_PUZZLE"})
		return
	}

	cfg := req.Config.ApplyTo(h.svc.BaseConfig())
	if err := cfg.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_CONFIG"})
		return
	}

	runKey := req.RunKey
	if runKey == "" {
		runKey = uuid.NewString()
	}
	if err := checkpoint.ValidateRunKey(runKey); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_RUN_KEY"})
		return
	}

	if err := h.svc.Start(runKey, cfg, problem); err != nil {
		writeServiceError(c, logger, err)
		return
	}

	logger.Info("search started", "run_key", runKey, "problem_id", problem.ID)
	c.JSON(http.StatusAccepted, StartSearchResponse{RunKey: runKey, Status: StatusRunning, Config: cfg})
}

// HandleResumeSearch handles POST /v1/searches/:runKey/resume.
//
// Responses:
//   - 202: Run resumed.
//   - 404: No checkpoint for the run key.
//   - 409: The run is still running.
//   - 501: No checkpoint store configured.
func (h *Handlers) HandleResumeSearch(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	runKey := c.Param("runKey")
	logger := slog.With("request_id", requestID, "handler", "HandleResumeSearch", "run_key", runKey)

	if err := checkpoint.ValidateRunKey(runKey); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_RUN_KEY"})
		return
	}
	if err := h.svc.Resume(c.Request.Context(), runKey); err != nil {
		writeServiceError(c, logger, err)
		return
	}

	logger.Info("search resumed")
	c.JSON(http.StatusAccepted, gin.H{"run_key": runKey, "status": StatusRunning})
}

// HandleCancelSearch handles POST /v1/searches/:runKey/cancel.
func (h *Handlers) HandleCancelSearch(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	runKey := c.Param("runKey")
	logger := slog.With("request_id", requestID, "handler", "HandleCancelSearch", "run_key", runKey)

	cancelled, err := h.svc.Cancel(runKey)
	if err != nil {
		writeServiceError(c, logger, err)
		return
	}
	if cancelled {
		logger.Info("search cancelled")
	}
	c.JSON(http.StatusOK, gin.H{"run_key": runKey, "cancelled": cancelled})
}

// HandleGetSearch handles GET /v1/searches/:runKey.
func (h *Handlers) HandleGetSearch(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	runKey := c.Param("runKey")
	logger := slog.With("request_id", requestID, "handler", "HandleGetSearch", "run_key", runKey)

	status, err := h.svc.Status(runKey)
	if err != nil {
		writeServiceError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// HandleListSearches handles GET /v1/searches.
func (h *Handlers) HandleListSearches(c *gin.Context) {
	getOrCreateRequestID(c)
	c.JSON(http.StatusOK, gin.H{"run_keys": h.svc.Runs()})
}

// HandleGetEvents handles GET /v1/searches/:runKey/events.
//
// The optional "after" query parameter returns only events with a greater
// sequence number, so clients can poll incrementally.
func (h *Handlers) HandleGetEvents(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	runKey := c.Param("runKey")
	logger := slog.With("request_id", requestID, "handler", "HandleGetEvents", "run_key", runKey)

	after, err := parseAfter(c.Query("after"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "after must be a non-negative integer", Code: "INVALID_REQUEST"})
		return
	}
	evts, err := h.svc.Events(runKey, after)
	if err != nil {
		writeServiceError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, EventsResponse{RunKey: runKey, Events: evts})
}

// HandleListCheckpoints handles GET /v1/checkpoints.
func (h *Handlers) HandleListCheckpoints(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListCheckpoints")

	store := h.svc.Store()
	if store == nil {
		writeServiceError(c, logger, search.ErrNoCheckpointer)
		return
	}
	keys, err := store.List(c.Request.Context())
	if err != nil {
		writeServiceError(c, logger, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	c.JSON(http.StatusOK, CheckpointListResponse{RunKeys: keys})
}

// HandleGetCheckpoint handles GET /v1/checkpoints/:runKey.
func (h *Handlers) HandleGetCheckpoint(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	runKey := c.Param("runKey")
	logger := slog.With("request_id", requestID, "handler", "HandleGetCheckpoint", "run_key", runKey)

	store := h.svc.Store()
	if store == nil {
		writeServiceError(c, logger, search.ErrNoCheckpointer)
		return
	}
	cp, err := store.Load(c.Request.Context(), runKey)
	if err != nil {
		writeServiceError(c, logger, err)
		return
	}
	c.JSON(http.StatusOK, cp)
}

// HandleDeleteCheckpoint handles DELETE /v1/checkpoints/:runKey.
func (h *Handlers) HandleDeleteCheckpoint(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	runKey := c.Param("runKey")
	logger := slog.With("request_id", requestID, "handler", "HandleDeleteCheckpoint", "run_key", runKey)

	store := h.svc.Store()
	if store == nil {
		writeServiceError(c, logger, search.ErrNoCheckpointer)
		return
	}
	if status, err := h.svc.Status(runKey); err == nil && status.Status == StatusRunning {
		writeServiceError(c, logger, ErrRunInProgress)
		return
	}
	if err := store.Delete(c.Request.Context(), runKey); err != nil {
		writeServiceError(c, logger, err)
		return
	}
	logger.Info("checkpoint deleted")
	c.Status(http.StatusNoContent)
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// writeServiceError maps service and store errors to HTTP responses.
func writeServiceError(c *gin.Context, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, ErrRunNotFound), errors.Is(err, checkpoint.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "NOT_FOUND"})
	case errors.Is(err, ErrRunInProgress):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "RUN_IN_PROGRESS"})
	case errors.Is(err, checkpoint.ErrInvalidRunKey):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_RUN_KEY"})
	case errors.Is(err, search.ErrInvalidConfig):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_CONFIG"})
	case errors.Is(err, search.ErrNoCheckpointer):
		c.JSON(http.StatusNotImplemented, ErrorResponse{Error: err.Error(), Code: "NO_CHECKPOINT_STORE"})
	case errors.Is(err, ErrShuttingDown):
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Code: "SHUTTING_DOWN"})
	default:
		logger.Error("request failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "INTERNAL_ERROR"})
	}
}

func parseAfter(raw string) (uint64, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

// getOrCreateRequestID extracts or generates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
