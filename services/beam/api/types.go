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
	"time"

	"github.com/AleutianAI/beamsearch/services/beam/events"
	"github.com/AleutianAI/beamsearch/services/beam/search"
)

// Run statuses.
const (
	StatusRunning  = "running"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

// StartSearchRequest is the body of POST /v1/searches.
type StartSearchRequest struct {
	// Numbers are the puzzle numbers. Required.
	Numbers []int `json:"numbers" binding:"required,min=1"`

	// Target defaults to 24.
	Target *int `json:"target,omitempty"`

	// Config overrides the server's search parameters.
	Config search.Overrides `json:"config"`

	// RunKey names the run; generated when empty.
	RunKey string `json:"run_key,omitempty"`
}

// StartSearchResponse is returned when a run is accepted.
type StartSearchResponse struct {
	RunKey string        `json:"run_key"`
	Status string        `json:"status"`
	Config search.Config `json:"config"`
}

// SearchStatusResponse describes a run.
type SearchStatusResponse struct {
	RunKey     string         `json:"run_key"`
	Status     string         `json:"status"`
	Resumed    bool           `json:"resumed"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Round      int            `json:"round"`
	Result     *search.Result `json:"result,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// EventsResponse is the body of GET /v1/searches/:runKey/events.
type EventsResponse struct {
	RunKey string         `json:"run_key"`
	Events []events.Event `json:"events"`
}

// CheckpointListResponse is the body of GET /v1/checkpoints.
type CheckpointListResponse struct {
	RunKeys []string `json:"run_keys"`
}

// ErrorResponse is returned for all errors.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`
}
