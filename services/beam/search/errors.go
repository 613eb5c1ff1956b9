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
	"errors"
	"fmt"
)

// Sentinel errors for the search package.
var (
	// ErrInvalidConfig indicates the search configuration failed validation.
	ErrInvalidConfig = errors.New("invalid search config")

	// ErrNilAdapter indicates a controller was built without a generator or scorer.
	ErrNilAdapter = errors.New("generator and scorer are required")

	// ErrNoCheckpointer indicates Resume was called on a controller without a store.
	ErrNoCheckpointer = errors.New("no checkpointer configured")

	// ErrCircuitOpen indicates the generator circuit breaker rejected a call.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrCheckpointMismatch indicates a checkpoint is not at a round boundary
	// or belongs to another run.
	ErrCheckpointMismatch = errors.New("checkpoint does not describe a resumable state")
)

// ConfigError describes one invalid configuration field.
//
// It unwraps to ErrInvalidConfig so callers can test with errors.Is.
type ConfigError struct {
	Field  string
	Reason string
}

// Error implements error.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidConfig.Error(), e.Field, e.Reason)
}

// Unwrap returns ErrInvalidConfig.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}
