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
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 10, cfg.MaxDepth)
	assert.Equal(t, 0.9, cfg.QualityThreshold)
	assert.Equal(t, 5, cfg.FanOut)
	assert.Equal(t, 3, cfg.BeamWidth)
	assert.NoError(t, cfg.Validate())
}

func TestResolveConfig_MergesOverrides(t *testing.T) {
	cfg, err := ResolveConfig(Overrides{
		BeamWidth:        ptr(1),
		QualityThreshold: ptr(1.0),
	})
	require.NoError(t, err)
	assert.Equal(t, Config{MaxDepth: 10, QualityThreshold: 1.0, FanOut: 5, BeamWidth: 1}, cfg)

	cfg, err = ResolveConfig(Overrides{})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		overrides Overrides
		field     string
	}{
		{"beam width zero", Overrides{BeamWidth: ptr(0)}, "beam_width"},
		{"fan out zero", Overrides{FanOut: ptr(0)}, "fan_out"},
		{"negative depth", Overrides{MaxDepth: ptr(-1)}, "max_depth"},
		{"threshold above one", Overrides{QualityThreshold: ptr(1.01)}, "quality_threshold"},
		{"threshold below zero", Overrides{QualityThreshold: ptr(-0.1)}, "quality_threshold"},
		{"threshold NaN", Overrides{QualityThreshold: ptr(math.NaN())}, "quality_threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ResolveConfig(tt.overrides)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))

			var cerr *ConfigError
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestConfig_Validate_Boundaries(t *testing.T) {
	valid := []Overrides{
		{MaxDepth: ptr(0)},
		{QualityThreshold: ptr(0.0)},
		{QualityThreshold: ptr(1.0)},
		{FanOut: ptr(1), BeamWidth: ptr(1)},
	}
	for _, o := range valid {
		_, err := ResolveConfig(o)
		assert.NoError(t, err)
	}
}

func TestConfigError_Message(t *testing.T) {
	err := &ConfigError{Field: "beam_width", Reason: "must be >= 1 (got 0)"}
	assert.Equal(t, "invalid search config: beam_width: must be >= 1 (got 0)", err.Error())
}
