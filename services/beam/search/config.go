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
	"math"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Default configuration values.
const (
	DefaultMaxDepth         = 10
	DefaultQualityThreshold = 0.9
	DefaultFanOut           = 5
	DefaultBeamWidth        = 3
)

// Config holds the four parameters that shape a search.
//
// A Config is resolved once per run (see ResolveConfig) and is never
// modified afterwards.
type Config struct {
	// MaxDepth is the number of rounds after which the search stops.
	MaxDepth int `yaml:"max_depth" json:"max_depth" validate:"gte=0"`

	// QualityThreshold is the inclusive score at which the search stops.
	QualityThreshold float64 `yaml:"quality_threshold" json:"quality_threshold" validate:"gte=0,lte=1"`

	// FanOut is the number of candidates requested per generator call.
	FanOut int `yaml:"fan_out" json:"fan_out" validate:"gte=1"`

	// BeamWidth is the number of candidates retained after pruning.
	BeamWidth int `yaml:"beam_width" json:"beam_width" validate:"gte=1"`
}

// DefaultConfig returns the default search configuration.
//
// Outputs:
//   - Config: max_depth 10, quality_threshold 0.9, fan_out 5, beam_width 3.
func DefaultConfig() Config {
	return Config{
		MaxDepth:         DefaultMaxDepth,
		QualityThreshold: DefaultQualityThreshold,
		FanOut:           DefaultFanOut,
		BeamWidth:        DefaultBeamWidth,
	}
}

// Overrides carries caller-supplied values. Nil fields keep the default.
type Overrides struct {
	MaxDepth         *int     `yaml:"max_depth,omitempty" json:"max_depth,omitempty"`
	QualityThreshold *float64 `yaml:"quality_threshold,omitempty" json:"quality_threshold,omitempty"`
	FanOut           *int     `yaml:"fan_out,omitempty" json:"fan_out,omitempty"`
	BeamWidth        *int     `yaml:"beam_width,omitempty" json:"beam_width,omitempty"`
}

// ApplyTo returns base with every non-nil override applied.
func (o Overrides) ApplyTo(base Config) Config {
	if o.MaxDepth != nil {
		base.MaxDepth = *o.MaxDepth
	}
	if o.QualityThreshold != nil {
		base.QualityThreshold = *o.QualityThreshold
	}
	if o.FanOut != nil {
		base.FanOut = *o.FanOut
	}
	if o.BeamWidth != nil {
		base.BeamWidth = *o.BeamWidth
	}
	return base
}

// ResolveConfig merges overrides into the defaults and validates the result.
//
// Inputs:
//   - overrides: Caller-supplied values.
//
// Outputs:
//   - Config: The resolved, immutable configuration.
//   - error: A *ConfigError (wrapping ErrInvalidConfig) if invalid.
func ResolveConfig(overrides Overrides) (Config, error) {
	cfg := overrides.ApplyTo(DefaultConfig())
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the configuration.
//
// Outputs:
//   - error: A *ConfigError naming the first invalid field, or nil.
func (c Config) Validate() error {
	if math.IsNaN(c.QualityThreshold) {
		return &ConfigError{Field: "quality_threshold", Reason: "must be a number in [0, 1]"}
	}
	if err := structValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func fieldError(fe validator.FieldError) *ConfigError {
	var reason string
	switch fe.Tag() {
	case "gte":
		reason = fmt.Sprintf("must be >= %s (got %v)", fe.Param(), fe.Value())
	case "lte":
		reason = fmt.Sprintf("must be <= %s (got %v)", fe.Param(), fe.Value())
	default:
		reason = fmt.Sprintf("failed %q check (got %v)", fe.Tag(), fe.Value())
	}
	return &ConfigError{Field: fe.Field(), Reason: reason}
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// structValidator returns the shared validator, reporting fields by their
// json names.
func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
	})
	return validate
}
