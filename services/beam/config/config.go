// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the full beamsearch configuration.
//
// Priority is env > file > defaults. Files may be YAML or JSON.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/beamsearch/pkg/logging"
	"github.com/AleutianAI/beamsearch/services/beam/checkpoint"
	"github.com/AleutianAI/beamsearch/services/beam/search"
	"github.com/AleutianAI/beamsearch/services/beam/telemetry"
)

// Generator kinds.
const (
	GeneratorSampler = "sampler"
	GeneratorLLM     = "llm"
)

// Config contains all beamsearch configuration.
//
// Thread Safety: Safe to read concurrently. Not safe to modify after creation.
type Config struct {
	// Search holds the four search parameters.
	Search search.Config `json:"search" yaml:"search"`

	// Parallel bounds adapter concurrency.
	Parallel ParallelConfig `json:"parallel" yaml:"parallel"`

	// CircuitBreaker guards generator calls.
	CircuitBreaker search.CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`

	// Checkpoint selects the checkpoint backend.
	Checkpoint checkpoint.Config `json:"checkpoint" yaml:"checkpoint"`

	// Observability contains logging and telemetry settings.
	Observability ObservabilityConfig `json:"observability" yaml:"observability"`

	// Generator selects the candidate generator.
	Generator GeneratorConfig `json:"generator" yaml:"generator"`

	// Server configures the HTTP API.
	Server ServerConfig `json:"server" yaml:"server"`
}

// ParallelConfig contains parallel execution settings.
type ParallelConfig struct {
	// MaxConcurrency bounds in-flight adapter calls across runs. 0 = unbounded.
	MaxConcurrency int `json:"max_concurrency" yaml:"max_concurrency" validate:"gte=0"`

	// RateLimit is the sustained adapter call rate per second. 0 = unpaced.
	RateLimit float64 `json:"rate_limit" yaml:"rate_limit" validate:"gte=0"`

	// Burst is the token bucket size used with RateLimit.
	Burst int `json:"burst" yaml:"burst" validate:"gte=0"`

	// RoundTimeout bounds one round. 0 = no limit.
	RoundTimeout time.Duration `json:"round_timeout" yaml:"round_timeout" validate:"gte=0"`

	// CacheScores memoizes successful evaluations per payload.
	CacheScores bool `json:"cache_scores" yaml:"cache_scores"`
}

// ObservabilityConfig contains logging and telemetry settings.
type ObservabilityConfig struct {
	LogLevel string `json:"log_level" yaml:"log_level"`
	LogDir   string `json:"log_dir" yaml:"log_dir"`
	LogJSON  bool   `json:"log_json" yaml:"log_json"`

	// Telemetry configures OTel exporters.
	Telemetry telemetry.Config `json:"telemetry" yaml:"telemetry"`
}

// GeneratorConfig selects the candidate generator.
type GeneratorConfig struct {
	// Kind is "sampler" (offline, deterministic) or "llm".
	Kind string `json:"kind" yaml:"kind" validate:"oneof=sampler llm"`

	// Model is the chat model used by the llm generator.
	Model string `json:"model" yaml:"model"`

	// BaseURL overrides the OpenAI-compatible endpoint.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `json:"api_key_env" yaml:"api_key_env"`

	// Temperature is the sampling temperature for the llm generator.
	Temperature float32 `json:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`

	// Timeout bounds one generator call. 0 = no limit.
	Timeout time.Duration `json:"timeout" yaml:"timeout" validate:"gte=0"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `json:"addr" yaml:"addr"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gte=0"`

	// EventBuffer is the per-run event replay buffer size.
	EventBuffer int `json:"event_buffer" yaml:"event_buffer" validate:"gte=1"`
}

// Default returns the default configuration.
//
// Outputs:
//   - Config: Default configuration with sensible values.
func Default() Config {
	return Config{
		Search: search.DefaultConfig(),
		Parallel: ParallelConfig{
			MaxConcurrency: 8,
			RateLimit:      0,
			Burst:          4,
			CacheScores:    true,
		},
		CircuitBreaker: search.DefaultCircuitBreakerConfig(),
		Checkpoint:     checkpoint.DefaultConfig(),
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			Telemetry: telemetry.DefaultConfig(),
		},
		Generator: GeneratorConfig{
			Kind:        GeneratorSampler,
			Model:       "gpt-4o-mini",
			APIKeyEnv:   "OPENAI_API_KEY",
			Temperature: 0.7,
			Timeout:     60 * time.Second,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
			EventBuffer:     1000,
		},
	}
}

// Load loads configuration with priority: env > file > defaults.
//
// Inputs:
//   - configPath: Path to YAML/JSON config file (optional, can be empty).
//
// Outputs:
//   - Config: Merged configuration.
//   - error: Non-nil if the file exists but is invalid, or the merged
//     configuration fails validation.
func Load(configPath string) (Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := loadFile(configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	loadEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
		}
	}
	return nil
}

func loadEnv(cfg *Config) {
	// Search
	if v := os.Getenv("BEAM_MAX_DEPTH"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Search.MaxDepth = i
		}
	}
	if v := os.Getenv("BEAM_QUALITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.QualityThreshold = f
		}
	}
	if v := os.Getenv("BEAM_FAN_OUT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Search.FanOut = i
		}
	}
	if v := os.Getenv("BEAM_BEAM_WIDTH"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Search.BeamWidth = i
		}
	}

	// Parallel
	if v := os.Getenv("BEAM_MAX_CONCURRENCY"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Parallel.MaxConcurrency = i
		}
	}
	if v := os.Getenv("BEAM_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Parallel.RateLimit = f
		}
	}
	if v := os.Getenv("BEAM_ROUND_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Parallel.RoundTimeout = d
		}
	}
	if v := os.Getenv("BEAM_CACHE_SCORES"); v != "" {
		cfg.Parallel.CacheScores = v == "true" || v == "1"
	}

	// Checkpoint
	if v := os.Getenv("BEAM_CHECKPOINT_BACKEND"); v != "" {
		cfg.Checkpoint.Backend = v
	}
	if v := os.Getenv("BEAM_CHECKPOINT_DIR"); v != "" {
		cfg.Checkpoint.Dir = v
	}
	if v := os.Getenv("BEAM_CHECKPOINT_COMPRESS"); v != "" {
		cfg.Checkpoint.Compress = v == "true" || v == "1"
	}
	if v := os.Getenv("BEAM_S3_BUCKET"); v != "" {
		cfg.Checkpoint.S3.Bucket = v
	}
	if v := os.Getenv("BEAM_GCS_BUCKET"); v != "" {
		cfg.Checkpoint.GCS.Bucket = v
	}

	// Observability
	if v := os.Getenv("BEAM_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("BEAM_LOG_DIR"); v != "" {
		cfg.Observability.LogDir = v
	}
	if v := os.Getenv("BEAM_LOG_JSON"); v != "" {
		cfg.Observability.LogJSON = v == "true" || v == "1"
	}

	// Generator
	if v := os.Getenv("BEAM_GENERATOR"); v != "" {
		cfg.Generator.Kind = v
	}
	if v := os.Getenv("BEAM_LLM_MODEL"); v != "" {
		cfg.Generator.Model = v
	}
	if v := os.Getenv("BEAM_LLM_BASE_URL"); v != "" {
		cfg.Generator.BaseURL = v
	}

	// Server
	if v := os.Getenv("BEAM_SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
}

// Validate checks that the configuration is valid.
//
// Outputs:
//   - error: Non-nil if configuration is invalid. Search parameter errors
//     wrap search.ErrInvalidConfig.
func (c Config) Validate() error {
	if err := c.Search.Validate(); err != nil {
		return err
	}
	if err := structValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed %q check (got %v)", fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}
	if _, err := logging.ParseLevel(c.Observability.LogLevel); err != nil {
		return err
	}
	if c.CircuitBreaker.OpenDuration <= 0 {
		return fmt.Errorf("circuit_breaker.open_duration must be > 0")
	}
	switch c.Checkpoint.Backend {
	case checkpoint.BackendS3:
		if c.Checkpoint.S3.Bucket == "" {
			return fmt.Errorf("checkpoint.s3.bucket is required for the s3 backend")
		}
	case checkpoint.BackendGCS:
		if c.Checkpoint.GCS.Bucket == "" {
			return fmt.Errorf("checkpoint.gcs.bucket is required for the gcs backend")
		}
	case checkpoint.BackendFile:
		if c.Checkpoint.Dir == "" {
			return fmt.Errorf("checkpoint.dir is required for the file backend")
		}
	}
	if c.Generator.Kind == GeneratorLLM && c.Generator.Model == "" {
		return fmt.Errorf("generator.model is required for the llm generator")
	}
	return nil
}

// Logging returns the logger configuration for a service.
func (c Config) Logging(service string) logging.Config {
	level, _ := logging.ParseLevel(c.Observability.LogLevel)
	return logging.Config{
		Level:   level,
		LogDir:  c.Observability.LogDir,
		Service: service,
		JSON:    c.Observability.LogJSON,
	}
}

// Limiter builds the shared adapter limiter.
func (c Config) Limiter() *search.Limiter {
	return search.NewLimiter(c.Parallel.MaxConcurrency, c.Parallel.RateLimit, c.Parallel.Burst)
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
	})
	return validate
}
