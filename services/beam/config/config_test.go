// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/beamsearch/pkg/logging"
	"github.com/AleutianAI/beamsearch/services/beam/checkpoint"
	"github.com/AleutianAI/beamsearch/services/beam/search"
)

// clearEnv blanks every variable loadEnv reads so host settings do not leak in.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"BEAM_MAX_DEPTH", "BEAM_QUALITY_THRESHOLD", "BEAM_FAN_OUT", "BEAM_BEAM_WIDTH",
		"BEAM_MAX_CONCURRENCY", "BEAM_RATE_LIMIT", "BEAM_ROUND_TIMEOUT", "BEAM_CACHE_SCORES",
		"BEAM_CHECKPOINT_BACKEND", "BEAM_CHECKPOINT_DIR", "BEAM_CHECKPOINT_COMPRESS",
		"BEAM_S3_BUCKET", "BEAM_GCS_BUCKET", "BEAM_LOG_LEVEL", "BEAM_LOG_DIR", "BEAM_LOG_JSON",
		"BEAM_GENERATOR", "BEAM_LLM_MODEL", "BEAM_LLM_BASE_URL", "BEAM_SERVER_ADDR",
		"OTEL_TRACES_EXPORTER", "OTEL_METRICS_EXPORTER",
	} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	clearEnv(t)
	cfg := Default()

	assert.Equal(t, search.DefaultConfig(), cfg.Search)
	assert.Equal(t, 10, cfg.Search.MaxDepth)
	assert.Equal(t, 0.9, cfg.Search.QualityThreshold)
	assert.Equal(t, 5, cfg.Search.FanOut)
	assert.Equal(t, 3, cfg.Search.BeamWidth)
	assert.Equal(t, GeneratorSampler, cfg.Generator.Kind)
	assert.Equal(t, checkpoint.BackendFile, cfg.Checkpoint.Backend)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "beam.yaml", `
search:
  max_depth: 4
  quality_threshold: 1.0
  fan_out: 8
  beam_width: 2
parallel:
  max_concurrency: 2
  round_timeout: 45s
checkpoint:
  backend: badger
  compress: true
  badger:
    in_memory: true
generator:
  kind: llm
  model: test-model
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, search.Config{MaxDepth: 4, QualityThreshold: 1.0, FanOut: 8, BeamWidth: 2}, cfg.Search)
	assert.Equal(t, 2, cfg.Parallel.MaxConcurrency)
	assert.Equal(t, 45*time.Second, cfg.Parallel.RoundTimeout)
	assert.Equal(t, checkpoint.BackendBadger, cfg.Checkpoint.Backend)
	assert.True(t, cfg.Checkpoint.Compress)
	assert.True(t, cfg.Checkpoint.Badger.InMemory)
	assert.Equal(t, GeneratorLLM, cfg.Generator.Kind)
	assert.Equal(t, "test-model", cfg.Generator.Model)

	// Unset sections keep their defaults.
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, search.DefaultCircuitBreakerConfig(), cfg.CircuitBreaker)
}

func TestLoad_JSON(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "beam.json", `{"search": {"max_depth": 2, "quality_threshold": 0.5, "fan_out": 3, "beam_width": 1}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Search.MaxDepth)
	assert.Equal(t, 0.5, cfg.Search.QualityThreshold)
}

func TestLoad_Malformed(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "bad.yaml", "search: [unterminated")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tried YAML and JSON")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "beam.yaml", "search:\n  max_depth: 4\n")
	t.Setenv("BEAM_MAX_DEPTH", "7")
	t.Setenv("BEAM_BEAM_WIDTH", "5")
	t.Setenv("BEAM_ROUND_TIMEOUT", "2m")
	t.Setenv("BEAM_CHECKPOINT_BACKEND", "memory")
	t.Setenv("BEAM_CHECKPOINT_COMPRESS", "1")
	t.Setenv("BEAM_LOG_JSON", "true")
	t.Setenv("BEAM_FAN_OUT", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Search.MaxDepth)
	assert.Equal(t, 5, cfg.Search.BeamWidth)
	assert.Equal(t, search.DefaultFanOut, cfg.Search.FanOut, "unparseable values are ignored")
	assert.Equal(t, 2*time.Minute, cfg.Parallel.RoundTimeout)
	assert.Equal(t, checkpoint.BackendMemory, cfg.Checkpoint.Backend)
	assert.True(t, cfg.Checkpoint.Compress)
	assert.True(t, cfg.Observability.LogJSON)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"beam width", func(c *Config) { c.Search.BeamWidth = 0 }, "beam_width"},
		{"threshold", func(c *Config) { c.Search.QualityThreshold = 1.5 }, "quality_threshold"},
		{"generator kind", func(c *Config) { c.Generator.Kind = "oracle" }, "kind"},
		{"backend", func(c *Config) { c.Checkpoint.Backend = "tape" }, "backend"},
		{"compression level", func(c *Config) { c.Checkpoint.CompressionLevel = 30 }, "compression_level"},
		{"negative concurrency", func(c *Config) { c.Parallel.MaxConcurrency = -1 }, "max_concurrency"},
		{"log level", func(c *Config) { c.Observability.LogLevel = "loud" }, "unknown log level"},
		{"trace exporter", func(c *Config) { c.Observability.Telemetry.TraceExporter = "zipkin" }, "trace_exporter"},
		{"open duration", func(c *Config) { c.CircuitBreaker.OpenDuration = 0 }, "open_duration"},
		{"s3 bucket", func(c *Config) { c.Checkpoint.Backend = checkpoint.BackendS3 }, "s3.bucket"},
		{"gcs bucket", func(c *Config) { c.Checkpoint.Backend = checkpoint.BackendGCS }, "gcs.bucket"},
		{"file dir", func(c *Config) { c.Checkpoint.Dir = "" }, "checkpoint.dir"},
		{"llm model", func(c *Config) { c.Generator.Kind = GeneratorLLM; c.Generator.Model = "" }, "generator.model"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_SearchErrorsAreTyped(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	cfg.Search.FanOut = 0
	assert.ErrorIs(t, cfg.Validate(), search.ErrInvalidConfig)
}

func TestLogging(t *testing.T) {
	clearEnv(t)
	cfg := Default()
	cfg.Observability.LogLevel = "debug"
	cfg.Observability.LogDir = "/tmp/beam-logs"

	lc := cfg.Logging("beamsearch")
	assert.Equal(t, logging.LevelDebug, lc.Level)
	assert.Equal(t, "/tmp/beam-logs", lc.LogDir)
	assert.Equal(t, "beamsearch", lc.Service)
}
