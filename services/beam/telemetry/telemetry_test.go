// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")
	t.Setenv("BEAM_ENV", "")

	cfg := DefaultConfig()

	if cfg.ServiceName != "beamsearch" {
		t.Errorf("ServiceName = %q, want beamsearch", cfg.ServiceName)
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment = %q, want development", cfg.Environment)
	}
	if cfg.TraceExporter != "none" {
		t.Errorf("TraceExporter = %q, want none", cfg.TraceExporter)
	}
	if cfg.MetricExporter != "prometheus" {
		t.Errorf("MetricExporter = %q, want prometheus", cfg.MetricExporter)
	}
	if cfg.Enabled() {
		t.Error("tracing should be disabled by default")
	}
}

func TestDefaultConfig_Env(t *testing.T) {
	t.Setenv("BEAM_ENV", "staging")
	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")

	cfg := DefaultConfig()
	if cfg.Environment != "staging" {
		t.Errorf("Environment = %q, want staging", cfg.Environment)
	}
	if !cfg.Enabled() {
		t.Error("stdout exporter should enable tracing")
	}
}

func TestInit_NilContext(t *testing.T) {
	//nolint:staticcheck // testing nil context handling
	_, err := Init(nil, DefaultConfig())
	if !errors.Is(err, ErrNilContext) {
		t.Errorf("expected ErrNilContext, got %v", err)
	}
}

func TestInit_Noop(t *testing.T) {
	cfg := Config{
		ServiceName:    "test",
		TraceExporter:  "none",
		MetricExporter: "none",
	}
	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestInit_Stdout(t *testing.T) {
	cfg := Config{
		ServiceName:    "test",
		TraceExporter:  "stdout",
		MetricExporter: "stdout",
		SampleRate:     0.5,
	}
	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestInit_Prometheus(t *testing.T) {
	cfg := Config{
		ServiceName:    "test",
		TraceExporter:  "none",
		MetricExporter: "prometheus",
	}
	shutdown, err := Init(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer shutdown(context.Background())

	if MetricsHandler() == nil {
		t.Error("MetricsHandler should be set after prometheus init")
	}
}

func TestInit_UnknownExporter(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"trace", Config{ServiceName: "test", TraceExporter: "zipkin", MetricExporter: "none"}},
		{"metric", Config{ServiceName: "test", TraceExporter: "none", MetricExporter: "statsd"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Init(context.Background(), tt.cfg)
			if err == nil {
				t.Fatal("expected error for unknown exporter")
			}
			if !errors.Is(err, ErrUnknownExporter) {
				t.Errorf("expected ErrUnknownExporter, got %v", err)
			}
			if !strings.Contains(err.Error(), "unknown exporter type") {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}
