// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseMode(t *testing.T) {
	tests := map[string]Mode{
		"rich":    ModeRich,
		"PLAIN":   ModePlain,
		"minimal": ModePlain,
		"machine": ModeMachine,
		" q ":     ModeMachine,
		"unknown": ModeRich,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseMode(in), in)
	}
}

func TestDetectMode(t *testing.T) {
	t.Setenv("BEAM_OUTPUT", "plain")
	assert.Equal(t, ModePlain, DetectMode(nil))

	t.Setenv("BEAM_OUTPUT", "")
	assert.Equal(t, ModeMachine, DetectMode(nil))

	f, err := os.CreateTemp(t.TempDir(), "out")
	assert.NoError(t, err)
	defer f.Close()
	assert.False(t, IsTerminal(f))
	assert.Equal(t, ModeMachine, DetectMode(f))
}

func TestPrinter_Machine(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, ModeMachine)

	p.Title("ignored")
	p.Success("done")
	p.Warning("careful")
	p.Error("broken")
	p.Info("note")
	p.Fields("prune", "round=1", "depth=1")
	p.Box("result", []KeyValue{{"reason", "quality_met"}, {"score", "1"}}, false)

	assert.Equal(t,
		"OK\tdone\n"+
			"WARN\tcareful\n"+
			"ERROR\tbroken\n"+
			"note\n"+
			"prune\tround=1\tdepth=1\n"+
			"result\treason=quality_met\tscore=1\n",
		buf.String())
	assert.Equal(t, "2/5", p.ProgressBar(2, 5, 10))
}

func TestPrinter_Plain(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, ModePlain)

	p.Success("done")
	p.Box("result", []KeyValue{{"reason", "quality_met"}, {"best", "6 * 4"}}, false)

	assert.Equal(t,
		"✓ done\n"+
			"result\n"+
			"reason  quality_met\n"+
			"best    6 * 4\n",
		buf.String())
	assert.Equal(t, "█████░░░░░ 5/10", p.ProgressBar(5, 10, 10))
	assert.Equal(t, "██████████ 10/10", p.ProgressBar(12, 10, 10))
}

func TestPrinter_RichKeepsText(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, ModeRich)
	p.Box("result", []KeyValue{{"reason", "quality_met"}}, true)
	assert.Contains(t, buf.String(), "quality_met")
	assert.Contains(t, buf.String(), "result")
	assert.Equal(t, ModeRich, p.Mode())
}
