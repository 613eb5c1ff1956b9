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
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/beamsearch/pkg/ux"
	"github.com/AleutianAI/beamsearch/services/beam/events"
	"github.com/AleutianAI/beamsearch/services/beam/game24"
	"github.com/AleutianAI/beamsearch/services/beam/search"
)

// equationText renders a candidate payload as an equation, falling back to
// the raw JSON.
func equationText(payload json.RawMessage) string {
	eq, err := game24.DecodeEquation(payload)
	if err != nil || len(eq.Tokens) == 0 {
		return string(payload)
	}
	return strings.Join(eq.Tokens, " ")
}

func formatScore(s float64) string {
	return strconv.FormatFloat(s, 'f', 4, 64)
}

// progressPrinter returns an event handler that prints one line per event.
func progressPrinter(p *ux.Printer, maxDepth int) events.Handler {
	return func(evt *events.Event) {
		switch data := evt.Data.(type) {
		case search.StartedData:
			verb := "started"
			if data.Resumed {
				verb = "resumed"
			}
			p.Fields("search_"+verb, "run="+evt.RunKey, "problem="+data.Problem.Description,
				"depth="+strconv.Itoa(data.Depth))
		case search.StepDelta:
			fields := []string{string(evt.Type), "round=" + strconv.Itoa(data.Round)}
			switch evt.Type {
			case events.TypeExpand:
				fields = append(fields, "proposed="+strconv.Itoa(len(data.Added)))
			case events.TypeScore:
				fields = append(fields, "scored="+strconv.Itoa(len(data.Added)))
				if best, ok := topScore(data.Added); ok {
					fields = append(fields, "top="+formatScore(best))
				}
			case events.TypePrune:
				fields = append(fields, "kept="+strconv.Itoa(len(data.Added)),
					"depth="+p.ProgressBar(data.Depth, maxDepth, 10))
			}
			p.Fields(fields...)
		case search.AbortedData:
			p.Warning(fmt.Sprintf("round %d aborted during %s: %s", data.Round, data.Stage, data.Error))
		case search.CheckpointData:
			if p.Mode() == ux.ModeMachine {
				p.Fields(string(evt.Type), "depth="+strconv.Itoa(data.Depth))
			}
		}
	}
}

func topScore(cands []search.Candidate) (float64, bool) {
	best, found := 0.0, false
	for _, c := range cands {
		if c.Score != nil && (!found || *c.Score > best) {
			best, found = *c.Score, true
		}
	}
	return best, found
}

// renderResult prints the final outcome of a run.
func renderResult(p *ux.Printer, result *search.Result) {
	rows := []ux.KeyValue{
		{Key: "run", Value: result.RunKey},
		{Key: "reason", Value: string(result.Reason)},
		{Key: "depth", Value: strconv.Itoa(result.Depth)},
	}
	if top, ok := result.Top(); ok {
		rows = append(rows,
			ux.KeyValue{Key: "top", Value: equationText(top.Payload)},
			ux.KeyValue{Key: "score", Value: formatScore(top.Score)},
			ux.KeyValue{Key: "feedback", Value: top.Feedback},
		)
	}
	if result.Best != nil {
		rows = append(rows,
			ux.KeyValue{Key: "best", Value: equationText(result.Best.Payload)},
			ux.KeyValue{Key: "best_score", Value: formatScore(result.Best.Score)},
		)
	}
	if result.Err != nil {
		rows = append(rows, ux.KeyValue{Key: "error", Value: result.Err.Error()})
	}

	switch {
	case result.Reason == search.ReasonQualityMet:
		p.Success("solution found")
	case result.Reason.IsSuccess():
		p.Warning("no solution reached the quality threshold")
	default:
		p.Error("search did not finish: " + string(result.Reason))
	}
	p.Box("Result", rows, !result.Reason.IsSuccess())
}

// renderCheckpoint prints a stored checkpoint.
func renderCheckpoint(p *ux.Printer, cp *search.Checkpoint) {
	reason := string(cp.Reason)
	if reason == "" {
		reason = "resumable"
	}
	rows := []ux.KeyValue{
		{Key: "run", Value: cp.RunKey},
		{Key: "problem", Value: cp.State.Problem.Description},
		{Key: "status", Value: reason},
		{Key: "depth", Value: fmt.Sprintf("%d/%d", cp.State.Depth, cp.Config.MaxDepth)},
		{Key: "config", Value: fmt.Sprintf("fan_out=%d beam_width=%d quality_threshold=%g",
			cp.Config.FanOut, cp.Config.BeamWidth, cp.Config.QualityThreshold)},
		{Key: "live", Value: strconv.Itoa(len(cp.State.LiveCandidates))},
		{Key: "saved", Value: cp.SavedAt.Format("2006-01-02 15:04:05")},
	}
	if cp.Best != nil {
		rows = append(rows,
			ux.KeyValue{Key: "best", Value: equationText(cp.Best.Payload)},
			ux.KeyValue{Key: "best_score", Value: formatScore(cp.Best.Score)},
		)
	}
	p.Box("Checkpoint", rows, false)
}
