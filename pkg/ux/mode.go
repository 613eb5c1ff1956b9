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
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Mode controls how richly the CLI renders output.
type Mode string

const (
	// ModeRich uses colors, icons, and boxes.
	ModeRich Mode = "rich"

	// ModePlain uses icons without colors.
	ModePlain Mode = "plain"

	// ModeMachine writes tab-separated lines suitable for scripting.
	ModeMachine Mode = "machine"
)

// ParseMode converts a string to a Mode. Unknown values select ModeRich.
func ParseMode(s string) Mode {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "plain", "p", "minimal":
		return ModePlain
	case "machine", "quiet", "q":
		return ModeMachine
	default:
		return ModeRich
	}
}

// DetectMode picks the output mode from BEAM_OUTPUT, falling back to
// ModeMachine when f is not a terminal.
func DetectMode(f *os.File) Mode {
	if env := os.Getenv("BEAM_OUTPUT"); env != "" {
		return ParseMode(env)
	}
	if f == nil || !IsTerminal(f) {
		return ModeMachine
	}
	return ModeRich
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
