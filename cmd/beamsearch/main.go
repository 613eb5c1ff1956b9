// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command beamsearch runs beam-limited tree searches over the 24 game.
//
// Usage:
//
//	beamsearch run --numbers 1,1,4,6
//	beamsearch run --numbers 1,1,4,6 --generator llm --fan-out 3
//	beamsearch resume <run-key>
//	beamsearch checkpoints list
//	beamsearch serve --addr :8080
//
// Interrupting a run (Ctrl-C) stops it at the last committed round; the
// checkpoint is kept and the run can be resumed with "beamsearch resume".
//
// Exit codes:
//
//	0  quality_met or depth_exhausted
//	1  usage or setup error
//	2  no_viable_candidates
//	3  incomplete (interrupted or failed mid-round)
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
