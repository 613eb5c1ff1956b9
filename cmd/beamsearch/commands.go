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
	"github.com/spf13/cobra"
)

// newRootCmd builds the command tree. Each invocation gets its own app.
func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "beamsearch",
		Short: "Beam-limited tree search over the 24 game",
		Long: `beamsearch explores candidate equations for a 24-game puzzle in rounds of
expand, score and prune, keeping only the best candidates after each round.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&a.configPath, "config", "c", "beamsearch.yaml",
		"Config file (YAML or JSON); missing files are ignored")
	rootCmd.PersistentFlags().StringVar(&a.output, "output", "",
		"Output style: rich, plain, or machine (default: rich on a terminal, machine otherwise)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "",
		"Log level: debug, info, warn, error")

	rootCmd.AddCommand(newRunCmd(a))
	rootCmd.AddCommand(newResumeCmd(a))
	rootCmd.AddCommand(newCheckpointsCmd(a))
	rootCmd.AddCommand(newServeCmd(a))
	return rootCmd
}

// runE wraps a command body so telemetry and logs are flushed even when
// the body fails.
func (a *app) runE(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		defer a.teardown()
		return fn(cmd, args)
	}
}
