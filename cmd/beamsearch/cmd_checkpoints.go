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
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/beamsearch/services/beam/checkpoint"
)

func newCheckpointsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "checkpoints",
		Aliases: []string{"cp"},
		Short:   "Inspect and remove stored checkpoints",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List runs with a checkpoint",
		Args:  cobra.NoArgs,
	}
	listCmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		return a.listCheckpoints(cmd)
	})

	showCmd := &cobra.Command{
		Use:   "show <run-key>",
		Short: "Show the checkpoint of a run",
		Args:  cobra.ExactArgs(1),
	}
	showCmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		return a.showCheckpoint(cmd, args[0])
	})

	deleteCmd := &cobra.Command{
		Use:     "delete <run-key>...",
		Aliases: []string{"rm"},
		Short:   "Delete the checkpoints of one or more runs",
		Args:    cobra.MinimumNArgs(1),
	}
	deleteCmd.RunE = a.runE(func(cmd *cobra.Command, args []string) error {
		return a.deleteCheckpoints(cmd, args)
	})

	cmd.AddCommand(listCmd, showCmd, deleteCmd)
	return cmd
}

func (a *app) listCheckpoints(cmd *cobra.Command) error {
	ctx := cmd.Context()
	store, err := a.openStore(ctx)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer store.Close()

	keys, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		a.printer.Info("no checkpoints")
		return nil
	}

	for _, key := range keys {
		cp, err := store.Load(ctx, key)
		if err != nil {
			a.printer.Warning(fmt.Sprintf("%s: %v", key, err))
			continue
		}
		status := string(cp.Reason)
		if status == "" {
			status = "resumable"
		}
		best := "-"
		if cp.Best != nil {
			best = formatScore(cp.Best.Score)
		}
		a.printer.Fields(key, status,
			"depth="+strconv.Itoa(cp.State.Depth)+"/"+strconv.Itoa(cp.Config.MaxDepth),
			"best="+best,
			"problem="+cp.State.Problem.ID)
	}
	return nil
}

func (a *app) showCheckpoint(cmd *cobra.Command, runKey string) error {
	if err := checkpoint.ValidateRunKey(runKey); err != nil {
		return err
	}
	store, err := a.openStore(cmd.Context())
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer store.Close()

	cp, err := store.Load(cmd.Context(), runKey)
	if err != nil {
		return fmt.Errorf("load checkpoint %q: %w", runKey, err)
	}
	renderCheckpoint(a.printer, cp)
	return nil
}

func (a *app) deleteCheckpoints(cmd *cobra.Command, runKeys []string) error {
	store, err := a.openStore(cmd.Context())
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer store.Close()

	var failed int
	for _, key := range runKeys {
		if err := store.Delete(cmd.Context(), key); err != nil {
			a.printer.Error(fmt.Sprintf("%s: %v", key, err))
			failed++
			continue
		}
		a.printer.Success("deleted " + key)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d checkpoints not deleted", failed, len(runKeys))
	}
	return nil
}
