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

	"github.com/AleutianAI/powerbench/pkg/ux"
)

var archiveColumns = []ux.Column{
	{Title: "Run ID", Width: 36},
	{Title: "Mode", Width: 6},
	{Title: "Model", Width: 16},
	{Title: "Intervals", Width: 9},
	{Title: "Workers", Width: 7},
	{Title: "Created", Width: 20},
}

func runArchiveList(cmd *cobra.Command, _ []string) error {
	a, err := openArchive(cfg, logger.Slog())
	if err != nil {
		return err
	}
	defer a.Close()

	entries, err := a.List()
	if err != nil {
		return err
	}
	p := printer(cmd)
	if len(entries) == 0 {
		p.Info("archive is empty")
		return nil
	}
	table := ux.NewTable(p, archiveColumns...)
	table.Header()
	for _, e := range entries {
		table.Row(e.RunID, e.Mode, e.Model, strconv.Itoa(e.Intervals), strconv.Itoa(e.Workers), e.CreatedAt)
	}
	return nil
}

func runArchiveShow(cmd *cobra.Command, args []string) error {
	a, err := openArchive(cfg, logger.Slog())
	if err != nil {
		return err
	}
	defer a.Close()

	exp, err := a.Get(args[0])
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(exp.Body)
	return err
}

func runArchiveDelete(cmd *cobra.Command, args []string) error {
	a, err := openArchive(cfg, logger.Slog())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Delete(args[0]); err != nil {
		return err
	}
	printer(cmd).Success(fmt.Sprintf("deleted %s", args[0]))
	return nil
}
