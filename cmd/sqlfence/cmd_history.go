// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guardrail-labs/sqlfence/services/evals"
	"github.com/guardrail-labs/sqlfence/services/evals/history"
)

var (
	historyDir string
	historyRun string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect recorded eval runs",
	Long: `Lists eval runs recorded to the local history store, most recent
first. With --run, prints one run's full combined summary as JSON.`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historyDir, "history-dir", "eval_history", "BadgerDB directory for run history")
	historyCmd.Flags().StringVar(&historyRun, "run", "", "Run ID to print in full")
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := history.Open(history.DefaultConfig(historyDir))
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()

	if historyRun != "" {
		rec, err := store.Get(historyRun)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	records, err := store.List()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "no runs recorded")
		return nil
	}

	for _, rec := range records {
		o := rec.Combined.Overall
		fmt.Fprintf(out, "%s  %s  %d/%d passed (%.1f%%)  %s\n",
			rec.StoredAt, rec.RunID, o.TotalPassed, o.TotalCases, o.PassRate*100,
			evals.Classify(o.PassRate))
	}
	return nil
}
