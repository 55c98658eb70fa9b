// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"github.com/spf13/cobra"

	"github.com/guardrail-labs/sqlfence/pkg/logging"
)

var (
	flagLogLevel string
	flagLogDir   string
	flagQuiet    bool

	appLogger *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sqlfence",
	Short: "Grammar-constrained NL-to-SQL analytics and its eval harness",
	Long: `sqlfence turns natural language questions into ClickHouse SQL that is
guaranteed to conform to a whitelist grammar, and ships the eval suite
that proves it: grammar validity, semantic correctness, safety
guardrails, and robustness.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		appLogger = logging.New(logging.Config{
			Level:   logging.ParseLevel(flagLogLevel),
			LogDir:  flagLogDir,
			Service: "sqlfence",
			Quiet:   flagQuiet,
		})
		appLogger.SetAsDefault()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if appLogger != nil {
			_ = appLogger.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagLogDir, "log-dir", "", "Directory for JSON log files (disabled when empty)")
	rootCmd.PersistentFlags().BoolVar(&flagQuiet, "quiet", false, "Suppress stderr logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(evalCmd)
	rootCmd.AddCommand(grammarCmd)
	rootCmd.AddCommand(historyCmd)
}
