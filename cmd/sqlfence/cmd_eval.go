// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/guardrail-labs/sqlfence/services/evals"
	"github.com/guardrail-labs/sqlfence/services/evals/history"
	"github.com/guardrail-labs/sqlfence/services/grammar"
	"github.com/guardrail-labs/sqlfence/services/store"
)

var (
	evalAPIURL     string
	evalLogsDir    string
	evalNoSave     bool
	evalHistoryDir string
	evalRateLimit  float64
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Run the full eval suite against a running query service",
	Long: `Runs the four evaluators in order: grammar validity, semantic
correctness, safety guardrails, robustness.

The query service must already be running (sqlfence serve). Execution
cases also need CLICKHOUSE_* environment variables so golden queries
can run.

Exits 0 only when every evaluator passes every case.`,
	RunE: runEval,
}

func init() {
	evalCmd.Flags().StringVar(&evalAPIURL, "api-url", "http://localhost:8000", "Query service base URL")
	evalCmd.Flags().StringVar(&evalLogsDir, "logs-dir", "logs", "Directory for JSON result artifacts")
	evalCmd.Flags().BoolVar(&evalNoSave, "no-save", false, "Skip writing result artifacts")
	evalCmd.Flags().StringVar(&evalHistoryDir, "history-dir", "", "BadgerDB directory for run history (disabled when empty)")
	evalCmd.Flags().Float64Var(&evalRateLimit, "rate-limit", 2, "Max generation requests per second")
}

func runEval(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	client := evals.NewAPIClient(evalAPIURL,
		evals.WithRateLimit(rate.NewLimiter(rate.Limit(evalRateLimit), 1)))

	// The only fatal precondition: the collaborator must be there.
	if err := client.CheckHealth(ctx); err != nil {
		if errors.Is(err, evals.ErrUnreachable) {
			fmt.Fprintf(os.Stderr, "Cannot reach query service at %s: %v\n", evalAPIURL, err)
			fmt.Fprintln(os.Stderr, "Start it first: sqlfence serve")
		}
		return err
	}

	validator, err := grammar.NewValidator(grammar.DefaultSpec())
	if err != nil {
		return fmt.Errorf("building validator: %w", err)
	}

	semantic := evals.NewSemanticCorrectnessEval(store.NewClient(store.ConfigFromEnv()))
	defer semantic.Close()

	suite := []evals.Evaluator{
		evals.NewGrammarValidityEval(validator),
		semantic,
		evals.NewSafetyGuardrailsEval(),
		evals.NewRobustnessEval(validator),
	}

	opts := []evals.RunnerOption{evals.WithOutput(os.Stdout)}
	if !evalNoSave {
		sink, err := evals.NewSink(evalLogsDir)
		if err != nil {
			return err
		}
		opts = append(opts, evals.WithSink(sink))

		if evalHistoryDir != "" {
			hist, err := history.Open(history.DefaultConfig(evalHistoryDir))
			if err != nil {
				return err
			}
			defer hist.Close()
			opts = append(opts, evals.WithRecorder(hist))
		}
	}

	runner := evals.NewRunner(suite, client.Generator(), opts...)
	summaries, err := runner.RunAll(ctx)
	if err != nil {
		return err
	}

	if !evals.AllPassed(summaries) {
		return errNotAllPassed
	}
	return nil
}

// errNotAllPassed drives the non-zero exit status; the report above
// already explains what failed.
var errNotAllPassed = errors.New("eval suite did not pass")
