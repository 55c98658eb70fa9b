// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/guardrail-labs/sqlfence/services/grammar"
)

var (
	grammarCheck    string
	grammarExamples bool
)

var grammarCmd = &cobra.Command{
	Use:   "grammar",
	Short: "Print the whitelist grammar or validate a SQL string",
	Long: `Prints the whitelist grammar that constrains every generated query.

With --check, validates one SQL string against the grammar instead and
reports the first offending byte position on failure.`,
	RunE: runGrammar,
}

func init() {
	grammarCmd.Flags().StringVar(&grammarCheck, "check", "", "SQL string to validate instead of printing the grammar")
	grammarCmd.Flags().BoolVar(&grammarExamples, "examples", false, "Print known-good example queries instead")
}

func runGrammar(cmd *cobra.Command, args []string) error {
	spec := grammar.DefaultSpec()

	if grammarCheck != "" {
		validator, err := grammar.NewValidator(spec)
		if err != nil {
			return fmt.Errorf("building validator: %w", err)
		}
		if err := validator.Validate(grammarCheck); err != nil {
			return fmt.Errorf("rejected: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "valid")
		return nil
	}

	if grammarExamples {
		for _, q := range grammar.ExampleQueries() {
			fmt.Fprintln(cmd.OutOrStdout(), q)
		}
		return nil
	}

	fmt.Fprint(cmd.OutOrStdout(), spec.Text())
	return nil
}
