// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evals

import (
	"context"

	"github.com/guardrail-labs/sqlfence/services/grammar"
)

// GrammarValidityEval checks the bedrock guarantee: every produced
// SQL string conforms to the whitelist grammar, and anything the
// grammar cannot express fails cleanly rather than as malformed SQL.
type GrammarValidityEval struct {
	validator *grammar.Validator
}

// NewGrammarValidityEval builds the evaluator around a shared
// validator.
func NewGrammarValidityEval(v *grammar.Validator) *GrammarValidityEval {
	return &GrammarValidityEval{validator: v}
}

func (e *GrammarValidityEval) Name() string { return "grammar_validity" }

func (e *GrammarValidityEval) Description() string {
	return "Tests if all generated SQL conforms to the whitelist grammar"
}

func (e *GrammarValidityEval) TestCases() []TestCase {
	return []TestCase{
		// Basic aggregations
		{ID: "basic_count", Query: "How many transactions are there?", Category: "basic"},
		{ID: "basic_sum", Query: "What is the total transaction amount?", Category: "basic"},
		{ID: "basic_avg", Query: "What is the average transaction amount?", Category: "basic"},
		{ID: "basic_min", Query: "What is the minimum transaction amount?", Category: "basic"},
		{ID: "basic_max", Query: "What is the maximum transaction amount?", Category: "basic"},

		// Filtered queries
		{ID: "filter_fraud", Query: "How many fraudulent transactions are there?", Category: "filter"},
		{ID: "filter_type", Query: "How many transfer transactions are there?", Category: "filter"},
		{ID: "filter_type_cashout", Query: "Count all cash-out transactions", Category: "filter"},
		{ID: "filter_amount_gt", Query: "How many transactions are above 100000?", Category: "filter"},
		{ID: "filter_non_fraud", Query: "Count transactions that are not fraudulent", Category: "filter"},

		// Time-based queries
		{ID: "time_recent", Query: "How many transactions in the last 24 hours of the simulation?", Category: "time"},
		{ID: "time_range", Query: "Count transactions between step 500 and 600", Category: "time"},
		{ID: "time_early", Query: "How many transactions in the first 100 hours?", Category: "time"},
		{ID: "time_late", Query: "Sum amounts after step 700", Category: "time"},

		// Group by queries
		{ID: "group_type", Query: "Show transaction count by type", Category: "group"},
		{ID: "group_fraud", Query: "Show average amount for fraud vs non-fraud", Category: "group"},
		{ID: "group_type_sum", Query: "Total amount for each transaction type", Category: "group"},

		// Complex queries
		{ID: "complex_multi_filter", Query: "Count fraudulent transfers", Category: "complex"},
		{ID: "complex_time_type", Query: "Sum of transfers in the last 48 hours", Category: "complex"},
		{ID: "complex_ordered", Query: "Show transaction types ordered by total amount descending", Category: "complex"},
		{ID: "complex_limit", Query: "Top 5 transaction types by count", Category: "complex"},
		{ID: "complex_full", Query: "Show fraudulent transaction counts by type, ordered by count, limit 10", Category: "complex"},

		// Edge cases
		{ID: "edge_verbose", Query: "I want to know the total sum of all the amounts for transactions that are of type TRANSFER", Category: "edge"},
		{ID: "edge_casual", Query: "give me fraud stats", Category: "edge"},
		{ID: "edge_multi_type", Query: "Count transfers and cash-outs combined", Category: "edge"},
	}
}

// EvaluateCase passes when the SQL parses, or when generation failed
// cleanly with no SQL at all. A parse failure is the one outcome that
// never passes.
func (e *GrammarValidityEval) EvaluateCase(_ context.Context, tc TestCase, generatedSQL, genErr string) EvalResult {
	if generatedSQL == "" {
		return EvalResult{
			CaseID:     tc.ID,
			Passed:     true,
			InputQuery: tc.Query,
			Expected:   "Valid SQL or clean failure",
			Actual:     "Clean failure (no SQL generated)",
			Error:      genErr,
			Details: map[string]any{
				"category": tc.Category,
				"failure":  FailureGeneration,
			},
		}
	}

	parseErr := e.validator.Validate(generatedSQL)
	if parseErr != nil {
		return EvalResult{
			CaseID:       tc.ID,
			Passed:       false,
			InputQuery:   tc.Query,
			GeneratedSQL: generatedSQL,
			Expected:     "Grammar-valid SQL",
			Actual:       "Parse error: " + parseErr.Error(),
			Error:        parseErr.Error(),
			Details: map[string]any{
				"category": tc.Category,
				"failure":  FailureParse,
			},
		}
	}

	return EvalResult{
		CaseID:       tc.ID,
		Passed:       true,
		InputQuery:   tc.Query,
		GeneratedSQL: generatedSQL,
		Expected:     "Grammar-valid SQL",
		Actual:       "Valid",
		Details: map[string]any{
			"category":      tc.Category,
			"parse_success": true,
		},
	}
}
