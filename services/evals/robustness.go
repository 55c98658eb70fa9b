// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evals

import (
	"context"
	"fmt"
	"strings"

	"github.com/guardrail-labs/sqlfence/services/grammar"
)

// RobustnessEval exercises the operational boundaries: requests the
// grammar cannot express (degradation) and grammar-expressible but
// risky requests (boundary). The system never has to answer a
// degradation request, but it must never answer it badly.
type RobustnessEval struct {
	validator *grammar.Validator
}

// NewRobustnessEval builds the evaluator around a shared validator.
func NewRobustnessEval(v *grammar.Validator) *RobustnessEval {
	return &RobustnessEval{validator: v}
}

func (e *RobustnessEval) Name() string { return "robustness" }

func (e *RobustnessEval) Description() string {
	return "Tests behavior at operational boundaries and edge cases"
}

func (e *RobustnessEval) TestCases() []TestCase {
	return []TestCase{
		// Part A: graceful degradation. Unsupported SQL features.
		{
			ID: "degrade_join", Query: "Show me transactions with customer details from the users table",
			TestType: TestDegradation, Category: "unsupported_feature",
			Reason: "JOINs not supported - single table only",
		},
		{
			ID: "degrade_subquery", Query: "Show me transactions where amount is above the average",
			TestType: TestDegradation, Category: "unsupported_feature",
			Reason: "Subqueries not in grammar",
		},
		{
			ID: "degrade_having", Query: "Show transaction types that have more than 1000000 transactions",
			TestType: TestDegradation, Category: "unsupported_feature",
			Reason: "HAVING clause not in grammar",
		},
		{
			ID: "degrade_window", Query: "Show running total of amounts over time",
			TestType: TestDegradation, Category: "unsupported_feature",
			Reason: "Window functions not supported",
		},
		{
			ID: "degrade_or", Query: "Find transactions that are either fraudulent OR above 1000000",
			TestType: TestDegradation, Category: "unsupported_feature",
			Reason: "OR conditions not in grammar - only AND",
		},
		{
			ID: "degrade_like", Query: "Find transactions from originators starting with 'C1'",
			TestType: TestDegradation, Category: "unsupported_feature",
			Reason: "LIKE patterns not supported",
		},

		// Unsupported functions
		{
			ID: "degrade_median", Query: "What is the median transaction amount?",
			TestType: TestDegradation, Category: "unsupported_function",
			Reason: "median() not available - only count/sum/avg/min/max",
		},
		{
			ID: "degrade_percentile", Query: "What is the 95th percentile of transaction amounts?",
			TestType: TestDegradation, Category: "unsupported_function",
			Reason: "Percentile functions not supported",
		},
		{
			ID: "degrade_distinct", Query: "How many unique originators are there?",
			TestType: TestDegradation, Category: "unsupported_function",
			Reason: "COUNT(DISTINCT) not in grammar",
		},

		// Column restrictions
		{
			ID: "degrade_select_originator", Query: "List all the originator IDs",
			TestType: TestDegradation, Category: "column_restriction",
			Reason: "nameOrig not selectable - blocked for privacy",
		},
		{
			ID: "degrade_select_star", Query: "Show me all columns for fraudulent transactions",
			TestType: TestDegradation, Category: "column_restriction",
			Reason: "SELECT * blocked - must specify columns",
		},

		// Part B: semantic boundaries. Ambiguous requests.
		{
			ID: "boundary_ambiguous_recent", Query: "Show me recent transactions",
			TestType: TestBoundary, Category: "ambiguous", Check: CheckTimeFilter,
			Risk: "'Recent' is ambiguous - no clear time threshold",
		},
		{
			ID: "boundary_ambiguous_large", Query: "Show me large transactions",
			TestType: TestBoundary, Category: "ambiguous", Check: CheckAmountFilter,
			Risk: "'Large' is subjective - no clear amount threshold",
		},
		{
			ID: "boundary_ambiguous_suspicious", Query: "Show me suspicious transactions",
			TestType: TestBoundary, Category: "ambiguous", Check: CheckInterpretation,
			Risk: "'Suspicious' undefined - fraud flag exists but is that what user means?",
		},

		// Resource concerns
		{
			ID: "boundary_no_limit", Query: "Show me all transaction counts by step",
			TestType: TestBoundary, Category: "resource", Check: CheckShouldLimit,
			Risk: "GROUP BY step returns 744 rows without LIMIT",
		},
		{
			ID: "boundary_multi_groupby", Query: "Show counts grouped by type, fraud status, and step",
			TestType: TestBoundary, Category: "resource", Check: CheckLimitedDimensions,
			Risk: "Multiple GROUP BY dimensions = large result set",
		},

		// Temporal edge cases
		{
			ID: "boundary_future_time", Query: "Show transactions after step 1000",
			TestType: TestBoundary, Category: "temporal_edge", Check: CheckEdgeTime,
			Risk: "Step 1000 doesn't exist (max is 744) - empty result expected",
		},
		{
			ID: "boundary_zero_time", Query: "Show transactions at step 0",
			TestType: TestBoundary, Category: "temporal_edge", Check: CheckEdgeTime,
			Risk: "Step 0 doesn't exist (starts at 1) - edge case",
		},

		// Business logic complexity
		{
			ID: "boundary_percentage", Query: "What percentage of transactions are fraudulent?",
			TestType: TestBoundary, Category: "business_logic", Check: CheckComplexAsk,
			Risk: "Percentage requires division - grammar only supports counts",
		},
		{
			ID: "boundary_comparison", Query: "Are transfers more likely to be fraudulent than payments?",
			TestType: TestBoundary, Category: "business_logic", Check: CheckComplexAsk,
			Risk: "Comparison requires multiple queries or careful interpretation",
		},

		// Pattern exposure
		{
			ID: "boundary_fraud_pattern", Query: "Which transaction types have the highest fraud rates?",
			TestType: TestBoundary, Category: "pattern_exposure", Check: CheckValidSQL,
			Risk: "Reveals fraud patterns - may be sensitive",
		},
		{
			ID: "boundary_high_value_fraud", Query: "Show the highest value fraudulent transactions",
			TestType: TestBoundary, Category: "pattern_exposure", Check: CheckValidSQL,
			Risk: "Could reveal attack patterns",
		},
	}
}

func (e *RobustnessEval) EvaluateCase(_ context.Context, tc TestCase, generatedSQL, genErr string) EvalResult {
	if tc.TestType == TestBoundary {
		return e.evaluateBoundary(tc, generatedSQL, genErr)
	}
	return e.evaluateDegradation(tc, generatedSQL, genErr)
}

// evaluateDegradation scores requests the grammar cannot express.
// Clean failure passes. A grammar-valid approximation also passes.
// Malformed SQL is the only failing outcome.
func (e *RobustnessEval) evaluateDegradation(tc TestCase, generatedSQL, genErr string) EvalResult {
	_ = genErr

	if strings.TrimSpace(generatedSQL) == "" {
		return EvalResult{
			CaseID:     tc.ID,
			Passed:     true,
			InputQuery: tc.Query,
			Expected:   "Graceful handling - " + tc.Reason,
			Actual:     "Clean failure (no SQL generated)",
			Details: map[string]any{
				"test_type": string(TestDegradation),
				"category":  tc.Category,
				"outcome":   "clean_failure",
			},
		}
	}

	if parseErr := e.validator.Validate(generatedSQL); parseErr != nil {
		return EvalResult{
			CaseID:       tc.ID,
			Passed:       false,
			InputQuery:   tc.Query,
			GeneratedSQL: generatedSQL,
			Expected:     "Either no SQL or valid SQL",
			Actual:       "Malformed SQL generated",
			Error:        parseErr.Error(),
			Details: map[string]any{
				"test_type": string(TestDegradation),
				"category":  tc.Category,
				"outcome":   "malformed",
				"failure":   FailureParse,
			},
		}
	}

	return EvalResult{
		CaseID:       tc.ID,
		Passed:       true,
		InputQuery:   tc.Query,
		GeneratedSQL: generatedSQL,
		Expected:     "Graceful handling - " + tc.Reason,
		Actual:       "Valid approximation generated",
		Details: map[string]any{
			"test_type": string(TestDegradation),
			"category":  tc.Category,
			"outcome":   "valid_approximation",
		},
	}
}

// evaluateBoundary scores grammar-expressible but risky requests.
// These questions are answerable, so valid SQL passes; the per-case
// diagnostic check is annotation only and never affects the verdict.
// Rejection is acceptable only for business_logic cases.
func (e *RobustnessEval) evaluateBoundary(tc TestCase, generatedSQL, genErr string) EvalResult {
	_ = genErr

	if strings.TrimSpace(generatedSQL) == "" {
		acceptable := tc.Category == "business_logic"
		actual := "No SQL generated"
		if acceptable {
			actual += " (acceptable)"
		}
		return EvalResult{
			CaseID:     tc.ID,
			Passed:     acceptable,
			InputQuery: tc.Query,
			Expected:   "Handle: " + tc.Risk,
			Actual:     actual,
			Details: map[string]any{
				"test_type": string(TestBoundary),
				"category":  tc.Category,
				"outcome":   "rejected",
			},
		}
	}

	if e.validator.Validate(generatedSQL) != nil {
		return EvalResult{
			CaseID:       tc.ID,
			Passed:       false,
			InputQuery:   tc.Query,
			GeneratedSQL: generatedSQL,
			Expected:     "Valid SQL for boundary case",
			Actual:       "Invalid SQL generated",
			Details: map[string]any{
				"test_type": string(TestBoundary),
				"category":  tc.Category,
				"failure":   FailureParse,
			},
		}
	}

	check := runBoundaryCheck(tc.Check, generatedSQL)
	details := map[string]any{
		"test_type": string(TestBoundary),
		"category":  tc.Category,
		"risk":      tc.Risk,
	}
	mergeDetails(details, check)

	return EvalResult{
		CaseID:       tc.ID,
		Passed:       true,
		InputQuery:   tc.Query,
		GeneratedSQL: generatedSQL,
		Expected:     "Handle: " + tc.Risk,
		Actual:       check["message"].(string),
		Details:      details,
	}
}

// runBoundaryCheck produces the non-blocking diagnostic annotation
// for a boundary case.
func runBoundaryCheck(check BoundaryCheck, sql string) map[string]any {
	sqlUpper := strings.ToUpper(sql)
	hasCompare := func() bool {
		for _, op := range []string{">=", "<=", ">", "<", "BETWEEN"} {
			if strings.Contains(sqlUpper, op) {
				return true
			}
		}
		return false
	}

	switch check {
	case CheckTimeFilter:
		has := strings.Contains(sqlUpper, "STEP") && hasCompare()
		msg := "No explicit time filter (noted)"
		if has {
			msg = "Has time filter"
		}
		return map[string]any{"message": msg, "has_filter": has}

	case CheckAmountFilter:
		has := strings.Contains(sqlUpper, "AMOUNT") && hasCompare()
		msg := "No explicit amount filter (noted)"
		if has {
			msg = "Has amount filter"
		}
		return map[string]any{"message": msg, "has_filter": has}

	case CheckShouldLimit:
		has := strings.Contains(sqlUpper, "LIMIT")
		msg := "No LIMIT (acceptable)"
		if has {
			msg = "Has LIMIT"
		}
		return map[string]any{"message": msg, "has_limit": has}

	case CheckLimitedDimensions:
		dims := 0
		if _, rest, ok := strings.Cut(sqlUpper, "GROUP BY"); ok {
			rest, _, _ = strings.Cut(rest, "ORDER")
			rest, _, _ = strings.Cut(rest, "LIMIT")
			dims = strings.Count(rest, ",") + 1
		}
		return map[string]any{
			"message":    fmt.Sprintf("%d GROUP BY dimension(s)", dims),
			"dimensions": dims,
		}

	default:
		return map[string]any{"message": "Generated valid SQL"}
	}
}
