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
	"io"
	"reflect"
	"regexp"
	"strings"

	"github.com/guardrail-labs/sqlfence/services/store"
)

// defaultTolerance is the relative-difference bound used when a
// tolerance case does not set its own.
const defaultTolerance = 0.01

// SemanticCorrectnessEval judges whether generated SQL means what the
// user asked. Two verification modes: intent checks inspect the SQL
// text for expected semantic elements; execution checks run golden
// and generated SQL against the data store and compare results.
type SemanticCorrectnessEval struct {
	store store.Executor
}

// NewSemanticCorrectnessEval builds the evaluator around an executor.
// The executor is only touched by execution-mode cases, so intent-only
// analysis works without a reachable database.
func NewSemanticCorrectnessEval(exec store.Executor) *SemanticCorrectnessEval {
	return &SemanticCorrectnessEval{store: exec}
}

func (e *SemanticCorrectnessEval) Name() string { return "semantic_correctness" }

func (e *SemanticCorrectnessEval) Description() string {
	return "Tests if SQL captures user intent and returns correct data"
}

// Close releases the underlying store connection when it owns one.
func (e *SemanticCorrectnessEval) Close() error {
	if c, ok := e.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (e *SemanticCorrectnessEval) TestCases() []TestCase {
	rows5, rows2 := 5, 2
	return []TestCase{
		// Part A: intent fidelity. Metric extraction first.
		{
			ID: "intent_count_metric", Query: "How many transactions are there?",
			Verification: VerificationIntent, Category: "metric",
			Intent: &IntentExpectation{Metric: "count", Table: "Transactions"},
		},
		{
			ID: "intent_sum_metric", Query: "What is the total amount of all transactions?",
			Verification: VerificationIntent, Category: "metric",
			Intent: &IntentExpectation{Metric: "sum", Columns: []string{"amount"}, Table: "Transactions"},
		},
		{
			ID: "intent_avg_metric", Query: "What's the average transaction amount?",
			Verification: VerificationIntent, Category: "metric",
			Intent: &IntentExpectation{Metric: "avg", Columns: []string{"amount"}},
		},

		// Filter extraction
		{
			ID: "intent_fraud_filter", Query: "Show me fraudulent transactions",
			Verification: VerificationIntent, Category: "filter",
			Intent: &IntentExpectation{Filters: []FilterExpectation{{Column: "isFraud", Value: "1"}}},
		},
		{
			ID: "intent_type_filter", Query: "Count all TRANSFER type transactions",
			Verification: VerificationIntent, Category: "filter",
			Intent: &IntentExpectation{Metric: "count", Filters: []FilterExpectation{{Column: "type", Value: "TRANSFER"}}},
		},
		{
			ID: "intent_amount_filter", Query: "How many transactions are above 100000?",
			Verification: VerificationIntent, Category: "filter",
			Intent: &IntentExpectation{Metric: "count", Filters: []FilterExpectation{{Column: "amount", Operator: ">", Value: "100000"}}},
		},

		// Time-based
		{
			ID: "intent_time_range", Query: "Show transactions between step 100 and 200",
			Verification: VerificationIntent, Category: "time",
			Intent: &IntentExpectation{Filters: []FilterExpectation{{Column: "step", Operator: "between", Values: []string{"100", "200"}}}},
		},

		// Grouping
		{
			ID: "intent_group_by_type", Query: "Show transaction counts for each type",
			Verification: VerificationIntent, Category: "grouping",
			Intent: &IntentExpectation{Metric: "count", GroupBy: []string{"type"}},
		},
		{
			ID: "intent_group_by_fraud", Query: "Compare fraudulent vs non-fraudulent transaction counts",
			Verification: VerificationIntent, Category: "grouping",
			Intent: &IntentExpectation{Metric: "count", GroupBy: []string{"isFraud"}},
		},

		// Complex combinations
		{
			ID: "intent_complex_1", Query: "What's the average amount of fraudulent TRANSFER transactions?",
			Verification: VerificationIntent, Category: "complex",
			Intent: &IntentExpectation{
				Metric: "avg", Columns: []string{"amount"},
				Filters: []FilterExpectation{
					{Column: "isFraud", Value: "1"},
					{Column: "type", Value: "TRANSFER"},
				},
			},
		},
		{
			ID: "intent_complex_2", Query: "Count CASH-OUT transactions over 50000 grouped by fraud status",
			Verification: VerificationIntent, Category: "complex",
			Intent: &IntentExpectation{
				Metric: "count",
				Filters: []FilterExpectation{
					{Column: "type", Value: "CASH-OUT"},
					{Column: "amount", Operator: ">", Value: "50000"},
				},
				GroupBy: []string{"isFraud"},
			},
		},

		// Part B: execution correctness. Exact counts.
		{
			ID: "exec_count_all", Query: "How many transactions are there in total?",
			Verification: VerificationExecution, Category: "count",
			Golden: &GoldenExpectation{SQL: "SELECT count(*) FROM Transactions;", Comparison: CompareExact},
		},
		{
			ID: "exec_count_fraud", Query: "How many fraudulent transactions are there?",
			Verification: VerificationExecution, Category: "count",
			Golden: &GoldenExpectation{SQL: "SELECT count(*) FROM Transactions WHERE isFraud = 1;", Comparison: CompareExact},
		},
		{
			ID: "exec_count_transfers", Query: "How many transfer transactions are there?",
			Verification: VerificationExecution, Category: "count",
			Golden: &GoldenExpectation{SQL: "SELECT count(*) FROM Transactions WHERE type = 'TRANSFER';", Comparison: CompareExact},
		},
		{
			ID: "exec_count_cashout", Query: "How many cash-out transactions are there?",
			Verification: VerificationExecution, Category: "count",
			Golden: &GoldenExpectation{SQL: "SELECT count(*) FROM Transactions WHERE type = 'CASH-OUT';", Comparison: CompareExact},
		},

		// Aggregations with tolerance
		{
			ID: "exec_sum_all", Query: "What is the total sum of all transaction amounts?",
			Verification: VerificationExecution, Category: "aggregation",
			Golden: &GoldenExpectation{SQL: "SELECT sum(amount) FROM Transactions;", Comparison: CompareTolerance, Tolerance: 0.01},
		},
		{
			ID: "exec_avg_amount", Query: "What is the average transaction amount?",
			Verification: VerificationExecution, Category: "aggregation",
			Golden: &GoldenExpectation{SQL: "SELECT avg(amount) FROM Transactions;", Comparison: CompareTolerance, Tolerance: 0.01},
		},
		{
			ID: "exec_sum_fraud", Query: "What is the total amount of fraudulent transactions?",
			Verification: VerificationExecution, Category: "aggregation",
			Golden: &GoldenExpectation{SQL: "SELECT sum(amount) FROM Transactions WHERE isFraud = 1;", Comparison: CompareTolerance, Tolerance: 0.01},
		},

		// Row counts for grouped queries
		{
			ID: "exec_group_type", Query: "Show me the count of transactions for each type",
			Verification: VerificationExecution, Category: "grouped",
			Golden: &GoldenExpectation{SQL: "SELECT type, count(*) FROM Transactions GROUP BY type;", Comparison: CompareRowCount, ExpectedRows: &rows5},
		},
		{
			ID: "exec_group_fraud", Query: "Show me transaction counts grouped by fraud status",
			Verification: VerificationExecution, Category: "grouped",
			Golden: &GoldenExpectation{SQL: "SELECT isFraud, count(*) FROM Transactions GROUP BY isFraud;", Comparison: CompareRowCount, ExpectedRows: &rows2},
		},

		// Filtered counts
		{
			ID: "exec_fraud_transfers", Query: "How many fraudulent transfer transactions are there?",
			Verification: VerificationExecution, Category: "filtered",
			Golden: &GoldenExpectation{SQL: "SELECT count(*) FROM Transactions WHERE isFraud = 1 AND type = 'TRANSFER';", Comparison: CompareExact},
		},
		{
			ID: "exec_time_range", Query: "How many transactions between step 100 and 200?",
			Verification: VerificationExecution, Category: "filtered",
			Golden: &GoldenExpectation{SQL: "SELECT count(*) FROM Transactions WHERE step BETWEEN 100 AND 200;", Comparison: CompareExact},
		},
		{
			ID: "exec_high_value", Query: "How many transactions are above 1000000?",
			Verification: VerificationExecution, Category: "filtered",
			Golden: &GoldenExpectation{SQL: "SELECT count(*) FROM Transactions WHERE amount > 1000000;", Comparison: CompareExact},
		},
	}
}

func (e *SemanticCorrectnessEval) EvaluateCase(ctx context.Context, tc TestCase, generatedSQL, genErr string) EvalResult {
	if tc.Verification == VerificationExecution {
		return e.evaluateExecution(ctx, tc, generatedSQL, genErr)
	}
	return e.evaluateIntent(tc, generatedSQL, genErr)
}

// evaluateIntent checks the SQL text for the case's expected semantic
// elements. Every listed element must appear for a pass.
func (e *SemanticCorrectnessEval) evaluateIntent(tc TestCase, generatedSQL, genErr string) EvalResult {
	expected := tc.Intent

	if generatedSQL == "" {
		return EvalResult{
			CaseID:     tc.ID,
			Passed:     false,
			InputQuery: tc.Query,
			Expected:   expected,
			Actual:     "No SQL generated",
			Error:      genErr,
			Details:    map[string]any{"category": tc.Category, "failure": FailureGeneration},
		}
	}

	sqlUpper := strings.ToUpper(generatedSQL)
	checks := []string{}
	allPassed := true

	record := func(label string, found bool) {
		checks = append(checks, fmt.Sprintf("%s=%t", label, found))
		allPassed = allPassed && found
	}

	if expected.Metric != "" {
		metric := strings.ToUpper(expected.Metric)
		record("metric:"+metric, strings.Contains(sqlUpper, metric))
	}
	if expected.Table != "" {
		table := strings.ToUpper(expected.Table)
		record("table:"+table, strings.Contains(sqlUpper, table))
	}
	for _, col := range expected.Columns {
		record("col:"+col, strings.Contains(sqlUpper, strings.ToUpper(col)))
	}
	for _, f := range expected.Filters {
		col := strings.ToUpper(f.Column)
		found := strings.Contains(sqlUpper, col)
		if f.Value != "" {
			found = found && strings.Contains(sqlUpper, strings.ToUpper(f.Value))
		}
		for _, v := range f.Values {
			found = found && strings.Contains(sqlUpper, v)
		}
		record("filter:"+col, found)
	}
	for _, col := range expected.GroupBy {
		pattern := `GROUP\s+BY.*` + regexp.QuoteMeta(strings.ToUpper(col))
		record("groupby:"+col, regexp.MustCompile(pattern).MatchString(sqlUpper))
	}

	return EvalResult{
		CaseID:       tc.ID,
		Passed:       allPassed,
		InputQuery:   tc.Query,
		GeneratedSQL: generatedSQL,
		Expected:     expected,
		Actual:       strings.Join(checks, ", "),
		Details:      map[string]any{"checks": checks, "category": tc.Category},
	}
}

// evaluateExecution runs golden and generated SQL, then compares by
// the case's comparison mode. A golden-side failure is an environment
// failure: it indicts the harness, not the generator, but still fails
// the case so broken runs are never silently green.
func (e *SemanticCorrectnessEval) evaluateExecution(ctx context.Context, tc TestCase, generatedSQL, genErr string) EvalResult {
	golden := tc.Golden

	if generatedSQL == "" {
		return EvalResult{
			CaseID:     tc.ID,
			Passed:     false,
			InputQuery: tc.Query,
			Expected:   "Golden: " + golden.SQL,
			Actual:     "No SQL generated",
			Error:      genErr,
			Details:    map[string]any{"category": tc.Category, "failure": FailureGeneration},
		}
	}

	goldenResult := e.store.Execute(ctx, golden.SQL)
	if !goldenResult.Success {
		return EvalResult{
			CaseID:       tc.ID,
			Passed:       false,
			InputQuery:   tc.Query,
			GeneratedSQL: generatedSQL,
			Expected:     "Golden SQL should execute",
			Actual:       "Golden failed: " + goldenResult.Error,
			Error:        goldenResult.Error,
			Details:      map[string]any{"category": tc.Category, "failure": FailureEnvironment},
		}
	}

	genResult := e.store.Execute(ctx, generatedSQL)
	if !genResult.Success {
		return EvalResult{
			CaseID:       tc.ID,
			Passed:       false,
			InputQuery:   tc.Query,
			GeneratedSQL: generatedSQL,
			Expected:     "Generated SQL should execute",
			Actual:       "Execution failed: " + genResult.Error,
			Error:        genResult.Error,
			Details:      map[string]any{"category": tc.Category, "failure": FailureExecution},
		}
	}

	var passed bool
	details := map[string]any{"comparison": string(golden.Comparison), "category": tc.Category}

	switch golden.Comparison {
	case CompareExact:
		var cmp map[string]any
		passed, cmp = compareExact(goldenResult, genResult)
		mergeDetails(details, cmp)
	case CompareRowCount:
		expectedRows := goldenResult.RowCount
		if golden.ExpectedRows != nil {
			expectedRows = *golden.ExpectedRows
		}
		passed = genResult.RowCount == expectedRows
		details["expected_rows"] = expectedRows
		details["actual_rows"] = genResult.RowCount
	case CompareTolerance:
		tol := golden.Tolerance
		if tol == 0 {
			tol = defaultTolerance
		}
		var cmp map[string]any
		passed, cmp = compareTolerance(goldenResult, genResult, tol)
		mergeDetails(details, cmp)
	}
	if !passed {
		details["failure"] = FailureComparison
	}

	return EvalResult{
		CaseID:       tc.ID,
		Passed:       passed,
		InputQuery:   tc.Query,
		GeneratedSQL: generatedSQL,
		Expected:     map[string]any{"golden_sql": golden.SQL, "golden_data": goldenResult.Data},
		Actual:       map[string]any{"generated_data": genResult.Data},
		Details:      details,
	}
}

// compareExact matches single-row scalars by value with numeric
// coercion, and multi-row results structurally.
func compareExact(golden, generated store.QueryResult) (bool, map[string]any) {
	if len(golden.Data) != len(generated.Data) {
		return false, map[string]any{"reason": "row_count_mismatch", "failure": FailureStructural}
	}
	if len(golden.Data) == 1 {
		gVal := firstValue(golden)
		genVal := firstValue(generated)
		return scalarEqual(gVal, genVal), map[string]any{"golden": gVal, "generated": genVal}
	}
	match := reflect.DeepEqual(golden.Data, generated.Data)
	return match, map[string]any{"exact_match": match}
}

// compareTolerance requires a single-row scalar on each side and
// passes when the relative difference stays within the bound. A zero
// golden value demands an exactly zero generated value.
func compareTolerance(golden, generated store.QueryResult, tolerance float64) (bool, map[string]any) {
	if len(golden.Data) != 1 || len(generated.Data) != 1 {
		return false, map[string]any{"reason": "structure_mismatch", "failure": FailureStructural}
	}

	gVal, gOK := toFloat(firstValue(golden))
	genVal, genOK := toFloat(firstValue(generated))
	details := map[string]any{"golden": gVal, "generated": genVal, "tolerance": tolerance}
	if !gOK || !genOK {
		details["reason"] = "non_numeric_value"
		return false, details
	}

	if gVal == 0 {
		return genVal == 0, details
	}
	diff := (gVal - genVal) / gVal
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance, details
}

// firstValue extracts the first projected column of the first row.
// Column order comes from the result set, not map iteration.
func firstValue(r store.QueryResult) any {
	if len(r.Data) == 0 || len(r.Columns) == 0 {
		return nil
	}
	return r.Data[0][r.Columns[0]]
}

// scalarEqual compares two scalars, coercing numeric types so an
// int64 count and a uint64 count agree.
func scalarEqual(a, b any) bool {
	af, aOK := toFloat(a)
	bf, bOK := toFloat(b)
	if aOK && bOK {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func mergeDetails(dst map[string]any, src map[string]any) {
	for k, v := range src {
		dst[k] = v
	}
}
