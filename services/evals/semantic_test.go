// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evals

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardrail-labs/sqlfence/services/store"
)

// fakeExecutor maps SQL strings to canned results.
type fakeExecutor struct {
	results map[string]store.QueryResult
	closed  bool
}

func (f *fakeExecutor) Execute(_ context.Context, sql string) store.QueryResult {
	if r, ok := f.results[sql]; ok {
		return r
	}
	return store.QueryResult{Success: false, Error: "unexpected SQL: " + sql}
}

func (f *fakeExecutor) Close() error {
	f.closed = true
	return nil
}

func scalarResult(column string, value any) store.QueryResult {
	return store.QueryResult{
		Success:  true,
		Data:     []store.Row{{column: value}},
		Columns:  []string{column},
		RowCount: 1,
	}
}

func TestSemanticCorrectness_Fixtures(t *testing.T) {
	ev := NewSemanticCorrectnessEval(&fakeExecutor{})
	cases := ev.TestCases()

	require.Len(t, cases, 23)

	intent, exec := 0, 0
	for _, tc := range cases {
		require.NoError(t, tc.Validate(), "case %s", tc.ID)
		switch tc.Verification {
		case VerificationIntent:
			intent++
		case VerificationExecution:
			exec++
		}
	}
	assert.Equal(t, 11, intent)
	assert.Equal(t, 12, exec)
}

func TestSemanticIntent_AllElementsPresent(t *testing.T) {
	ev := NewSemanticCorrectnessEval(&fakeExecutor{})
	tc := TestCase{
		ID: "intent_complex_2", Query: "Count CASH-OUT transactions over 50000 grouped by fraud status",
		Verification: VerificationIntent,
		Intent: &IntentExpectation{
			Metric: "count",
			Filters: []FilterExpectation{
				{Column: "type", Value: "CASH-OUT"},
				{Column: "amount", Operator: ">", Value: "50000"},
			},
			GroupBy: []string{"isFraud"},
		},
	}

	sql := "SELECT isFraud, count(*) FROM Transactions WHERE type = 'CASH-OUT' AND amount > 50000 GROUP BY isFraud;"
	res := ev.EvaluateCase(context.Background(), tc, sql, "")

	assert.True(t, res.Passed, "actual: %v", res.Actual)
}

func TestSemanticIntent_MissingElementFails(t *testing.T) {
	ev := NewSemanticCorrectnessEval(&fakeExecutor{})
	tc := TestCase{
		ID: "intent_fraud_filter", Query: "Show me fraudulent transactions",
		Verification: VerificationIntent,
		Intent:       &IntentExpectation{Filters: []FilterExpectation{{Column: "isFraud", Value: "1"}}},
	}

	res := ev.EvaluateCase(context.Background(), tc, "SELECT count(*) FROM Transactions;", "")

	assert.False(t, res.Passed)
	assert.Contains(t, res.Details["checks"], "filter:ISFRAUD=false")
}

func TestSemanticIntent_GroupByNeedsKeyword(t *testing.T) {
	ev := NewSemanticCorrectnessEval(&fakeExecutor{})
	tc := TestCase{
		ID: "intent_group_by_type", Query: "Show transaction counts for each type",
		Verification: VerificationIntent,
		Intent:       &IntentExpectation{Metric: "count", GroupBy: []string{"type"}},
	}

	// "type" appears in the select list but there is no GROUP BY.
	res := ev.EvaluateCase(context.Background(), tc, "SELECT type, count(*) FROM Transactions;", "")
	assert.False(t, res.Passed)

	res = ev.EvaluateCase(context.Background(), tc, "SELECT type, count(*) FROM Transactions GROUP BY type;", "")
	assert.True(t, res.Passed)
}

func TestSemanticIntent_NoSQLFails(t *testing.T) {
	ev := NewSemanticCorrectnessEval(&fakeExecutor{})
	tc := TestCase{
		ID: "intent_count_metric", Query: "How many transactions are there?",
		Verification: VerificationIntent,
		Intent:       &IntentExpectation{Metric: "count", Table: "Transactions"},
	}

	res := ev.EvaluateCase(context.Background(), tc, "", "model declined")

	assert.False(t, res.Passed)
	assert.Equal(t, FailureGeneration, res.Details["failure"])
}

func TestSemanticExecution_ExactScalarMatch(t *testing.T) {
	golden := "SELECT count(*) FROM Transactions;"
	gen := "SELECT count(*) FROM Transactions;"
	fake := &fakeExecutor{results: map[string]store.QueryResult{
		golden: scalarResult("count()", uint64(6362620)),
	}}
	ev := NewSemanticCorrectnessEval(fake)
	tc := TestCase{
		ID: "exec_count_all", Query: "How many transactions are there in total?",
		Verification: VerificationExecution,
		Golden:       &GoldenExpectation{SQL: golden, Comparison: CompareExact},
	}

	res := ev.EvaluateCase(context.Background(), tc, gen, "")
	assert.True(t, res.Passed)
}

func TestSemanticExecution_NumericCoercion(t *testing.T) {
	// Same count surfaced as different integer widths must still match.
	fake := &fakeExecutor{results: map[string]store.QueryResult{
		"golden": scalarResult("count()", uint64(8213)),
		"gen":    scalarResult("count(*)", int64(8213)),
	}}
	ok, details := compareExact(fake.results["golden"], fake.results["gen"])
	assert.True(t, ok, "details: %v", details)
}

func TestSemanticExecution_RowCount(t *testing.T) {
	rows5 := 5
	golden := "SELECT type, count(*) FROM Transactions GROUP BY type;"
	gen := "SELECT type, count(*) FROM Transactions GROUP BY type ORDER BY type;"
	groupResult := store.QueryResult{
		Success: true,
		Data: []store.Row{
			{"type": "CASH-IN"}, {"type": "CASH-OUT"}, {"type": "DEBIT"},
			{"type": "PAYMENT"}, {"type": "TRANSFER"},
		},
		Columns:  []string{"type"},
		RowCount: 5,
	}
	fake := &fakeExecutor{results: map[string]store.QueryResult{golden: groupResult, gen: groupResult}}
	ev := NewSemanticCorrectnessEval(fake)
	tc := TestCase{
		ID: "exec_group_type", Query: "Show me the count of transactions for each type",
		Verification: VerificationExecution,
		Golden:       &GoldenExpectation{SQL: golden, Comparison: CompareRowCount, ExpectedRows: &rows5},
	}

	res := ev.EvaluateCase(context.Background(), tc, gen, "")
	assert.True(t, res.Passed)
	assert.Equal(t, 5, res.Details["expected_rows"])
}

func TestSemanticExecution_ToleranceComparison(t *testing.T) {
	tests := []struct {
		name   string
		golden float64
		gen    float64
		want   bool
	}{
		{"inside bound", 1000000.0, 1000005.0, true},
		{"outside bound", 1000000.0, 1200000.0, false},
		{"zero golden zero gen", 0, 0, true},
		{"zero golden nonzero gen", 0, 5, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, _ := compareTolerance(
				scalarResult("sum(amount)", tt.golden),
				scalarResult("sum(amount)", tt.gen),
				0.01)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestSemanticExecution_GoldenFailureIsEnvironment(t *testing.T) {
	fake := &fakeExecutor{results: map[string]store.QueryResult{}}
	ev := NewSemanticCorrectnessEval(fake)
	tc := TestCase{
		ID: "exec_count_all", Query: "How many transactions are there in total?",
		Verification: VerificationExecution,
		Golden:       &GoldenExpectation{SQL: "SELECT count(*) FROM Transactions;", Comparison: CompareExact},
	}

	res := ev.EvaluateCase(context.Background(), tc, "SELECT count(*) FROM Transactions;", "")

	assert.False(t, res.Passed)
	assert.Equal(t, FailureEnvironment, res.Details["failure"])
}

func TestSemanticExecution_GeneratedFailureIsExecution(t *testing.T) {
	golden := "SELECT count(*) FROM Transactions;"
	fake := &fakeExecutor{results: map[string]store.QueryResult{
		golden: scalarResult("count()", uint64(10)),
	}}
	ev := NewSemanticCorrectnessEval(fake)
	tc := TestCase{
		ID: "exec_count_all", Query: "How many transactions are there in total?",
		Verification: VerificationExecution,
		Golden:       &GoldenExpectation{SQL: golden, Comparison: CompareExact},
	}

	res := ev.EvaluateCase(context.Background(), tc, "SELECT count(*) FROM Nowhere;", "")

	assert.False(t, res.Passed)
	assert.Equal(t, FailureExecution, res.Details["failure"])
}

func TestSemanticCorrectness_Close(t *testing.T) {
	fake := &fakeExecutor{}
	ev := NewSemanticCorrectnessEval(fake)

	require.NoError(t, ev.Close())
	assert.True(t, fake.closed)
}
