// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package evals treats the SQL generator as an untrusted black box and
// judges its behavior through four independent evaluators: grammar
// validity, semantic correctness, safety guardrails, and robustness.
//
// Every evaluator is a pure capability over fixed, versioned test
// cases: anything implementing TestCases and EvaluateCase can be
// driven by Run. Per-case failures are data inside an EvalResult;
// nothing raises past the case boundary.
package evals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// -----------------------------------------------------------------------------
// Errors and failure taxonomy
// -----------------------------------------------------------------------------

var (
	// ErrInvalidCase is returned when a test case is missing the
	// payload its discriminant requires.
	ErrInvalidCase = errors.New("invalid test case")

	// ErrUnreachable is returned by startup probes when the generator
	// collaborator cannot be reached. The only failure allowed to be
	// fatal for a whole run.
	ErrUnreachable = errors.New("generator collaborator unreachable")
)

// Failure kinds recorded under Details["failure"]. They classify why a
// case did not pass without ever interrupting the suite.
const (
	FailureGeneration  = "generation_failed"
	FailureParse       = "parse_failure"
	FailureSafety      = "safety_violation"
	FailureExecution   = "execution_failure"
	FailureComparison  = "comparison_mismatch"
	FailureStructural  = "structural_mismatch"
	FailureEnvironment = "environment_failure"
)

// -----------------------------------------------------------------------------
// Test cases (tagged variants)
// -----------------------------------------------------------------------------

// Verification selects the semantic-correctness mode for a case.
type Verification string

const (
	// VerificationIntent checks the SQL text for expected semantic
	// elements without executing it.
	VerificationIntent Verification = "intent"
	// VerificationExecution runs golden and generated SQL against the
	// data store and compares results.
	VerificationExecution Verification = "execution"
)

// TestType selects the robustness family for a case.
type TestType string

const (
	// TestDegradation marks requests the grammar cannot express.
	TestDegradation TestType = "degradation"
	// TestBoundary marks grammar-expressible but risky requests.
	TestBoundary TestType = "boundary"
)

// Comparison selects how execution results are compared to golden.
type Comparison string

const (
	CompareExact     Comparison = "exact"
	CompareRowCount  Comparison = "row_count"
	CompareTolerance Comparison = "tolerance"
)

// BoundaryCheck names a non-blocking diagnostic applied to boundary
// cases. Checks annotate Details and never affect pass/fail.
type BoundaryCheck string

const (
	CheckTimeFilter        BoundaryCheck = "has_time_filter"
	CheckAmountFilter      BoundaryCheck = "has_amount_filter"
	CheckShouldLimit       BoundaryCheck = "should_have_limit"
	CheckLimitedDimensions BoundaryCheck = "limited_dimensions"
	CheckValidSQL          BoundaryCheck = "generates_valid_sql"
	CheckInterpretation    BoundaryCheck = "reasonable_interpretation"
	CheckEdgeTime          BoundaryCheck = "handles_edge_time"
	CheckComplexAsk        BoundaryCheck = "handles_complex_ask"
)

// FilterExpectation describes one expected WHERE filter for intent
// verification. Value and Values are optional refinements; when set,
// the literal(s) must appear in the SQL alongside the column.
type FilterExpectation struct {
	Column   string   `json:"column"`
	Operator string   `json:"operator,omitempty"`
	Value    string   `json:"value,omitempty"`
	Values   []string `json:"values,omitempty"`
}

// IntentExpectation lists the semantic elements intent verification
// requires in the generated SQL.
type IntentExpectation struct {
	Metric  string              `json:"metric,omitempty"`
	Table   string              `json:"table,omitempty"`
	Columns []string            `json:"columns,omitempty"`
	Filters []FilterExpectation `json:"filters,omitempty"`
	GroupBy []string            `json:"group_by,omitempty"`
}

// GoldenExpectation carries the hand-authored reference query and the
// comparison mode for execution verification.
type GoldenExpectation struct {
	SQL        string     `json:"golden_sql"`
	Comparison Comparison `json:"comparison"`
	// Tolerance is the relative-difference bound for CompareTolerance.
	// Zero means the 0.01 default.
	Tolerance float64 `json:"tolerance,omitempty"`
	// ExpectedRows overrides the golden-derived row count for
	// CompareRowCount when non-nil.
	ExpectedRows *int `json:"expected_rows,omitempty"`
}

// TestCase is a tagged variant: the common fields plus exactly the
// payload its owning evaluator's discriminant requires. Cases are
// static, versioned fixtures with evaluator-unique IDs; they are never
// generated at runtime.
type TestCase struct {
	ID       string `json:"id"`
	Query    string `json:"query"`
	Category string `json:"category,omitempty"`

	// Semantic-correctness payloads, keyed by Verification.
	Verification Verification       `json:"verification,omitempty"`
	Intent       *IntentExpectation `json:"expected_elements,omitempty"`
	Golden       *GoldenExpectation `json:"golden,omitempty"`

	// Safety payload.
	Attack string `json:"attack_type,omitempty"`

	// Robustness payloads, keyed by TestType.
	TestType TestType      `json:"test_type,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Risk     string        `json:"risk,omitempty"`
	Check    BoundaryCheck `json:"check,omitempty"`
}

// Validate rejects a case whose discriminant-required payload is
// missing. Called by Run before the generator is invoked.
func (tc *TestCase) Validate() error {
	if tc.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidCase)
	}
	switch tc.Verification {
	case VerificationIntent:
		if tc.Intent == nil {
			return fmt.Errorf("%w: %s: intent cases need expected elements", ErrInvalidCase, tc.ID)
		}
	case VerificationExecution:
		if tc.Golden == nil || tc.Golden.SQL == "" {
			return fmt.Errorf("%w: %s: execution cases need golden SQL", ErrInvalidCase, tc.ID)
		}
		switch tc.Golden.Comparison {
		case CompareExact, CompareRowCount, CompareTolerance:
		default:
			return fmt.Errorf("%w: %s: unknown comparison %q", ErrInvalidCase, tc.ID, tc.Golden.Comparison)
		}
	case "":
	default:
		return fmt.Errorf("%w: %s: unknown verification %q", ErrInvalidCase, tc.ID, tc.Verification)
	}
	switch tc.TestType {
	case TestDegradation, TestBoundary, "":
	default:
		return fmt.Errorf("%w: %s: unknown test type %q", ErrInvalidCase, tc.ID, tc.TestType)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Results
// -----------------------------------------------------------------------------

// EvalResult is one immutable verdict, produced by exactly one
// evaluator for one case.
type EvalResult struct {
	CaseID       string         `json:"case_id"`
	Passed       bool           `json:"passed"`
	InputQuery   string         `json:"input_query"`
	GeneratedSQL string         `json:"generated_sql,omitempty"`
	Expected     any            `json:"expected"`
	Actual       any            `json:"actual"`
	Error        string         `json:"error,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
}

// EvalSummary aggregates an evaluator's ordered results. Created once
// per run, serialized to a log artifact, then discarded.
type EvalSummary struct {
	EvalName   string         `json:"eval_name"`
	Timestamp  string         `json:"timestamp"`
	TotalCases int            `json:"total_cases"`
	Passed     int            `json:"passed"`
	Failed     int            `json:"failed"`
	PassRate   float64        `json:"pass_rate"`
	Results    []EvalResult   `json:"results"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// ToJSON renders the summary as indented JSON for the log artifact.
func (s *EvalSummary) ToJSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// -----------------------------------------------------------------------------
// Eval contract
// -----------------------------------------------------------------------------

// GeneratorFunc is the generator collaborator contract: one question
// in, one candidate out. An empty SQL string means no SQL was
// produced; the error explains why. Implementations must capture
// transport failures in the error rather than panicking.
type GeneratorFunc func(ctx context.Context, question string) (sql string, err error)

// Evaluator is the two-operation capability the shared Run routine
// drives. Implementations must be deterministic: identical inputs to
// EvaluateCase always yield identical verdicts.
type Evaluator interface {
	// Name is a stable identifier used in log artifacts.
	Name() string

	// Description is a one-line summary recorded in run metadata.
	Description() string

	// TestCases returns the fixed, ordered fixture set. IDs are
	// unique within the evaluator.
	TestCases() []TestCase

	// EvaluateCase judges one (question, outcome) pair. generatedSQL
	// is empty when generation produced nothing; genErr carries the
	// generation failure, if any.
	EvaluateCase(ctx context.Context, tc TestCase, generatedSQL, genErr string) EvalResult
}

// Run drives one evaluator against a generator.
//
// Strictly sequential: one case at a time, in TestCases order, so the
// summary is stable and diffable. The generator call is the only
// blocking step; a panic inside it is converted into a per-case
// generation failure, never a crash. No retries: one failed attempt
// is scored as-is.
func Run(ctx context.Context, ev Evaluator, gen GeneratorFunc) EvalSummary {
	cases := ev.TestCases()
	results := make([]EvalResult, 0, len(cases))

	for i, tc := range cases {
		if err := tc.Validate(); err != nil {
			results = append(results, EvalResult{
				CaseID:     tc.ID,
				Passed:     false,
				InputQuery: tc.Query,
				Expected:   "well-formed test case",
				Actual:     err.Error(),
				Error:      err.Error(),
				Details:    map[string]any{"failure": FailureEnvironment},
			})
			continue
		}

		start := time.Now()
		sql, genErr := safeGenerate(ctx, gen, tc.Query)
		elapsed := time.Since(start)

		result := ev.EvaluateCase(ctx, tc, sql, genErr)
		results = append(results, result)

		slog.Info("Evaluated case",
			"eval", ev.Name(),
			"case", tc.ID,
			"progress", fmt.Sprintf("%d/%d", i+1, len(cases)),
			"passed", result.Passed,
			"elapsed", elapsed.Round(time.Millisecond))
	}

	passed := 0
	for _, r := range results {
		if r.Passed {
			passed++
		}
	}
	rate := 0.0
	if len(results) > 0 {
		rate = float64(passed) / float64(len(results))
	}

	return EvalSummary{
		EvalName:   ev.Name(),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		TotalCases: len(results),
		Passed:     passed,
		Failed:     len(results) - passed,
		PassRate:   rate,
		Results:    results,
		Metadata:   map[string]any{"description": ev.Description()},
	}
}

// safeGenerate invokes the generator, converting a panic into the
// error slot so no case can take down the suite.
func safeGenerate(ctx context.Context, gen GeneratorFunc, question string) (sql string, errStr string) {
	defer func() {
		if r := recover(); r != nil {
			sql = ""
			errStr = fmt.Sprintf("generator panic: %v", r)
		}
	}()
	s, err := gen(ctx, question)
	if err != nil {
		return "", err.Error()
	}
	return s, ""
}
