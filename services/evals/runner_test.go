// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evals

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	assert.Equal(t, ClassPass, Classify(1.0))
	assert.Equal(t, ClassWarn, Classify(0.95))
	assert.Equal(t, ClassWarn, Classify(0.8))
	assert.Equal(t, ClassFail, Classify(0.79))
	assert.Equal(t, ClassFail, Classify(0.0))
}

func TestAllPassed(t *testing.T) {
	assert.False(t, AllPassed(nil))
	assert.True(t, AllPassed([]EvalSummary{{PassRate: 1.0}, {PassRate: 1.0}}))
	assert.False(t, AllPassed([]EvalSummary{{PassRate: 1.0}, {PassRate: 0.96}}),
		"WARN band must still fail the run")
}

type recordingSink struct {
	runID    string
	combined CombinedSummary
}

func (r *recordingSink) Record(runID string, combined CombinedSummary) error {
	r.runID = runID
	r.combined = combined
	return nil
}

func TestRunnerRunAll(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewSink(dir)
	require.NoError(t, err)

	evA := &stubEvaluator{name: "alpha", cases: []TestCase{{ID: "a1", Query: "one"}}}
	evB := &stubEvaluator{name: "beta", cases: []TestCase{{ID: "b1", Query: "two"}, {ID: "b2", Query: "three"}}}
	gen := func(_ context.Context, q string) (string, error) {
		if q == "three" {
			return "", nil // clean none; stub scores it failed
		}
		return "SELECT count(*) FROM Transactions;", nil
	}

	var out bytes.Buffer
	recorder := &recordingSink{}
	runner := NewRunner([]Evaluator{evA, evB}, gen,
		WithOutput(&out), WithSink(sink), WithRecorder(recorder))

	summaries, err := runner.RunAll(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	assert.Equal(t, "alpha", summaries[0].EvalName)
	assert.Equal(t, "beta", summaries[1].EvalName)
	assert.Equal(t, 1.0, summaries[0].PassRate)
	assert.Equal(t, 0.5, summaries[1].PassRate)
	assert.False(t, AllPassed(summaries))

	// Report carries both classifications and the overall line.
	report := out.String()
	assert.Contains(t, report, "[PASS] alpha")
	assert.Contains(t, report, "[FAIL] beta")
	assert.Contains(t, report, "OVERALL: 2/3 cases passed")
	assert.Contains(t, report, "b2: three")

	// Per-eval artifacts plus the combined artifact, all keyed by
	// the sink's timestamp.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	combinedPath := filepath.Join(dir, "eval_summary_"+sink.Timestamp()+".json")
	data, err := os.ReadFile(combinedPath)
	require.NoError(t, err)

	var combined CombinedSummary
	require.NoError(t, json.Unmarshal(data, &combined))
	assert.Equal(t, 3, combined.Overall.TotalCases)
	assert.Equal(t, 2, combined.Overall.TotalPassed)
	assert.Equal(t, 1, combined.Overall.TotalFailed)
	assert.InDelta(t, 2.0/3.0, combined.Overall.PassRate, 1e-9)

	// History recording received the same run.
	assert.Equal(t, runner.RunID(), recorder.runID)
	assert.Equal(t, combined.Overall, recorder.combined.Overall)
}

func TestRunnerWithoutSink(t *testing.T) {
	ev := &stubEvaluator{name: "alpha", cases: []TestCase{{ID: "a1", Query: "one"}}}
	gen := func(_ context.Context, _ string) (string, error) {
		return "SELECT count(*) FROM Transactions;", nil
	}

	var out bytes.Buffer
	runner := NewRunner([]Evaluator{ev}, gen, WithOutput(&out))

	summaries, err := runner.RunAll(context.Background())
	require.NoError(t, err)
	assert.True(t, AllPassed(summaries))
	assert.NotContains(t, out.String(), "Saved:")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 40))
	assert.Equal(t, "aaaa...", truncate("aaaaaaaa", 4))
}
