// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardrail-labs/sqlfence/services/evals"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleCombined(passed, failed int) evals.CombinedSummary {
	return evals.Combine("20260830_120000", "r", []evals.EvalSummary{
		{EvalName: "grammar_validity", TotalCases: passed + failed, Passed: passed, Failed: failed},
	})
}

func TestStoreRecordAndGet(t *testing.T) {
	s := openTestStore(t)

	combined := sampleCombined(25, 0)
	require.NoError(t, s.Record("run-1", combined))

	rec, err := s.Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", rec.RunID)
	assert.NotEmpty(t, rec.StoredAt)
	assert.Equal(t, 25, rec.Combined.Overall.TotalPassed)
}

func TestStoreGet_Missing(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Get("never-recorded")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestStoreRecord_Overwrite(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Record("run-1", sampleCombined(10, 15)))
	require.NoError(t, s.Record("run-1", sampleCombined(25, 0)))

	rec, err := s.Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, 25, rec.Combined.Overall.TotalPassed)
}

func TestStoreList(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Record("run-1", sampleCombined(25, 0)))
	require.NoError(t, s.Record("run-2", sampleCombined(20, 5)))

	records, err := s.List()
	require.NoError(t, err)
	require.Len(t, records, 2)

	ids := []string{records[0].RunID, records[1].RunID}
	assert.ElementsMatch(t, []string{"run-1", "run-2"}, ids)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
}

func TestOpen_Persistent(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, s.Record("run-1", sampleCombined(5, 0)))
	require.NoError(t, s.Close())

	// Reopen and confirm the run survived.
	s2, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	defer s2.Close()

	rec, err := s2.Get("run-1")
	require.NoError(t, err)
	assert.Equal(t, 5, rec.Combined.Overall.TotalPassed)
}
