// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evals

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CombinedSummary is the run-level artifact aggregating every
// evaluator's summary.
type CombinedSummary struct {
	Timestamp string        `json:"timestamp"`
	RunID     string        `json:"run_id,omitempty"`
	Evals     []EvalSummary `json:"evals"`
	Overall   OverallTotals `json:"overall"`
}

// OverallTotals rolls the per-eval counters into run totals.
type OverallTotals struct {
	TotalCases  int     `json:"total_cases"`
	TotalPassed int     `json:"total_passed"`
	TotalFailed int     `json:"total_failed"`
	PassRate    float64 `json:"pass_rate"`
}

// Combine builds the run-level artifact from per-eval summaries.
func Combine(timestamp, runID string, summaries []EvalSummary) CombinedSummary {
	totals := OverallTotals{}
	for _, s := range summaries {
		totals.TotalCases += s.TotalCases
		totals.TotalPassed += s.Passed
		totals.TotalFailed += s.Failed
	}
	if totals.TotalCases > 0 {
		totals.PassRate = float64(totals.TotalPassed) / float64(totals.TotalCases)
	}
	return CombinedSummary{
		Timestamp: timestamp,
		RunID:     runID,
		Evals:     summaries,
		Overall:   totals,
	}
}

// Sink writes eval artifacts to a log directory. All artifacts from
// one run share a single timestamp key so they sort and group
// together on disk.
type Sink struct {
	dir       string
	timestamp string
}

// NewSink creates the log directory if needed and pins the run
// timestamp.
func NewSink(dir string) (*Sink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log dir %s: %w", dir, err)
	}
	return &Sink{
		dir:       dir,
		timestamp: time.Now().Format("20060102_150405"),
	}, nil
}

// Timestamp returns the run key shared by this sink's artifacts.
func (s *Sink) Timestamp() string { return s.timestamp }

// WriteSummary persists one evaluator's summary as
// {eval_name}_{timestamp}.json and returns the path.
func (s *Sink) WriteSummary(summary *EvalSummary) (string, error) {
	data, err := summary.ToJSON()
	if err != nil {
		return "", fmt.Errorf("marshaling %s summary: %w", summary.EvalName, err)
	}
	path := filepath.Join(s.dir, fmt.Sprintf("%s_%s.json", summary.EvalName, s.timestamp))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// WriteCombined persists the run-level artifact as
// eval_summary_{timestamp}.json and returns the path.
func (s *Sink) WriteCombined(combined CombinedSummary) (string, error) {
	data, err := json.MarshalIndent(combined, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling combined summary: %w", err)
	}
	path := filepath.Join(s.dir, fmt.Sprintf("eval_summary_%s.json", s.timestamp))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}
