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
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
)

// Classification is the per-eval verdict band shown in reports.
// PASS demands perfection; WARN flags anything at or above 80%;
// everything else is FAIL. Run success (exit status) requires PASS
// across the board, so WARN is a report annotation, not a pardon.
type Classification string

const (
	ClassPass Classification = "PASS"
	ClassWarn Classification = "WARN"
	ClassFail Classification = "FAIL"
)

// Classify maps a pass rate to its report band.
func Classify(passRate float64) Classification {
	switch {
	case passRate == 1.0:
		return ClassPass
	case passRate >= 0.8:
		return ClassWarn
	default:
		return ClassFail
	}
}

// RunRecorder persists combined run summaries. Satisfied by the
// history store; nil disables recording.
type RunRecorder interface {
	Record(runID string, combined CombinedSummary) error
}

// Runner drives the full evaluator suite sequentially against one
// generator, renders the report, and persists artifacts.
type Runner struct {
	evals    []Evaluator
	gen      GeneratorFunc
	sink     *Sink
	recorder RunRecorder
	out      io.Writer
	runID    string
}

// RunnerOption customizes a Runner.
type RunnerOption func(*Runner)

// WithOutput redirects report rendering, primarily for tests.
func WithOutput(w io.Writer) RunnerOption {
	return func(r *Runner) { r.out = w }
}

// WithSink enables JSON artifact persistence.
func WithSink(s *Sink) RunnerOption {
	return func(r *Runner) { r.sink = s }
}

// WithRecorder enables run-history recording.
func WithRecorder(rec RunRecorder) RunnerOption {
	return func(r *Runner) { r.recorder = rec }
}

// NewRunner wires the suite in its fixed order. The order is part of
// the report contract: grammar validity first, then semantic
// correctness, safety guardrails, robustness.
func NewRunner(evals []Evaluator, gen GeneratorFunc, opts ...RunnerOption) *Runner {
	r := &Runner{
		evals: evals,
		gen:   gen,
		out:   os.Stdout,
		runID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunID returns this runner's unique run identifier.
func (r *Runner) RunID() string { return r.runID }

// RunAll executes every evaluator in order, renders the summary
// report, and persists artifacts through the sink and recorder when
// configured. Per-case failures never abort the run; only artifact
// persistence can error.
func (r *Runner) RunAll(ctx context.Context) ([]EvalSummary, error) {
	summaries := make([]EvalSummary, 0, len(r.evals))

	for _, ev := range r.evals {
		fmt.Fprintf(r.out, "\n%s\n", strings.Repeat("=", 60))
		fmt.Fprintf(r.out, "Running: %s (%d cases)\n", ev.Name(), len(ev.TestCases()))
		fmt.Fprintf(r.out, "%s\n\n", strings.Repeat("=", 60))

		slog.Info("Starting eval", "eval", ev.Name(), "run_id", r.runID)
		summary := Run(ctx, ev, r.gen)
		summaries = append(summaries, summary)

		fmt.Fprintf(r.out, "\n  -> %d/%d passed (%.0f%%)\n",
			summary.Passed, summary.TotalCases, summary.PassRate*100)
	}

	r.renderSummary(summaries)

	if r.sink != nil {
		for i := range summaries {
			path, err := r.sink.WriteSummary(&summaries[i])
			if err != nil {
				return summaries, err
			}
			fmt.Fprintf(r.out, "  Saved: %s\n", path)
		}
		combined := Combine(r.sink.Timestamp(), r.runID, summaries)
		path, err := r.sink.WriteCombined(combined)
		if err != nil {
			return summaries, err
		}
		fmt.Fprintf(r.out, "  Saved: %s\n", path)

		if r.recorder != nil {
			if err := r.recorder.Record(r.runID, combined); err != nil {
				return summaries, fmt.Errorf("recording run history: %w", err)
			}
		}
	}

	return summaries, nil
}

// AllPassed reports whether every evaluator scored a perfect rate.
// This is the run's exit-status criterion.
func AllPassed(summaries []EvalSummary) bool {
	for _, s := range summaries {
		if s.PassRate != 1.0 {
			return false
		}
	}
	return len(summaries) > 0
}

// renderSummary writes the human-readable report: one classified
// block per evaluator, failing case IDs (first five), and overall
// totals.
func (r *Runner) renderSummary(summaries []EvalSummary) {
	line := strings.Repeat("=", 70)
	fmt.Fprintf(r.out, "\n%s\n", line)
	fmt.Fprintf(r.out, "%sEVAL RESULTS SUMMARY\n", strings.Repeat(" ", 25))
	fmt.Fprintf(r.out, "%s\n\n", line)

	totalCases, totalPassed := 0, 0
	for _, s := range summaries {
		totalCases += s.TotalCases
		totalPassed += s.Passed

		fmt.Fprintf(r.out, "  [%s] %-24s %6.1f%%  (%d/%d cases)\n",
			Classify(s.PassRate), s.EvalName, s.PassRate*100, s.Passed, s.TotalCases)

		failures := []EvalResult{}
		for _, res := range s.Results {
			if !res.Passed {
				failures = append(failures, res)
			}
		}
		if len(failures) > 0 {
			fmt.Fprintf(r.out, "    Failed cases:\n")
			shown := failures
			if len(shown) > 5 {
				shown = shown[:5]
			}
			for _, f := range shown {
				fmt.Fprintf(r.out, "      x %s: %s\n", f.CaseID, truncate(f.InputQuery, 40))
				if f.Error != "" {
					fmt.Fprintf(r.out, "        Error: %s\n", truncate(f.Error, 60))
				}
			}
			if len(failures) > 5 {
				fmt.Fprintf(r.out, "      ... and %d more failures\n", len(failures)-5)
			}
		}
		fmt.Fprintln(r.out)
	}

	overallRate := 0.0
	if totalCases > 0 {
		overallRate = float64(totalPassed) / float64(totalCases)
	}
	fmt.Fprintf(r.out, "%s\n", line)
	fmt.Fprintf(r.out, "  OVERALL: %d/%d cases passed (%.1f%%)\n", totalPassed, totalCases, overallRate*100)
	fmt.Fprintf(r.out, "%s\n\n", line)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
