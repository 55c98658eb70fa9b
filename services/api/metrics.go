// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the query service.
type Metrics struct {
	QueriesTotal      *prometheus.CounterVec
	GenerationSeconds prometheus.Histogram
	ExecutionSeconds  prometheus.Histogram
	ValidationRejects prometheus.Counter
}

// NewMetrics registers the service instruments on the given
// registerer. Pass prometheus.DefaultRegisterer in production and a
// fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		QueriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sqlfence_queries_total",
			Help: "Query requests by outcome.",
		}, []string{"outcome"}),
		GenerationSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sqlfence_generation_duration_seconds",
			Help:    "Time spent generating SQL from natural language.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		ExecutionSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sqlfence_execution_duration_seconds",
			Help:    "Time spent executing SQL against ClickHouse.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		ValidationRejects: factory.NewCounter(prometheus.CounterOpts{
			Name: "sqlfence_validation_rejects_total",
			Help: "Generated SQL rejected by the grammar validator.",
		}),
	}
}
