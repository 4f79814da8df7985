// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("aleutian.conformity.orchestrator")

// Outcomes of an AnalyzeDocument call.
const (
	outcomeSuccess  = "success"
	outcomeCacheHit = "cache_hit"
	outcomeFallback = "fallback"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

var (
	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conformity_analyses_total",
		Help: "Document analyses by outcome",
	}, []string{"outcome"})

	analysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "conformity_analysis_duration_seconds",
		Help:    "End-to-end document analysis latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30},
	}, []string{"outcome"})

	activeAnalyses = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "conformity_active_analyses",
		Help: "Analyses currently in flight",
	})

	degradedCategories = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conformity_degraded_categories_total",
		Help: "Category results produced by a fallback path",
	}, []string{"category"})
)
