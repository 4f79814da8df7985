// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package analysis

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for analyzer runs.
var (
	tracer = otel.Tracer("aleutian.conformity.analysis")
	meter  = otel.Meter("aleutian.conformity.analysis")
)

var (
	runsTotal      metric.Int64Counter
	failuresTotal  metric.Int64Counter
	localCacheHits metric.Int64Counter
	runLatency     metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		runsTotal, err = meter.Int64Counter(
			"conformity_analyzer_runs_total",
			metric.WithDescription("Total analyzer runs by category"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		failuresTotal, err = meter.Int64Counter(
			"conformity_analyzer_failures_total",
			metric.WithDescription("Total analyzer failures by category and reason"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		localCacheHits, err = meter.Int64Counter(
			"conformity_analyzer_cache_hits_total",
			metric.WithDescription("Total per-analyzer cache hits"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		runLatency, err = meter.Float64Histogram(
			"conformity_analyzer_duration_seconds",
			metric.WithDescription("Duration of successful analyzer runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordRun(ctx context.Context, category Category, d time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("category", category.String()))
	runsTotal.Add(ctx, 1, attrs)
	runLatency.Record(ctx, d.Seconds(), attrs)
}

func recordFailure(ctx context.Context, category Category, reason string) {
	if err := initMetrics(); err != nil {
		return
	}
	failuresTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("category", category.String()),
		attribute.String("reason", reason),
	))
}

func recordLocalCacheHit(ctx context.Context, category Category) {
	if err := initMetrics(); err != nil {
		return
	}
	localCacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("category", category.String())))
}

// startRunSpan creates a span for one wrapped analyzer call.
func startRunSpan(ctx context.Context, cfg AnalyzerConfig, in Input) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Runtime.Run",
		trace.WithAttributes(
			attribute.String("analyzer.name", cfg.Name),
			attribute.String("analyzer.version", cfg.Version),
			attribute.String("document.type", string(in.Classification.DocumentType)),
			attribute.Int("document.length", len(in.Text)),
		),
	)
}
