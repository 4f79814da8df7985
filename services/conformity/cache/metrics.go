// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for cache operations.
var (
	tracer = otel.Tracer("aleutian.conformity.cache")
	meter  = otel.Meter("aleutian.conformity.cache")
)

var (
	cacheHits          metric.Int64Counter
	cacheMisses        metric.Int64Counter
	cacheEvictions     metric.Int64Counter
	cacheInvalidations metric.Int64Counter
	cacheGetLatency    metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		cacheHits, err = meter.Int64Counter(
			"conformity_cache_hits_total",
			metric.WithDescription("Total number of result cache hits"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheMisses, err = meter.Int64Counter(
			"conformity_cache_misses_total",
			metric.WithDescription("Total number of result cache misses"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheEvictions, err = meter.Int64Counter(
			"conformity_cache_evictions_total",
			metric.WithDescription("Total number of result cache evictions"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheInvalidations, err = meter.Int64Counter(
			"conformity_cache_invalidations_total",
			metric.WithDescription("Entries removed by invalidation, by selector"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		cacheGetLatency, err = meter.Float64Histogram(
			"conformity_cache_get_duration_seconds",
			metric.WithDescription("Duration of result cache lookups"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordCacheGet(ctx context.Context, d time.Duration, hit bool, tier string) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("tier", tier))
	if hit {
		cacheHits.Add(ctx, 1, attrs)
	} else {
		cacheMisses.Add(ctx, 1)
	}
	cacheGetLatency.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.Bool("hit", hit)))
}

func recordCacheEviction(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	cacheEvictions.Add(ctx, 1)
}

func recordInvalidation(ctx context.Context, selector string, n int) {
	if err := initMetrics(); err != nil || n == 0 {
		return
	}
	cacheInvalidations.Add(ctx, int64(n), metric.WithAttributes(attribute.String("selector", selector)))
}

// startCacheSpan creates a span for a cache operation.
func startCacheSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "ResultCache."+operation,
		trace.WithAttributes(attribute.String("cache.operation", operation)),
	)
}
