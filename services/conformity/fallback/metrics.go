// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fallback

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("aleutian.conformity.fallback")
	meter  = otel.Meter("aleutian.conformity.fallback")
)

var (
	fallbackExecutions metric.Int64Counter
	fallbackDuration   metric.Float64Histogram
	retryAttempts      metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		fallbackExecutions, err = meter.Int64Counter(
			"conformity_fallback_executions_total",
			metric.WithDescription("Fallback executions by operation, strategy and outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		fallbackDuration, err = meter.Float64Histogram(
			"conformity_fallback_duration_seconds",
			metric.WithDescription("Time from failure to fallback resolution"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		retryAttempts, err = meter.Int64Counter(
			"conformity_fallback_retry_attempts_total",
			metric.WithDescription("Operation re-runs made by retry actions"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordExecution(ctx context.Context, operation, strategy string, success bool, d time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	outcome := string(OutcomeFailure)
	if success {
		outcome = string(OutcomeSuccess)
	}
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("strategy", strategy),
		attribute.String("outcome", outcome),
	)
	fallbackExecutions.Add(ctx, 1, attrs)
	fallbackDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("outcome", outcome)))
}

func recordRetryAttempt(ctx context.Context, operation string) {
	if err := initMetrics(); err != nil {
		return
	}
	retryAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", operation)))
}

func startExecuteSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "FallbackSystem.Execute",
		trace.WithAttributes(attribute.String("fallback.operation", operation)),
	)
}
