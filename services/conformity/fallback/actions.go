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
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianConformity/services/conformity/analysis"
	"github.com/AleutianAI/AleutianConformity/services/conformity/analyzers"
)

// MaxRetryDelay caps the backoff between retry attempts.
const MaxRetryDelay = 30 * time.Second

// backoff returns the wait before attempt n (1-based).
func backoff(base time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= MaxRetryDelay {
			return MaxRetryDelay
		}
	}
	return min(d, MaxRetryDelay)
}

func (a RetryAction) run(ctx context.Context, s *System, c *call) (analysis.Result, bool, error) {
	if c.op.Run == nil {
		return analysis.Result{}, false, errors.New("operation is not retryable")
	}
	maxRetries, delay := a.MaxRetries, a.Delay
	if maxRetries <= 0 {
		maxRetries = s.options.MaxRetries
	}
	if delay <= 0 {
		delay = s.options.RetryDelay
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		timer := time.NewTimer(backoff(delay, attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return analysis.Result{}, false, ctx.Err()
		case <-timer.C:
		}

		recordRetryAttempt(ctx, c.op.Name)
		res, err := c.op.Run(ctx)
		if err == nil {
			s.logger.Debug("retry succeeded",
				slog.String("operation", c.op.Name),
				slog.Int("attempt", attempt))
			return res, true, nil
		}
		lastErr = err
	}
	return analysis.Result{}, false, fmt.Errorf("%d retries exhausted: %w", maxRetries, lastErr)
}

func (a BasicAnalyzerAction) run(_ context.Context, _ *System, c *call) (analysis.Result, bool, error) {
	kind := a.AnalyzerType
	if kind == "" {
		kind = analyzers.BasicGeneral
	}
	b, ok := analyzers.LookupBasic(kind)
	if !ok {
		return analysis.Result{}, false, fmt.Errorf("basic analyzer %q not found, known: %s", kind, strings.Join(analyzers.BasicKinds(), ", "))
	}
	return b.Analyze(c.in), true, nil
}

func (CachedResultAction) run(ctx context.Context, s *System, c *call) (analysis.Result, bool, error) {
	s.mu.RLock()
	lookup := s.lookup
	s.mu.RUnlock()
	if lookup == nil {
		return analysis.Result{}, false, nil
	}
	res, ok := lookup(ctx, c.op.Name, c.in)
	if !ok {
		return analysis.Result{}, false, nil
	}
	res.Degraded = true
	return res, true, nil
}

func (ReturnErrorAction) run(_ context.Context, _ *System, c *call) (analysis.Result, bool, error) {
	return ErrorResult(c.cause), true, nil
}

func (a CustomAction) run(ctx context.Context, s *System, c *call) (analysis.Result, bool, error) {
	s.mu.RLock()
	h, ok := s.handlers[a.Name]
	s.mu.RUnlock()
	if !ok {
		return analysis.Result{}, false, nil
	}
	return h(ctx, c.in, c.cause)
}

// ErrorResult is the low-confidence result describing cause.
func ErrorResult(cause error) analysis.Result {
	msg := "erro desconhecido"
	if cause != nil {
		msg = cause.Error()
	}
	return analysis.Result{
		Problems: []analysis.Finding{{
			Kind:         analysis.KindInconsistency,
			Description:  "Erro na análise: " + msg,
			Severity:     analysis.SeverityLow,
			Location:     "Sistema de análise",
			SuggestedFix: "Verificar configurações e tentar novamente",
			Category:     analysis.FindingFormal,
		}},
		Metrics:    map[string]any{},
		Score:      50,
		Confidence: 20,
		Degraded:   true,
	}
}
