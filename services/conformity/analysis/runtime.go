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
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	// HealthErrorThreshold is the error count at which a runtime turns unhealthy.
	HealthErrorThreshold = 5

	// DefaultLocalCacheSize bounds the per-analyzer result cache.
	DefaultLocalCacheSize = 100

	// defaultTimeout applies when an analyzer declares no timeout.
	defaultTimeout = 30 * time.Second
)

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithLocalCacheSize bounds the per-analyzer cache. Values below 1 are ignored.
func WithLocalCacheSize(n int) RuntimeOption {
	return func(r *Runtime) {
		if n > 0 {
			r.cacheSize = n
		}
	}
}

// WithRuntimeLogger sets the logger. Nil is ignored.
func WithRuntimeLogger(logger *slog.Logger) RuntimeOption {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Runtime wraps an Analyzer with validation, caching, timeout enforcement,
// error accounting and fallback synthesis.
//
// Description:
//
//	Run implements the wrapper algorithm:
//	  1. cache hit (when Input.CacheEnabled) returns the stored result
//	  2. validation failure is a failure
//	  3. Analyze is raced against the analyzer timeout; success is
//	     stamped, cached (oldest entry evicted first) and resets errors
//	  4. a failure increments the error count and returns the analyzer's
//	     FallbackResult when fallback is enabled, the error otherwise
//
// Thread Safety:
//
//	Safe for concurrent use. No lock is held while Analyze runs.
type Runtime struct {
	analyzer  Analyzer
	cfg       AnalyzerConfig
	logger    *slog.Logger
	cacheSize int

	mu         sync.Mutex
	cache      map[string]Result
	order      []string
	errorCount int
	lastError  string
}

// NewRuntime wraps analyzer.
func NewRuntime(analyzer Analyzer, opts ...RuntimeOption) *Runtime {
	cfg := analyzer.Config()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	r := &Runtime{
		analyzer:  analyzer,
		cfg:       cfg,
		logger:    slog.Default(),
		cacheSize: DefaultLocalCacheSize,
		cache:     make(map[string]Result),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(slog.String("component", "analyzer"), slog.String("analyzer", cfg.Name))
	return r
}

// Category returns the wrapped analyzer's category.
func (r *Runtime) Category() Category {
	return r.analyzer.Category()
}

// Config returns the wrapped analyzer's configuration.
func (r *Runtime) Config() AnalyzerConfig {
	return r.cfg
}

// Run executes the wrapped analyzer.
//
// Inputs:
//
//	ctx - Parent context. The analyzer timeout is applied beneath it.
//	in - The analysis input.
//
// Outputs:
//
//	Result - The analyzer result, a cached result or the fallback result.
//	error - Non-nil only when the analyzer failed and fallback is disabled.
func (r *Runtime) Run(ctx context.Context, in Input) (Result, error) {
	ctx, span := startRunSpan(ctx, r.cfg, in)
	defer span.End()

	key := r.analyzer.CacheKey(in)

	if in.CacheEnabled {
		if cached, ok := r.lookup(key); ok {
			span.SetAttributes(attribute.Bool("cache.hit", true))
			recordLocalCacheHit(ctx, r.Category())
			cached.CacheKey = key
			return cached, nil
		}
	}

	result, err := r.execute(ctx, in)
	if err == nil {
		result.CacheKey = key
		r.store(key, result)
		r.resetErrors()
		return result.Clone(), nil
	}

	r.recordError(err)
	recordFailure(ctx, r.Category(), ErrorType(err))
	span.RecordError(err)
	span.SetStatus(codes.Error, "analyzer failed")

	if !r.cfg.FallbackEnabled {
		return Result{}, fmt.Errorf("%s: %w", r.cfg.Name, err)
	}

	r.logger.Warn("analyzer failed, using fallback result",
		slog.String("document", in.Summary()),
		slog.String("error", err.Error()))

	fb := r.analyzer.FallbackResult(in, err)
	fb.Degraded = true
	fb.CacheKey = key
	fb.Score = ClampScore(fb.Score)
	fb.Confidence = ClampScore(fb.Confidence)
	return fb, nil
}

// execute validates the input and runs Analyze under the timeout race.
func (r *Runtime) execute(ctx context.Context, in Input) (Result, error) {
	if !r.cfg.Enabled {
		return Result{}, ErrAnalyzerDisabled
	}
	if err := r.analyzer.ValidateInput(in); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	type outcome struct {
		result Result
		err    error
	}
	done := make(chan outcome, 1)
	start := time.Now()

	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("%w: %v", ErrAnalyzerPanic, p)}
			}
		}()
		res, err := r.analyzer.Analyze(runCtx, in)
		done <- outcome{result: res, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			if errors.Is(o.err, context.DeadlineExceeded) {
				return Result{}, fmt.Errorf("%w after %s: %v", ErrAnalyzerTimeout, r.cfg.Timeout, o.err)
			}
			return Result{}, o.err
		}
		elapsed := time.Since(start)
		recordRun(ctx, r.Category(), elapsed)
		res := o.result
		res.Elapsed(elapsed)
		res.Score = ClampScore(res.Score)
		res.Confidence = ClampScore(res.Confidence)
		return res, nil

	case <-runCtx.Done():
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("%w after %s", ErrAnalyzerTimeout, r.cfg.Timeout)
		}
		return Result{}, runCtx.Err()
	}
}

// Health derives the runtime's health from its error counter.
func (r *Runtime) Health() HealthStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return HealthStatus{
		Healthy:       r.errorCount < HealthErrorThreshold,
		ErrorCount:    r.errorCount,
		LastError:     r.lastError,
		CachedResults: len(r.cache),
	}
}

// ClearCache drops every locally cached result.
func (r *Runtime) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]Result)
	r.order = nil
}

func (r *Runtime) lookup(key string) (Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.cache[key]
	if !ok {
		return Result{}, false
	}
	return res.Clone(), true
}

func (r *Runtime) store(key string, res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.cache[key]; !exists {
		r.order = append(r.order, key)
	}
	r.cache[key] = res.Clone()
	for len(r.order) > r.cacheSize {
		oldest := r.order[0]
		r.order = r.order[1:]
		delete(r.cache, oldest)
	}
}

func (r *Runtime) recordError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorCount++
	r.lastError = err.Error()
}

func (r *Runtime) resetErrors() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorCount = 0
}

// ErrorType names the failure class of err. It is the value matched by
// error_type fallback conditions and the key of fallback reason metrics.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrAnalyzerTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrAnalyzerPanic):
		return "panic"
	case errors.Is(err, ErrAnalyzerDisabled):
		return "disabled"
	case errors.Is(err, ErrCacheUnavailable):
		return "cache"
	case errors.Is(err, ErrConcurrencyLimit):
		return "concurrency"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "unknown"
	}
}
