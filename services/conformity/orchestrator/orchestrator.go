// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package orchestrator runs the four conformity analyzers over a document
// and merges their results into one verdict.
//
// Each Orchestrator owns its analyzer runtimes, result cache and fallback
// system; there is no package-level state besides Prometheus collectors.
//
// Thread Safety:
//
//	All methods are safe for concurrent use. No lock is held across an
//	analyzer run, a cache call or a fallback retry.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianConformity/services/conformity/analysis"
	"github.com/AleutianAI/AleutianConformity/services/conformity/analyzers"
	"github.com/AleutianAI/AleutianConformity/services/conformity/cache"
	"github.com/AleutianAI/AleutianConformity/services/conformity/fallback"
)

// pipelineOperation names the whole-document fallback operation.
const pipelineOperation = "pipeline"

// Orchestrator coordinates analyzers, the result cache and the fallback
// system.
type Orchestrator struct {
	cfgMu sync.RWMutex
	cfg   Config

	runtimes  [4]*analysis.Runtime
	cache     *cache.ResultCache
	ownsCache bool
	fallback  *fallback.System
	logger    *slog.Logger

	activeMu sync.Mutex
	active   map[string]struct{}
}

// New builds an Orchestrator.
//
// Description:
//
//	Analyzers default to the four rule-based analyzers, each wrapped in
//	its own Runtime. A result cache and a fallback system with the
//	embedded strategies are created unless supplied through options.
//	An owned cache runs its expiry sweep until Close.
//
// Inputs:
//
//	cfg - Orchestrator configuration. Must pass Validate.
//	opts - Optional overrides.
//
// Outputs:
//
//	*Orchestrator - Ready to analyze. Call Close when done.
//	error - Non-nil if cfg is invalid or the fallback system cannot start.
func New(cfg Config, opts ...Option) (*Orchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("orchestrator config: %w", err)
	}

	b := &builder{
		analyzers: make(map[analysis.Category]analysis.Analyzer),
		logger:    slog.Default(),
	}
	for _, a := range analyzers.All() {
		b.analyzers[a.Category()] = a
	}
	for _, opt := range opts {
		opt(b)
	}

	o := &Orchestrator{
		cfg:    cfg,
		cache:  b.cache,
		logger: b.logger.With(slog.String("component", "orchestrator")),
		active: make(map[string]struct{}),
	}

	runtimeOpts := []analysis.RuntimeOption{analysis.WithRuntimeLogger(b.logger)}
	if b.localCache > 0 {
		runtimeOpts = append(runtimeOpts, analysis.WithLocalCacheSize(b.localCache))
	}
	for _, c := range analysis.AllCategories() {
		a, ok := b.analyzers[c]
		if !ok {
			return nil, fmt.Errorf("%w: no analyzer for %s", analysis.ErrUnknownCategory, c)
		}
		o.runtimes[c] = analysis.NewRuntime(a, runtimeOpts...)
	}

	if o.cache == nil {
		o.cache = cache.New(cache.WithLogger(b.logger))
		o.ownsCache = true
		o.cache.StartCleanup()
	}

	o.fallback = b.fallback
	if o.fallback == nil {
		fb, err := fallback.New(fallback.WithLogger(b.logger))
		if err != nil {
			return nil, fmt.Errorf("create fallback system: %w", err)
		}
		o.fallback = fb
	}
	o.fallback.SetCachedLookup(o.cachedLookup)

	return o, nil
}

// Close stops the owned cache's background sweep.
func (o *Orchestrator) Close() error {
	if o.ownsCache {
		return o.cache.Close()
	}
	return nil
}

// AnalyzeDocument runs every analyzer over text and aggregates the results.
//
// Description:
//
//	Fails fast with analysis.ErrConcurrencyLimit when the in-flight
//	ceiling is reached. Otherwise the call is bounded by Config.Timeout,
//	served from the result cache when possible, and fans out to the four
//	runtimes. A failing category is recovered through the fallback system
//	or replaced by a degraded result; it never fails the call. Cache I/O
//	errors and an expired call deadline are pipeline failures, handled by
//	the fallback system when enabled.
//
// Inputs:
//
//	ctx - Parent context.
//	text - The document text.
//	classification - Selects the rule sets.
//	params - Analysis parameters. Part of the cache key.
//
// Outputs:
//
//	analysis.ComprehensiveResult - The verdict with all four categories.
//	error - ErrConcurrencyLimit, or an unresolved pipeline failure.
func (o *Orchestrator) AnalyzeDocument(
	ctx context.Context,
	text string,
	classification analysis.Classification,
	params map[string]any,
) (analysis.ComprehensiveResult, error) {
	start := time.Now()
	cfg := o.Config()

	id, err := o.register(cfg.MaxConcurrentAnalyses)
	if err != nil {
		analysesTotal.WithLabelValues(outcomeRejected).Inc()
		return analysis.ComprehensiveResult{}, err
	}
	defer o.unregister(id)

	ctx, span := tracer.Start(ctx, "Orchestrator.AnalyzeDocument")
	defer span.End()
	span.SetAttributes(
		attribute.String("analysis.id", id),
		attribute.String("document.type", string(classification.DocumentType)),
		attribute.Int("document.length", len(text)),
	)

	in := analysis.Input{
		Text:           text,
		Classification: classification,
		Parameters:     params,
		CacheEnabled:   cfg.EnableCache,
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	res, outcome, err := o.analyze(callCtx, id, in, cfg, start)
	if err != nil {
		span.RecordError(err)
		if !cfg.EnableFallback {
			o.observe(outcomeError, start)
			span.SetStatus(codes.Error, "analysis failed")
			return analysis.ComprehensiveResult{}, err
		}
		o.logger.Warn("pipeline failure, running fallback",
			slog.String("analysis_id", id),
			slog.String("error", err.Error()))
		res, err = o.pipelineFallback(ctx, id, in, err, start)
		if err != nil {
			o.observe(outcomeError, start)
			span.SetStatus(codes.Error, "pipeline fallback failed")
			return analysis.ComprehensiveResult{}, err
		}
		outcome = outcomeFallback
	}

	o.observe(outcome, start)
	span.SetAttributes(
		attribute.Float64("analysis.score", res.OverallScore),
		attribute.Bool("analysis.from_cache", res.FromCache),
	)
	return res, nil
}

func (o *Orchestrator) analyze(ctx context.Context, id string, in analysis.Input, cfg Config, start time.Time) (analysis.ComprehensiveResult, string, error) {
	cacheable := cfg.EnableCache
	key, err := cache.Key(in)
	if cacheable && err != nil {
		o.logger.Debug("result cache skipped",
			slog.String("analysis_id", id),
			slog.String("error", err.Error()))
		cacheable = false
	}

	if cacheable {
		snap, ok, err := o.cache.Get(ctx, in)
		if err != nil {
			return analysis.ComprehensiveResult{}, "", err
		}
		if ok {
			// A hit reports the processing time recorded when it was computed.
			res := comprehensive(id, snap.Aggregate, snap.Categories, snap.Aggregate.ProcessingTimeMs, o.cache.Stats(), analysis.FallbackStats{})
			res.FromCache = true
			return res, outcomeCacheHit, nil
		}
	}

	categories := o.runAll(ctx, in, cfg)
	if err := ctx.Err(); err != nil {
		return analysis.ComprehensiveResult{}, "", fmt.Errorf("analysis %s: %w", id, err)
	}

	agg := aggregate(categories)
	if cacheable && !categories.AnyDegraded() {
		agg.CacheKey = key
		if err := o.cache.Set(ctx, in, analysis.Snapshot{Aggregate: agg, Categories: categories}); err != nil {
			return analysis.ComprehensiveResult{}, "", err
		}
	}

	var cacheStats analysis.CacheStats
	if cfg.EnableCache {
		cacheStats = o.cache.Stats()
	}
	return comprehensive(id, agg, categories, time.Since(start).Milliseconds(), cacheStats, o.fallback.Stats()), outcomeSuccess, nil
}

// runAll runs the four runtimes and places results in category order.
func (o *Orchestrator) runAll(ctx context.Context, in analysis.Input, cfg Config) analysis.CategoryResults {
	var results [4]analysis.Result

	if cfg.ParallelAnalysis {
		g, gCtx := errgroup.WithContext(ctx)
		for _, c := range analysis.AllCategories() {
			g.Go(func() error {
				results[c] = o.runCategory(gCtx, c, in, cfg)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, c := range analysis.AllCategories() {
			results[c] = o.runCategory(ctx, c, in, cfg)
		}
	}

	var cr analysis.CategoryResults
	for _, c := range analysis.AllCategories() {
		cr.Set(c, results[c])
		if results[c].Degraded {
			degradedCategories.WithLabelValues(c.String()).Inc()
		}
	}
	return cr
}

// runCategory never fails: errors go to the fallback system and then to
// a degraded result.
func (o *Orchestrator) runCategory(ctx context.Context, c analysis.Category, in analysis.Input, cfg Config) analysis.Result {
	rt := o.runtimes[c]
	res, err := rt.Run(ctx, in)
	if err == nil {
		return res
	}

	if cfg.EnableFallback {
		op := fallback.Operation{
			Name: c.String(),
			Run: func(ctx context.Context) (analysis.Result, error) {
				return rt.Run(ctx, in)
			},
		}
		res, ferr := o.fallback.Execute(ctx, op, in, err)
		if ferr == nil {
			return res
		}
		err = ferr
	}

	o.logger.Warn("category analysis failed",
		slog.String("category", c.String()),
		slog.String("document", in.Summary()),
		slog.String("error", err.Error()))
	return degradedResult(c, err)
}

// pipelineFallback recovers a whole-document failure with the structural
// runtime and reports its outcome for every category.
func (o *Orchestrator) pipelineFallback(ctx context.Context, id string, in analysis.Input, cause error, start time.Time) (analysis.ComprehensiveResult, error) {
	in.CacheEnabled = false
	rt := o.runtimes[analysis.CategoryStructural]
	op := fallback.Operation{
		Name: pipelineOperation,
		Run: func(ctx context.Context) (analysis.Result, error) {
			return rt.Run(ctx, in)
		},
	}

	res, err := o.fallback.Execute(ctx, op, in, cause)
	if err != nil {
		return analysis.ComprehensiveResult{}, fmt.Errorf("analysis %s: %w", id, err)
	}

	var cr analysis.CategoryResults
	for _, c := range analysis.AllCategories() {
		cr.Set(c, res.Clone())
	}
	return comprehensive(id, aggregate(cr), cr, time.Since(start).Milliseconds(), analysis.CacheStats{}, o.fallback.Stats()), nil
}

// cachedLookup backs the fallback system's use_cached_result action.
func (o *Orchestrator) cachedLookup(ctx context.Context, operation string, in analysis.Input) (analysis.Result, bool) {
	snap, ok, err := o.cache.Get(ctx, in)
	if err != nil || !ok {
		return analysis.Result{}, false
	}
	if c, err := analysis.ParseCategory(operation); err == nil {
		return snap.Categories.Get(c), true
	}
	return snap.Aggregate, true
}

func (o *Orchestrator) observe(outcome string, start time.Time) {
	analysesTotal.WithLabelValues(outcome).Inc()
	analysisDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// =============================================================================
// AGGREGATION
// =============================================================================

// aggregate merges category results: findings are concatenated, metrics
// merged in category order, score is the mean minus two points per finding.
func aggregate(cr analysis.CategoryResults) analysis.Result {
	results := cr.Ordered()
	out := analysis.Result{Metrics: make(map[string]any)}

	var score, confidence float64
	for _, r := range results {
		out.Problems = append(out.Problems, r.Problems...)
		maps.Copy(out.Metrics, r.Metrics)
		score += r.Score
		confidence += r.Confidence
		out.ProcessingTimeMs += r.ProcessingTimeMs
	}

	n := float64(len(results))
	out.Score = analysis.ClampScore(score/n - 2*float64(len(out.Problems)))
	out.Confidence = analysis.ClampScore(confidence / n)
	out.Degraded = cr.AnyDegraded()
	return out
}

// degradedResult stands in for a category whose analyzer and fallback
// both failed.
func degradedResult(c analysis.Category, err error) analysis.Result {
	return analysis.Result{
		Problems: []analysis.Finding{{
			Kind:         analysis.KindInconsistency,
			Description:  fmt.Sprintf("Análise %s falhou: %v", c, err),
			Severity:     analysis.SeverityLow,
			Location:     "Analisador " + c.String(),
			SuggestedFix: "Verificar configurações do analisador",
			Category:     analysis.FindingFormal,
		}},
		Metrics: map[string]any{
			"totalClauses":    0,
			"validClauses":    0,
			"missingClauses":  0,
			"inconsistencies": 1,
		},
		Score:      50,
		Confidence: 20,
		Degraded:   true,
	}
}

func comprehensive(
	id string,
	agg analysis.Result,
	cr analysis.CategoryResults,
	totalMs int64,
	cacheStats analysis.CacheStats,
	fallbackStats analysis.FallbackStats,
) analysis.ComprehensiveResult {
	return analysis.ComprehensiveResult{
		AnalysisID:          id,
		OverallScore:        agg.Score,
		OverallConfidence:   agg.Confidence,
		TotalProcessingTime: totalMs,
		Problems:            agg.Problems,
		Metrics:             agg.Metrics,
		CategoryResults:     cr,
		CacheStats:          cacheStats,
		FallbackStats:       fallbackStats,
	}
}

// =============================================================================
// IN-FLIGHT TRACKING
// =============================================================================

func (o *Orchestrator) register(limit int) (string, error) {
	o.activeMu.Lock()
	defer o.activeMu.Unlock()
	if len(o.active) >= limit {
		return "", fmt.Errorf("%w: %d analyses in flight", analysis.ErrConcurrencyLimit, len(o.active))
	}
	id := uuid.NewString()
	o.active[id] = struct{}{}
	activeAnalyses.Inc()
	return id, nil
}

func (o *Orchestrator) unregister(id string) {
	o.activeMu.Lock()
	defer o.activeMu.Unlock()
	if _, ok := o.active[id]; ok {
		delete(o.active, id)
		activeAnalyses.Dec()
	}
}

// ActiveAnalysesCount returns the number of analyses in flight.
func (o *Orchestrator) ActiveAnalysesCount() int {
	o.activeMu.Lock()
	defer o.activeMu.Unlock()
	return len(o.active)
}

// =============================================================================
// SINGLE-CATEGORY ANALYSIS
// =============================================================================

// AnalyzeCategory runs one runtime only. It bypasses the result cache,
// the concurrency ceiling and the fallback system.
func (o *Orchestrator) AnalyzeCategory(
	ctx context.Context,
	c analysis.Category,
	text string,
	classification analysis.Classification,
	params map[string]any,
) (analysis.Result, error) {
	if c < analysis.CategoryStructural || c > analysis.CategoryFormatting {
		return analysis.Result{}, fmt.Errorf("%w: %d", analysis.ErrUnknownCategory, int(c))
	}
	in := analysis.Input{
		Text:           text,
		Classification: classification,
		Parameters:     params,
		CacheEnabled:   o.Config().EnableCache,
	}
	return o.runtimes[c].Run(ctx, in)
}

// AnalyzeStructural runs the structural analyzer only.
func (o *Orchestrator) AnalyzeStructural(ctx context.Context, text string, classification analysis.Classification, params map[string]any) (analysis.Result, error) {
	return o.AnalyzeCategory(ctx, analysis.CategoryStructural, text, classification, params)
}

// AnalyzeLegal runs the legal analyzer only.
func (o *Orchestrator) AnalyzeLegal(ctx context.Context, text string, classification analysis.Classification, params map[string]any) (analysis.Result, error) {
	return o.AnalyzeCategory(ctx, analysis.CategoryLegal, text, classification, params)
}

// AnalyzeClarity runs the clarity analyzer only.
func (o *Orchestrator) AnalyzeClarity(ctx context.Context, text string, classification analysis.Classification, params map[string]any) (analysis.Result, error) {
	return o.AnalyzeCategory(ctx, analysis.CategoryClarity, text, classification, params)
}

// AnalyzeAbnt runs the ABNT formatting analyzer only.
func (o *Orchestrator) AnalyzeAbnt(ctx context.Context, text string, classification analysis.Classification, params map[string]any) (analysis.Result, error) {
	return o.AnalyzeCategory(ctx, analysis.CategoryFormatting, text, classification, params)
}

// =============================================================================
// MANAGEMENT
// =============================================================================

// InvalidateCache removes entries whose parameters contain params. With
// no params it clears every cache and returns 0.
func (o *Orchestrator) InvalidateCache(ctx context.Context, params map[string]any) (int, error) {
	o.clearLocalCaches()
	if len(params) > 0 {
		return o.cache.InvalidateByParameters(ctx, params)
	}
	if err := o.cache.Clear(ctx); err != nil {
		return 0, err
	}
	return 0, nil
}

// InvalidateCacheByClassification removes entries for a classification.
func (o *Orchestrator) InvalidateCacheByClassification(ctx context.Context, c analysis.Classification) (int, error) {
	o.clearLocalCaches()
	return o.cache.InvalidateByClassification(ctx, c)
}

// InvalidateCacheByText removes entries for documents similar to text.
func (o *Orchestrator) InvalidateCacheByText(ctx context.Context, text string, threshold float64) (int, error) {
	o.clearLocalCaches()
	return o.cache.InvalidateByTextSimilarity(ctx, text, threshold)
}

// clearLocalCaches runs on every invalidation. Runtime caches are keyed
// per analyzer and cannot be matched against aggregate entries, so a
// document whose aggregate was removed would otherwise be served from them.
func (o *Orchestrator) clearLocalCaches() {
	for _, rt := range o.runtimes {
		rt.ClearCache()
	}
}

// CacheMetrics returns the result cache counters.
func (o *Orchestrator) CacheMetrics() cache.Metrics {
	return o.cache.Metrics()
}

// FallbackMetrics returns the fallback counters.
func (o *Orchestrator) FallbackMetrics() fallback.Metrics {
	return o.fallback.Metrics()
}

// FallbackLogs returns the newest fallback log entries.
func (o *Orchestrator) FallbackLogs(limit int) []fallback.LogEntry {
	return o.fallback.Logs(limit)
}

// ClearFallbackLogs empties the fallback log.
func (o *Orchestrator) ClearFallbackLogs() {
	o.fallback.ClearLogs()
}

// ResetFallbackErrors forgets the failure counts that gate fallback
// strategies, e.g. after the cause of an incident has been fixed.
func (o *Orchestrator) ResetFallbackErrors() {
	o.fallback.ResetErrorCounts()
}

// Fallback exposes the fallback system, e.g. to install new strategies.
func (o *Orchestrator) Fallback() *fallback.System {
	return o.fallback
}

// AnalyzerHealthStatus returns each runtime's health keyed by category name.
func (o *Orchestrator) AnalyzerHealthStatus() map[string]analysis.HealthStatus {
	out := make(map[string]analysis.HealthStatus, len(o.runtimes))
	for _, c := range analysis.AllCategories() {
		out[c.String()] = o.runtimes[c].Health()
	}
	return out
}

// Config returns the current configuration.
func (o *Orchestrator) Config() Config {
	o.cfgMu.RLock()
	defer o.cfgMu.RUnlock()
	return o.cfg
}

// UpdateConfig applies p. Analyses already running keep the configuration
// they started with.
func (o *Orchestrator) UpdateConfig(p Patch) error {
	o.cfgMu.Lock()
	defer o.cfgMu.Unlock()

	next := p.Apply(o.cfg)
	if err := next.Validate(); err != nil {
		return errors.Join(analysis.ErrValidation, err)
	}
	o.cfg = next
	o.logger.Info("orchestrator config updated",
		slog.Bool("enable_cache", next.EnableCache),
		slog.Bool("enable_fallback", next.EnableFallback),
		slog.Bool("parallel", next.ParallelAnalysis),
		slog.Int("max_concurrent", next.MaxConcurrentAnalyses),
		slog.Duration("timeout", next.Timeout))
	return nil
}
