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
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianConformity/services/conformity/analysis"
	"github.com/AleutianAI/AleutianConformity/services/conformity/cache"
	"github.com/AleutianAI/AleutianConformity/services/conformity/fallback"
)

var errBoom = errors.New("analyzer exploded")

// fakeAnalyzer is a configurable analyzer for orchestration tests.
type fakeAnalyzer struct {
	category analysis.Category
	cfg      analysis.AnalyzerConfig
	score    float64
	err      error
	delay    time.Duration
	block    chan struct{}
	calls    atomic.Int32
}

func newFake(c analysis.Category, score float64) *fakeAnalyzer {
	return &fakeAnalyzer{
		category: c,
		score:    score,
		cfg: analysis.AnalyzerConfig{
			Name:            c.String(),
			Version:         "test",
			Enabled:         true,
			Priority:        int(c) + 1,
			Timeout:         5 * time.Second,
			FallbackEnabled: true,
		},
	}
}

func (f *fakeAnalyzer) Category() analysis.Category       { return f.category }
func (f *fakeAnalyzer) Config() analysis.AnalyzerConfig   { return f.cfg }
func (f *fakeAnalyzer) CacheKey(in analysis.Input) string { return f.category.String() + "_" + analysis.Fingerprint(in.Text) }

func (f *fakeAnalyzer) ValidateInput(in analysis.Input) error {
	if in.Text == "" {
		return errors.New("empty text")
	}
	return nil
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, _ analysis.Input) (analysis.Result, error) {
	f.calls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return analysis.Result{}, ctx.Err()
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return analysis.Result{}, ctx.Err()
		}
	}
	if f.err != nil {
		return analysis.Result{}, f.err
	}
	return analysis.Result{
		Score:      f.score,
		Confidence: 80,
		Metrics:    map[string]any{f.category.String() + "Checked": true},
	}, nil
}

func (f *fakeAnalyzer) FallbackResult(_ analysis.Input, cause error) analysis.Result {
	return analysis.Result{
		Problems:   []analysis.Finding{{Description: "fallback: " + cause.Error(), Severity: analysis.SeverityLow}},
		Score:      40,
		Confidence: 10,
	}
}

type fakes [4]*fakeAnalyzer

func newFakes() fakes {
	return fakes{
		newFake(analysis.CategoryStructural, 90),
		newFake(analysis.CategoryLegal, 80),
		newFake(analysis.CategoryClarity, 70),
		newFake(analysis.CategoryFormatting, 60),
	}
}

func (fs fakes) options() []Option {
	opts := make([]Option, 0, len(fs))
	for _, f := range fs {
		opts = append(opts, WithAnalyzer(f.category, f))
	}
	return opts
}

func basicFirst(t *testing.T) *fallback.System {
	t.Helper()
	fb, err := fallback.New(fallback.WithStrategies([]fallback.Strategy{{
		Name: "basic", Priority: 1, Enabled: true,
		Actions: []fallback.Action{fallback.BasicAnalyzerAction{AnalyzerType: "general"}},
	}}))
	require.NoError(t, err)
	return fb
}

func newTestOrchestrator(t *testing.T, cfg Config, opts ...Option) *Orchestrator {
	t.Helper()
	o, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = o.Close() })
	return o
}

var edital = analysis.Classification{DocumentType: analysis.DocEdital, Modality: analysis.ModalityBidding}

// failingStore is a cache.Store whose every call fails.
type failingStore struct{}

var errDisk = errors.New("disk unavailable")

func (failingStore) Get(context.Context, string) (*cache.Entry, bool, error) { return nil, false, errDisk }
func (failingStore) Put(context.Context, *cache.Entry, time.Duration) error  { return errDisk }
func (failingStore) Delete(context.Context, ...string) error                 { return errDisk }
func (failingStore) Scan(context.Context, func(*cache.Entry) bool) error     { return errDisk }
func (failingStore) Clear(context.Context) error                             { return errDisk }

// ---- Construction Tests ----

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrentAnalyses = 0
	_, err := New(cfg)
	assert.Error(t, err)
}

// ---- AnalyzeDocument Tests ----

func TestAnalyzeDocument_AggregatesInCategoryOrder(t *testing.T) {
	for _, parallel := range []bool{true, false} {
		t.Run(map[bool]string{true: "parallel", false: "sequential"}[parallel], func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.ParallelAnalysis = parallel
			fs := newFakes()
			o := newTestOrchestrator(t, cfg, fs.options()...)

			res, err := o.AnalyzeDocument(context.Background(), "texto do edital", edital, nil)
			require.NoError(t, err)

			assert.Equal(t, 90.0, res.CategoryResults.Structural.Score)
			assert.Equal(t, 80.0, res.CategoryResults.Legal.Score)
			assert.Equal(t, 70.0, res.CategoryResults.Clarity.Score)
			assert.Equal(t, 60.0, res.CategoryResults.Abnt.Score)
			assert.Equal(t, 75.0, res.OverallScore)
			assert.Equal(t, 80.0, res.OverallConfidence)
			assert.Len(t, res.Metrics, 4)
			assert.NotEmpty(t, res.AnalysisID)
			assert.False(t, res.FromCache)
			assert.Equal(t, 0, o.ActiveAnalysesCount())
		})
	}
}

func TestAnalyzeDocument_IdempotentThroughCache(t *testing.T) {
	fs := newFakes()
	o := newTestOrchestrator(t, DefaultConfig(), fs.options()...)
	ctx := context.Background()
	params := map[string]any{"strict": true}

	first, err := o.AnalyzeDocument(ctx, "texto do edital", edital, params)
	require.NoError(t, err)
	second, err := o.AnalyzeDocument(ctx, "texto do edital", edital, params)
	require.NoError(t, err)

	assert.True(t, second.FromCache)
	assert.Equal(t, first.OverallScore, second.OverallScore)
	assert.Equal(t, first.CategoryResults, second.CategoryResults)
	assert.Equal(t, analysis.FallbackStats{}, second.FallbackStats)
	assert.Equal(t, int64(1), second.CacheStats.Hits)
	for _, f := range fs {
		assert.Equal(t, int32(1), f.calls.Load(), f.category.String())
	}
}

func TestAnalyzeDocument_FaultIsolation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnableFallback = false
	fs := newFakes()
	for _, f := range fs {
		f.score = 90
	}
	fs[analysis.CategoryLegal].err = errBoom
	fs[analysis.CategoryLegal].cfg.FallbackEnabled = false
	o := newTestOrchestrator(t, cfg, fs.options()...)

	res, err := o.AnalyzeDocument(context.Background(), "texto do edital", edital, nil)
	require.NoError(t, err)

	legal := res.CategoryResults.Legal
	assert.True(t, legal.Degraded)
	assert.Equal(t, 50.0, legal.Score)
	assert.Equal(t, 20.0, legal.Confidence)
	require.Len(t, legal.Problems, 1)
	assert.True(t, strings.HasPrefix(legal.Problems[0].Description, "Análise legal falhou:"))
	assert.Equal(t, analysis.FindingFormal, legal.Problems[0].Category)

	assert.Equal(t, 90.0, res.CategoryResults.Structural.Score)
	assert.Equal(t, 78.0, res.OverallScore)
	assert.Equal(t, 65.0, res.OverallConfidence)
	assert.Equal(t, 0, o.CacheMetrics().EntryCount, "degraded aggregates are not cached")
	assert.Equal(t, 1, o.AnalyzerHealthStatus()["legal"].ErrorCount)
}

func TestAnalyzeDocument_CategoryFailureUsesFallbackSystem(t *testing.T) {
	fs := newFakes()
	fs[analysis.CategoryClarity].err = errBoom
	fs[analysis.CategoryClarity].cfg.FallbackEnabled = false
	o := newTestOrchestrator(t, DefaultConfig(), append(fs.options(), WithFallback(basicFirst(t)))...)

	res, err := o.AnalyzeDocument(context.Background(), "texto do edital", edital, nil)
	require.NoError(t, err)

	clarity := res.CategoryResults.Clarity
	assert.True(t, clarity.Degraded)
	assert.Equal(t, 60.0, clarity.Score)
	assert.Equal(t, 40.0, clarity.Confidence)

	m := o.FallbackMetrics()
	assert.Equal(t, int64(1), m.SuccessfulFallbacks)
	assert.Equal(t, map[string]int64{"basic": 1}, m.StrategyUsage)
	assert.Equal(t, int64(1), res.FallbackStats.SuccessfulFallbacks)
	require.Len(t, o.FallbackLogs(10), 1)
}

func TestAnalyzeDocument_EmptyText(t *testing.T) {
	o := newTestOrchestrator(t, DefaultConfig())

	res, err := o.AnalyzeDocument(context.Background(), "", edital, nil)
	require.NoError(t, err)

	for _, r := range res.CategoryResults.Ordered() {
		assert.True(t, r.Degraded)
		assert.LessOrEqual(t, r.Score, 70.0)
		assert.Len(t, r.Problems, 1)
	}
	assert.Less(t, res.OverallScore, 100.0)
	assert.Len(t, res.Problems, 4)
}

func TestAnalyzeDocument_RealAnalyzersStayInRange(t *testing.T) {
	o := newTestOrchestrator(t, DefaultConfig())
	text := strings.Repeat("1. DO OBJETO\nA presente licitação tem por objeto a aquisição de equipamentos de informática. "+
		"O prazo de entrega será de 30 dias. A contratada pode substituir itens. ", 5)

	res, err := o.AnalyzeDocument(context.Background(), text, edital, nil)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, res.OverallScore, 0.0)
	assert.LessOrEqual(t, res.OverallScore, 100.0)
	for _, r := range res.CategoryResults.Ordered() {
		assert.GreaterOrEqual(t, r.Score, 0.0)
		assert.LessOrEqual(t, r.Score, 100.0)
		assert.GreaterOrEqual(t, r.Confidence, 0.0)
		assert.LessOrEqual(t, r.Confidence, 100.0)
	}
}

func TestAnalyzeDocument_ConcurrencyLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConcurrentAnalyses = 1
	fs := newFakes()
	fs[analysis.CategoryStructural].block = make(chan struct{})
	o := newTestOrchestrator(t, cfg, fs.options()...)

	done := make(chan error, 1)
	go func() {
		_, err := o.AnalyzeDocument(context.Background(), "primeiro documento", edital, nil)
		done <- err
	}()
	require.Eventually(t, func() bool { return o.ActiveAnalysesCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	_, err := o.AnalyzeDocument(context.Background(), "segundo documento", edital, nil)
	assert.ErrorIs(t, err, analysis.ErrConcurrencyLimit)
	assert.Equal(t, int64(0), o.FallbackMetrics().TotalFallbacks, "limit errors bypass fallback")

	close(fs[analysis.CategoryStructural].block)
	require.NoError(t, <-done)
	assert.Equal(t, 0, o.ActiveAnalysesCount())
}

func TestAnalyzeDocument_CallDeadline(t *testing.T) {
	newSlow := func(t *testing.T, cfg Config, opts ...Option) *Orchestrator {
		fs := newFakes()
		fs[analysis.CategoryLegal].delay = 5 * time.Second
		return newTestOrchestrator(t, cfg, append(fs.options(), opts...)...)
	}

	t.Run("without fallback", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Timeout = 50 * time.Millisecond
		cfg.EnableFallback = false
		o := newSlow(t, cfg)

		_, err := o.AnalyzeDocument(context.Background(), "texto do edital", edital, nil)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("with fallback", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Timeout = 50 * time.Millisecond
		o := newSlow(t, cfg, WithFallback(basicFirst(t)))

		res, err := o.AnalyzeDocument(context.Background(), "texto do edital", edital, nil)
		require.NoError(t, err)
		for _, r := range res.CategoryResults.Ordered() {
			assert.Equal(t, 60.0, r.Score)
		}
		assert.Equal(t, 52.0, res.OverallScore)
		assert.Equal(t, analysis.CacheStats{}, res.CacheStats)
		assert.Equal(t, int64(1), res.FallbackStats.SuccessfulFallbacks)
	})
}

func TestAnalyzeDocument_CacheFailureIsPipelineFailure(t *testing.T) {
	broken := cache.New(cache.WithStore(failingStore{}))
	defer broken.Close()

	t.Run("resolved by fallback", func(t *testing.T) {
		o := newTestOrchestrator(t, DefaultConfig(), append(newFakes().options(), WithCache(broken), WithFallback(basicFirst(t)))...)

		res, err := o.AnalyzeDocument(context.Background(), "texto do edital", edital, nil)
		require.NoError(t, err)
		assert.Equal(t, 60.0, res.CategoryResults.Legal.Score)
		assert.Equal(t, analysis.CacheStats{}, res.CacheStats)
		assert.Equal(t, map[string]int64{"cache": 1}, o.FallbackMetrics().FallbackReasons)
	})

	t.Run("fallback disabled", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.EnableFallback = false
		o := newTestOrchestrator(t, cfg, append(newFakes().options(), WithCache(broken))...)

		_, err := o.AnalyzeDocument(context.Background(), "texto do edital", edital, nil)
		assert.ErrorIs(t, err, analysis.ErrCacheUnavailable)
	})

	t.Run("unresolved", func(t *testing.T) {
		fb, err := fallback.New(fallback.WithStrategies(nil))
		require.NoError(t, err)
		o := newTestOrchestrator(t, DefaultConfig(), append(newFakes().options(), WithCache(broken), WithFallback(fb))...)

		_, err = o.AnalyzeDocument(context.Background(), "texto do edital", edital, nil)
		assert.ErrorIs(t, err, analysis.ErrNoStrategy)
		assert.ErrorIs(t, err, analysis.ErrCacheUnavailable)
	})
}

// ---- Single Category Tests ----

func TestAnalyzeCategory(t *testing.T) {
	fs := newFakes()
	o := newTestOrchestrator(t, DefaultConfig(), fs.options()...)
	ctx := context.Background()

	res, err := o.AnalyzeLegal(ctx, "texto", edital, nil)
	require.NoError(t, err)
	assert.Equal(t, 80.0, res.Score)

	res, err = o.AnalyzeAbnt(ctx, "texto", edital, nil)
	require.NoError(t, err)
	assert.Equal(t, 60.0, res.Score)

	_, err = o.AnalyzeStructural(ctx, "texto", edital, nil)
	require.NoError(t, err)
	_, err = o.AnalyzeClarity(ctx, "texto", edital, nil)
	require.NoError(t, err)

	_, err = o.AnalyzeCategory(ctx, analysis.Category(9), "texto", edital, nil)
	assert.ErrorIs(t, err, analysis.ErrUnknownCategory)
	assert.Equal(t, 0, o.CacheMetrics().EntryCount, "single-category runs bypass the result cache")
}

// ---- Management Tests ----

// assertCalls checks how many times each fake analyzer ran.
func assertCalls(t *testing.T, fs fakes, want int32) {
	t.Helper()
	for _, f := range fs {
		assert.Equal(t, want, f.calls.Load(), f.category.String())
	}
}

func TestInvalidateCacheByClassification(t *testing.T) {
	fs := newFakes()
	o := newTestOrchestrator(t, DefaultConfig(), fs.options()...)
	ctx := context.Background()
	tr := analysis.Classification{DocumentType: analysis.DocTR}

	_, err := o.AnalyzeDocument(ctx, "texto do edital", edital, nil)
	require.NoError(t, err)
	_, err = o.AnalyzeDocument(ctx, "texto do termo", tr, nil)
	require.NoError(t, err)
	assertCalls(t, fs, 2)

	n, err := o.InvalidateCacheByClassification(ctx, edital)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	for name, hs := range o.AnalyzerHealthStatus() {
		assert.Zero(t, hs.CachedResults, name)
	}

	res, err := o.AnalyzeDocument(ctx, "texto do edital", edital, nil)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assertCalls(t, fs, 3)

	res, err = o.AnalyzeDocument(ctx, "texto do termo", tr, nil)
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assertCalls(t, fs, 3)
}

func TestInvalidateCache(t *testing.T) {
	fs := newFakes()
	o := newTestOrchestrator(t, DefaultConfig(), fs.options()...)
	ctx := context.Background()
	v1 := map[string]any{"version": 1}

	_, err := o.AnalyzeDocument(ctx, "texto a", edital, v1)
	require.NoError(t, err)
	_, err = o.AnalyzeDocument(ctx, "texto b", edital, map[string]any{"version": 2})
	require.NoError(t, err)
	assertCalls(t, fs, 2)

	n, err := o.InvalidateCache(ctx, v1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res, err := o.AnalyzeDocument(ctx, "texto a", edital, v1)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assertCalls(t, fs, 3)

	n, err = o.InvalidateCache(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, 0, o.CacheMetrics().EntryCount)

	res, err = o.AnalyzeDocument(ctx, "texto b", edital, map[string]any{"version": 2})
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assertCalls(t, fs, 4)
}

func TestInvalidateCacheByText(t *testing.T) {
	fs := newFakes()
	o := newTestOrchestrator(t, DefaultConfig(), fs.options()...)
	ctx := context.Background()

	_, err := o.AnalyzeDocument(ctx, "texto do edital", edital, nil)
	require.NoError(t, err)
	assertCalls(t, fs, 1)

	n, err := o.InvalidateCacheByText(ctx, "texto do edital", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res, err := o.AnalyzeDocument(ctx, "texto do edital", edital, nil)
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	assertCalls(t, fs, 2)
}

func TestAnalyzeDocument_UnencodableParametersBypassCache(t *testing.T) {
	fs := newFakes()
	o := newTestOrchestrator(t, DefaultConfig(), fs.options()...)
	ctx := context.Background()
	params := map[string]any{"hook": func() {}}

	for range 2 {
		res, err := o.AnalyzeDocument(ctx, "texto do edital", edital, params)
		require.NoError(t, err)
		assert.False(t, res.FromCache)
	}
	assert.Equal(t, 0, o.CacheMetrics().EntryCount)

	// Encodable parameters on the same text are still cached.
	_, err := o.AnalyzeDocument(ctx, "texto do edital", edital, map[string]any{"v": 1})
	require.NoError(t, err)
	assert.Equal(t, 1, o.CacheMetrics().EntryCount)
}

func TestAnalyzeDocument_CacheHitKeepsRecordedTime(t *testing.T) {
	fs := newFakes()
	fs[analysis.CategoryStructural].delay = 20 * time.Millisecond
	o := newTestOrchestrator(t, DefaultConfig(), fs.options()...)
	ctx := context.Background()

	first, err := o.AnalyzeDocument(ctx, "texto do edital", edital, nil)
	require.NoError(t, err)
	var recorded int64
	for _, r := range first.CategoryResults.Ordered() {
		recorded += r.ProcessingTimeMs
	}
	require.GreaterOrEqual(t, recorded, int64(20))

	second, err := o.AnalyzeDocument(ctx, "texto do edital", edital, nil)
	require.NoError(t, err)
	require.True(t, second.FromCache)
	assert.Equal(t, recorded, second.TotalProcessingTime)
}

func TestFallbackManagement(t *testing.T) {
	fs := newFakes()
	fs[analysis.CategoryLegal].err = errBoom
	fs[analysis.CategoryLegal].cfg.FallbackEnabled = false
	o := newTestOrchestrator(t, DefaultConfig(), append(fs.options(), WithFallback(basicFirst(t)))...)

	_, err := o.AnalyzeDocument(context.Background(), "texto do edital", edital, nil)
	require.NoError(t, err)
	require.Len(t, o.FallbackLogs(10), 1)
	require.Equal(t, 1, o.Fallback().ErrorCount(edital))

	o.ClearFallbackLogs()
	assert.Empty(t, o.FallbackLogs(10))
	assert.Equal(t, int64(1), o.FallbackMetrics().SuccessfulFallbacks, "counters survive a log clear")

	o.ResetFallbackErrors()
	assert.Equal(t, 0, o.Fallback().ErrorCount(edital))
}

func TestUpdateConfig(t *testing.T) {
	o := newTestOrchestrator(t, DefaultConfig(), newFakes().options()...)

	zero := 0
	err := o.UpdateConfig(Patch{MaxConcurrentAnalyses: &zero})
	assert.ErrorIs(t, err, analysis.ErrValidation)
	assert.Equal(t, 5, o.Config().MaxConcurrentAnalyses)

	off := false
	timeout := 10 * time.Second
	require.NoError(t, o.UpdateConfig(Patch{EnableCache: &off, Timeout: &timeout}))
	cfg := o.Config()
	assert.False(t, cfg.EnableCache)
	assert.Equal(t, timeout, cfg.Timeout)
	assert.True(t, cfg.EnableFallback)

	res, err := o.AnalyzeDocument(context.Background(), "texto", edital, nil)
	require.NoError(t, err)
	assert.Equal(t, analysis.CacheStats{}, res.CacheStats)
	assert.Equal(t, 0, o.CacheMetrics().EntryCount)
}

// ---- Aggregation Tests ----

func TestAggregate(t *testing.T) {
	finding := analysis.Finding{Description: "x"}
	var cr analysis.CategoryResults
	cr.Set(analysis.CategoryStructural, analysis.Result{Score: 100, Confidence: 90, ProcessingTimeMs: 3, Problems: []analysis.Finding{finding, finding}, Metrics: map[string]any{"a": 1}})
	cr.Set(analysis.CategoryLegal, analysis.Result{Score: 80, Confidence: 70, ProcessingTimeMs: 4, Metrics: map[string]any{"a": 2, "b": 1}})
	cr.Set(analysis.CategoryClarity, analysis.Result{Score: 60, Confidence: 50, Problems: []analysis.Finding{finding}})
	cr.Set(analysis.CategoryFormatting, analysis.Result{Score: 40, Confidence: 30, Degraded: true})

	agg := aggregate(cr)
	assert.Equal(t, 64.0, agg.Score)
	assert.Equal(t, 60.0, agg.Confidence)
	assert.Equal(t, int64(7), agg.ProcessingTimeMs)
	assert.Len(t, agg.Problems, 3)
	assert.Equal(t, map[string]any{"a": 2, "b": 1}, agg.Metrics)
	assert.True(t, agg.Degraded)

	var low analysis.CategoryResults
	for _, c := range analysis.AllCategories() {
		low.Set(c, analysis.Result{Score: 5, Problems: []analysis.Finding{finding, finding}})
	}
	assert.Equal(t, 0.0, aggregate(low).Score)
}

func TestPatchApply(t *testing.T) {
	n := 9
	cfg := Patch{MaxConcurrentAnalyses: &n}.Apply(DefaultConfig())
	assert.Equal(t, 9, cfg.MaxConcurrentAnalyses)
	assert.Equal(t, DefaultConfig().Timeout, cfg.Timeout)
}
