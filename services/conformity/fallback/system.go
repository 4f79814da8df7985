// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fallback recovers failed analyses through prioritized strategies.
//
// A Strategy is a list of conditions that must all hold and a list of
// actions tried in order. The first action that produces a result resolves
// the failure. Strategies are loaded from YAML and can be replaced at
// runtime.
//
// Thread Safety:
//
//	System is safe for concurrent use. No lock is held while an action
//	runs, so retries and custom handlers never block other callers.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianConformity/services/conformity/analysis"
)

// Default configuration values.
const (
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = time.Second
	DefaultLogCapacity = 1000
	DefaultLogLimit    = 100
)

// Options configures a System.
type Options struct {
	// MaxRetries applies to retry actions that leave it unset.
	MaxRetries int

	// RetryDelay applies to retry actions that leave it unset.
	RetryDelay time.Duration

	// LogCapacity bounds the fallback log. The oldest entry goes first.
	LogCapacity int

	// Strategies is the initial strategy set.
	Strategies []Strategy

	// Lookup backs CachedResultAction.
	Lookup CachedLookup

	Logger *slog.Logger
	Now    func() time.Time
}

// DefaultOptions returns the defaults with the embedded strategy set.
func DefaultOptions() Options {
	return Options{
		MaxRetries:  DefaultMaxRetries,
		RetryDelay:  DefaultRetryDelay,
		LogCapacity: DefaultLogCapacity,
		Strategies:  DefaultStrategies(),
		Logger:      slog.Default(),
		Now:         time.Now,
	}
}

// Option is a functional option for System.
type Option func(*Options)

// WithMaxRetries sets the default retry count.
func WithMaxRetries(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxRetries = n
		}
	}
}

// WithRetryDelay sets the default base delay between retries.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.RetryDelay = d
		}
	}
}

// WithLogCapacity bounds the fallback log.
func WithLogCapacity(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.LogCapacity = n
		}
	}
}

// WithStrategies replaces the embedded default strategies.
func WithStrategies(s []Strategy) Option {
	return func(o *Options) {
		o.Strategies = s
	}
}

// WithCachedLookup sets the source for CachedResultAction.
func WithCachedLookup(l CachedLookup) Option {
	return func(o *Options) {
		o.Lookup = l
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		if l != nil {
			o.Logger = l
		}
	}
}

// WithClock overrides the clock used for log timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Now = now
		}
	}
}

// System runs fallback strategies for failed operations.
type System struct {
	options Options
	logger  *slog.Logger

	// mu guards the strategy set and the registries.
	mu         sync.RWMutex
	strategies []Strategy
	predicates map[string]Predicate
	handlers   map[string]Handler
	lookup     CachedLookup

	// statsMu guards counters, error counts and the log.
	statsMu     sync.Mutex
	metrics     Metrics
	errorCounts map[string]int
	logs        *logRing
}

// New creates a System.
func New(opts ...Option) (*System, error) {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	s := &System{
		options:     options,
		logger:      options.Logger.With(slog.String("component", "fallback")),
		predicates:  make(map[string]Predicate),
		handlers:    make(map[string]Handler),
		lookup:      options.Lookup,
		errorCounts: make(map[string]int),
		logs:        newLogRing(options.LogCapacity),
		metrics: Metrics{
			FallbackReasons: make(map[string]int64),
			StrategyUsage:   make(map[string]int64),
		},
	}
	if err := s.SetStrategies(options.Strategies); err != nil {
		return nil, err
	}
	return s, nil
}

// SetStrategies validates and installs a new strategy set.
func (s *System) SetStrategies(strategies []Strategy) error {
	sorted := make([]Strategy, 0, len(strategies))
	for _, st := range strategies {
		compiled, err := st.compiled()
		if err != nil {
			return err
		}
		sorted = append(sorted, compiled)
	}
	slices.SortStableFunc(sorted, func(a, b Strategy) int {
		return a.Priority - b.Priority
	})

	s.mu.Lock()
	s.strategies = sorted
	s.mu.Unlock()

	s.logger.Info("fallback strategies installed", slog.Int("count", len(sorted)))
	return nil
}

// Strategies returns the installed strategies in priority order.
func (s *System) Strategies() []Strategy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.strategies)
}

// RegisterCondition registers the predicate behind CustomCondition{Name: name}.
func (s *System) RegisterCondition(name string, p Predicate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.predicates[name] = p
}

// RegisterAction registers the handler behind CustomAction{Name: name}.
func (s *System) RegisterAction(name string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[name] = h
}

// SetCachedLookup replaces the source for CachedResultAction.
func (s *System) SetCachedLookup(l CachedLookup) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lookup = l
}

// Execute recovers from cause by running the eligible strategies.
//
// Description:
//
//	When cause is nil the operation runs first and fallback only starts
//	if it fails. The failure is counted against the input's
//	classification before strategies are evaluated. Strategies run in
//	priority order; the first one whose actions produce a result wins
//	and is the only one recorded in StrategyUsage.
//
// Inputs:
//
//	ctx - Bounds retries and actions.
//	op - The failed operation. Retry actions re-run op.Run.
//	in - The analysis input.
//	cause - The failure, or nil to run op first.
//
// Outputs:
//
//	analysis.Result - The substitute result.
//	error - Wraps both analysis.ErrNoStrategy and cause when nothing
//	        resolved the failure.
func (s *System) Execute(ctx context.Context, op Operation, in analysis.Input, cause error) (analysis.Result, error) {
	ctx, span := startExecuteSpan(ctx, op.Name)
	defer span.End()

	start := time.Now()
	if cause == nil {
		if op.Run == nil {
			return analysis.Result{}, errors.New("fallback: operation has no Run func")
		}
		res, err := op.Run(ctx)
		if err == nil {
			return res, nil
		}
		cause = err
	}

	reason := analysis.ErrorType(cause)
	count := s.recordError(in)
	span.SetAttributes(
		attribute.String("fallback.reason", reason),
		attribute.Int("fallback.error_count", count),
	)

	s.mu.RLock()
	strategies := s.strategies
	env := Env{Input: in, Err: cause, ErrorCount: count, predicates: s.predicates}
	eligible := make([]Strategy, 0, len(strategies))
	for _, st := range strategies {
		if st.Enabled && allHold(st.Conditions, env) {
			eligible = append(eligible, st)
		}
	}
	s.mu.RUnlock()

	c := &call{op: op, in: in, cause: cause}
	for _, st := range eligible {
		res, action, ok := s.runStrategy(ctx, st, c)
		if !ok {
			continue
		}
		res.Score = analysis.ClampScore(res.Score)
		res.Confidence = analysis.ClampScore(res.Confidence)
		d := time.Since(start)
		s.recordSuccess(in, st.Name, action, reason, d)
		recordExecution(ctx, op.Name, st.Name, true, d)
		span.SetAttributes(attribute.String("fallback.strategy", st.Name))
		return res, nil
	}

	d := time.Since(start)
	s.recordFailure(in, cause, reason, d)
	recordExecution(ctx, op.Name, "none", false, d)
	span.RecordError(cause)
	span.SetStatus(codes.Error, "no strategy resolved the failure")
	s.logger.Warn("fallback exhausted",
		slog.String("operation", op.Name),
		slog.String("document", in.Summary()),
		slog.String("error", cause.Error()))
	return analysis.Result{}, fmt.Errorf("%w: %w", analysis.ErrNoStrategy, cause)
}

func allHold(conditions []Condition, env Env) bool {
	for _, c := range conditions {
		if !c.holds(env) {
			return false
		}
	}
	return true
}

// runStrategy runs actions in order. Action errors are logged and the
// next action is tried.
func (s *System) runStrategy(ctx context.Context, st Strategy, c *call) (analysis.Result, ActionKind, bool) {
	for _, a := range st.Actions {
		res, ok, err := a.run(ctx, s, c)
		if err != nil {
			s.logActionError(c.in, st.Name, a.Kind(), err)
			if ctx.Err() != nil {
				return analysis.Result{}, "", false
			}
			continue
		}
		if ok {
			return res, a.Kind(), true
		}
	}
	return analysis.Result{}, "", false
}

// =============================================================================
// ACCOUNTING
// =============================================================================

func (s *System) recordError(in analysis.Input) int {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	key := in.Classification.ErrorKey()
	s.errorCounts[key]++
	return s.errorCounts[key]
}

// ErrorCount returns the failures counted for a classification.
func (s *System) ErrorCount(c analysis.Classification) int {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.errorCounts[c.ErrorKey()]
}

// ResetErrorCounts forgets every counted failure.
func (s *System) ResetErrorCounts() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	clear(s.errorCounts)
}

func (s *System) recordSuccess(in analysis.Input, strategy string, action ActionKind, reason string, d time.Duration) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	s.account(reason, d)
	s.metrics.SuccessfulFallbacks++
	s.metrics.StrategyUsage[strategy]++
	s.logs.push(LogEntry{
		Timestamp: s.options.Now(),
		Context:   in.Summary(),
		Error:     "fallback successful",
		Strategy:  strategy,
		Action:    string(action),
		Outcome:   OutcomeSuccess,
		Duration:  d,
		Metadata:  map[string]any{"strategy": strategy, "reason": reason},
	})
}

func (s *System) recordFailure(in analysis.Input, cause error, reason string, d time.Duration) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	s.account(reason, d)
	s.metrics.FailedFallbacks++
	s.logs.push(LogEntry{
		Timestamp: s.options.Now(),
		Context:   in.Summary(),
		Error:     cause.Error(),
		Strategy:  "none",
		Action:    "failed",
		Outcome:   OutcomeFailure,
		Duration:  d,
		Metadata:  map[string]any{"reason": reason},
	})
}

// account updates the totals and the running mean. Caller holds statsMu.
func (s *System) account(reason string, d time.Duration) {
	s.metrics.TotalFallbacks++
	s.metrics.FallbackReasons[reason]++
	ms := float64(d) / float64(time.Millisecond)
	n := float64(s.metrics.TotalFallbacks)
	s.metrics.AverageFallbackTime = (s.metrics.AverageFallbackTime*(n-1) + ms) / n
}

func (s *System) logActionError(in analysis.Input, strategy string, action ActionKind, err error) {
	s.logger.Debug("fallback action failed",
		slog.String("strategy", strategy),
		slog.String("action", string(action)),
		slog.String("error", err.Error()))

	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.logs.push(LogEntry{
		Timestamp: s.options.Now(),
		Context:   in.Summary(),
		Error:     err.Error(),
		Strategy:  strategy + ":" + string(action),
		Action:    "error",
		Outcome:   OutcomeFailure,
		Metadata:  map[string]any{"strategy": strategy},
	})
}

// Metrics returns a copy of the counters.
func (s *System) Metrics() Metrics {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	m := s.metrics
	m.FallbackReasons = maps.Clone(s.metrics.FallbackReasons)
	m.StrategyUsage = maps.Clone(s.metrics.StrategyUsage)
	return m
}

// Stats returns the summary attached to comprehensive results.
func (s *System) Stats() analysis.FallbackStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return analysis.FallbackStats{
		TotalFallbacks:      s.metrics.TotalFallbacks,
		SuccessfulFallbacks: s.metrics.SuccessfulFallbacks,
		FailedFallbacks:     s.metrics.FailedFallbacks,
	}
}

// Logs returns the newest limit entries, oldest first. A non-positive
// limit means DefaultLogLimit.
func (s *System) Logs(limit int) []LogEntry {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.logs.last(limit)
}

// ClearLogs empties the fallback log.
func (s *System) ClearLogs() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.logs.reset()
}

// =============================================================================
// LOG RING
// =============================================================================

// logRing keeps the newest entries up to its capacity.
type logRing struct {
	buf   []LogEntry
	start int
	n     int
}

func newLogRing(capacity int) *logRing {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &logRing{buf: make([]LogEntry, capacity)}
}

func (r *logRing) push(e LogEntry) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = e
		r.n++
		return
	}
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *logRing) last(limit int) []LogEntry {
	limit = min(limit, r.n)
	out := make([]LogEntry, 0, limit)
	for i := r.n - limit; i < r.n; i++ {
		out = append(out, r.buf[(r.start+i)%len(r.buf)])
	}
	return out
}

func (r *logRing) reset() {
	clear(r.buf)
	r.start, r.n = 0, 0
}
