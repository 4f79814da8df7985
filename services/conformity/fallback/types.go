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
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/AleutianConformity/services/conformity/analysis"
)

// =============================================================================
// OPERATIONS
// =============================================================================

// Operation is the work being protected. Name identifies it to
// CachedLookup and the logs (a category name, or "pipeline").
type Operation struct {
	Name string
	Run  func(ctx context.Context) (analysis.Result, error)
}

// CachedLookup returns a previously computed result for the operation.
type CachedLookup func(ctx context.Context, operation string, in analysis.Input) (analysis.Result, bool)

// Predicate backs a CustomCondition.
type Predicate func(env Env) bool

// Handler backs a CustomAction. A false second return means "no result".
type Handler func(ctx context.Context, in analysis.Input, cause error) (analysis.Result, bool, error)

// Env is what conditions are evaluated against.
type Env struct {
	Input      analysis.Input
	Err        error
	ErrorCount int

	predicates map[string]Predicate
}

// =============================================================================
// OPERATORS
// =============================================================================

// Operator compares an observed value with a condition value.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpContains    Operator = "contains"
	OpRegex       Operator = "regex"
)

// Valid reports whether o is a known operator.
func (o Operator) Valid() bool {
	switch o {
	case OpEquals, OpGreaterThan, OpLessThan, OpContains, OpRegex:
		return true
	}
	return false
}

// compareString evaluates every operator but OpRegex, which needs the
// pattern compiled when the strategy was installed.
func compareString(op Operator, actual, want string) bool {
	switch op {
	case OpEquals:
		return actual == want
	case OpGreaterThan:
		return actual > want
	case OpLessThan:
		return actual < want
	case OpContains:
		return strings.Contains(actual, want)
	case OpRegex:
		return false
	default:
		return true
	}
}

func compareInt(op Operator, actual, want int) bool {
	switch op {
	case OpEquals:
		return actual == want
	case OpGreaterThan:
		return actual > want
	case OpLessThan:
		return actual < want
	case OpContains, OpRegex:
		// An integer pattern has no metacharacters, so it matches as a substring.
		return strings.Contains(strconv.Itoa(actual), strconv.Itoa(want))
	default:
		return true
	}
}

// =============================================================================
// CONDITIONS
// =============================================================================

// ConditionKind is the YAML discriminator of a condition.
type ConditionKind string

const (
	KindErrorType   ConditionKind = "error_type"
	KindErrorCount  ConditionKind = "error_count"
	KindTimeout     ConditionKind = "timeout"
	KindPerformance ConditionKind = "performance"
	KindCustom      ConditionKind = "custom"
)

// Condition gates a strategy. The set of implementations is closed.
type Condition interface {
	Kind() ConditionKind
	holds(env Env) bool
}

// ErrorTypeCondition tests analysis.ErrorType of the failure. A regex
// condition only matches once its strategy has been installed with
// System.SetStrategies, which compiles Value.
type ErrorTypeCondition struct {
	Operator Operator
	Value    string

	re *regexp.Regexp
}

func (ErrorTypeCondition) Kind() ConditionKind { return KindErrorType }

func (c ErrorTypeCondition) holds(env Env) bool {
	actual := analysis.ErrorType(env.Err)
	if c.Operator == OpRegex {
		return c.re != nil && c.re.MatchString(actual)
	}
	return compareString(c.Operator, actual, c.Value)
}

func (c ErrorTypeCondition) compile() (ErrorTypeCondition, error) {
	if c.Operator != OpRegex {
		return c, nil
	}
	re, err := regexp.Compile(c.Value)
	if err != nil {
		return c, err
	}
	c.re = re
	return c, nil
}

// ErrorCountCondition tests how many failures the document's
// classification has accumulated, the current one included.
type ErrorCountCondition struct {
	Operator Operator
	Value    int
}

func (ErrorCountCondition) Kind() ConditionKind { return KindErrorCount }

func (c ErrorCountCondition) holds(env Env) bool {
	return compareInt(c.Operator, env.ErrorCount, c.Value)
}

// TimeoutCondition holds for timeouts.
type TimeoutCondition struct{}

func (TimeoutCondition) Kind() ConditionKind { return KindTimeout }

func (TimeoutCondition) holds(env Env) bool {
	if env.Err == nil {
		return false
	}
	return errors.Is(env.Err, analysis.ErrAnalyzerTimeout) ||
		strings.Contains(strings.ToLower(env.Err.Error()), "timeout")
}

// PerformanceCondition always holds.
type PerformanceCondition struct{}

func (PerformanceCondition) Kind() ConditionKind { return KindPerformance }

func (PerformanceCondition) holds(Env) bool { return true }

// CustomCondition calls the predicate registered under Name. An
// unregistered name holds.
type CustomCondition struct {
	Name string
}

func (CustomCondition) Kind() ConditionKind { return KindCustom }

func (c CustomCondition) holds(env Env) bool {
	p, ok := env.predicates[c.Name]
	if !ok {
		return true
	}
	return p(env)
}

// =============================================================================
// ACTIONS
// =============================================================================

// ActionKind is the YAML discriminator of an action.
type ActionKind string

const (
	ActionRetry         ActionKind = "retry"
	ActionBasicAnalyzer ActionKind = "use_basic_analyzer"
	ActionCachedResult  ActionKind = "use_cached_result"
	ActionReturnError   ActionKind = "return_error"
	ActionCustom        ActionKind = "custom"
)

// Action produces a substitute result. The set of implementations is closed.
type Action interface {
	Kind() ActionKind
	run(ctx context.Context, s *System, c *call) (analysis.Result, bool, error)
}

// RetryAction re-runs the operation up to MaxRetries times, waiting
// Delay·2^(n−1) (capped at MaxRetryDelay) before attempt n.
type RetryAction struct {
	MaxRetries int
	Delay      time.Duration
}

func (RetryAction) Kind() ActionKind { return ActionRetry }

// BasicAnalyzerAction runs one of the degraded basic analyzers.
type BasicAnalyzerAction struct {
	AnalyzerType string
}

func (BasicAnalyzerAction) Kind() ActionKind { return ActionBasicAnalyzer }

// CachedResultAction returns an earlier result through the System's
// CachedLookup, when there is one.
type CachedResultAction struct{}

func (CachedResultAction) Kind() ActionKind { return ActionCachedResult }

// ReturnErrorAction turns the failure into a low-confidence result.
type ReturnErrorAction struct{}

func (ReturnErrorAction) Kind() ActionKind { return ActionReturnError }

// CustomAction calls the handler registered under Name. An unregistered
// name produces nothing.
type CustomAction struct {
	Name string
}

func (CustomAction) Kind() ActionKind { return ActionCustom }

// =============================================================================
// STRATEGIES, METRICS AND LOGS
// =============================================================================

// Strategy is eligible when every condition holds. Its actions run in
// order until one produces a result.
type Strategy struct {
	Name       string
	Priority   int
	Enabled    bool
	Conditions []Condition
	Actions    []Action
}

// Validate checks names, operators and action parameters.
func (s Strategy) Validate() error {
	if s.Name == "" {
		return errors.New("strategy name is required")
	}
	for i, c := range s.Conditions {
		var op Operator
		switch v := c.(type) {
		case ErrorTypeCondition:
			op = v.Operator
			if _, err := v.compile(); err != nil {
				return fmt.Errorf("strategy %s: condition %d: invalid pattern: %w", s.Name, i, err)
			}
		case ErrorCountCondition:
			op = v.Operator
		case CustomCondition:
			if v.Name == "" {
				return fmt.Errorf("strategy %s: condition %d: custom condition needs a name", s.Name, i)
			}
			continue
		case nil:
			return fmt.Errorf("strategy %s: condition %d is nil", s.Name, i)
		default:
			continue
		}
		if !op.Valid() {
			return fmt.Errorf("strategy %s: condition %d: unknown operator %q", s.Name, i, op)
		}
	}
	if len(s.Actions) == 0 {
		return fmt.Errorf("strategy %s: at least one action is required", s.Name)
	}
	for i, a := range s.Actions {
		switch v := a.(type) {
		case RetryAction:
			if v.MaxRetries < 0 || v.Delay < 0 {
				return fmt.Errorf("strategy %s: action %d: negative retry settings", s.Name, i)
			}
		case CustomAction:
			if v.Name == "" {
				return fmt.Errorf("strategy %s: action %d: custom action needs a name", s.Name, i)
			}
		case nil:
			return fmt.Errorf("strategy %s: action %d is nil", s.Name, i)
		}
	}
	return nil
}

// compiled validates s and returns a copy whose regex conditions carry
// their compiled patterns.
func (s Strategy) compiled() (Strategy, error) {
	if err := s.Validate(); err != nil {
		return s, err
	}
	if len(s.Conditions) == 0 {
		return s, nil
	}
	conditions := make([]Condition, len(s.Conditions))
	for i, c := range s.Conditions {
		if v, ok := c.(ErrorTypeCondition); ok {
			compiled, err := v.compile()
			if err != nil {
				return s, err
			}
			c = compiled
		}
		conditions[i] = c
	}
	s.Conditions = conditions
	return s, nil
}

// Outcome of a logged fallback step.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
)

// LogEntry records one fallback resolution, failure or action error.
type LogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Context   string         `json:"context"`
	Error     string         `json:"error"`
	Strategy  string         `json:"strategy"`
	Action    string         `json:"action"`
	Outcome   Outcome        `json:"outcome"`
	Duration  time.Duration  `json:"duration_ns"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Metrics summarizes fallback activity.
type Metrics struct {
	TotalFallbacks      int64 `json:"total_fallbacks"`
	SuccessfulFallbacks int64 `json:"successful_fallbacks"`
	FailedFallbacks     int64 `json:"failed_fallbacks"`

	// AverageFallbackTime is the running mean in milliseconds.
	AverageFallbackTime float64          `json:"average_fallback_time_ms"`
	FallbackReasons     map[string]int64 `json:"fallback_reasons"`
	StrategyUsage       map[string]int64 `json:"strategy_usage"`
}

// call is the state of one Execute invocation shared with actions.
type call struct {
	op    Operation
	in    analysis.Input
	cause error
}
