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
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxYAMLFileSize is the largest strategy file LoadStrategiesFile accepts.
const MaxYAMLFileSize = 1024 * 1024

//go:embed strategies.yaml
var defaultStrategiesYAML []byte

var (
	defaultOnce       sync.Once
	defaultStrategies []Strategy
)

// DefaultStrategies returns the embedded strategy set.
//
// Panics if the embedded file is invalid, which TestDefaultStrategies
// guards against.
func DefaultStrategies() []Strategy {
	defaultOnce.Do(func() {
		s, err := ParseStrategies(defaultStrategiesYAML)
		if err != nil {
			panic(fmt.Sprintf("fallback: embedded strategies.yaml: %v", err))
		}
		defaultStrategies = s
	})
	out := make([]Strategy, len(defaultStrategies))
	copy(out, defaultStrategies)
	return out
}

// LoadStrategiesFile reads a strategy set from a YAML file.
func LoadStrategiesFile(path string) ([]Strategy, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat strategies file: %w", err)
	}
	if info.Size() > MaxYAMLFileSize {
		return nil, fmt.Errorf("strategies file %s is %d bytes, limit is %d", abs, info.Size(), MaxYAMLFileSize)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read strategies file: %w", err)
	}
	return ParseStrategies(data)
}

type strategySetYAML struct {
	Strategies []strategyYAML `yaml:"strategies"`
}

type strategyYAML struct {
	Name       string          `yaml:"name"`
	Priority   int             `yaml:"priority"`
	Enabled    *bool           `yaml:"enabled,omitempty"`
	Conditions []conditionYAML `yaml:"conditions,omitempty"`
	Actions    []actionYAML    `yaml:"actions"`
}

type conditionYAML struct {
	Kind     ConditionKind `yaml:"kind"`
	Operator Operator      `yaml:"operator,omitempty"`
	Value    any           `yaml:"value,omitempty"`
	Name     string        `yaml:"name,omitempty"`
}

type actionYAML struct {
	Kind         ActionKind `yaml:"kind"`
	MaxRetries   int        `yaml:"max_retries,omitempty"`
	Delay        string     `yaml:"delay,omitempty"`
	AnalyzerType string     `yaml:"analyzer_type,omitempty"`
	Name         string     `yaml:"name,omitempty"`
}

// ParseStrategies decodes and validates a YAML strategy set. Strategies
// without an explicit enabled flag are enabled.
func ParseStrategies(data []byte) ([]Strategy, error) {
	var doc strategySetYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse strategies: %w", err)
	}

	out := make([]Strategy, 0, len(doc.Strategies))
	for i, sy := range doc.Strategies {
		st := Strategy{Name: sy.Name, Priority: sy.Priority, Enabled: sy.Enabled == nil || *sy.Enabled}
		for j, cy := range sy.Conditions {
			c, err := cy.decode()
			if err != nil {
				return nil, fmt.Errorf("strategy %d (%s): condition %d: %w", i, sy.Name, j, err)
			}
			st.Conditions = append(st.Conditions, c)
		}
		for j, ay := range sy.Actions {
			a, err := ay.decode()
			if err != nil {
				return nil, fmt.Errorf("strategy %d (%s): action %d: %w", i, sy.Name, j, err)
			}
			st.Actions = append(st.Actions, a)
		}
		if err := st.Validate(); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

func (cy conditionYAML) decode() (Condition, error) {
	switch cy.Kind {
	case KindErrorType:
		return ErrorTypeCondition{Operator: cy.Operator, Value: fmt.Sprint(cy.Value)}, nil
	case KindErrorCount:
		n, err := toInt(cy.Value)
		if err != nil {
			return nil, err
		}
		return ErrorCountCondition{Operator: cy.Operator, Value: n}, nil
	case KindTimeout:
		return TimeoutCondition{}, nil
	case KindPerformance:
		return PerformanceCondition{}, nil
	case KindCustom:
		return CustomCondition{Name: cy.Name}, nil
	default:
		return nil, fmt.Errorf("unknown condition kind %q", cy.Kind)
	}
}

func toInt(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("error_count value %q is not an integer", n)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("error_count value %v is not an integer", v)
	}
}

func (ay actionYAML) decode() (Action, error) {
	switch ay.Kind {
	case ActionRetry:
		var delay time.Duration
		if ay.Delay != "" {
			d, err := time.ParseDuration(ay.Delay)
			if err != nil {
				return nil, fmt.Errorf("retry delay: %w", err)
			}
			delay = d
		}
		return RetryAction{MaxRetries: ay.MaxRetries, Delay: delay}, nil
	case ActionBasicAnalyzer:
		return BasicAnalyzerAction{AnalyzerType: ay.AnalyzerType}, nil
	case ActionCachedResult:
		return CachedResultAction{}, nil
	case ActionReturnError:
		return ReturnErrorAction{}, nil
	case ActionCustom:
		return CustomAction{Name: ay.Name}, nil
	default:
		return nil, fmt.Errorf("unknown action kind %q", ay.Kind)
	}
}

// MarshalStrategies encodes strategies in the format ParseStrategies reads.
func MarshalStrategies(strategies []Strategy) ([]byte, error) {
	doc := strategySetYAML{Strategies: make([]strategyYAML, 0, len(strategies))}
	for _, st := range strategies {
		enabled := st.Enabled
		sy := strategyYAML{Name: st.Name, Priority: st.Priority, Enabled: &enabled}
		for _, c := range st.Conditions {
			cy := conditionYAML{Kind: c.Kind()}
			switch v := c.(type) {
			case ErrorTypeCondition:
				cy.Operator, cy.Value = v.Operator, v.Value
			case ErrorCountCondition:
				cy.Operator, cy.Value = v.Operator, v.Value
			case CustomCondition:
				cy.Name = v.Name
			}
			sy.Conditions = append(sy.Conditions, cy)
		}
		for _, a := range st.Actions {
			ay := actionYAML{Kind: a.Kind()}
			switch v := a.(type) {
			case RetryAction:
				ay.MaxRetries = v.MaxRetries
				if v.Delay > 0 {
					ay.Delay = v.Delay.String()
				}
			case BasicAnalyzerAction:
				ay.AnalyzerType = v.AnalyzerType
			case CustomAction:
				ay.Name = v.Name
			}
			sy.Actions = append(sy.Actions, ay)
		}
		doc.Strategies = append(doc.Strategies, sy)
	}
	return yaml.Marshal(doc)
}
