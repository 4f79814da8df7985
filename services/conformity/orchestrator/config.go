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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianConformity/services/conformity/analysis"
	"github.com/AleutianAI/AleutianConformity/services/conformity/cache"
	"github.com/AleutianAI/AleutianConformity/services/conformity/fallback"
)

// Config controls an Orchestrator. It can be changed at runtime with
// UpdateConfig.
type Config struct {
	EnableCache           bool          `yaml:"enable_cache" json:"enable_cache"`
	EnableFallback        bool          `yaml:"enable_fallback" json:"enable_fallback"`
	ParallelAnalysis      bool          `yaml:"parallel_analysis" json:"parallel_analysis"`
	MaxConcurrentAnalyses int           `yaml:"max_concurrent_analyses" json:"max_concurrent_analyses" validate:"gte=1"`
	Timeout               time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		EnableCache:           true,
		EnableFallback:        true,
		ParallelAnalysis:      true,
		MaxConcurrentAnalyses: 5,
		Timeout:               30 * time.Second,
	}
}

// Validate checks the numeric bounds.
func (c Config) Validate() error {
	if c.MaxConcurrentAnalyses < 1 {
		return fmt.Errorf("max concurrent analyses must be at least 1, got %d", c.MaxConcurrentAnalyses)
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	return nil
}

// Patch is a partial Config. Nil fields are left unchanged.
type Patch struct {
	EnableCache           *bool
	EnableFallback        *bool
	ParallelAnalysis      *bool
	MaxConcurrentAnalyses *int
	Timeout               *time.Duration
}

// Apply returns cfg with the patch applied.
func (p Patch) Apply(cfg Config) Config {
	if p.EnableCache != nil {
		cfg.EnableCache = *p.EnableCache
	}
	if p.EnableFallback != nil {
		cfg.EnableFallback = *p.EnableFallback
	}
	if p.ParallelAnalysis != nil {
		cfg.ParallelAnalysis = *p.ParallelAnalysis
	}
	if p.MaxConcurrentAnalyses != nil {
		cfg.MaxConcurrentAnalyses = *p.MaxConcurrentAnalyses
	}
	if p.Timeout != nil {
		cfg.Timeout = *p.Timeout
	}
	return cfg
}

// Option configures an Orchestrator at construction.
type Option func(*builder)

type builder struct {
	analyzers  map[analysis.Category]analysis.Analyzer
	cache      *cache.ResultCache
	fallback   *fallback.System
	logger     *slog.Logger
	localCache int
}

// WithAnalyzer replaces the analyzer used for a category.
func WithAnalyzer(c analysis.Category, a analysis.Analyzer) Option {
	return func(b *builder) {
		if a != nil {
			b.analyzers[c] = a
		}
	}
}

// WithCache uses an existing result cache. The caller keeps ownership
// and must close it.
func WithCache(c *cache.ResultCache) Option {
	return func(b *builder) {
		b.cache = c
	}
}

// WithFallback uses an existing fallback system. Its cached lookup is
// pointed at the orchestrator's result cache.
func WithFallback(f *fallback.System) Option {
	return func(b *builder) {
		b.fallback = f
	}
}

// WithLogger sets the logger shared by the orchestrator and its runtimes.
func WithLogger(l *slog.Logger) Option {
	return func(b *builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithLocalCacheSize bounds each analyzer runtime's local cache.
func WithLocalCacheSize(n int) Option {
	return func(b *builder) {
		if n > 0 {
			b.localCache = n
		}
	}
}
