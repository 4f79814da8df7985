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
	"container/list"
	"context"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianConformity/services/conformity/analysis"
)

// Default configuration values.
const (
	// DefaultMaxEntries is the default maximum number of cached analyses.
	DefaultMaxEntries = 1000

	// DefaultMaxSizeBytes bounds the estimated memory held by entries.
	DefaultMaxSizeBytes = 100 * 1024 * 1024

	// DefaultTTL is how long an entry stays valid.
	DefaultTTL = 24 * time.Hour

	// DefaultCleanupInterval is the period of the expiry sweep.
	DefaultCleanupInterval = 5 * time.Minute

	// DefaultSimilarityThreshold is used when InvalidateByTextSimilarity
	// receives a non-positive threshold.
	DefaultSimilarityThreshold = 0.9

	// keyTextPrefix is how much of the document feeds the key and the
	// similarity comparison.
	keyTextPrefix = 500
)

// Entry is one cached analysis.
//
// Entries are serialized as JSON by persistent stores, so every field
// other than the LRU bookkeeping is exported.
type Entry struct {
	Key                string            `json:"key"`
	Snapshot           analysis.Snapshot `json:"snapshot"`
	Parameters         map[string]any    `json:"parameters,omitempty"`
	TextPrefix         string            `json:"text_prefix"`
	ClassificationHash string            `json:"classification_hash"`
	CreatedAt          time.Time         `json:"created_at"`
	LastAccess         time.Time         `json:"last_access"`
	AccessCount        int64             `json:"access_count"`
	SizeBytes          int64             `json:"size_bytes"`

	lruElement *list.Element
}

// Store is a persistent tier behind the in-memory cache.
//
// Implementations must be safe for concurrent use. Get returns
// (nil, false, nil) when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) (*Entry, bool, error)
	Put(ctx context.Context, entry *Entry, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, fn func(*Entry) bool) error
	Clear(ctx context.Context) error
}

// Metrics is a point-in-time view of cache counters.
type Metrics struct {
	TotalHits      int64   `json:"total_hits"`
	TotalMisses    int64   `json:"total_misses"`
	TotalRequests  int64   `json:"total_requests"`
	EntryCount     int     `json:"entry_count"`
	SizeBytes      int64   `json:"size_bytes"`
	AverageHitRate float64 `json:"average_hit_rate"`
	EvictionCount  int64   `json:"eviction_count"`
}

// Options configures ResultCache behavior.
type Options struct {
	// MaxEntries is the maximum number of in-memory entries.
	MaxEntries int

	// MaxSizeBytes bounds the estimated size of in-memory entries.
	MaxSizeBytes int64

	// TTL is the lifetime of an entry in both tiers.
	TTL time.Duration

	// CleanupInterval is the period of the background expiry sweep.
	CleanupInterval time.Duration

	// Store is the optional persistent tier.
	Store Store

	// Logger receives cache diagnostics.
	Logger *slog.Logger

	// Now is the clock. Tests override it.
	Now func() time.Time
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		MaxEntries:      DefaultMaxEntries,
		MaxSizeBytes:    DefaultMaxSizeBytes,
		TTL:             DefaultTTL,
		CleanupInterval: DefaultCleanupInterval,
		Logger:          slog.Default(),
		Now:             time.Now,
	}
}

// Option is a functional option for ResultCache.
type Option func(*Options)

// WithMaxEntries sets the maximum number of cached entries.
func WithMaxEntries(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxEntries = n
		}
	}
}

// WithMaxSizeBytes sets the size bound.
func WithMaxSizeBytes(n int64) Option {
	return func(o *Options) {
		if n > 0 {
			o.MaxSizeBytes = n
		}
	}
}

// WithTTL sets the entry lifetime.
func WithTTL(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.TTL = d
		}
	}
}

// WithCleanupInterval sets the expiry sweep period.
func WithCleanupInterval(d time.Duration) Option {
	return func(o *Options) {
		if d > 0 {
			o.CleanupInterval = d
		}
	}
}

// WithStore attaches a persistent tier.
func WithStore(s Store) Option {
	return func(o *Options) {
		o.Store = s
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

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		if now != nil {
			o.Now = now
		}
	}
}
