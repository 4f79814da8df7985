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
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianConformity/services/conformity/analysis"
)

// ResultCache stores aggregate analyses keyed by content fingerprint.
//
// Description:
//
//	The memory tier is an LRU bounded by entry count and estimated size.
//	Expired entries are evicted before live ones. When a Store is
//	attached it is written through on Set and consulted on a memory miss;
//	concurrent loads of one key share a single store read.
//
// Thread Safety:
//
//	Safe for concurrent use. The mutex is never held across store I/O.
type ResultCache struct {
	mu        sync.Mutex
	entries   map[string]*Entry
	lru       *list.List
	sizeBytes int64
	flight    singleflight.Group
	options   Options
	logger    *slog.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	requests  atomic.Int64
	evictions atomic.Int64

	stopOnce  sync.Once
	startOnce sync.Once
	stop      chan struct{}
	done      chan struct{}
}

// New creates a ResultCache with the given options.
func New(opts ...Option) *ResultCache {
	options := DefaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &ResultCache{
		entries: make(map[string]*Entry),
		lru:     list.New(),
		options: options,
		logger:  options.Logger.With(slog.String("component", "result_cache")),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Key derives the cache key for an input: classification, a bounded text
// prefix, the text length and the parameters. Inputs whose parameters
// cannot be encoded have no key and are not cacheable.
func Key(in analysis.Input) (string, error) {
	params, err := analysis.ParametersFingerprint(in.Parameters)
	if err != nil {
		return "", err
	}
	return analysis.ClassificationFingerprint(in.Classification) + "_" +
		analysis.Fingerprint(analysis.Prefix(in.Text, keyTextPrefix)) + "_" +
		strconv.Itoa(len(in.Text)) + "_" +
		params, nil
}

// Get looks up the snapshot stored for in.
//
// Inputs:
//
//	ctx - Context for the persistent tier.
//	in - The analysis input.
//
// Outputs:
//
//	analysis.Snapshot - A deep copy of the stored snapshot.
//	bool - True on a hit.
//	error - Wraps analysis.ErrCacheUnavailable when the store fails, or
//	        analysis.ErrUnencodableParameters when in has no key.
func (c *ResultCache) Get(ctx context.Context, in analysis.Input) (analysis.Snapshot, bool, error) {
	ctx, span := startCacheSpan(ctx, "Get")
	defer span.End()

	key, err := Key(in)
	if err != nil {
		return analysis.Snapshot{}, false, err
	}
	start := time.Now()
	c.requests.Add(1)

	if snap, ok := c.getMemory(ctx, key); ok {
		c.hits.Add(1)
		span.SetAttributes(attribute.Bool("cache.hit", true), attribute.String("cache.tier", "memory"))
		recordCacheGet(ctx, time.Since(start), true, "memory")
		return snap, true, nil
	}

	if c.options.Store == nil {
		c.misses.Add(1)
		span.SetAttributes(attribute.Bool("cache.hit", false))
		recordCacheGet(ctx, time.Since(start), false, "memory")
		return analysis.Snapshot{}, false, nil
	}

	v, err, _ := c.flight.Do(key, func() (any, error) {
		e, ok, err := c.options.Store.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok || c.expired(e) {
			return nil, nil
		}
		c.promote(ctx, e)
		return e, nil
	})
	if err != nil {
		c.misses.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, "store read failed")
		return analysis.Snapshot{}, false, fmt.Errorf("%w: read %s: %v", analysis.ErrCacheUnavailable, key, err)
	}
	if v == nil {
		c.misses.Add(1)
		span.SetAttributes(attribute.Bool("cache.hit", false))
		recordCacheGet(ctx, time.Since(start), false, "store")
		return analysis.Snapshot{}, false, nil
	}

	c.hits.Add(1)
	span.SetAttributes(attribute.Bool("cache.hit", true), attribute.String("cache.tier", "store"))
	recordCacheGet(ctx, time.Since(start), true, "store")
	return v.(*Entry).Snapshot.Clone(), true, nil
}

// Set stores snap for in, evicting entries as needed.
func (c *ResultCache) Set(ctx context.Context, in analysis.Input, snap analysis.Snapshot) error {
	ctx, span := startCacheSpan(ctx, "Set")
	defer span.End()

	key, err := Key(in)
	if err != nil {
		return err
	}
	now := c.options.Now()
	e := &Entry{
		Key:                key,
		Snapshot:           snap.Clone(),
		Parameters:         maps.Clone(in.Parameters),
		TextPrefix:         analysis.Prefix(in.Text, keyTextPrefix),
		ClassificationHash: analysis.ClassificationFingerprint(in.Classification),
		CreatedAt:          now,
		LastAccess:         now,
		AccessCount:        1,
	}
	size, err := estimateSize(e)
	if err != nil {
		return fmt.Errorf("estimate cache entry size: %w", err)
	}
	e.SizeBytes = size

	if c.options.Store != nil {
		if err := c.options.Store.Put(ctx, e, c.options.TTL); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "store write failed")
			return fmt.Errorf("%w: write %s: %v", analysis.ErrCacheUnavailable, e.Key, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.insertLocked(ctx, e)
	return nil
}

// InvalidateByParameters removes every entry whose stored parameters
// contain each key of subset with an equal JSON value. An empty subset
// matches nothing.
func (c *ResultCache) InvalidateByParameters(ctx context.Context, subset map[string]any) (int, error) {
	if len(subset) == 0 {
		return 0, nil
	}
	want := make(map[string]string, len(subset))
	for k, v := range subset {
		b, err := json.Marshal(v)
		if err != nil {
			return 0, fmt.Errorf("encode parameter %q: %w", k, err)
		}
		want[k] = string(b)
	}

	return c.invalidate(ctx, "parameters", func(e *Entry) bool {
		for k, encoded := range want {
			v, ok := e.Parameters[k]
			if !ok {
				return false
			}
			b, err := json.Marshal(v)
			if err != nil || string(b) != encoded {
				return false
			}
		}
		return true
	})
}

// InvalidateByClassification removes every entry stored for classification.
func (c *ResultCache) InvalidateByClassification(ctx context.Context, classification analysis.Classification) (int, error) {
	hash := analysis.ClassificationFingerprint(classification)
	return c.invalidate(ctx, "classification", func(e *Entry) bool {
		return e.ClassificationHash == hash
	})
}

// InvalidateByTextSimilarity removes every entry whose text prefix has a
// word-set Jaccard similarity of at least threshold with text.
func (c *ResultCache) InvalidateByTextSimilarity(ctx context.Context, text string, threshold float64) (int, error) {
	if threshold <= 0 {
		threshold = DefaultSimilarityThreshold
	}
	words := wordSet(analysis.Prefix(text, keyTextPrefix))
	return c.invalidate(ctx, "text_similarity", func(e *Entry) bool {
		return Jaccard(words, wordSet(e.TextPrefix)) >= threshold
	})
}

// Clear removes every entry from both tiers and resets the counters.
func (c *ResultCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]*Entry)
	c.lru.Init()
	c.sizeBytes = 0
	c.mu.Unlock()

	c.hits.Store(0)
	c.misses.Store(0)
	c.requests.Store(0)
	c.evictions.Store(0)

	if c.options.Store != nil {
		if err := c.options.Store.Clear(ctx); err != nil {
			return fmt.Errorf("%w: clear: %v", analysis.ErrCacheUnavailable, err)
		}
	}
	return nil
}

// Metrics returns the current counters.
func (c *ResultCache) Metrics() Metrics {
	c.mu.Lock()
	entryCount := len(c.entries)
	size := c.sizeBytes
	c.mu.Unlock()

	m := Metrics{
		TotalHits:     c.hits.Load(),
		TotalMisses:   c.misses.Load(),
		TotalRequests: c.requests.Load(),
		EntryCount:    entryCount,
		SizeBytes:     size,
		EvictionCount: c.evictions.Load(),
	}
	if m.TotalRequests > 0 {
		m.AverageHitRate = float64(m.TotalHits) / float64(m.TotalRequests)
	}
	return m
}

// Stats returns the hit/miss summary attached to analysis results.
func (c *ResultCache) Stats() analysis.CacheStats {
	m := c.Metrics()
	return analysis.CacheStats{Hits: m.TotalHits, Misses: m.TotalMisses, HitRate: m.AverageHitRate}
}

// Len returns the number of in-memory entries.
func (c *ResultCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Cleanup removes expired in-memory entries and returns how many it removed.
// Persistent entries expire through the store's own TTL.
func (c *ResultCache) Cleanup(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if c.expired(e) {
			c.removeLocked(key, e)
			c.evictions.Add(1)
			recordCacheEviction(ctx)
			removed++
		}
	}
	return removed
}

// StartCleanup runs Cleanup every CleanupInterval until Close is called.
// Calling it more than once has no effect.
func (c *ResultCache) StartCleanup() {
	c.startOnce.Do(func() {
		go func() {
			defer close(c.done)
			ticker := time.NewTicker(c.options.CleanupInterval)
			defer ticker.Stop()
			for {
				select {
				case <-c.stop:
					return
				case <-ticker.C:
					if n := c.Cleanup(context.Background()); n > 0 {
						c.logger.Debug("expired cache entries removed", slog.Int("count", n))
					}
				}
			}
		}()
	})
}

// Close stops the cleanup goroutine, if running.
func (c *ResultCache) Close() error {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
	started := true
	c.startOnce.Do(func() { started = false })
	if started {
		<-c.done
	}
	return nil
}

// invalidate removes matching entries from both tiers.
func (c *ResultCache) invalidate(ctx context.Context, selector string, match func(*Entry) bool) (int, error) {
	ctx, span := startCacheSpan(ctx, "Invalidate")
	defer span.End()
	span.SetAttributes(attribute.String("cache.selector", selector))

	removed := make(map[string]struct{})

	c.mu.Lock()
	for key, e := range c.entries {
		if match(e) {
			c.removeLocked(key, e)
			removed[key] = struct{}{}
		}
	}
	c.mu.Unlock()

	if c.options.Store != nil {
		var keys []string
		err := c.options.Store.Scan(ctx, func(e *Entry) bool {
			if match(e) {
				keys = append(keys, e.Key)
			}
			return true
		})
		if err == nil && len(keys) > 0 {
			err = c.options.Store.Delete(ctx, keys...)
		}
		if err != nil {
			span.RecordError(err)
			return len(removed), fmt.Errorf("%w: invalidate by %s: %v", analysis.ErrCacheUnavailable, selector, err)
		}
		for _, k := range keys {
			removed[k] = struct{}{}
		}
	}

	n := len(removed)
	c.evictions.Add(int64(n))
	recordInvalidation(ctx, selector, n)
	c.logger.Info("cache invalidated", slog.String("selector", selector), slog.Int("count", n))
	return n, nil
}

func (c *ResultCache) getMemory(ctx context.Context, key string) (analysis.Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return analysis.Snapshot{}, false
	}
	if c.expired(e) {
		c.removeLocked(key, e)
		c.evictions.Add(1)
		recordCacheEviction(ctx)
		return analysis.Snapshot{}, false
	}
	c.touchLocked(e)
	return e.Snapshot.Clone(), true
}

// promote copies a store hit into the memory tier.
func (c *ResultCache) promote(ctx context.Context, e *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cp := *e
	cp.lruElement = nil
	cp.Snapshot = e.Snapshot.Clone()
	c.insertLocked(ctx, &cp)
	c.touchLocked(&cp)
}

func (c *ResultCache) touchLocked(e *Entry) {
	e.AccessCount++
	e.LastAccess = c.options.Now()
	if e.lruElement != nil {
		c.lru.MoveToFront(e.lruElement)
	}
}

// insertLocked adds e, replacing any entry with the same key.
// Caller must hold c.mu.
func (c *ResultCache) insertLocked(ctx context.Context, e *Entry) {
	if old, ok := c.entries[e.Key]; ok {
		c.removeLocked(e.Key, old)
	}
	c.ensureSpaceLocked(ctx, e.SizeBytes)
	e.lruElement = c.lru.PushFront(e.Key)
	c.entries[e.Key] = e
	c.sizeBytes += e.SizeBytes
}

// ensureSpaceLocked evicts until one more entry of size bytes fits.
// Expired entries go first, then the least recently used.
func (c *ResultCache) ensureSpaceLocked(ctx context.Context, size int64) {
	for len(c.entries) > 0 &&
		(len(c.entries) >= c.options.MaxEntries || c.sizeBytes+size > c.options.MaxSizeBytes) {
		victim := c.victimLocked()
		if victim == nil {
			return
		}
		c.removeLocked(victim.Key, victim)
		c.evictions.Add(1)
		recordCacheEviction(ctx)
	}
}

func (c *ResultCache) victimLocked() *Entry {
	for el := c.lru.Back(); el != nil; el = el.Prev() {
		if e := c.entries[el.Value.(string)]; e != nil && c.expired(e) {
			return e
		}
	}
	if back := c.lru.Back(); back != nil {
		return c.entries[back.Value.(string)]
	}
	return nil
}

func (c *ResultCache) removeLocked(key string, e *Entry) {
	if e.lruElement != nil {
		c.lru.Remove(e.lruElement)
		e.lruElement = nil
	}
	delete(c.entries, key)
	c.sizeBytes -= e.SizeBytes
	if c.sizeBytes < 0 {
		c.sizeBytes = 0
	}
}

func (c *ResultCache) expired(e *Entry) bool {
	return c.options.TTL > 0 && c.options.Now().Sub(e.CreatedAt) >= c.options.TTL
}

// estimateSize is the JSON size of the entry.
func estimateSize(e *Entry) (int64, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return 0, err
	}
	return int64(len(b)), nil
}
