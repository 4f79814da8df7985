// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package conformity

import (
	"time"

	"github.com/AleutianAI/AleutianConformity/services/conformity/analysis"
	"github.com/AleutianAI/AleutianConformity/services/conformity/orchestrator"
)

// AnalyzeRequest is the request body for POST /v1/conformity/analyze and
// POST /v1/conformity/analyze/:category.
type AnalyzeRequest struct {
	// Text is the document text. Empty text is analyzed, not rejected.
	Text string `json:"text"`

	// Classification selects the rule sets.
	Classification analysis.Classification `json:"classification"`

	// Parameters are analysis parameters. They are part of the cache key.
	Parameters map[string]any `json:"parameters,omitempty"`
}

// CategoryResponse is the response for POST /v1/conformity/analyze/:category.
type CategoryResponse struct {
	Category analysis.Category `json:"category"`
	Result   analysis.Result   `json:"result"`
}

// InvalidateRequest is the optional body for DELETE /v1/conformity/cache.
type InvalidateRequest struct {
	// Parameters selects entries whose parameters contain these pairs.
	// Empty clears the whole cache.
	Parameters map[string]any `json:"parameters,omitempty"`
}

// InvalidateTextRequest is the body for POST /v1/conformity/cache/invalidate/text.
type InvalidateTextRequest struct {
	Text string `json:"text" binding:"required"`

	// Threshold is the minimum similarity in [0,1]. Zero uses the cache default.
	Threshold float64 `json:"threshold" binding:"gte=0,lte=1"`
}

// InvalidateResponse reports how many cache entries were removed.
type InvalidateResponse struct {
	Invalidated int `json:"invalidated"`
}

// HealthResponse is the response for GET /v1/conformity/health.
type HealthResponse struct {
	// Status is "healthy" or "degraded".
	Status         string                           `json:"status"`
	Version        string                           `json:"version"`
	Analyzers      map[string]analysis.HealthStatus `json:"analyzers"`
	ActiveAnalyses int                              `json:"active_analyses"`
}

// ActiveResponse is the response for GET /v1/conformity/active.
type ActiveResponse struct {
	ActiveAnalyses int `json:"active_analyses"`
}

// ConfigPatchRequest is the body for PATCH /v1/conformity/config. Omitted
// fields are left unchanged.
type ConfigPatchRequest struct {
	EnableCache           *bool   `json:"enable_cache,omitempty"`
	EnableFallback        *bool   `json:"enable_fallback,omitempty"`
	ParallelAnalysis      *bool   `json:"parallel_analysis,omitempty"`
	MaxConcurrentAnalyses *int    `json:"max_concurrent_analyses,omitempty"`
	Timeout               *string `json:"timeout,omitempty"`
}

// ConfigResponse renders an orchestrator configuration with a readable
// timeout.
type ConfigResponse struct {
	EnableCache           bool   `json:"enable_cache"`
	EnableFallback        bool   `json:"enable_fallback"`
	ParallelAnalysis      bool   `json:"parallel_analysis"`
	MaxConcurrentAnalyses int    `json:"max_concurrent_analyses"`
	Timeout               string `json:"timeout"`
}

func newConfigResponse(cfg orchestrator.Config) ConfigResponse {
	return ConfigResponse{
		EnableCache:           cfg.EnableCache,
		EnableFallback:        cfg.EnableFallback,
		ParallelAnalysis:      cfg.ParallelAnalysis,
		MaxConcurrentAnalyses: cfg.MaxConcurrentAnalyses,
		Timeout:               cfg.Timeout.String(),
	}
}

// toPatch converts the request, parsing the timeout.
func (r ConfigPatchRequest) toPatch() (orchestrator.Patch, error) {
	p := orchestrator.Patch{
		EnableCache:           r.EnableCache,
		EnableFallback:        r.EnableFallback,
		ParallelAnalysis:      r.ParallelAnalysis,
		MaxConcurrentAnalyses: r.MaxConcurrentAnalyses,
	}
	if r.Timeout != nil {
		d, err := time.ParseDuration(*r.Timeout)
		if err != nil {
			return orchestrator.Patch{}, err
		}
		p.Timeout = &d
	}
	return p, nil
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the error message.
	Error string `json:"error"`

	// Code is the error code (optional).
	Code string `json:"code,omitempty"`

	// Details provides additional error context (optional).
	Details string `json:"details,omitempty"`
}
