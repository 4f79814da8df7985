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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianConformity/services/conformity/analysis"
	"github.com/AleutianAI/AleutianConformity/services/conformity/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var sampleText = strings.Repeat("1. DO OBJETO\nA presente licitação tem por objeto a aquisição de equipamentos de informática. "+
	"2. DO PRAZO\nO prazo de entrega será de 30 dias corridos contados da assinatura do contrato.\n", 3)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// setupTestRouter builds a service from the default config, adjusted by
// mutate, and its router.
func setupTestRouter(t *testing.T, mutate func(*config.Config)) (*gin.Engine, *Service) {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	svc, err := NewService(cfg, discard)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	router := NewRouter(cfg.Server, NewHandlers(svc.Orchestrator(), discard), "conformity-test", discard)
	return router, svc
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func analyzeBody(text string, params map[string]any) AnalyzeRequest {
	return AnalyzeRequest{
		Text: text,
		Classification: analysis.Classification{
			DocumentType: analysis.DocEdital,
			Modality:     analysis.ModalityBidding,
		},
		Parameters: params,
	}
}

// ---- Analyze Tests ----

func TestHandleAnalyze(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	w := doJSON(t, router, http.MethodPost, "/v1/conformity/analyze", analyzeBody(sampleText, nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	res := decode[analysis.ComprehensiveResult](t, w)
	assert.NotEmpty(t, res.AnalysisID)
	assert.False(t, res.FromCache)
	assert.GreaterOrEqual(t, res.OverallScore, 0.0)
	assert.LessOrEqual(t, res.OverallScore, 100.0)
	assert.Len(t, res.CategoryResults.Ordered(), 4)

	w = doJSON(t, router, http.MethodPost, "/v1/conformity/analyze", analyzeBody(sampleText, nil))
	require.Equal(t, http.StatusOK, w.Code)
	again := decode[analysis.ComprehensiveResult](t, w)
	assert.True(t, again.FromCache)
	assert.Equal(t, res.OverallScore, again.OverallScore)
}

func TestHandleAnalyze_BadRequests(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	tests := []struct {
		name     string
		body     any
		wantCode string
	}{
		{"malformed json", `{"text": `, "INVALID_REQUEST"},
		{"missing classification", `{"text": "abc"}`, "INVALID_CLASSIFICATION"},
		{"unknown document type", `{"text": "abc", "classification": {"document_type": "memo"}}`, "INVALID_CLASSIFICATION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/v1/conformity/analyze", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.wantCode, decode[ErrorResponse](t, w).Code)
		})
	}
}

func TestHandleAnalyze_BodyTooLarge(t *testing.T) {
	router, _ := setupTestRouter(t, func(c *config.Config) { c.Server.MaxBodyBytes = 64 })

	w := doJSON(t, router, http.MethodPost, "/v1/conformity/analyze", analyzeBody(sampleText, nil))
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "BODY_TOO_LARGE", decode[ErrorResponse](t, w).Code)
}

func TestHandleAnalyzeCategory(t *testing.T) {
	router, svc := setupTestRouter(t, nil)

	tests := []struct {
		path     string
		status   int
		category string
	}{
		{"/v1/conformity/analyze/legal", http.StatusOK, "legal"},
		{"/v1/conformity/analyze/formatting", http.StatusOK, "abnt"},
		{"/v1/conformity/analyze/spelling", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, tt.path, analyzeBody(sampleText, nil))
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.status != http.StatusOK {
				assert.Equal(t, "UNKNOWN_CATEGORY", decode[ErrorResponse](t, w).Code)
				return
			}
			resp := decode[CategoryResponse](t, w)
			assert.Equal(t, tt.category, resp.Category.String())
		})
	}
	assert.Zero(t, svc.Orchestrator().CacheMetrics().EntryCount, "single-category runs bypass the result cache")
}

// ---- Cache Tests ----

func TestHandleInvalidateCache(t *testing.T) {
	router, svc := setupTestRouter(t, nil)
	params := map[string]any{"orgao": "prefeitura"}

	require.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPost, "/v1/conformity/analyze", analyzeBody(sampleText, params)).Code)
	require.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPost, "/v1/conformity/analyze", analyzeBody(sampleText+" Anexo I.", nil)).Code)
	require.Equal(t, 2, svc.Orchestrator().CacheMetrics().EntryCount)

	w := doJSON(t, router, http.MethodDelete, "/v1/conformity/cache", InvalidateRequest{Parameters: params})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, decode[InvalidateResponse](t, w).Invalidated)

	w = doJSON(t, router, http.MethodDelete, "/v1/conformity/cache", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 0, decode[InvalidateResponse](t, w).Invalidated)

	w = doJSON(t, router, http.MethodGet, "/v1/conformity/metrics/cache", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), decode[map[string]any](t, w)["entry_count"])
}

func TestHandleInvalidateByClassification(t *testing.T) {
	router, _ := setupTestRouter(t, nil)
	require.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPost, "/v1/conformity/analyze", analyzeBody(sampleText, nil)).Code)

	w := doJSON(t, router, http.MethodPost, "/v1/conformity/cache/invalidate/classification",
		`{"document_type": "tr", "modality": "processo_licitatorio"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[InvalidateResponse](t, w).Invalidated)

	w = doJSON(t, router, http.MethodPost, "/v1/conformity/cache/invalidate/classification",
		`{"document_type": "edital", "modality": "processo_licitatorio"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decode[InvalidateResponse](t, w).Invalidated)

	w = doJSON(t, router, http.MethodPost, "/v1/conformity/cache/invalidate/classification", `{"document_type": ""}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleInvalidateByText(t *testing.T) {
	router, _ := setupTestRouter(t, nil)
	require.Equal(t, http.StatusOK, doJSON(t, router, http.MethodPost, "/v1/conformity/analyze", analyzeBody(sampleText, nil)).Code)

	w := doJSON(t, router, http.MethodPost, "/v1/conformity/cache/invalidate/text", `{"threshold": 0.5}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/v1/conformity/cache/invalidate/text", `{"text": "x", "threshold": 2}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodPost, "/v1/conformity/cache/invalidate/text", InvalidateTextRequest{Text: sampleText})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, decode[InvalidateResponse](t, w).Invalidated)
}

// ---- Operations Tests ----

func TestHandleHealth(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	w := doJSON(t, router, http.MethodGet, "/v1/conformity/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	health := decode[HealthResponse](t, w)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, ServiceVersion, health.Version)
	assert.Len(t, health.Analyzers, 4)

	// Empty text fails validation in every analyzer. Degraded results are
	// never cached, so each call counts against analyzer health.
	for range analysis.HealthErrorThreshold {
		w = doJSON(t, router, http.MethodPost, "/v1/conformity/analyze", analyzeBody("", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w = doJSON(t, router, http.MethodGet, "/v1/conformity/health", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	health = decode[HealthResponse](t, w)
	assert.Equal(t, "degraded", health.Status)
	assert.False(t, health.Analyzers["legal"].Healthy)
	assert.Equal(t, analysis.HealthErrorThreshold, health.Analyzers["legal"].ErrorCount)
}

func TestHandleFallbackEndpoints(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	w := doJSON(t, router, http.MethodGet, "/v1/conformity/fallback/logs?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodGet, "/v1/conformity/fallback/logs?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	w = doJSON(t, router, http.MethodGet, "/v1/conformity/metrics/fallback", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[map[string]any](t, w), "total_fallbacks")

	w = doJSON(t, router, http.MethodDelete, "/v1/conformity/fallback/logs", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, router, http.MethodDelete, "/v1/conformity/fallback/errors", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestHandleActive(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	w := doJSON(t, router, http.MethodGet, "/v1/conformity/active", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decode[ActiveResponse](t, w).ActiveAnalyses)
}

func TestHandleConfig(t *testing.T) {
	router, svc := setupTestRouter(t, nil)

	w := doJSON(t, router, http.MethodGet, "/v1/conformity/config", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "30s", decode[ConfigResponse](t, w).Timeout)

	tests := []struct {
		name     string
		body     string
		status   int
		wantCode string
	}{
		{"bad timeout", `{"timeout": "soon"}`, http.StatusBadRequest, "INVALID_REQUEST"},
		{"zero concurrency", `{"max_concurrent_analyses": 0}`, http.StatusBadRequest, "INVALID_CONFIG"},
		{"valid patch", `{"timeout": "10s", "enable_cache": false}`, http.StatusOK, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPatch, "/v1/conformity/config", tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decode[ErrorResponse](t, w).Code)
			}
		})
	}

	cfg := svc.Orchestrator().Config()
	assert.False(t, cfg.EnableCache)
	assert.Equal(t, "10s", cfg.Timeout.String())
	assert.Equal(t, 5, cfg.MaxConcurrentAnalyses)
}

func TestPrometheusEndpoint(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	w := doJSON(t, router, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

// ---- Middleware Tests ----

func TestRequestID_Echoed(t *testing.T) {
	router, _ := setupTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/conformity/active", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

func TestRateLimit(t *testing.T) {
	router, _ := setupTestRouter(t, func(c *config.Config) {
		c.Server.RateLimit = 0.001
		c.Server.Burst = 1
	})

	assert.Equal(t, http.StatusOK, doJSON(t, router, http.MethodGet, "/v1/conformity/active", nil).Code)
	w := doJSON(t, router, http.MethodGet, "/v1/conformity/active", nil)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "RATE_LIMITED", decode[ErrorResponse](t, w).Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, doJSON(t, router, http.MethodGet, "/metrics", nil).Code, "scrapes are not rate limited")
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		err      error
		status   int
		wantCode string
	}{
		{analysis.ErrConcurrencyLimit, http.StatusTooManyRequests, "CONCURRENCY_LIMIT"},
		{fmt.Errorf("%w: %q", analysis.ErrUnknownCategory, "x"), http.StatusNotFound, "UNKNOWN_CATEGORY"},
		{errors.Join(analysis.ErrValidation, errors.New("bad")), http.StatusBadRequest, "VALIDATION_FAILED"},
		{fmt.Errorf("%w: %w", analysis.ErrNoStrategy, analysis.ErrCacheUnavailable), http.StatusServiceUnavailable, "CACHE_UNAVAILABLE"},
		{context.DeadlineExceeded, http.StatusGatewayTimeout, "ANALYSIS_TIMEOUT"},
		{fmt.Errorf("%w: %w", analysis.ErrNoStrategy, errors.New("boom")), http.StatusInternalServerError, "FALLBACK_EXHAUSTED"},
		{errors.New("boom"), http.StatusInternalServerError, "ANALYSIS_FAILED"},
	}
	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			writeError(c, tt.err, "failed")
			assert.Equal(t, tt.status, w.Code)
			resp := decode[ErrorResponse](t, w)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.Equal(t, tt.err.Error(), resp.Details)
		})
	}
}
