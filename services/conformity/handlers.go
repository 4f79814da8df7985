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
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianConformity/services/conformity/analysis"
	"github.com/AleutianAI/AleutianConformity/services/conformity/orchestrator"
	"github.com/AleutianAI/AleutianConformity/services/conformity/telemetry"
)

const requestIDKey = "request_id"

// Handlers contains the HTTP handlers for the conformity engine.
type Handlers struct {
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
}

// NewHandlers creates handlers for the given orchestrator.
func NewHandlers(orch *orchestrator.Orchestrator, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{orch: orch, logger: logger}
}

func (h *Handlers) requestLogger(c *gin.Context, handler string) *slog.Logger {
	return telemetry.LoggerWithTrace(c.Request.Context(), h.logger).
		With("request_id", getOrCreateRequestID(c), "handler", handler)
}

// HandleAnalyze handles POST /v1/conformity/analyze.
//
// Description:
//
//	Runs the four analyzers over the document and returns the aggregate
//	verdict. Failing categories come back degraded rather than failing
//	the request.
//
// Request Body:
//
//	AnalyzeRequest
//
// Response:
//
//	200 OK: analysis.ComprehensiveResult
//	400 Bad Request: Malformed body or classification
//	413 Request Entity Too Large: Body over the server limit
//	429 Too Many Requests: Concurrent analysis limit reached
//	503 Service Unavailable: Result cache unavailable
//	504 Gateway Timeout: Analysis deadline exceeded
func (h *Handlers) HandleAnalyze(c *gin.Context) {
	logger := h.requestLogger(c, "HandleAnalyze")

	req, ok := bindAnalyzeRequest(c, logger)
	if !ok {
		return
	}

	logger.Info("Analyzing document",
		"document_type", req.Classification.DocumentType,
		"chars", len([]rune(req.Text)))

	res, err := h.orch.AnalyzeDocument(c.Request.Context(), req.Text, req.Classification, req.Parameters)
	if err != nil {
		logger.Error("Analysis failed", "error", err)
		writeError(c, err, "Analysis failed")
		return
	}

	logger.Info("Analysis complete",
		"analysis_id", res.AnalysisID,
		"score", res.OverallScore,
		"from_cache", res.FromCache)
	c.JSON(http.StatusOK, res)
}

// HandleAnalyzeCategory handles POST /v1/conformity/analyze/:category.
//
// Description:
//
//	Runs a single analyzer. The result cache, concurrency limit and
//	fallback system are bypassed.
//
// Path Parameters:
//
//	category - structural, legal, clarity, abnt (alias formatting)
//
// Response:
//
//	200 OK: CategoryResponse
//	400 Bad Request: Malformed body or classification
//	404 Not Found: Unknown category
func (h *Handlers) HandleAnalyzeCategory(c *gin.Context) {
	logger := h.requestLogger(c, "HandleAnalyzeCategory")

	category, err := analysis.ParseCategory(c.Param("category"))
	if err != nil {
		writeError(c, err, "Unknown category")
		return
	}

	req, ok := bindAnalyzeRequest(c, logger)
	if !ok {
		return
	}

	res, err := h.orch.AnalyzeCategory(c.Request.Context(), category, req.Text, req.Classification, req.Parameters)
	if err != nil {
		logger.Error("Category analysis failed", "category", category.String(), "error", err)
		writeError(c, err, "Analysis failed")
		return
	}
	c.JSON(http.StatusOK, CategoryResponse{Category: category, Result: res})
}

// HandleInvalidateCache handles DELETE /v1/conformity/cache.
//
// Description:
//
//	With a body carrying parameters, removes the entries whose
//	parameters contain them. Without one, clears every cache.
//
// Response:
//
//	200 OK: InvalidateResponse
//	400 Bad Request: Malformed body
func (h *Handlers) HandleInvalidateCache(c *gin.Context) {
	logger := h.requestLogger(c, "HandleInvalidateCache")

	var req InvalidateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		logger.Warn("Invalid request body", "error", err)
		writeBindError(c, err)
		return
	}

	n, err := h.orch.InvalidateCache(c.Request.Context(), req.Parameters)
	if err != nil {
		logger.Error("Cache invalidation failed", "error", err)
		writeError(c, err, "Cache invalidation failed")
		return
	}
	logger.Info("Cache invalidated", "invalidated", n, "cleared", len(req.Parameters) == 0)
	c.JSON(http.StatusOK, InvalidateResponse{Invalidated: n})
}

// HandleInvalidateByClassification handles
// POST /v1/conformity/cache/invalidate/classification.
func (h *Handlers) HandleInvalidateByClassification(c *gin.Context) {
	logger := h.requestLogger(c, "HandleInvalidateByClassification")

	var req analysis.Classification
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		writeBindError(c, err)
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid classification",
			Code:    "INVALID_CLASSIFICATION",
			Details: err.Error(),
		})
		return
	}

	n, err := h.orch.InvalidateCacheByClassification(c.Request.Context(), req)
	if err != nil {
		logger.Error("Cache invalidation failed", "error", err)
		writeError(c, err, "Cache invalidation failed")
		return
	}
	c.JSON(http.StatusOK, InvalidateResponse{Invalidated: n})
}

// HandleInvalidateByText handles POST /v1/conformity/cache/invalidate/text.
func (h *Handlers) HandleInvalidateByText(c *gin.Context) {
	logger := h.requestLogger(c, "HandleInvalidateByText")

	var req InvalidateTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		writeBindError(c, err)
		return
	}

	n, err := h.orch.InvalidateCacheByText(c.Request.Context(), req.Text, req.Threshold)
	if err != nil {
		logger.Error("Cache invalidation failed", "error", err)
		writeError(c, err, "Cache invalidation failed")
		return
	}
	c.JSON(http.StatusOK, InvalidateResponse{Invalidated: n})
}

// HandleCacheMetrics handles GET /v1/conformity/metrics/cache.
func (h *Handlers) HandleCacheMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.CacheMetrics())
}

// HandleFallbackMetrics handles GET /v1/conformity/metrics/fallback.
func (h *Handlers) HandleFallbackMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.orch.FallbackMetrics())
}

// HandleFallbackLogs handles GET /v1/conformity/fallback/logs.
//
// Query Parameters:
//
//	limit - Maximum entries, newest last (optional, default 100)
func (h *Handlers) HandleFallbackLogs(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error: "limit must be a positive integer",
				Code:  "INVALID_REQUEST",
			})
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, h.orch.FallbackLogs(limit))
}

// HandleClearFallbackLogs handles DELETE /v1/conformity/fallback/logs.
//
// Response:
//
//	204 No Content
func (h *Handlers) HandleClearFallbackLogs(c *gin.Context) {
	h.orch.ClearFallbackLogs()
	h.requestLogger(c, "HandleClearFallbackLogs").Info("Fallback logs cleared")
	c.Status(http.StatusNoContent)
}

// HandleResetFallbackErrors handles DELETE /v1/conformity/fallback/errors.
//
// Response:
//
//	204 No Content
func (h *Handlers) HandleResetFallbackErrors(c *gin.Context) {
	h.orch.ResetFallbackErrors()
	h.requestLogger(c, "HandleResetFallbackErrors").Info("Fallback error counts reset")
	c.Status(http.StatusNoContent)
}

// HandleHealth handles GET /v1/conformity/health.
//
// Response:
//
//	200 OK: HealthResponse with status "healthy"
//	503 Service Unavailable: HealthResponse with status "degraded" when
//	  any analyzer is unhealthy
func (h *Handlers) HandleHealth(c *gin.Context) {
	analyzers := h.orch.AnalyzerHealthStatus()
	resp := HealthResponse{
		Status:         "healthy",
		Version:        ServiceVersion,
		Analyzers:      analyzers,
		ActiveAnalyses: h.orch.ActiveAnalysesCount(),
	}
	status := http.StatusOK
	for _, hs := range analyzers {
		if !hs.Healthy {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			break
		}
	}
	c.JSON(status, resp)
}

// HandleActive handles GET /v1/conformity/active.
func (h *Handlers) HandleActive(c *gin.Context) {
	c.JSON(http.StatusOK, ActiveResponse{ActiveAnalyses: h.orch.ActiveAnalysesCount()})
}

// HandleGetConfig handles GET /v1/conformity/config.
func (h *Handlers) HandleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, newConfigResponse(h.orch.Config()))
}

// HandleUpdateConfig handles PATCH /v1/conformity/config.
//
// Response:
//
//	200 OK: ConfigResponse with the configuration now in effect
//	400 Bad Request: Malformed body or a value the orchestrator rejects
func (h *Handlers) HandleUpdateConfig(c *gin.Context) {
	logger := h.requestLogger(c, "HandleUpdateConfig")

	var req ConfigPatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		writeBindError(c, err)
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid timeout",
			Code:    "INVALID_REQUEST",
			Details: err.Error(),
		})
		return
	}
	if err := h.orch.UpdateConfig(patch); err != nil {
		logger.Warn("Config update rejected", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid configuration",
			Code:    "INVALID_CONFIG",
			Details: err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, newConfigResponse(h.orch.Config()))
}

// =============================================================================
// HELPERS
// =============================================================================

func bindAnalyzeRequest(c *gin.Context, logger *slog.Logger) (AnalyzeRequest, bool) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		writeBindError(c, err)
		return AnalyzeRequest{}, false
	}
	if err := req.Classification.Validate(); err != nil {
		logger.Warn("Invalid classification", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid classification",
			Code:    "INVALID_CLASSIFICATION",
			Details: err.Error(),
		})
		return AnalyzeRequest{}, false
	}
	return req, true
}

func writeBindError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
			Error: "Request body too large",
			Code:  "BODY_TOO_LARGE",
		})
		return
	}
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "Invalid request body",
		Code:    "INVALID_REQUEST",
		Details: err.Error(),
	})
}

// writeError maps engine errors to status codes.
func writeError(c *gin.Context, err error, msg string) {
	statusCode := http.StatusInternalServerError
	errCode := "ANALYSIS_FAILED"

	switch {
	case errors.Is(err, analysis.ErrConcurrencyLimit):
		statusCode = http.StatusTooManyRequests
		errCode = "CONCURRENCY_LIMIT"
		c.Header("Retry-After", "1")
	case errors.Is(err, analysis.ErrUnknownCategory):
		statusCode = http.StatusNotFound
		errCode = "UNKNOWN_CATEGORY"
	case errors.Is(err, analysis.ErrValidation):
		statusCode = http.StatusBadRequest
		errCode = "VALIDATION_FAILED"
	case errors.Is(err, analysis.ErrCacheUnavailable):
		statusCode = http.StatusServiceUnavailable
		errCode = "CACHE_UNAVAILABLE"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, analysis.ErrAnalyzerTimeout):
		statusCode = http.StatusGatewayTimeout
		errCode = "ANALYSIS_TIMEOUT"
	case errors.Is(err, analysis.ErrNoStrategy):
		errCode = "FALLBACK_EXHAUSTED"
	}

	c.JSON(statusCode, ErrorResponse{
		Error:   msg,
		Code:    errCode,
		Details: err.Error(),
	})
}

// getOrCreateRequestID returns the request's ID, creating one when the
// client sent none. The ID is echoed in the X-Request-ID header.
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetString(requestIDKey); id != "" {
		return id
	}
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(requestIDKey, requestID)
	c.Header("X-Request-ID", requestID)
	return requestID
}
