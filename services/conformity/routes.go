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
	"log/slog"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/AleutianConformity/services/conformity/config"
	"github.com/AleutianAI/AleutianConformity/services/conformity/telemetry"
)

// RegisterRoutes registers all conformity routes with the router.
//
// Description:
//
//	Registers all /v1/conformity/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Analysis Endpoints:
//
//	POST /v1/conformity/analyze - Full four-category analysis
//	POST /v1/conformity/analyze/:category - Single-category analysis
//
// Cache Endpoints:
//
//	DELETE /v1/conformity/cache - Invalidate by parameters, or clear
//	POST   /v1/conformity/cache/invalidate/classification - Invalidate by classification
//	POST   /v1/conformity/cache/invalidate/text - Invalidate by text similarity
//
// Operations Endpoints:
//
//	GET    /v1/conformity/metrics/cache - Cache counters
//	GET    /v1/conformity/metrics/fallback - Fallback counters
//	GET    /v1/conformity/fallback/logs - Recent fallback log entries
//	DELETE /v1/conformity/fallback/logs - Clear the fallback log
//	DELETE /v1/conformity/fallback/errors - Reset fallback error counts
//	GET    /v1/conformity/health - Analyzer health
//	GET    /v1/conformity/active - In-flight analyses
//	GET    /v1/conformity/config - Current orchestrator config
//	PATCH  /v1/conformity/config - Update orchestrator config
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	cf := rg.Group("/conformity")
	{
		cf.POST("/analyze", handlers.HandleAnalyze)
		cf.POST("/analyze/:category", handlers.HandleAnalyzeCategory)

		cf.DELETE("/cache", handlers.HandleInvalidateCache)
		cf.POST("/cache/invalidate/classification", handlers.HandleInvalidateByClassification)
		cf.POST("/cache/invalidate/text", handlers.HandleInvalidateByText)

		cf.GET("/metrics/cache", handlers.HandleCacheMetrics)
		cf.GET("/metrics/fallback", handlers.HandleFallbackMetrics)
		cf.GET("/fallback/logs", handlers.HandleFallbackLogs)
		cf.DELETE("/fallback/logs", handlers.HandleClearFallbackLogs)
		cf.DELETE("/fallback/errors", handlers.HandleResetFallbackErrors)
		cf.GET("/health", handlers.HandleHealth)
		cf.GET("/active", handlers.HandleActive)
		cf.GET("/config", handlers.HandleGetConfig)
		cf.PATCH("/config", handlers.HandleUpdateConfig)
	}
}

// NewRouter builds the service's gin engine.
//
// Description:
//
//	Installs recovery, tracing, request IDs, access logging, the body cap
//	and the rate limiter, mounts the Prometheus scrape endpoint at
//	/metrics and the conformity API under /v1.
//
// Inputs:
//
//	cfg - Server settings.
//	handlers - The handlers instance.
//	serviceName - Span service name for otelgin.
//	logger - Access log destination.
func NewRouter(cfg config.ServerConfig, handlers *Handlers, serviceName string, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(RequestID())
	router.Use(AccessLog(logger))

	router.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))

	v1 := router.Group("/v1")
	v1.Use(MaxBodyBytes(cfg.MaxBodyBytes), RateLimit(cfg.RateLimit, cfg.Burst))
	RegisterRoutes(v1, handlers)
	return router
}
