// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// ServiceName is the name reported by the HTTP tracing middleware.
const ServiceName = "beamsearch"

// NewRouter registers every endpoint on a new gin engine.
//
// Inputs:
//   - svc: The run registry.
//   - metrics: Handler for GET /metrics. Nil uses the default Prometheus
//     registry.
func NewRouter(svc *Service, metrics http.Handler) *gin.Engine {
	router := gin.Default()
	router.Use(otelgin.Middleware(ServiceName))

	if metrics == nil {
		metrics = promhttp.Handler()
	}

	h := NewHandlers(svc)
	router.GET("/health", h.HandleHealth)
	router.GET("/metrics", gin.WrapH(metrics))

	v1 := router.Group("/v1")
	{
		searches := v1.Group("/searches")
		searches.POST("", h.HandleStartSearch)
		searches.GET("", h.HandleListSearches)
		searches.GET("/:runKey", h.HandleGetSearch)
		searches.POST("/:runKey/resume", h.HandleResumeSearch)
		searches.POST("/:runKey/cancel", h.HandleCancelSearch)
		searches.GET("/:runKey/events", h.HandleGetEvents)
		searches.GET("/:runKey/ws", h.HandleEventsWebSocket)

		checkpoints := v1.Group("/checkpoints")
		checkpoints.GET("", h.HandleListCheckpoints)
		checkpoints.GET("/:runKey", h.HandleGetCheckpoint)
		checkpoints.DELETE("/:runKey", h.HandleDeleteCheckpoint)
	}

	return router
}
