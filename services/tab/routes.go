// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tab

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handlers contains the HTTP handlers for the tab daemon.
type Handlers struct {
	svc *Service
	ws  gin.HandlerFunc
}

// NewHandlers creates handlers for the given service. ws serves the
// WebSocket editor transport; nil disables the /ws route.
func NewHandlers(svc *Service, ws gin.HandlerFunc) *Handlers {
	return &Handlers{svc: svc, ws: ws}
}

// HandleStats handles GET /v1/tab/stats.
//
// Response:
//
//	200 OK: protocol.GetStatsResult
func (h *Handlers) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.GetStats(c.Request.Context()))
}

// HandleRLStats handles GET /v1/tab/rlstats.
//
// Response:
//
//	200 OK: protocol.GetRLStatsResult
func (h *Handlers) HandleRLStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.svc.GetRLStats(c.Request.Context()))
}

// RegisterRoutes registers all tab daemon routes with the router.
//
// Description:
//
//	Registers all /v1/tab/* endpoints with the given Gin router group.
//	The router group should already have any required middleware applied.
//
// Inputs:
//
//	rg - Gin router group (typically /v1)
//	handlers - The handlers instance
//
// Endpoints:
//
//	GET /v1/tab/stats - Cache and request counters
//	GET /v1/tab/rlstats - Bandit arm statistics per bucket
//	GET /v1/tab/ws - WebSocket carrying the same JSON-RPC methods as stdio
//
// Example:
//
//	service, _ := tab.NewService(cfg, logger)
//	handlers := tab.NewHandlers(service, server.WSHandler())
//
//	v1 := router.Group("/v1")
//	tab.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	tab := rg.Group("/tab")
	{
		// Introspection
		tab.GET("/stats", handlers.HandleStats)
		tab.GET("/rlstats", handlers.HandleRLStats)

		// Editor transport
		if handlers.ws != nil {
			tab.GET("/ws", handlers.ws)
		}
	}
}
