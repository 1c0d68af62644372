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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianTab/services/tab/protocol"
)

func init() {
	// Set Gin to test mode to reduce noise
	gin.SetMode(gin.TestMode)
}

func setupTestRouter(svc *Service, ws gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	handlers := NewHandlers(svc, ws)
	v1 := router.Group("/v1")
	RegisterRoutes(v1, handlers)
	return router
}

func TestHandlers_HandleStats(t *testing.T) {
	svc, fake := newTestService(t)
	fake.memo.Put("main.py", "def add", 0, 7, "(a, b):", "standard")
	router := setupTestRouter(svc, nil)

	req, _ := http.NewRequest("GET", "/v1/tab/stats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp protocol.GetStatsResult
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.Model != svc.cfg.Model {
		t.Errorf("expected model %q, got %q", svc.cfg.Model, resp.Model)
	}
	if resp.Cache.Size != 1 {
		t.Errorf("expected cache size 1, got %d", resp.Cache.Size)
	}
}

func TestHandlers_HandleRLStats(t *testing.T) {
	svc, _ := newTestService(t)
	svc.policy.Update("python:function:small:start", "standard", 0.8)
	router := setupTestRouter(svc, nil)

	req, _ := http.NewRequest("GET", "/v1/tab/rlstats", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}

	var resp protocol.GetRLStatsResult
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	if resp.TotalInteractions != 1 {
		t.Errorf("expected 1 interaction, got %d", resp.TotalInteractions)
	}
	if _, ok := resp.Buckets["python:function:small:start"]; !ok {
		t.Error("expected the updated bucket in the response")
	}
}

func TestRegisterRoutes_WebSocketOptional(t *testing.T) {
	svc, _ := newTestService(t)

	t.Run("without handler", func(t *testing.T) {
		router := setupTestRouter(svc, nil)
		req, _ := http.NewRequest("GET", "/v1/tab/ws", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusNotFound {
			t.Errorf("expected %d without a ws handler, got %d", http.StatusNotFound, w.Code)
		}
	})

	t.Run("with handler", func(t *testing.T) {
		called := false
		router := setupTestRouter(svc, func(c *gin.Context) {
			called = true
			c.Status(http.StatusOK)
		})
		req, _ := http.NewRequest("GET", "/v1/tab/ws", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if !called {
			t.Error("expected the ws handler to be invoked")
		}
	})
}
