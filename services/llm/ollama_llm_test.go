// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// Mock Server Helpers
// =============================================================================

// newOllamaClientForServer points a client at a test server.
func newOllamaClientForServer(t *testing.T, server *httptest.Server, model string) *OllamaClient {
	t.Helper()
	t.Setenv("OLLAMA_BASE_URL", server.URL)
	client, err := NewOllamaClient(model)
	if err != nil {
		t.Fatalf("NewOllamaClient() error: %v", err)
	}
	return client
}

// =============================================================================
// Generate Tests
// =============================================================================

func TestOllamaClient_Generate(t *testing.T) {
	var gotReq ollamaGenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(ollamaGenerateResponse{
			Model:    "gemma3:4b",
			Response: "return a + b",
			Done:     true,
		})
	}))
	defer server.Close()

	client := newOllamaClientForServer(t, server, "gemma3:4b")

	temp := float32(0.2)
	maxTokens := 100
	got, err := client.Generate(context.Background(), "def add(a, b):\n    ", GenerationParams{
		Temperature: &temp,
		MaxTokens:   &maxTokens,
		System:      "complete the code",
	})
	if err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	if got != "return a + b" {
		t.Errorf("Generate() = %q, want %q", got, "return a + b")
	}

	if gotReq.Model != "gemma3:4b" {
		t.Errorf("request model = %q", gotReq.Model)
	}
	if gotReq.System != "complete the code" {
		t.Errorf("request system = %q", gotReq.System)
	}
	if gotReq.Stream {
		t.Error("completion requests must not stream")
	}
	if gotReq.KeepAlive != "-1" {
		t.Errorf("keep_alive = %q, want -1", gotReq.KeepAlive)
	}
	if gotReq.Options["num_predict"] != float64(100) {
		t.Errorf("num_predict = %v, want 100", gotReq.Options["num_predict"])
	}
}

func TestOllamaClient_Generate_ModelNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "model 'missing:1b' not found"}`))
	}))
	defer server.Close()

	client := newOllamaClientForServer(t, server, "missing:1b")

	_, err := client.Generate(context.Background(), "x", GenerationParams{})
	if err == nil {
		t.Fatal("Generate() should fail for a missing model")
	}
	if !strings.Contains(err.Error(), "ollama pull") {
		t.Errorf("error should suggest pulling the model, got: %v", err)
	}
}

func TestOllamaClient_Generate_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("out of memory"))
	}))
	defer server.Close()

	client := newOllamaClientForServer(t, server, "gemma3:4b")

	_, err := client.Generate(context.Background(), "x", GenerationParams{})
	if err == nil {
		t.Fatal("Generate() should surface server errors")
	}
	if !strings.Contains(err.Error(), "status 500") {
		t.Errorf("error should include the status, got: %v", err)
	}
}

func TestOllamaClient_Generate_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	client := newOllamaClientForServer(t, server, "gemma3:4b")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Generate(ctx, "x", GenerationParams{})
	if err == nil {
		t.Fatal("Generate() should fail when the context expires")
	}
	if time.Since(start) > time.Second {
		t.Error("Generate() did not return promptly on context expiry")
	}
}

// =============================================================================
// Warm Tests
// =============================================================================

func TestOllamaClient_Warm(t *testing.T) {
	var gotReq ollamaGenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(ollamaGenerateResponse{Done: true})
	}))
	defer server.Close()

	client := newOllamaClientForServer(t, server, "gemma3:4b")

	if err := client.Warm(context.Background()); err != nil {
		t.Fatalf("Warm() error: %v", err)
	}
	if gotReq.Prompt != "" {
		t.Errorf("warmup prompt = %q, want empty", gotReq.Prompt)
	}
	if gotReq.KeepAlive != "-1" {
		t.Errorf("warmup keep_alive = %q, want -1", gotReq.KeepAlive)
	}
}

func TestOllamaClient_Warm_ServerDown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := newOllamaClientForServer(t, server, "gemma3:4b")

	if err := client.Warm(context.Background()); err == nil {
		t.Fatal("Warm() should fail when Ollama is unreachable")
	}
}
