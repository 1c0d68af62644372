// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import "testing"

func TestResolveModel(t *testing.T) {
	tests := []struct {
		alias string
		want  string
	}{
		{"haiku", "claude-haiku-4-5"},
		{"claude", "claude-sonnet-4-5"},
		{"local", "qwen2.5-coder:1.5b"},
		{"codestral", "codestral:22b"},
		{"gemma3:4b", "gemma3:4b"},
		{"gpt-4o-mini", "gpt-4o-mini"},
	}
	for _, tt := range tests {
		if got := ResolveModel(tt.alias); got != tt.want {
			t.Errorf("ResolveModel(%q) = %q, want %q", tt.alias, got, tt.want)
		}
	}
}

func TestDetectProvider(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{"claude-haiku-4-5", "anthropic"},
		{"claude-sonnet-4-5", "anthropic"},
		{"gpt-4o", "openai"},
		{"gpt-4o-mini", "openai"},
		{"o1-mini", "openai"},
		{"qwen2.5-coder:1.5b", "ollama"},
		{"gemma3:4b", "ollama"},
		{"deepseek-coder:33b", "ollama"},
		{"mock", "mock"},
		{"mock:demo", "mock"},
		{"mockingbird:7b", "ollama"},
	}
	for _, tt := range tests {
		if got := DetectProvider(tt.model); got != tt.want {
			t.Errorf("DetectProvider(%q) = %q, want %q", tt.model, got, tt.want)
		}
	}
}

func TestNew_OllamaDefault(t *testing.T) {
	t.Setenv("OLLAMA_BASE_URL", "http://localhost:11434")

	client, err := New("gemma3:4b")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, ok := client.(*OllamaClient); !ok {
		t.Fatalf("New() returned %T, want *OllamaClient", client)
	}
	if client.Name() != "gemma3:4b" {
		t.Errorf("Name() = %q, want gemma3:4b", client.Name())
	}
}

func TestNew_OllamaImplementsWarmer(t *testing.T) {
	client, err := New("local")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, ok := client.(Warmer); !ok {
		t.Fatal("Ollama client should implement Warmer")
	}
}

func TestNew_OpenAIWithoutKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	if _, err := New("gpt-4o-mini"); err == nil {
		t.Fatal("New() should fail without an OpenAI API key")
	}
}
