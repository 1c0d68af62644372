// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"testing"
)

func TestMockClient_Deterministic(t *testing.T) {
	c := NewMockClient("")
	c.delay = 0

	prompt := "def add(a, b):\n    total = a"
	first, err := c.Generate(context.Background(), prompt, GenerationParams{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if first == "" {
		t.Fatal("expected a completion")
	}
	second, _ := c.Generate(context.Background(), prompt, GenerationParams{})
	if first != second {
		t.Errorf("same prompt gave %q then %q", first, second)
	}
}

func TestMockClient_ShapeHeuristics(t *testing.T) {
	c := NewMockClient("mock")
	c.delay = 0

	tests := []struct {
		prompt string
		want   string
	}{
		{"def add(a, b):", "return a + b"},
		{"for item in items:", "pass"},
		{"func run() error {", "return nil"},
		{"", ""},
		{"   \n\t\n", ""},
	}
	for _, tt := range tests {
		got, err := c.Generate(context.Background(), tt.prompt, GenerationParams{})
		if err != nil {
			t.Fatalf("Generate(%q): %v", tt.prompt, err)
		}
		if got != tt.want {
			t.Errorf("Generate(%q) = %q, want %q", tt.prompt, got, tt.want)
		}
	}
}

func TestMockClient_HonorsContext(t *testing.T) {
	c := NewMockClient("mock")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Generate(ctx, "x = 1", GenerationParams{}); err == nil {
		t.Fatal("expected a context error")
	}
}

func TestNew_Mock(t *testing.T) {
	client, err := New("mock")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, ok := client.(*MockClient); !ok {
		t.Fatalf("New() returned %T, want *MockClient", client)
	}
	if client.Name() != "mock" {
		t.Errorf("Name() = %q", client.Name())
	}
}
