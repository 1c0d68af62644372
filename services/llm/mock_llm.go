// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"hash/fnv"
	"strings"
	"time"
)

// MockModelName selects the offline backend in the factory. The demo
// and simulator run on it so they work without Ollama or API keys.
const MockModelName = "mock"

// mockLatency makes the fetch cycle visible in interactive use.
const mockLatency = 120 * time.Millisecond

// MockClient is a deterministic offline backend. The same prompt
// always yields the same completion, so demos and tests are
// reproducible.
type MockClient struct {
	model string
	delay time.Duration
}

// NewMockClient creates the offline backend.
func NewMockClient(model string) *MockClient {
	if model == "" {
		model = MockModelName
	}
	return &MockClient{model: model, delay: mockLatency}
}

// Name implements the LLMClient interface
func (m *MockClient) Name() string { return m.model }

// completions are the canned bodies the mock deals out. All of them
// survive the engine's postprocessing (non-empty after trimming).
var completions = []string{
	"return a + b",
	"result = []",
	"if err != nil {\n\treturn err\n}",
	"for i, v := range items {",
	"raise ValueError(f\"unexpected value: {value}\")",
	"self.count += 1",
	"print(f\"processed {n} records\")",
	"value, ok := cache[key]",
}

// Generate implements the LLMClient interface.
//
// The completion is picked by hashing the prompt tail, with a couple
// of shape heuristics so ghost text looks plausible mid-demo.
func (m *MockClient) Generate(ctx context.Context, prompt string,
	params GenerationParams) (string, error) {

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	trimmed := strings.TrimRight(prompt, " \t\n")
	lines := strings.Split(trimmed, "\n")
	last := ""
	if len(lines) > 0 {
		last = strings.TrimSpace(lines[len(lines)-1])
	}

	switch {
	case last == "":
		return "", nil
	case strings.HasSuffix(last, ":"):
		// A Python block opener wants an indented body.
		if strings.HasPrefix(last, "def ") || strings.HasPrefix(last, "async def ") {
			return "return a + b", nil
		}
		return "pass", nil
	case strings.HasSuffix(last, "{"):
		return "return nil", nil
	case strings.HasSuffix(last, "="):
		return " []", nil
	case strings.HasSuffix(last, "("):
		return "a, b)", nil
	}

	h := fnv.New32a()
	h.Write([]byte(last))
	return completions[h.Sum32()%uint32(len(completions))], nil
}
