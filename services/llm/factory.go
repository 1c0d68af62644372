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
	"log/slog"
	"strings"
)

// modelAliases maps short model names to full identifiers.
var modelAliases = map[string]string{
	"claude":         "claude-sonnet-4-5",
	"sonnet":         "claude-sonnet-4-5",
	"haiku":          "claude-haiku-4-5",
	"openai":         "gpt-4o-mini",
	"codestral":      "codestral:22b",
	"deepseek-coder": "deepseek-coder:33b",
	"qwen2.5-coder":  "qwen2.5-coder:32b",
	"local":          "qwen2.5-coder:1.5b",
	"ollama":         "qwen2.5-coder:1.5b",
}

// ResolveModel expands a model alias to its full identifier. Unknown
// names pass through unchanged.
func ResolveModel(model string) string {
	if full, ok := modelAliases[model]; ok {
		return full
	}
	return model
}

// DetectProvider picks a backend from the model name.
//
// Names containing "claude" go to Anthropic, "gpt" or "o1" to OpenAI,
// "mock" to the offline backend, everything else to the local Ollama
// install.
func DetectProvider(model string) string {
	lower := strings.ToLower(model)
	if lower == MockModelName || strings.HasPrefix(lower, MockModelName+":") {
		return "mock"
	}
	if strings.Contains(lower, "claude") {
		return "anthropic"
	}
	if strings.Contains(lower, "gpt") || strings.HasPrefix(lower, "o1") {
		return "openai"
	}
	return "ollama"
}

// New creates an LLMClient for the given model name or alias.
func New(model string) (LLMClient, error) {
	full := ResolveModel(model)
	provider := DetectProvider(full)
	slog.Info("Creating LLM client", "model", full, "provider", provider)
	switch provider {
	case "anthropic":
		return NewAnthropicClient(full)
	case "openai":
		return NewOpenAIClient(full)
	case "mock":
		return NewMockClient(full), nil
	default:
		return NewOllamaClient(full)
	}
}

// Warmer is implemented by backends that can preload their model.
type Warmer interface {
	Warm(ctx context.Context) error
}
