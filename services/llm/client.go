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

import "context"

// GenerationParams tunes a single completion call. Nil fields fall back
// to backend defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopK        *int     `json:"top_k"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`

	// System is the system prompt, set on every completion request.
	System string `json:"system,omitempty"`
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	// Generate returns the model's completion for prompt. Implementations
	// honor ctx cancellation; the caller bounds request latency there.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// Name returns the model identifier this client was built for.
	Name() string
}
