// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine turns a document position into an inline completion.
//
// The pipeline is: bucket the cursor position (rl.Features), let the
// bandit pick a context strategy, build a prompt window per that
// strategy, consult the memo cache, and only then pay for a model round
// trip. Raw model output is post-processed into insertable text; empty
// output is a valid answer meaning "suggest nothing".
//
// The engine is stateless across requests apart from the memo cache and
// the swappable model client. All per-editor-session state (debounce,
// pending feedback, prefix matching) lives client-side in the session
// package.
package engine
