// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session holds the editor-side half of the tab pipeline: one
// Session per open document, owning a prefix-matching suggestion cache,
// a debounced fetch scheduler, and the implicit accept/reject detector
// that turns raw edits into feedback for the daemon's bandit.
//
// All per-document state lives on a single goroutine fed by an ordered
// event queue. Public methods enqueue and return; fetch round trips run
// outside the loop and re-enter it as events, so nothing here needs a
// lock and nothing from a transport reader ever touches session state
// directly.
package session
