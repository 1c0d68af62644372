// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package rl implements the contextual bandit that picks a context-building
// strategy per completion request.
//
// Requests are grouped into buckets by coarse features of the edit site
// (language, scope, file size, position in block). Within each bucket a
// UCB1 policy balances exploring the five built-in strategies against
// exploiting the one with the best observed reward. Reward blends the
// user's accept/reject signal with suggestion latency.
//
// Strategy arms that are confidently dominated get disabled per bucket;
// the protected default strategy is never disabled, so every bucket always
// has a safe arm. Policy state persists across daemon restarts via
// Storage, and a PolicyWatcher picks up external edits to the policy file.
package rl
