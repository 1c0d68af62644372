// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package rl

// Reward combines acceptance and latency into a single value in [0, 1].
//
// Acceptance dominates (70%), latency shapes the rest:
//
//	accepted + instant  = 1.0
//	accepted + 2s       = 0.7
//	rejected + instant  = 0.3
//	rejected + >=2s     = 0.0
//
// A strategy whose suggestions get accepted but arrive slowly still beats
// one that is fast and ignored.
func Reward(accepted bool, latencyMS float64) float64 {
	acceptance := 0.0
	if accepted {
		acceptance = 0.7
	}
	latency := 1.0 - latencyMS/2000.0
	if latency < 0 {
		latency = 0
	}
	return acceptance + 0.3*latency
}
