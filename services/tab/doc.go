// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tab assembles the completion daemon.
//
// The Service dispatches the JSON-RPC methods onto the suggestion
// engine and the bandit, tracks issued suggestion ids so each can be
// resolved by feedback at most once, and persists learning through the
// rl storage layer. Daemon wires the Service to its transports: the
// stdio loop for an editor-spawned process and a gin HTTP listener for
// the shared WebSocket mode, stats endpoints, health, and Prometheus
// metrics.
//
// Subpackages hold the moving parts: protocol (wire envelopes),
// transport (framing), engine (context assembly and generation), rl
// (strategies, bandit, persistence), session (the editor-side actor),
// and telemetry (OTel setup).
package tab
