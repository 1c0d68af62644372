// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package protocol defines the JSON-RPC 2.0 wire format between editors
// and the Tab completion daemon.
//
// Messages are newline-delimited JSON over stdio (or a WebSocket, which
// carries the same envelopes). Every request has a positive integer id
// assigned by the caller; the daemon answers each id at most once.
//
// The method surface is closed: each method has a typed params struct and
// a typed result struct in this package, validated with
// go-playground/validator before dispatch. Editors should treat any error
// response as "no suggestion" and never retry a completion request.
package protocol
