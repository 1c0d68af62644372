// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package transport moves protocol envelopes between an editor and the
// tab daemon.
//
// Conn is the editor side: a correlating JSON-RPC client over any
// io.ReadWriteCloser, typically the daemon's stdio. Server is the
// daemon side: a serial dispatch loop that serves the same framing over
// stdio and, for editors that prefer a socket, over a WebSocket
// carrying identical envelopes. Neither side interprets method
// semantics; that belongs to the service handler.
package transport
