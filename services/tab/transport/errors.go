// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package transport

import "errors"

var (
	// ErrTimeout indicates a call got no response within its deadline.
	// The pending entry is removed, so a response arriving later is
	// dropped at the reader.
	ErrTimeout = errors.New("request timed out")

	// ErrConnClosed indicates the connection is no longer usable, either
	// because Close was called or because the reader hit a terminal
	// error. All outstanding and future calls fail with it.
	ErrConnClosed = errors.New("connection closed")
)
