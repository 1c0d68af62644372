// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package protocol

import "errors"

var (
	// ErrLineTooLong indicates a wire message exceeded MaxLineBytes.
	// The reader discards the oversized line and stays usable.
	ErrLineTooLong = errors.New("message exceeds maximum line length")

	// ErrEmptyResult indicates a response carried neither result nor error.
	ErrEmptyResult = errors.New("response has no result")

	// ErrMalformedRequest indicates a request line could not be decoded.
	// The stream itself is still in sync; servers answer with a parse
	// error and keep reading.
	ErrMalformedRequest = errors.New("malformed request")

	// ErrMalformedResponse indicates a response result could not be decoded
	// into the expected typed result struct.
	ErrMalformedResponse = errors.New("malformed response")
)
