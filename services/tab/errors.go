// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tab

import "errors"

var (
	// ErrNoSuggestion is the Service's decline signal: the position was
	// not worth completing or the model produced nothing usable. On the
	// wire it becomes a success result with type "none", never an error
	// envelope.
	ErrNoSuggestion = errors.New("no suggestion")

	// ErrStaleResponse marks feedback for a suggestion id the daemon no
	// longer tracks: unknown, already resolved, or evicted. The report
	// is acknowledged with recorded=false and the bandit is untouched.
	ErrStaleResponse = errors.New("stale response")

	// ErrUnknownMethod is returned for methods outside the protocol set.
	ErrUnknownMethod = errors.New("unknown method")

	// ErrInvalidParams wraps a params validation failure.
	ErrInvalidParams = errors.New("invalid params")
)
