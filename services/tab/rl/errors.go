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

import "errors"

var (
	// ErrUnknownStrategy indicates a strategy name with no registered definition.
	ErrUnknownStrategy = errors.New("unknown strategy")

	// ErrInvalidStrategy indicates a strategy definition with out-of-range fields.
	ErrInvalidStrategy = errors.New("invalid strategy")

	// ErrInvalidPolicyConfig indicates a PolicyConfig that fails validation.
	ErrInvalidPolicyConfig = errors.New("invalid policy config")

	// ErrIncompatibleVersion indicates a persisted policy file written by an
	// incompatible format version. Callers typically log it and start fresh.
	ErrIncompatibleVersion = errors.New("incompatible policy file version")
)
