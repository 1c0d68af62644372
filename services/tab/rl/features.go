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

import (
	"strings"
	"unicode"
)

// Features is the slice of an edit site the bucketer reads.
//
// The engine fills this from its built completion context; the bucketer
// only needs coarse signals, so windows clipped to the context size are
// fine.
type Features struct {
	Language     string
	InFunction   bool
	FunctionName string
	CurrentLine  string
	LinesBefore  []string
	LinesAfter   []string
}

// BucketKey maps features to a bucket key of the form
// "language:scope:file_size:position", e.g. "python:function:medium:mid".
//
// Buckets are deliberately coarse. More dimensions would fragment the
// feedback stream and starve every arm of observations.
func BucketKey(f Features) string {
	return bucketLanguage(f) + ":" + bucketScope(f) + ":" + bucketFileSize(f) + ":" + bucketPosition(f)
}

// bucketLanguage folds languages into the buckets with enough traffic to
// learn from. Everything else shares "other".
func bucketLanguage(f Features) string {
	switch strings.ToLower(f.Language) {
	case "python":
		return "python"
	case "javascript":
		return "javascript"
	case "typescript":
		return "typescript"
	case "go":
		return "go"
	default:
		return "other"
	}
}

// bucketScope reports whether the cursor sits at top level, inside a
// function, or inside a class-like body. An uppercase leading letter on
// the enclosing name is treated as a class.
func bucketScope(f Features) string {
	if !f.InFunction {
		return "top_level"
	}
	if f.FunctionName != "" {
		first := []rune(f.FunctionName)[0]
		if unicode.IsUpper(first) {
			return "class"
		}
	}
	return "function"
}

// bucketFileSize categorizes by the visible line count. The window is
// clipped to the context size, which is close enough for bucketing.
func bucketFileSize(f Features) string {
	total := len(f.LinesBefore) + 1 + len(f.LinesAfter)
	if total < 100 {
		return "small"
	}
	if total <= 500 {
		return "medium"
	}
	return "large"
}

// bucketPosition reports whether the cursor is at the start, middle, or
// end of its block, judged from neighbor indentation.
func bucketPosition(f Features) string {
	currentIndent := 0
	if strings.TrimSpace(f.CurrentLine) != "" {
		currentIndent = indentWidth(f.CurrentLine)
	}

	// Start of block: indent just increased, or previous line opens a block
	if len(f.LinesBefore) > 0 {
		prev := f.LinesBefore[len(f.LinesBefore)-1]
		prevStripped := strings.TrimSpace(prev)
		if prevStripped != "" {
			if currentIndent > indentWidth(prev) {
				return "start"
			}
			if strings.HasSuffix(prevStripped, ":") || strings.HasSuffix(prevStripped, "{") {
				return "start"
			}
		}
	}

	// End of block: next line dedents or closes a bracket
	if len(f.LinesAfter) > 0 {
		next := f.LinesAfter[0]
		nextStripped := strings.TrimSpace(next)
		if nextStripped != "" {
			if indentWidth(next) < currentIndent {
				return "end"
			}
			switch nextStripped {
			case "}", ")", "]":
				return "end"
			}
		} else if len(f.LinesAfter) > 1 {
			// Blank next line: look one further for a dedent
			afterNext := f.LinesAfter[1]
			if strings.TrimSpace(afterNext) != "" && indentWidth(afterNext) < currentIndent {
				return "end"
			}
		}
	}

	return "mid"
}

// indentWidth counts leading whitespace characters.
func indentWidth(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}
