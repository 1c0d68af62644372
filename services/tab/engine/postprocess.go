// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"strings"
	"unicode"
)

// completionKeywords are prefix endings after which a suggestion is
// welcome even though the last character is alphanumeric. Typing
// "return" should trigger a completion; typing "retur" should not.
var completionKeywords = []string{
	"return", "def", "class", "if", "elif", "else",
	"for", "while", "import", "from", "const", "let",
	"var", "function", "async", "await",
}

// shouldSkip reports whether this cursor position is not worth a model
// round trip.
//
// Description:
//
//	Skips empty lines at column zero, carets splitting an identifier,
//	and positions where the user is mid-word, unless the word so far
//	is a completion keyword. A caret at the end of a non-empty line is
//	always eligible; those positions get next-line suggestions.
func shouldSkip(cctx Context) bool {
	if cctx.Prefix == "" && strings.TrimSpace(cctx.CurrentLine) == "" {
		return true
	}

	if cctx.Suffix != "" && isWordRune([]rune(cctx.Suffix)[0]) {
		return true
	}

	atLineEnd := strings.TrimSpace(cctx.Suffix) == ""
	if atLineEnd && cctx.Prefix != "" {
		return false
	}

	if cctx.Prefix != "" {
		runes := []rune(cctx.Prefix)
		if isWordRune(runes[len(runes)-1]) && !endsWithKeyword(strings.TrimSpace(cctx.Prefix)) {
			return true
		}
	}
	return false
}

func endsWithKeyword(s string) bool {
	for _, kw := range completionKeywords {
		if strings.HasSuffix(s, kw) {
			return true
		}
	}
	return false
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// postProcess cleans raw model output into insertable text.
//
// Description:
//
//	Strips markdown artifacts and code fences, prepends a newline with
//	matching indentation when the model continues past a visibly
//	complete statement, and cuts trailing commentary the model added
//	despite instructions. Returns "" when nothing usable remains,
//	which callers treat as "no suggestion".
func postProcess(raw string, cctx Context) string {
	s := strings.TrimSpace(raw)
	// Fences first; trimming backticks beforehand would eat the fence
	// markers and leave the language tag line behind.
	s = stripFences(s)
	s = strings.Trim(s, "`")

	upToCursor := strings.TrimRight(cctx.Prefix, " \t")
	if s != "" && upToCursor != "" && !strings.HasPrefix(s, "\n") {
		atLineEnd := strings.TrimSpace(cctx.Suffix) == ""
		if atLineEnd && statementLooksComplete(upToCursor) {
			indent := cctx.CurrentLine[:indentWidth(cctx.CurrentLine)]
			if strings.HasSuffix(upToCursor, ":") {
				// Block opener: step the indent in one level
				if strings.ContainsRune(indent, '\t') {
					indent += "\t"
				} else {
					indent += "    "
				}
			}
			s = "\n" + indent + strings.TrimLeft(s, " \t")
		}
	}

	s = dropExplanations(s)
	s = strings.TrimRight(s, " \t\n")
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return s
}

// statementLooksComplete reports whether a line prefix reads as a
// finished statement, meaning the next code belongs on a new line. A
// trailing completion keyword is mid-statement even though it ends in a
// letter; "return" wants an inline expression, not a new line.
func statementLooksComplete(l string) bool {
	if endsWithKeyword(l) {
		return false
	}
	runes := []rune(l)
	last := runes[len(runes)-1]
	if unicode.IsLetter(last) || unicode.IsDigit(last) {
		return true
	}
	if strings.ContainsRune(")]}", last) {
		return true
	}
	return last == ':'
}

// stripFences removes a leading markdown code fence and its matching
// closer, keeping the code between them.
func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) <= 2 {
		return strings.TrimSpace(strings.ReplaceAll(s, "```", ""))
	}
	lines = lines[1:]
	if strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// Comment markers that signal the model switched from code to prose.
var explanationMarkers = []string{"explanation", "note:", "this "}

// dropExplanations cuts the suggestion at the first comment line that
// looks like commentary rather than code.
func dropExplanations(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			continue
		}
		lower := strings.ToLower(trimmed)
		for _, marker := range explanationMarkers {
			if strings.Contains(lower, marker) {
				return strings.Join(lines[:i], "\n")
			}
		}
	}
	return s
}
