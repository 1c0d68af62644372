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
	"path/filepath"
	"regexp"
	"strings"

	"github.com/AleutianAI/AleutianTab/services/tab/rl"
)

// languageByExt maps file extensions to language names used in prompts
// and bucket keys.
var languageByExt = map[string]string{
	".py":    "python",
	".pyi":   "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".go":    "go",
	".rs":    "rust",
	".java":  "java",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".rb":    "ruby",
	".php":   "php",
	".swift": "swift",
	".kt":    "kotlin",
}

// DetectLanguage maps a file path to a language name, or "unknown".
func DetectLanguage(filePath string) string {
	ext := strings.ToLower(filepath.Ext(filePath))
	if lang, ok := languageByExt[ext]; ok {
		return lang
	}
	return "unknown"
}

// Context is the strategy-shaped view of a document around the cursor.
//
// # Description
//
// LinesBefore and LinesAfter are already clipped to the selected
// strategy's windows; Imports and Functions are already capped. The
// prompt builder renders a Context verbatim without applying further
// limits, so the strategy alone decides how much the model sees.
type Context struct {
	FilePath     string
	Language     string
	CurrentLine  string // full text of the cursor line
	Prefix       string // cursor line up to the cursor
	Suffix       string // cursor line after the cursor
	LinesBefore  []string
	LinesAfter   []string
	Imports      []string
	Functions    []string
	InFunction   bool
	FunctionName string
	IndentLevel  int
}

// Declaration patterns per language family. jsMethodRe deliberately
// loose; control-flow headers it also matches are filtered by keyword.
var (
	pyDefRe   = regexp.MustCompile(`^\s*(?:async\s+)?def\s+(\w+)\s*\(`)
	pyClassRe = regexp.MustCompile(`^\s*class\s+(\w+)`)

	jsFuncRe   = regexp.MustCompile(`^\s*(?:export\s+)?(?:async\s+)?function\s+(\w+)\s*\(`)
	jsArrowRe  = regexp.MustCompile(`^\s*(?:export\s+)?(?:const|let|var)\s+(\w+)\s*=\s*(?:async\s*)?\(.*\)\s*=>`)
	jsMethodRe = regexp.MustCompile(`^\s*(?:async\s+)?(\w+)\s*\([^)]*\)\s*\{`)

	goFuncRe = regexp.MustCompile(`^func\s+(?:\([^)]+\)\s+)?(\w+)\s*\(`)

	pyImportRe   = regexp.MustCompile(`^\s*(?:import|from)\s+[\w.]`)
	jsImportRe   = regexp.MustCompile(`^\s*import\s+`)
	jsRequireRe  = regexp.MustCompile(`^\s*(?:const|let|var)\s+.*=\s*require\s*\(`)
	goImportLine = regexp.MustCompile(`^import\s+(?:\w+\s+)?"`)
)

var jsNonMethodKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true,
	"catch": true, "return": true, "function": true,
}

// BuildContext builds the prompt context for a cursor position under a
// given strategy.
//
// Description:
//
//	Splits the document at the cursor, detects the language and
//	enclosing function, then applies the strategy: either a fixed
//	LinesBefore window or, with DynamicScope, the enclosing function
//	or class body capped at MaxScopeLines. Imports and sibling
//	signatures are collected only when the strategy asks for them.
//
//	Out-of-range cursor coordinates are clamped rather than rejected;
//	editors race their own edits and a best-effort context beats an
//	error.
//
// Inputs:
//
//	filePath - Path of the document, used for language detection only.
//	content - Full document text.
//	line - Cursor line, 0-indexed.
//	char - Cursor character within the line, 0-indexed.
//	strat - Context strategy selected by the bandit.
//
// Outputs:
//
//	Context - The clipped view ready for prompt building.
func BuildContext(filePath, content string, line, char int, strat rl.Strategy) Context {
	lines, cursorLine, prefix, suffix, current := splitCursor(content, line, char)
	above := lines[:cursorLine]
	below := lines[cursorLine+1:]
	lang := DetectLanguage(filePath)

	inFunc, funcName := detectFunction(above, lang)

	var before []string
	if strat.DynamicScope {
		if start, ok := findScopeStart(above, current, lang); ok {
			before = above[start:]
		} else {
			before = above
		}
		if strat.MaxScopeLines > 0 && len(before) > strat.MaxScopeLines {
			before = before[len(before)-strat.MaxScopeLines:]
		}
	} else {
		n := strat.LinesBefore
		if n > len(above) {
			n = len(above)
		}
		before = above[len(above)-n:]
	}

	after := below
	if len(after) > strat.LinesAfter {
		after = after[:strat.LinesAfter]
	}

	var imports, functions []string
	if strat.IncludeImports {
		imports = collectImports(lines, lang, strat.MaxImports)
	}
	if strat.IncludeFunctions {
		functions = collectFunctions(lines, lang, strat.MaxFunctions)
	}

	return Context{
		FilePath:     filePath,
		Language:     lang,
		CurrentLine:  current,
		Prefix:       prefix,
		Suffix:       suffix,
		LinesBefore:  before,
		LinesAfter:   after,
		Imports:      imports,
		Functions:    functions,
		InFunction:   inFunc,
		FunctionName: funcName,
		IndentLevel:  indentWidth(current) / 4,
	}
}

// BuildFeatures builds bucketing features for a cursor position.
//
// Uses the full document windows rather than any strategy's clipped
// view, so the same position always lands in the same bucket no matter
// which arm the bandit later picks.
func BuildFeatures(filePath, content string, line, char int) rl.Features {
	lines, cursorLine, _, _, current := splitCursor(content, line, char)
	above := lines[:cursorLine]
	lang := DetectLanguage(filePath)
	inFunc, funcName := detectFunction(above, lang)

	return rl.Features{
		Language:     lang,
		InFunction:   inFunc,
		FunctionName: funcName,
		CurrentLine:  current,
		LinesBefore:  above,
		LinesAfter:   lines[cursorLine+1:],
	}
}

// splitCursor splits content into lines and resolves the cursor into a
// clamped (line, prefix, suffix) triple. Character offsets are rune
// offsets, matching what editors send for non-ASCII lines.
func splitCursor(content string, line, char int) (lines []string, cursorLine int, prefix, suffix, current string) {
	lines = strings.Split(content, "\n")
	cursorLine = line
	if cursorLine < 0 {
		cursorLine = 0
	}
	if cursorLine >= len(lines) {
		cursorLine = len(lines) - 1
	}
	current = lines[cursorLine]

	runes := []rune(current)
	if char < 0 {
		char = 0
	}
	if char > len(runes) {
		char = len(runes)
	}
	return lines, cursorLine, string(runes[:char]), string(runes[char:]), current
}

// detectFunction walks backwards from the cursor looking for the nearest
// function or class declaration. Nearest wins, so a method inside a
// class reports the method, not the class.
func detectFunction(above []string, lang string) (bool, string) {
	switch lang {
	case "python":
		for i := len(above) - 1; i >= 0; i-- {
			if m := pyDefRe.FindStringSubmatch(above[i]); m != nil {
				return true, m[1]
			}
			if m := pyClassRe.FindStringSubmatch(above[i]); m != nil {
				return true, m[1]
			}
		}
	case "javascript", "typescript":
		for i := len(above) - 1; i >= 0; i-- {
			line := above[i]
			if m := jsFuncRe.FindStringSubmatch(line); m != nil {
				return true, m[1]
			}
			if m := jsArrowRe.FindStringSubmatch(line); m != nil {
				return true, m[1]
			}
			if m := jsMethodRe.FindStringSubmatch(line); m != nil && !jsNonMethodKeywords[m[1]] {
				return true, m[1]
			}
		}
	case "go":
		for i := len(above) - 1; i >= 0; i-- {
			if m := goFuncRe.FindStringSubmatch(above[i]); m != nil {
				return true, m[1]
			}
		}
	}
	return false, ""
}

// findScopeStart locates where the enclosing function or class body
// begins, for DynamicScope strategies.
//
// The opener must be less indented than the cursor line; a cursor at
// column zero of a non-blank line is top-level code regardless of what
// declarations appear above it. Blank cursor lines borrow the indent of
// the nearest non-blank line above.
func findScopeStart(above []string, current, lang string) (int, bool) {
	cursorIndent := -1
	if strings.TrimSpace(current) != "" {
		cursorIndent = indentWidth(current)
	} else {
		for i := len(above) - 1; i >= 0; i-- {
			if strings.TrimSpace(above[i]) != "" {
				cursorIndent = indentWidth(above[i])
				break
			}
		}
	}
	if cursorIndent == 0 {
		return 0, false
	}

	for i := len(above) - 1; i >= 0; i-- {
		if !isScopeOpener(above[i], lang) {
			continue
		}
		if cursorIndent < 0 || indentWidth(above[i]) < cursorIndent {
			return i, true
		}
	}
	return 0, false
}

func isScopeOpener(line, lang string) bool {
	switch lang {
	case "python":
		return pyDefRe.MatchString(line) || pyClassRe.MatchString(line)
	case "javascript", "typescript":
		if jsFuncRe.MatchString(line) || jsArrowRe.MatchString(line) {
			return true
		}
		m := jsMethodRe.FindStringSubmatch(line)
		return m != nil && !jsNonMethodKeywords[m[1]]
	case "go":
		return goFuncRe.MatchString(line)
	default:
		return false
	}
}

// collectImports gathers up to max import statements from the whole
// document, trimmed of indentation. Go import blocks are flattened into
// their individual specs.
func collectImports(lines []string, lang string, max int) []string {
	if max <= 0 {
		return nil
	}
	var out []string
	switch lang {
	case "python":
		for _, line := range lines {
			if pyImportRe.MatchString(line) {
				out = append(out, strings.TrimSpace(line))
			}
			if len(out) == max {
				break
			}
		}
	case "javascript", "typescript":
		for _, line := range lines {
			if jsImportRe.MatchString(line) || jsRequireRe.MatchString(line) {
				out = append(out, strings.TrimSpace(line))
			}
			if len(out) == max {
				break
			}
		}
	case "go":
		inBlock := false
		for _, line := range lines {
			trimmed := strings.TrimSpace(line)
			switch {
			case inBlock:
				if trimmed == ")" {
					inBlock = false
				} else if trimmed != "" {
					out = append(out, trimmed)
				}
			case strings.HasPrefix(trimmed, "import ("):
				inBlock = true
			case goImportLine.MatchString(trimmed):
				out = append(out, trimmed)
			}
			if len(out) == max {
				break
			}
		}
	}
	return out
}

// collectFunctions gathers up to max declaration lines from the whole
// document as signature hints for the prompt.
func collectFunctions(lines []string, lang string, max int) []string {
	if max <= 0 {
		return nil
	}
	var out []string
	for _, line := range lines {
		var sig string
		switch lang {
		case "python":
			if pyDefRe.MatchString(line) || pyClassRe.MatchString(line) {
				sig = strings.TrimSpace(line)
			}
		case "javascript", "typescript":
			if jsFuncRe.MatchString(line) || jsArrowRe.MatchString(line) {
				sig = strings.TrimSpace(line)
			} else if m := jsMethodRe.FindStringSubmatch(line); m != nil && !jsNonMethodKeywords[m[1]] {
				sig = strings.TrimSpace(line)
			}
		case "go":
			if goFuncRe.MatchString(line) {
				sig = strings.TrimSuffix(strings.TrimSpace(line), " {")
			}
		}
		if sig != "" {
			out = append(out, sig)
			if len(out) == max {
				break
			}
		}
	}
	return out
}

// indentWidth counts leading whitespace characters.
func indentWidth(line string) int {
	return len(line) - len(strings.TrimLeft(line, " \t"))
}
