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

import "strings"

// systemPrompt steers the model toward raw insertable text. Small local
// models drift toward chat behavior without the explicit wrong/right
// examples, so keep them when tuning this.
const systemPrompt = `You are an expert code autocomplete assistant. Your job is to predict what the developer wants to type next.

CRITICAL RULES:
1. NEVER repeat any code that already exists - only provide NEW code to add
2. Provide ONLY the code to insert at the cursor position - no explanations, no markdown, no code fences
3. The code before <CURSOR> is already written - DO NOT include it in your response
4. If the line is complete, suggest what should come on the NEXT line
5. Match the existing code style and indentation exactly
6. Keep suggestions concise and relevant to the immediate context
7. Use the provided function signatures and imports to make accurate suggestions

WRONG - repeating existing code:
Given: "result = num1 + num2<CURSOR>"
Bad Response: "result = num1 + num2"
Good Response: "" (line is complete, or suggest next line)

CORRECT examples:
Given: "def calculate_sum(a, b):\n    return <CURSOR>"
Response: "a + b"

Given: "if user.is_authenticated:<CURSOR>"
Response: "\n    return render(request, 'dashboard.html')"

Given: "    name = <CURSOR>"
Response: "input('Enter name: ')"`

// cursorMarker is the insertion point sentinel the prompts are written
// around.
const cursorMarker = "<CURSOR>"

// buildPrompt renders a Context into the user prompt.
//
// Description:
//
//	Layout: a one-line task statement, optional import and signature
//	sections as comments, the before-cursor window, the cursor line cut
//	at the marker, an optional after-cursor section, and a closing
//	instruction. The Context arrives pre-clipped by the strategy, so no
//	additional truncation happens here.
func buildPrompt(cctx Context) string {
	var b strings.Builder

	b.WriteString("Complete the following " + cctx.Language + " code:\n\n")

	if len(cctx.Imports) > 0 {
		b.WriteString("# Imports:\n")
		for _, imp := range cctx.Imports {
			b.WriteString(imp)
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}

	if len(cctx.Functions) > 0 {
		b.WriteString("# Available functions in this file:\n")
		for _, sig := range cctx.Functions {
			b.WriteString("# " + sig + "\n")
		}
		b.WriteByte('\n')
	}

	for _, line := range cctx.LinesBefore {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	b.WriteString(cctx.Prefix + cursorMarker + "\n")

	if len(cctx.LinesAfter) > 0 {
		b.WriteString("\n# Code after cursor (for context):\n")
		for _, line := range cctx.LinesAfter {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	b.WriteString("\nComplete the code at " + cursorMarker + ". Provide ONLY the completion text, nothing else.")
	return b.String()
}
