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
	"testing"

	"github.com/stretchr/testify/assert"
)

// -----------------------------------------------------------------------------
// Bucket Key Tests
// -----------------------------------------------------------------------------

func TestBucketKey(t *testing.T) {
	f := Features{
		Language:     "python",
		InFunction:   true,
		FunctionName: "handle_request",
		CurrentLine:  "    x = 1",
		LinesBefore:  []string{"    a = 1"},
		LinesAfter:   []string{"    b = 2"},
	}
	assert.Equal(t, "python:function:small:mid", BucketKey(f))
}

func TestBucketLanguage(t *testing.T) {
	tests := []struct {
		language string
		want     string
	}{
		{"python", "python"},
		{"Python", "python"},
		{"javascript", "javascript"},
		{"typescript", "typescript"},
		{"go", "go"},
		{"rust", "other"},
		{"", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.language, func(t *testing.T) {
			got := bucketLanguage(Features{Language: tt.language})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBucketScope(t *testing.T) {
	tests := []struct {
		name string
		f    Features
		want string
	}{
		{"outside any function", Features{InFunction: false}, "top_level"},
		{"lowercase enclosing name", Features{InFunction: true, FunctionName: "parse_args"}, "function"},
		{"uppercase enclosing name", Features{InFunction: true, FunctionName: "Widget"}, "class"},
		{"anonymous scope", Features{InFunction: true}, "function"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, bucketScope(tt.f))
		})
	}
}

func TestBucketFileSize(t *testing.T) {
	lines := func(n int) []string { return make([]string, n) }

	tests := []struct {
		name   string
		before int
		after  int
		want   string
	}{
		{"tiny", 10, 5, "small"},
		{"just under small limit", 98, 0, "small"},
		{"at medium boundary", 99, 0, "medium"},
		{"within medium", 300, 100, "medium"},
		{"at medium upper bound", 499, 0, "medium"},
		{"large", 500, 0, "large"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Features{LinesBefore: lines(tt.before), LinesAfter: lines(tt.after)}
			assert.Equal(t, tt.want, bucketFileSize(f))
		})
	}
}

func TestBucketPosition(t *testing.T) {
	tests := []struct {
		name string
		f    Features
		want string
	}{
		{
			name: "indent just increased",
			f: Features{
				CurrentLine: "    y = 2",
				LinesBefore: []string{"x = 1"},
			},
			want: "start",
		},
		{
			name: "previous line opens a python block",
			f: Features{
				CurrentLine: "pass",
				LinesBefore: []string{"if ready:"},
			},
			want: "start",
		},
		{
			name: "previous line opens a brace block",
			f: Features{
				CurrentLine: "return nil",
				LinesBefore: []string{"func run() {"},
			},
			want: "start",
		},
		{
			name: "next line dedents",
			f: Features{
				CurrentLine: "    x = 1",
				LinesBefore: []string{"    a = 2"},
				LinesAfter:  []string{"def other():"},
			},
			want: "end",
		},
		{
			name: "next line closes a bracket",
			f: Features{
				CurrentLine: "x = 1",
				LinesAfter:  []string{"}"},
			},
			want: "end",
		},
		{
			name: "blank line then dedent",
			f: Features{
				CurrentLine: "    x = 1",
				LinesBefore: []string{"    a = 2"},
				LinesAfter:  []string{"", "def other():"},
			},
			want: "end",
		},
		{
			name: "surrounded by same-indent statements",
			f: Features{
				CurrentLine: "    b = 2",
				LinesBefore: []string{"    a = 1"},
				LinesAfter:  []string{"    c = 3"},
			},
			want: "mid",
		},
		{
			name: "no neighbors at all",
			f:    Features{CurrentLine: "x = 1"},
			want: "mid",
		},
		{
			name: "blank previous line is ignored",
			f: Features{
				CurrentLine: "    x = 1",
				LinesBefore: []string{""},
				LinesAfter:  []string{"    y = 2"},
			},
			want: "mid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, bucketPosition(tt.f))
		})
	}
}

func TestIndentWidth(t *testing.T) {
	assert.Equal(t, 0, indentWidth("x = 1"))
	assert.Equal(t, 4, indentWidth("    x = 1"))
	assert.Equal(t, 1, indentWidth("\tx = 1"))
	assert.Equal(t, 3, indentWidth(" \t x = 1"))
}
