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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoCache_PutGet(t *testing.T) {
	c := NewMemoCache(10, time.Minute)
	c.Put("a.py", pyDoc, 8, 25, "x + 1", "rich")

	text, strat, ok := c.Get("a.py", pyDoc, 8, 25)
	require.True(t, ok)
	assert.Equal(t, "x + 1", text)
	assert.Equal(t, "rich", strat)
	assert.Equal(t, int64(1), c.Stats().TotalHits)
}

func TestMemoCache_MissOnDifferentPosition(t *testing.T) {
	c := NewMemoCache(10, time.Minute)
	c.Put("a.py", pyDoc, 8, 25, "x + 1", "rich")

	_, _, ok := c.Get("a.py", pyDoc, 8, 24)
	assert.False(t, ok)
	_, _, ok = c.Get("a.py", pyDoc, 7, 25)
	assert.False(t, ok)
	_, _, ok = c.Get("b.py", pyDoc, 8, 25)
	assert.False(t, ok)
}

func TestMemoCache_InvalidatesOnFileChange(t *testing.T) {
	c := NewMemoCache(10, time.Minute)
	c.Put("a.py", pyDoc, 8, 25, "x + 1", "rich")

	edited := pyDoc + "\n# trailing comment"
	_, _, ok := c.Get("a.py", edited, 8, 25)
	assert.False(t, ok)

	// The old entry is gone even if the old content comes back.
	_, _, ok = c.Get("a.py", pyDoc, 8, 25)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Size)
}

func TestMemoCache_TTLExpiry(t *testing.T) {
	c := NewMemoCache(10, time.Minute)
	base := time.Now()
	c.now = func() time.Time { return base }

	c.Put("a.py", pyDoc, 8, 25, "x + 1", "rich")

	c.now = func() time.Time { return base.Add(59 * time.Second) }
	_, _, ok := c.Get("a.py", pyDoc, 8, 25)
	assert.True(t, ok)

	c.now = func() time.Time { return base.Add(61 * time.Second) }
	_, _, ok = c.Get("a.py", pyDoc, 8, 25)
	assert.False(t, ok)
	assert.Equal(t, 0, c.Stats().Size, "expired entry removed on probe")
}

func TestMemoCache_EvictsOldest(t *testing.T) {
	c := NewMemoCache(2, time.Minute)
	base := time.Now()
	step := 0
	c.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	doc := numberedDoc(10)
	c.Put("a.py", doc, 1, 0, "one", "standard")
	c.Put("a.py", doc, 2, 0, "two", "standard")
	c.Put("a.py", doc, 3, 0, "three", "standard")

	_, _, ok := c.Get("a.py", doc, 1, 0)
	assert.False(t, ok, "oldest entry evicted")
	_, _, ok = c.Get("a.py", doc, 2, 0)
	assert.True(t, ok)
	_, _, ok = c.Get("a.py", doc, 3, 0)
	assert.True(t, ok)
}

func TestMemoCache_Clear(t *testing.T) {
	c := NewMemoCache(10, time.Minute)
	c.Put("a.py", pyDoc, 8, 25, "x", "standard")
	c.Put("b.py", goDoc, 8, 1, "y", "standard")

	assert.Equal(t, 2, c.Clear())

	stats := c.Stats()
	assert.Equal(t, 0, stats.Size)
	assert.Equal(t, 0, stats.FilesTracked)
	assert.Equal(t, 0, c.Clear())
}

func TestMemoCache_Stats(t *testing.T) {
	c := NewMemoCache(7, time.Minute)
	c.Put("a.py", pyDoc, 8, 25, "x", "standard")
	c.Put("b.py", goDoc, 8, 1, "y", "standard")
	c.Get("a.py", pyDoc, 8, 25)
	c.Get("a.py", pyDoc, 8, 25)

	stats := c.Stats()
	assert.Equal(t, 2, stats.Size)
	assert.Equal(t, 7, stats.MaxSize)
	assert.Equal(t, int64(2), stats.TotalHits)
	assert.Equal(t, 2, stats.FilesTracked)
}

func TestMemoCache_Defaults(t *testing.T) {
	c := NewMemoCache(0, 0)
	assert.Equal(t, DefaultMemoSize, c.Stats().MaxSize)
	assert.Equal(t, DefaultMemoTTL, c.ttl)
}
