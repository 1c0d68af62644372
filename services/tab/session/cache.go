// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"strings"
	"time"
)

const (
	// DefaultMaxCacheEntries bounds how many lines a session caches.
	DefaultMaxCacheEntries = 512

	// DefaultStaleAfter is the age past which a cached suggestion still
	// serves lookups but wants a background refresh.
	DefaultStaleAfter = 2 * time.Second
)

// CachedSuggestion is one completion pinned to the position it was
// captured at.
//
// # Description
//
//	LinePrefix is the text of the line up to Character at capture time.
//	Lookup compares it against the live line to detect upstream edits
//	that would make the suggestion nonsense. Offsets are rune offsets,
//	matching how the engine slices the cursor line.
type CachedSuggestion struct {
	FilePath     string
	Line         int
	Character    int
	LinePrefix   string
	Text         string
	SuggestionID string
	Strategy     string
	Bucket       string
	CapturedAt   time.Time
}

type lineKey struct {
	file string
	line int
}

type cacheEntry struct {
	CachedSuggestion

	// refreshRequested latches after the first stale lookup so one
	// staleness episode triggers at most one background refresh. A
	// fresh Put replaces the entry and clears it.
	refreshRequested bool
}

// Cache maps (file, line) to the single live suggestion for that line.
//
// # Description
//
//	At most one entry per line; a new Put for the same line discards the
//	old entry outright. The cache is owned by the session goroutine and
//	is deliberately not safe for concurrent use.
type Cache struct {
	maxEntries int
	staleAfter time.Duration
	now        func() time.Time
	entries    map[lineKey]*cacheEntry
}

// NewCache builds a cache. Non-positive arguments fall back to the
// package defaults.
func NewCache(maxEntries int, staleAfter time.Duration) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxCacheEntries
	}
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	return &Cache{
		maxEntries: maxEntries,
		staleAfter: staleAfter,
		now:        time.Now,
		entries:    make(map[lineKey]*cacheEntry),
	}
}

// Put stores a suggestion, superseding any entry already on that line.
// When the cache is full the oldest capture on some other line is
// evicted first.
func (c *Cache) Put(s CachedSuggestion) {
	k := lineKey{s.FilePath, s.Line}
	if _, exists := c.entries[k]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[k] = &cacheEntry{CachedSuggestion: s}
}

// Lookup resolves the cursor position against the cached suggestion for
// that line.
//
// # Description
//
//	The hit path tolerates the user typing exactly what was predicted:
//	whatever was typed since capture is stripped off the front of the
//	suggestion and the remainder comes back, so each keystroke along the
//	prediction keeps hitting at zero latency. Anything else on the line
//	since capture, or a cursor left of the capture column, is a miss.
//	A fully typed-through suggestion is also a miss; there is nothing
//	left to show.
//
// Inputs:
//   - filePath: document the cursor is in.
//   - line, char: cursor position, rune offsets.
//   - currentLine: full text of the cursor line right now.
//
// Outputs:
//   - remaining suggestion text, the matched entry, and ok.
func (c *Cache) Lookup(filePath string, line, char int, currentLine string) (string, CachedSuggestion, bool) {
	e, ok := c.entries[lineKey{filePath, line}]
	if !ok {
		return "", CachedSuggestion{}, false
	}
	if char < e.Character {
		return "", CachedSuggestion{}, false
	}
	runes := []rune(currentLine)
	if e.Character > len(runes) {
		return "", CachedSuggestion{}, false
	}
	if string(runes[:e.Character]) != e.LinePrefix {
		return "", CachedSuggestion{}, false
	}
	if char > len(runes) {
		char = len(runes)
	}
	typed := string(runes[e.Character:char])
	if !strings.HasPrefix(e.Text, typed) {
		return "", CachedSuggestion{}, false
	}
	remaining := e.Text[len(typed):]
	if remaining == "" {
		return "", CachedSuggestion{}, false
	}
	return remaining, e.CachedSuggestion, true
}

// RefreshDue reports whether the entry on the given line is old enough
// to want a background refresh, and latches so the same entry only
// reports true once.
func (c *Cache) RefreshDue(filePath string, line int) bool {
	e, ok := c.entries[lineKey{filePath, line}]
	if !ok {
		return false
	}
	if c.now().Sub(e.CapturedAt) <= c.staleAfter {
		return false
	}
	if e.refreshRequested {
		return false
	}
	e.refreshRequested = true
	return true
}

// Invalidate drops the entry for one line, if any.
func (c *Cache) Invalidate(filePath string, line int) {
	delete(c.entries, lineKey{filePath, line})
}

// InvalidateFile drops every entry for a document.
func (c *Cache) InvalidateFile(filePath string) {
	for k := range c.entries {
		if k.file == filePath {
			delete(c.entries, k)
		}
	}
}

// Clear empties the cache and returns how many entries were dropped.
func (c *Cache) Clear() int {
	n := len(c.entries)
	c.entries = make(map[lineKey]*cacheEntry)
	return n
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	return len(c.entries)
}

func (c *Cache) evictOldest() {
	var (
		oldestKey lineKey
		oldestAt  time.Time
		found     bool
	)
	for k, e := range c.entries {
		if !found || e.CapturedAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.CapturedAt
			found = true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}
