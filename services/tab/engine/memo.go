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
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Memo cache defaults. Five minutes covers a typical burst of edits in
// one region of a file without serving completions for code the user
// has since rewritten.
const (
	DefaultMemoSize = 100
	DefaultMemoTTL  = 5 * time.Minute
)

// Lines hashed into memo keys around the cursor. Narrower than any
// prompt window on purpose: edits outside this slice should not forfeit
// a reusable completion.
const (
	memoLinesBefore = 5
	memoLinesAfter  = 2
)

type memoEntry struct {
	suggestion string
	strategy   string
	storedAt   time.Time
	hits       int64
}

// MemoStats is a point-in-time summary of the memo cache.
type MemoStats struct {
	Size         int
	MaxSize      int
	TotalHits    int64
	FilesTracked int
}

// MemoCache remembers recent completions keyed by file, position, and a
// hash of the surrounding lines.
//
// # Description
//
// Each file's content hash is tracked; when a file's content changes,
// all of that file's entries are dropped on the next probe. Entries
// expire after a TTL and the oldest entry is evicted when the cache is
// full. Safe for concurrent use.
type MemoCache struct {
	mu           sync.Mutex
	maxSize      int
	ttl          time.Duration
	now          func() time.Time
	entries      map[string]*memoEntry
	fileVersions map[string]string
}

// NewMemoCache creates a memo cache. Non-positive arguments fall back
// to the defaults.
func NewMemoCache(maxSize int, ttl time.Duration) *MemoCache {
	if maxSize <= 0 {
		maxSize = DefaultMemoSize
	}
	if ttl <= 0 {
		ttl = DefaultMemoTTL
	}
	return &MemoCache{
		maxSize:      maxSize,
		ttl:          ttl,
		now:          time.Now,
		entries:      make(map[string]*memoEntry),
		fileVersions: make(map[string]string),
	}
}

// Get returns the remembered suggestion and the strategy that produced
// it for this position, if one is still valid.
//
// Description:
//
//	A changed file hash invalidates every entry for that file before
//	the probe, so a stale completion is never returned after an edit
//	elsewhere in the file. Expired entries are removed lazily here.
//
// Outputs:
//
//	string - The suggestion text.
//	string - The strategy name stored with it.
//	bool - False on miss, expiry, or file change.
func (c *MemoCache) Get(filePath, content string, line, char int) (string, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	version := contentHash(content)
	if prev, ok := c.fileVersions[filePath]; ok && prev != version {
		c.invalidateFileLocked(filePath)
		c.fileVersions[filePath] = version
		return "", "", false
	}
	c.fileVersions[filePath] = version

	key := memoKey(filePath, content, line, char)
	e, ok := c.entries[key]
	if !ok {
		return "", "", false
	}
	if c.now().Sub(e.storedAt) > c.ttl {
		delete(c.entries, key)
		return "", "", false
	}
	e.hits++
	return e.suggestion, e.strategy, true
}

// Put stores a suggestion for this position, evicting the oldest entry
// if the cache is full.
func (c *MemoCache) Put(filePath, content string, line, char int, suggestion, strategy string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fileVersions[filePath] = contentHash(content)

	if len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}

	c.entries[memoKey(filePath, content, line, char)] = &memoEntry{
		suggestion: suggestion,
		strategy:   strategy,
		storedAt:   c.now(),
	}
}

// Clear drops every entry and all file version tracking, returning the
// number of entries dropped.
func (c *MemoCache) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	c.entries = make(map[string]*memoEntry)
	c.fileVersions = make(map[string]string)
	return n
}

// Stats reports current size and hit counts. Hits on since-evicted
// entries are not counted.
func (c *MemoCache) Stats() MemoStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var hits int64
	for _, e := range c.entries {
		hits += e.hits
	}
	return MemoStats{
		Size:         len(c.entries),
		MaxSize:      c.maxSize,
		TotalHits:    hits,
		FilesTracked: len(c.fileVersions),
	}
}

func (c *MemoCache) invalidateFileLocked(filePath string) {
	prefix := filePath + ":"
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

func (c *MemoCache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for key, e := range c.entries {
		if oldestKey == "" || e.storedAt.Before(oldest) {
			oldestKey = key
			oldest = e.storedAt
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

// memoKey builds "file:line:char:hash" where hash covers the context
// window around the cursor.
func memoKey(filePath, content string, line, char int) string {
	window := contextWindow(content, line)
	sum := md5.Sum([]byte(window))
	return fmt.Sprintf("%s:%d:%d:%s", filePath, line, char, hex.EncodeToString(sum[:])[:16])
}

// contextWindow extracts the lines hashed into a memo key, clamping the
// cursor line into range the same way the context builder does.
func contextWindow(content string, line int) string {
	lines := strings.Split(content, "\n")
	if line < 0 {
		line = 0
	}
	if line >= len(lines) {
		line = len(lines) - 1
	}
	lo := line - memoLinesBefore
	if lo < 0 {
		lo = 0
	}
	hi := line + memoLinesAfter
	if hi > len(lines) {
		hi = len(lines)
	}
	return strings.Join(lines[lo:hi], "\n")
}

func contentHash(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}
