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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// Policy File Tests
// -----------------------------------------------------------------------------

func TestStorage_Paths(t *testing.T) {
	s := NewStorage("/tmp/rl")
	assert.Equal(t, filepath.Join("/tmp/rl", "policy.json"), s.PolicyPath())
	assert.Equal(t, filepath.Join("/tmp/rl", "feedback.jsonl"), s.FeedbackPath())
}

func TestStorage_SaveLoadRoundTrip(t *testing.T) {
	s := NewStorage(t.TempDir())

	a := newTestPolicy(t, twoArmConfig())
	for i := 0; i < 100; i++ {
		a.Update(testBucket, "good", 0.95)
	}
	for i := 0; i < 30; i++ {
		a.Update(testBucket, "bad", 0.05)
	}
	require.True(t, a.State().Buckets[testBucket]["bad"].Disabled)
	require.NoError(t, s.Save(a))

	b := newTestPolicy(t, twoArmConfig())
	require.NoError(t, s.Load(b))

	assert.Equal(t, a.State(), b.State())
}

func TestStorage_Save_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "rl")
	s := NewStorage(dir)

	p := newTestPolicy(t, twoArmConfig())
	p.Update(testBucket, "good", 1.0)

	require.NoError(t, s.Save(p))
	assert.FileExists(t, s.PolicyPath())
}

func TestStorage_Save_LeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	s := NewStorage(dir)

	p := newTestPolicy(t, twoArmConfig())
	p.Update(testBucket, "good", 1.0)
	require.NoError(t, s.Save(p))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "leftover temp file %s", e.Name())
	}
}

func TestStorage_Save_DisabledListedSeparately(t *testing.T) {
	s := NewStorage(t.TempDir())

	p := newTestPolicy(t, twoArmConfig())
	p.Import(PolicyState{
		TotalInteractions: 130,
		Buckets: map[string]map[string]ArmState{
			testBucket: {
				"good": {Mean: 0.95, Observations: 100},
				"bad":  {Mean: 0.05, Observations: 30, Disabled: true},
			},
		},
	})
	require.NoError(t, s.Save(p))

	data, err := os.ReadFile(s.PolicyPath())
	require.NoError(t, err)

	var file struct {
		Version  int                 `json:"version"`
		Disabled map[string][]string `json:"disabled_strategies"`
	}
	require.NoError(t, json.Unmarshal(data, &file))
	assert.Equal(t, 1, file.Version)
	assert.Equal(t, []string{"bad"}, file.Disabled[testBucket])
}

func TestStorage_Load_MissingFileIsFreshStart(t *testing.T) {
	s := NewStorage(t.TempDir())
	p := newTestPolicy(t, twoArmConfig())

	require.NoError(t, s.Load(p))
	assert.Zero(t, p.TotalInteractions())
}

func TestStorage_Load_VersionMismatch(t *testing.T) {
	dir := t.TempDir()
	s := NewStorage(dir)
	content := `{"version": 99, "total_interactions": 7, "buckets": {}}`
	require.NoError(t, os.WriteFile(s.PolicyPath(), []byte(content), 0644))

	p := newTestPolicy(t, twoArmConfig())
	p.Update(testBucket, "good", 1.0)

	err := s.Load(p)
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
	// The policy keeps its in-memory state on a failed load
	assert.EqualValues(t, 1, p.TotalInteractions())
}

func TestStorage_Load_CorruptFile(t *testing.T) {
	s := NewStorage(t.TempDir())
	require.NoError(t, os.WriteFile(s.PolicyPath(), []byte("{not json"), 0644))

	p := newTestPolicy(t, twoArmConfig())
	err := s.Load(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse policy file")
}

// -----------------------------------------------------------------------------
// Feedback Log Tests
// -----------------------------------------------------------------------------

func TestStorage_LogFeedback(t *testing.T) {
	s := NewStorage(t.TempDir())

	entries := []FeedbackEntry{
		{TS: 1700000001, Bucket: testBucket, Strategy: "standard", Accepted: true, LatencyMS: 412.0},
		{TS: 1700000002, Bucket: testBucket, Strategy: "rich", Accepted: false, LatencyMS: 901.26},
		{TS: 1700000003, Bucket: testBucket, Strategy: "minimal", Accepted: true, LatencyMS: 333.3},
	}
	for _, e := range entries {
		require.NoError(t, s.LogFeedback(e))
	}

	data, err := os.ReadFile(s.FeedbackPath())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 3)

	var got FeedbackEntry
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &got))
	assert.Equal(t, "rich", got.Strategy)
	assert.False(t, got.Accepted)
	assert.InDelta(t, 901.3, got.LatencyMS, 1e-9, "latency is rounded to one decimal")
}

func TestStorage_LogFeedback_DefaultsTimestamp(t *testing.T) {
	s := NewStorage(t.TempDir())

	require.NoError(t, s.LogFeedback(FeedbackEntry{Bucket: testBucket, Strategy: "standard"}))

	data, err := os.ReadFile(s.FeedbackPath())
	require.NoError(t, err)

	var got FeedbackEntry
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Positive(t, got.TS)
}

func TestStorage_FeedbackLogTruncation(t *testing.T) {
	s := NewStorage(t.TempDir())

	// Pad the bucket so entries are large enough to trip the size check
	bucket := strings.Repeat("x", 150)
	total := MaxFeedbackEntries + 50
	for i := 0; i < total; i++ {
		entry := FeedbackEntry{
			TS:       1700000000 + int64(i),
			Bucket:   bucket,
			Strategy: fmt.Sprintf("s%04d", i),
		}
		require.NoError(t, s.LogFeedback(entry))
	}

	data, err := os.ReadFile(s.FeedbackPath())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, MaxFeedbackEntries)

	var first, last FeedbackEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &last))
	assert.Equal(t, "s0050", first.Strategy, "oldest entries are dropped")
	assert.Equal(t, fmt.Sprintf("s%04d", total-1), last.Strategy)
}

func TestStorage_SetFeedbackCap(t *testing.T) {
	s := NewStorage(t.TempDir())
	s.SetFeedbackCap(25)

	bucket := strings.Repeat("y", 150)
	for i := 0; i < 60; i++ {
		entry := FeedbackEntry{
			TS:       1700000000 + int64(i),
			Bucket:   bucket,
			Strategy: fmt.Sprintf("s%02d", i),
		}
		require.NoError(t, s.LogFeedback(entry))
	}

	data, err := os.ReadFile(s.FeedbackPath())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 25)

	var first FeedbackEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "s35", first.Strategy)

	s.SetFeedbackCap(0)
	assert.Equal(t, 25, s.feedbackCap, "non-positive cap is ignored")
}
