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
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	policyFileName   = "policy.json"
	feedbackFileName = "feedback.jsonl"

	// policyVersion guards the on-disk format. Bump on incompatible changes.
	policyVersion = 1

	// MaxFeedbackEntries bounds the rolling feedback log.
	MaxFeedbackEntries = 1000
)

// FeedbackEntry is one line of the rolling feedback log.
type FeedbackEntry struct {
	TS        int64   `json:"ts"`
	Bucket    string  `json:"bucket"`
	Strategy  string  `json:"strategy"`
	Accepted  bool    `json:"accepted"`
	LatencyMS float64 `json:"latency_ms"`
}

// policyFile is the on-disk policy layout. Disabled arms are listed
// separately so the file stays easy to hand-edit.
type policyFile struct {
	Version           int                                 `json:"version"`
	TotalInteractions int64                               `json:"total_interactions"`
	Buckets           map[string]map[string]armRecord     `json:"buckets"`
	Disabled          map[string][]string                 `json:"disabled_strategies"`
}

type armRecord struct {
	Mean         float64 `json:"mean"`
	Observations int64   `json:"observations"`
}

// Storage persists policy state and the feedback log under one directory.
//
// # Description
//
// The policy file is written atomically (tmp + rename) so a crash mid-save
// never leaves a torn file. The feedback log is append-only JSONL,
// truncated to the newest MaxFeedbackEntries once it grows past a size
// heuristic.
//
// # Thread Safety
//
// Not safe for concurrent use. The daemon serializes saves through its
// service layer.
type Storage struct {
	dir         string
	feedbackCap int
}

// NewStorage returns a Storage rooted at dir. The directory is created
// lazily on first save.
func NewStorage(dir string) *Storage {
	return &Storage{dir: dir, feedbackCap: MaxFeedbackEntries}
}

// SetFeedbackCap overrides how many feedback entries the rolling log
// keeps. Non-positive values are ignored.
func (s *Storage) SetFeedbackCap(n int) {
	if n > 0 {
		s.feedbackCap = n
	}
}

// PolicyPath returns the full path of the policy file, for watchers.
func (s *Storage) PolicyPath() string {
	return filepath.Join(s.dir, policyFileName)
}

// FeedbackPath returns the full path of the feedback log.
func (s *Storage) FeedbackPath() string {
	return filepath.Join(s.dir, feedbackFileName)
}

// Save writes the policy state to disk atomically.
func (s *Storage) Save(p *Policy) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create policy dir: %w", err)
	}

	st := p.State()
	file := policyFile{
		Version:           policyVersion,
		TotalInteractions: st.TotalInteractions,
		Buckets:           make(map[string]map[string]armRecord, len(st.Buckets)),
		Disabled:          make(map[string][]string),
	}
	for bucket, arms := range st.Buckets {
		records := make(map[string]armRecord, len(arms))
		var disabled []string
		for name, a := range arms {
			records[name] = armRecord{Mean: a.Mean, Observations: a.Observations}
			if a.Disabled {
				disabled = append(disabled, name)
			}
		}
		file.Buckets[bucket] = records
		if len(disabled) > 0 {
			sort.Strings(disabled)
			file.Disabled[bucket] = disabled
		}
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal policy: %w", err)
	}

	tmp := s.PolicyPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write policy tmp file: %w", err)
	}
	if err := os.Rename(tmp, s.PolicyPath()); err != nil {
		return fmt.Errorf("rename policy file: %w", err)
	}
	return nil
}

// Load reads persisted state into the policy.
//
// A missing file is not an error (fresh start). A version mismatch
// returns ErrIncompatibleVersion and leaves the policy untouched;
// callers typically log it and continue fresh.
func (s *Storage) Load(p *Policy) error {
	data, err := os.ReadFile(s.PolicyPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read policy file: %w", err)
	}

	var file policyFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse policy file: %w", err)
	}
	if file.Version != policyVersion {
		return fmt.Errorf("%w: got %d, want %d", ErrIncompatibleVersion, file.Version, policyVersion)
	}

	st := PolicyState{
		TotalInteractions: file.TotalInteractions,
		Buckets:           make(map[string]map[string]ArmState, len(file.Buckets)),
	}
	for bucket, records := range file.Buckets {
		arms := make(map[string]ArmState, len(records))
		for name, rec := range records {
			arms[name] = ArmState{Mean: rec.Mean, Observations: rec.Observations}
		}
		st.Buckets[bucket] = arms
	}
	for bucket, disabled := range file.Disabled {
		arms, ok := st.Buckets[bucket]
		if !ok {
			arms = make(map[string]ArmState)
			st.Buckets[bucket] = arms
		}
		for _, name := range disabled {
			a := arms[name]
			a.Disabled = true
			arms[name] = a
		}
	}

	p.Import(st)
	return nil
}

// LogFeedback appends one entry to the rolling feedback log.
func (s *Storage) LogFeedback(entry FeedbackEntry) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create policy dir: %w", err)
	}
	if entry.TS == 0 {
		entry.TS = time.Now().Unix()
	}
	entry.LatencyMS = math.Round(entry.LatencyMS*10) / 10

	f, err := os.OpenFile(s.FeedbackPath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open feedback log: %w", err)
	}
	if err := json.NewEncoder(f).Encode(entry); err != nil {
		f.Close()
		return fmt.Errorf("append feedback entry: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close feedback log: %w", err)
	}

	return s.truncateFeedbackLog()
}

// truncateFeedbackLog keeps the newest feedbackCap entries. The size
// heuristic avoids re-reading the file on every append.
func (s *Storage) truncateFeedbackLog() error {
	info, err := os.Stat(s.FeedbackPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat feedback log: %w", err)
	}

	// Entries run ~100-150 bytes; below this the log cannot be over limit
	if info.Size() < int64(s.feedbackCap)*100 {
		return nil
	}

	data, err := os.ReadFile(s.FeedbackPath())
	if err != nil {
		return fmt.Errorf("read feedback log: %w", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) <= s.feedbackCap {
		return nil
	}

	kept := lines[len(lines)-s.feedbackCap:]
	tmp := s.FeedbackPath() + ".tmp"
	if err := os.WriteFile(tmp, []byte(strings.Join(kept, "\n")+"\n"), 0644); err != nil {
		return fmt.Errorf("write feedback tmp file: %w", err)
	}
	if err := os.Rename(tmp, s.FeedbackPath()); err != nil {
		return fmt.Errorf("rename feedback log: %w", err)
	}
	return nil
}
