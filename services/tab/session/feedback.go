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
	"math"
	"strings"
	"time"
	"unicode/utf8"
)

// Verdict is a classifier's reading of one document change against the
// pending suggestion.
type Verdict int

const (
	// VerdictInconclusive keeps the suggestion pending.
	VerdictInconclusive Verdict = iota

	// VerdictAccept resolves the suggestion as accepted.
	VerdictAccept

	// VerdictReject resolves the suggestion as rejected.
	VerdictReject
)

// String returns the lowercase verdict name.
func (v Verdict) String() string {
	switch v {
	case VerdictAccept:
		return "accept"
	case VerdictReject:
		return "reject"
	default:
		return "inconclusive"
	}
}

// Change describes one text edit applied to a document.
//
// Line and Character locate where the inserted text begins, as rune
// offsets. Text is empty for pure deletions.
type Change struct {
	FilePath  string
	Line      int
	Character int
	Text      string
}

// PendingSuggestion is the one suggestion currently awaiting an
// accept/reject signal.
//
// # Description
//
//	Created when a fetch response is offered to the user, destroyed when
//	it resolves. IssuedAt anchors the latency measurement that feeds the
//	bandit's reward shaping.
type PendingSuggestion struct {
	SuggestionID string
	Strategy     string
	Bucket       string
	Text         string
	FilePath     string
	Line         int
	Character    int
	IssuedAt     time.Time
}

// Classifier turns a document change into a verdict on the pending
// suggestion. Implementations must be pure functions of their inputs;
// the session serializes calls.
type Classifier interface {
	Classify(pending PendingSuggestion, change Change) Verdict
}

// DefaultAcceptFraction is how much of a suggestion must be inserted,
// as a matching prefix, to count as an acceptance.
const DefaultAcceptFraction = 0.80

// PrefixClassifier is the default accept/reject heuristic.
//
// # Description
//
//	An insert equal to the suggestion is an accept. An insert that is a
//	prefix of the suggestion accepts once it covers AcceptFraction of
//	the suggestion's length; editors that split one acceptance into a
//	couple of insert events still land here. An insert at or past the
//	suggestion's start column that is not a prefix means the user typed
//	something else, so reject. Everything else, including changes in
//	other files or on other lines, is inconclusive; cross-line cursor
//	movement is the session's job, not the classifier's.
//
//	Lengths are counted in runes, matching how the rest of the pipeline
//	measures line offsets.
type PrefixClassifier struct {
	// AcceptFraction overrides DefaultAcceptFraction when positive.
	AcceptFraction float64
}

// Classify implements Classifier.
func (pc PrefixClassifier) Classify(pending PendingSuggestion, change Change) Verdict {
	if change.FilePath != pending.FilePath || change.Line != pending.Line {
		return VerdictInconclusive
	}
	inserted := change.Text
	if inserted == "" {
		return VerdictInconclusive
	}
	if inserted == pending.Text {
		return VerdictAccept
	}
	if strings.HasPrefix(pending.Text, inserted) {
		fraction := pc.AcceptFraction
		if fraction <= 0 {
			fraction = DefaultAcceptFraction
		}
		need := int(math.Ceil(fraction * float64(utf8.RuneCountInString(pending.Text))))
		if utf8.RuneCountInString(inserted) >= need {
			return VerdictAccept
		}
		return VerdictInconclusive
	}
	if change.Character >= pending.Character {
		return VerdictReject
	}
	return VerdictInconclusive
}
