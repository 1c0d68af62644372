// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package protocol

import (
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Method Names
// =============================================================================

// Methods understood by the daemon. Anything else gets CodeMethodNotFound.
const (
	MethodGetSuggestion = "getSuggestion"
	MethodSendFeedback  = "sendFeedback"
	MethodGetStats      = "getStats"
	MethodGetRLStats    = "getRLStats"
	MethodSetModel      = "setModel"
	MethodClearCache    = "clearCache"
	MethodPing          = "ping"
)

// =============================================================================
// Limits
// =============================================================================

const (
	// MaxContentBytes caps the document content accepted in a single
	// getSuggestion request. Large generated files are truncated client-side
	// before they reach the daemon.
	MaxContentBytes = 2 * 1024 * 1024 // 2MB

	// MaxContextLines caps how many lines of surrounding context a client
	// may request per direction.
	MaxContextLines = 200
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// tabValidate is the validator instance for protocol params.
// Initialized in init() with custom validators.
var tabValidate *validator.Validate

func init() {
	tabValidate = validator.New()

	// Byte-length check for document content to bound request memory
	_ = tabValidate.RegisterValidation("maxbytes", validateMaxBytes)
}

// validateMaxBytes validates that a string field does not exceed MaxContentBytes.
// Checks byte length, not rune count.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxContentBytes
}

// =============================================================================
// getSuggestion
// =============================================================================

// CursorPosition is a zero-based (line, character) position in a document.
type CursorPosition struct {
	Line      int `json:"line" validate:"gte=0"`
	Character int `json:"character" validate:"gte=0"`
}

// GetSuggestionParams asks the daemon for a completion at the cursor.
//
// # Description
//
// Content is the full document text at request time. ContextLines bounds
// how many lines around the cursor the engine may feed to the model; zero
// means the server default.
type GetSuggestionParams struct {
	FilePath     string         `json:"file_path" validate:"required"`
	Content      string         `json:"content" validate:"maxbytes"`
	Cursor       CursorPosition `json:"cursor"`
	ContextLines int            `json:"context_lines" validate:"gte=0,lte=200"`
}

// Validate validates the params using protocol validation tags.
func (p *GetSuggestionParams) Validate() error {
	return tabValidate.Struct(p)
}

// Suggestion type values returned in GetSuggestionResult.Type.
const (
	SuggestionTypeInsertion = "insertion"
	SuggestionTypeNone      = "none"
)

// GetSuggestionResult is the daemon's answer to getSuggestion.
//
// # Description
//
// An empty Suggestion with Type "none" means the daemon declined to
// suggest; clients show nothing and send no feedback. SuggestionID is only
// set for non-empty suggestions and is the handle feedback must reference.
// Strategy and Bucket expose which bandit arm produced the suggestion.
// Cached is true when the text came from the server memo cache rather than
// a fresh model round trip.
type GetSuggestionResult struct {
	Suggestion   string `json:"suggestion"`
	Type         string `json:"type"`
	SuggestionID string `json:"suggestion_id,omitempty"`
	Strategy     string `json:"strategy,omitempty"`
	Bucket       string `json:"bucket,omitempty"`
	Cached       bool   `json:"cached"`
}

// =============================================================================
// sendFeedback
// =============================================================================

// SendFeedbackParams reports the outcome of a previously issued suggestion.
//
// # Description
//
// Accepted is true when the user kept the suggestion (fully or nearly
// fully typed through it), false when they typed away from it or moved on.
// LatencyMS is the time from suggestion issue to resolution as measured by
// the client.
type SendFeedbackParams struct {
	SuggestionID string  `json:"suggestion_id" validate:"required,uuid4"`
	Accepted     bool    `json:"accepted"`
	LatencyMS    float64 `json:"latency_ms" validate:"gte=0"`
}

// Validate validates the params using protocol validation tags.
func (p *SendFeedbackParams) Validate() error {
	return tabValidate.Struct(p)
}

// SendFeedbackResult acknowledges a feedback report.
//
// Recorded is false when the suggestion id was unknown or already
// resolved; the daemon drops such reports rather than erroring.
type SendFeedbackResult struct {
	Status   string `json:"status"`
	Recorded bool   `json:"recorded"`
}

// =============================================================================
// getStats
// =============================================================================

// CacheStats describes the server-side memo cache.
type CacheStats struct {
	Size         int   `json:"size"`
	MaxSize      int   `json:"max_size"`
	TotalHits    int64 `json:"total_hits"`
	FilesTracked int   `json:"files_tracked"`
}

// GetStatsResult is the daemon's answer to getStats.
type GetStatsResult struct {
	Cache         CacheStats `json:"cache"`
	Model         string     `json:"model"`
	RequestsTotal int64      `json:"requests_total"`
	UptimeSeconds int64      `json:"uptime_seconds"`
}

// =============================================================================
// getRLStats
// =============================================================================

// StrategyStat is one bandit arm's running state within a bucket.
type StrategyStat struct {
	Mean         float64 `json:"mean"`
	Observations int64   `json:"observations"`
	Disabled     bool    `json:"disabled"`
}

// GetRLStatsResult is the daemon's answer to getRLStats.
//
// Buckets maps bucket key to strategy name to arm state. Disabled lists
// the disabled strategy names per bucket for quick scanning.
type GetRLStatsResult struct {
	TotalInteractions int64                              `json:"total_interactions"`
	Buckets           map[string]map[string]StrategyStat `json:"buckets"`
	Disabled          map[string][]string                `json:"disabled_strategies,omitempty"`
}

// =============================================================================
// setModel
// =============================================================================

// SetModelParams switches the completion model at runtime.
type SetModelParams struct {
	Model string `json:"model" validate:"required,min=1,max=128"`
}

// Validate validates the params using protocol validation tags.
func (p *SetModelParams) Validate() error {
	return tabValidate.Struct(p)
}

// SetModelResult acknowledges a model switch.
type SetModelResult struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

// =============================================================================
// clearCache
// =============================================================================

// ClearCacheResult reports how many memo entries were dropped.
type ClearCacheResult struct {
	Status  string `json:"status"`
	Cleared int    `json:"cleared"`
}

// =============================================================================
// ping
// =============================================================================

// PingResult is the daemon's liveness answer.
type PingResult struct {
	Status string `json:"status"`
}

// StatusOK is the status value used by acknowledgement results.
const StatusOK = "ok"
