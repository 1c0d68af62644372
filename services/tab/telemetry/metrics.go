// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// Metrics contains pre-defined metrics for the Tab completion daemon.
//
// Description:
//
//	Provides standard counters, histograms, and gauges for suggestion
//	serving, model fetches, memo cache behavior, and strategy selection.
//	All metrics use the "tab_" prefix for consistent naming.
//
// Thread Safety: Safe for concurrent use after creation.
type Metrics struct {
	// --- Suggestion Metrics ---

	// SuggestionsTotal counts served suggestions by source (model, memo, skip, empty).
	SuggestionsTotal metric.Int64Counter

	// SuggestionDuration records end-to-end getSuggestion duration in seconds.
	SuggestionDuration metric.Float64Histogram

	// --- Model Fetch Metrics ---

	// FetchesTotal counts model round trips by model name and status.
	FetchesTotal metric.Int64Counter

	// FetchDuration records model round trip duration in seconds.
	FetchDuration metric.Float64Histogram

	// --- Memo Cache Metrics ---

	// MemoLookupsTotal counts memo cache probes by outcome (hit, miss, expired).
	MemoLookupsTotal metric.Int64Counter

	// --- Feedback Metrics ---

	// FeedbackTotal counts feedback events by verdict (accepted, rejected).
	FeedbackTotal metric.Int64Counter

	// StrategySelectionsTotal counts strategy picks by strategy name.
	StrategySelectionsTotal metric.Int64Counter

	// --- Error Metrics ---

	// ErrorsTotal counts total errors by component.
	ErrorsTotal metric.Int64Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
//
// Description:
//
//	Registers all pre-defined metrics with the provided meter.
//	Returns an error if any metric registration fails.
//
// Inputs:
//
//	meter - The OTel meter to use for metric registration.
//
// Outputs:
//
//	*Metrics - The metrics instance with all counters and histograms initialized.
//	error - Non-nil if metric registration fails.
//
// Example:
//
//	meter := otel.Meter("tab")
//	metrics, err := telemetry.NewMetrics(meter)
//	if err != nil {
//	    return fmt.Errorf("create metrics: %w", err)
//	}
//	metrics.SuggestionsTotal.Add(ctx, 1, ...)
//
// Thread Safety: Safe for concurrent use after creation.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	// --- Suggestion Metrics ---
	m.SuggestionsTotal, err = meter.Int64Counter(
		"tab_suggestions_total",
		metric.WithDescription("Total suggestions served by source"),
		metric.WithUnit("{suggestion}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create suggestions_total: %w", err)
	}

	m.SuggestionDuration, err = meter.Float64Histogram(
		"tab_suggestion_duration_seconds",
		metric.WithDescription("End-to-end getSuggestion duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, fmt.Errorf("create suggestion_duration: %w", err)
	}

	// --- Model Fetch Metrics ---
	m.FetchesTotal, err = meter.Int64Counter(
		"tab_model_fetches_total",
		metric.WithDescription("Total model round trips"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create model_fetches_total: %w", err)
	}

	m.FetchDuration, err = meter.Float64Histogram(
		"tab_model_fetch_duration_seconds",
		metric.WithDescription("Model round trip duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	)
	if err != nil {
		return nil, fmt.Errorf("create model_fetch_duration: %w", err)
	}

	// --- Memo Cache Metrics ---
	m.MemoLookupsTotal, err = meter.Int64Counter(
		"tab_memo_lookups_total",
		metric.WithDescription("Memo cache probes by outcome"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create memo_lookups_total: %w", err)
	}

	// --- Feedback Metrics ---
	m.FeedbackTotal, err = meter.Int64Counter(
		"tab_feedback_total",
		metric.WithDescription("Feedback events by verdict"),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create feedback_total: %w", err)
	}

	m.StrategySelectionsTotal, err = meter.Int64Counter(
		"tab_strategy_selections_total",
		metric.WithDescription("Strategy picks by strategy name"),
		metric.WithUnit("{selection}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create strategy_selections_total: %w", err)
	}

	// --- Error Metrics ---
	m.ErrorsTotal, err = meter.Int64Counter(
		"tab_errors_total",
		metric.WithDescription("Total errors by component"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create errors_total: %w", err)
	}

	return m, nil
}

// RegisterDisabledStrategies registers a callback gauge reporting how many
// strategy arms are currently disabled across all buckets.
//
// Description:
//
//	Sets up an observable gauge evaluated at scrape time. The callback
//	should be cheap; it runs on every metrics collection.
//
// Inputs:
//
//	meter - The OTel meter to use for registration.
//	countFunc - A function that returns the current disabled arm count.
//
// Outputs:
//
//	metric.Registration - Registration handle for cleanup.
//	error - Non-nil if registration fails.
func RegisterDisabledStrategies(meter metric.Meter, countFunc func() int64) (metric.Registration, error) {
	gauge, err := meter.Int64ObservableGauge(
		"tab_strategies_disabled",
		metric.WithDescription("Strategy arms currently disabled across all buckets"),
		metric.WithUnit("{arm}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create strategies_disabled: %w", err)
	}

	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(gauge, countFunc())
		return nil
	}, gauge)
}
