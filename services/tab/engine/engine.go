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
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AleutianAI/AleutianTab/pkg/logging"
	"github.com/AleutianAI/AleutianTab/services/llm"
	"github.com/AleutianAI/AleutianTab/services/tab/rl"
	"github.com/AleutianAI/AleutianTab/services/tab/telemetry"
)

const tracerName = "tab.engine"

// ErrModelUnavailable means no model client is configured, usually
// because client construction failed at startup and no setModel has
// succeeded since.
var ErrModelUnavailable = errors.New("engine: model unavailable")

// Suggestion is one completion produced by the engine.
//
// An empty Text is the normal outcome for positions not worth
// completing; callers surface it as "no suggestion" rather than an
// error. Cached marks memo hits, where Strategy names the arm that
// originally produced the text.
type Suggestion struct {
	Text     string
	Strategy string
	Bucket   string
	Cached   bool
}

// Config holds engine construction parameters.
type Config struct {
	// Model is a model name or alias understood by the llm factory.
	Model string

	// MemoSize and MemoTTL bound the memo cache. Zero values take the
	// package defaults.
	MemoSize int
	MemoTTL  time.Duration
}

// DefaultConfig returns the engine defaults: a small local code model
// and the standard memo bounds.
func DefaultConfig() Config {
	return Config{
		Model:    "qwen2.5-coder:1.5b",
		MemoSize: DefaultMemoSize,
		MemoTTL:  DefaultMemoTTL,
	}
}

// Engine produces inline completions for document positions.
//
// # Description
//
// Owns the memo cache and the swappable model client; borrows the
// strategy registry and bandit policy, which the daemon shares with the
// feedback path. Safe for concurrent use; the model client swaps
// atomically under SetModel without blocking in-flight generations.
type Engine struct {
	mu     sync.RWMutex
	model  string
	client llm.LLMClient

	registry *rl.Registry
	policy   *rl.Policy
	memo     *MemoCache
	log      *logging.Logger
	metrics  *telemetry.Metrics
}

// New creates an Engine.
//
// Description:
//
//	A model client that cannot be constructed (missing API key, bad
//	model name) is logged and left unset rather than failing startup;
//	the daemon still serves cache hits and stats, and a later setModel
//	can recover. Registry and policy are required.
//
// Inputs:
//
//	cfg - Engine configuration; zero-value fields take defaults.
//	registry - Strategy definitions the policy selects among.
//	policy - Bandit policy shared with the feedback path.
//	log - Logger; nil falls back to the package default logger.
//	metrics - Optional OTel metrics; nil disables recording.
//
// Outputs:
//
//	*Engine - The constructed engine.
//	error - Non-nil if registry or policy is nil.
func New(cfg Config, registry *rl.Registry, policy *rl.Policy, log *logging.Logger, metrics *telemetry.Metrics) (*Engine, error) {
	if registry == nil {
		return nil, errors.New("engine: registry is required")
	}
	if policy == nil {
		return nil, errors.New("engine: policy is required")
	}
	if log == nil {
		log = logging.Default()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultConfig().Model
	}

	e := &Engine{
		model:    llm.ResolveModel(cfg.Model),
		registry: registry,
		policy:   policy,
		memo:     NewMemoCache(cfg.MemoSize, cfg.MemoTTL),
		log:      log,
		metrics:  metrics,
	}

	client, err := llm.New(cfg.Model)
	if err != nil {
		log.Warn("Model client unavailable at startup", "model", cfg.Model, "error", err)
	} else {
		e.client = client
	}
	return e, nil
}

// Suggest generates a completion for the given cursor position.
//
// Description:
//
//	Pipeline: bucket the position, skip positions not worth
//	completing, probe the memo cache, then let the bandit pick a
//	strategy, build its prompt, and call the model. Raw output is
//	post-processed; output that cleans down to nothing returns an
//	empty Suggestion, not an error.
//
// Inputs:
//
//	ctx - Context for cancellation; the model call inherits it.
//	filePath - Document path, used for language detection and memo keys.
//	content - Full document text.
//	line, char - Cursor position, 0-indexed.
//
// Outputs:
//
//	*Suggestion - The completion; Text is empty when declining.
//	error - Non-nil on model failure or when no client is configured.
func (e *Engine) Suggest(ctx context.Context, filePath, content string, line, char int) (*Suggestion, error) {
	ctx, span := telemetry.StartSpan(ctx, tracerName, "Engine.Suggest")
	defer span.End()

	feat := BuildFeatures(filePath, content, line, char)
	bucket := rl.BucketKey(feat)
	telemetry.SetSpanAttributes(span,
		attribute.String("tab.bucket", bucket),
		attribute.String("tab.language", feat.Language),
	)

	// Cheap skip before touching the bandit or the memo.
	_, _, prefix, suffix, current := splitCursor(content, line, char)
	if shouldSkip(Context{CurrentLine: current, Prefix: prefix, Suffix: suffix}) {
		e.countSuggestion(ctx, "skip")
		return &Suggestion{Bucket: bucket}, nil
	}

	if text, strat, ok := e.memo.Get(filePath, content, line, char); ok {
		e.countMemo(ctx, "hit")
		e.countSuggestion(ctx, "memo")
		telemetry.AddSpanEvent(span, "memo_hit")
		return &Suggestion{Text: text, Strategy: strat, Bucket: bucket, Cached: true}, nil
	}
	e.countMemo(ctx, "miss")

	e.mu.RLock()
	client := e.client
	model := e.model
	e.mu.RUnlock()
	if client == nil {
		telemetry.RecordError(span, ErrModelUnavailable)
		return nil, ErrModelUnavailable
	}

	strategyName := e.policy.Select(bucket)
	strat, err := e.registry.Get(strategyName)
	if err != nil {
		// The policy can carry arms from an older strategies file.
		e.log.Warn("Policy selected unknown strategy, using default", "strategy", strategyName)
		strategyName = rl.DefaultStrategy
		strat = rl.BuiltinStrategies()[strategyName]
	}
	e.countStrategy(ctx, strategyName)
	telemetry.SetSpanAttributes(span, attribute.String("tab.strategy", strategyName))

	cctx := BuildContext(filePath, content, line, char, strat)
	prompt := buildPrompt(cctx)

	temp := float32(0.2)
	maxTokens := strat.MaxTokens
	start := time.Now()
	raw, err := client.Generate(ctx, prompt, llm.GenerationParams{
		System:      systemPrompt,
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	})
	elapsed := time.Since(start)
	e.countFetch(ctx, model, err, elapsed)
	if err != nil {
		telemetry.RecordError(span, err)
		e.log.Warn("Model fetch failed", "model", model, "error", err)
		return nil, fmt.Errorf("generate suggestion: %w", err)
	}

	text := postProcess(raw, cctx)
	if text == "" {
		e.countSuggestion(ctx, "empty")
		return &Suggestion{Strategy: strategyName, Bucket: bucket}, nil
	}

	e.memo.Put(filePath, content, line, char, text, strategyName)
	e.countSuggestion(ctx, "model")
	telemetry.SetSpanOK(span)
	return &Suggestion{Text: text, Strategy: strategyName, Bucket: bucket}, nil
}

// SetModel swaps the model client at runtime.
//
// The old client keeps serving in-flight generations; construction
// failure leaves the current client in place.
func (e *Engine) SetModel(model string) error {
	client, err := llm.New(model)
	if err != nil {
		return fmt.Errorf("set model %q: %w", model, err)
	}
	e.mu.Lock()
	e.client = client
	e.model = client.Name()
	e.mu.Unlock()
	e.log.Info("Model switched", "model", client.Name())
	return nil
}

// Model returns the resolved name of the current model.
func (e *Engine) Model() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.model
}

// Warm asks the current client to preload its model, if it supports
// warming. Safe to call in a goroutine at startup.
func (e *Engine) Warm(ctx context.Context) error {
	e.mu.RLock()
	client := e.client
	e.mu.RUnlock()

	w, ok := client.(llm.Warmer)
	if !ok {
		return nil
	}
	return w.Warm(ctx)
}

// Memo exposes the memo cache for stats and clearing.
func (e *Engine) Memo() *MemoCache {
	return e.memo
}

func (e *Engine) countSuggestion(ctx context.Context, source string) {
	if e.metrics == nil {
		return
	}
	e.metrics.SuggestionsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("source", source)))
}

func (e *Engine) countMemo(ctx context.Context, outcome string) {
	if e.metrics == nil {
		return
	}
	e.metrics.MemoLookupsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (e *Engine) countStrategy(ctx context.Context, strategy string) {
	if e.metrics == nil {
		return
	}
	e.metrics.StrategySelectionsTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("strategy", strategy)))
}

func (e *Engine) countFetch(ctx context.Context, model string, err error, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("status", status),
	)
	e.metrics.FetchesTotal.Add(ctx, 1, attrs)
	e.metrics.FetchDuration.Record(ctx, elapsed.Seconds(), attrs)
}
