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
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianTab/pkg/logging"
	"github.com/AleutianAI/AleutianTab/services/llm"
	"github.com/AleutianAI/AleutianTab/services/tab/rl"
)

type fakeLLM struct {
	mu         sync.Mutex
	calls      int
	lastPrompt string
	lastParams llm.GenerationParams
	response   string
	err        error
}

func (f *fakeLLM) Generate(_ context.Context, prompt string, params llm.GenerationParams) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastPrompt = prompt
	f.lastParams = params
	return f.response, f.err
}

func (f *fakeLLM) Name() string { return "fake-model" }

type warmableLLM struct {
	fakeLLM
	warmed  bool
	warmErr error
}

func (w *warmableLLM) Warm(_ context.Context) error {
	w.warmed = true
	return w.warmErr
}

func newTestEngine(t *testing.T, client llm.LLMClient) *Engine {
	t.Helper()
	policy, err := rl.NewPolicy(rl.DefaultPolicyConfig())
	require.NoError(t, err)

	e, err := New(Config{Model: "qwen2.5-coder:1.5b"}, rl.DefaultRegistry(), policy, logging.Default(), nil)
	require.NoError(t, err)
	e.client = client
	e.model = "fake-model"
	return e
}

// returnDoc places the cursor after "    return " inside a function.
var returnDoc = strings.Join([]string{
	"def add(a, b):",
	"    return ",
}, "\n")

// ----------------------------------------------------------------------------
// Suggest
// ----------------------------------------------------------------------------

func TestEngine_Suggest(t *testing.T) {
	fake := &fakeLLM{response: "a + b"}
	e := newTestEngine(t, fake)

	sugg, err := e.Suggest(context.Background(), "math.py", returnDoc, 1, 11)
	require.NoError(t, err)
	require.NotNil(t, sugg)

	assert.Equal(t, "a + b", sugg.Text)
	assert.False(t, sugg.Cached)
	assert.Equal(t, "python:function:small:start", sugg.Bucket)
	assert.Contains(t, rl.StrategyNames, sugg.Strategy)

	assert.Equal(t, 1, fake.calls)
	assert.Contains(t, fake.lastPrompt, "Complete the following python code:")
	assert.Contains(t, fake.lastPrompt, "    return <CURSOR>")
	assert.Equal(t, systemPrompt, fake.lastParams.System)

	strat, err := rl.DefaultRegistry().Get(sugg.Strategy)
	require.NoError(t, err)
	require.NotNil(t, fake.lastParams.MaxTokens)
	assert.Equal(t, strat.MaxTokens, *fake.lastParams.MaxTokens)
	require.NotNil(t, fake.lastParams.Temperature)
	assert.InDelta(t, 0.2, float64(*fake.lastParams.Temperature), 1e-6)
}

func TestEngine_Suggest_MemoRoundTrip(t *testing.T) {
	fake := &fakeLLM{response: "a + b"}
	e := newTestEngine(t, fake)

	first, err := e.Suggest(context.Background(), "math.py", returnDoc, 1, 11)
	require.NoError(t, err)
	second, err := e.Suggest(context.Background(), "math.py", returnDoc, 1, 11)
	require.NoError(t, err)

	assert.Equal(t, 1, fake.calls, "second suggestion comes from the memo")
	assert.True(t, second.Cached)
	assert.Equal(t, first.Text, second.Text)
	assert.Equal(t, first.Strategy, second.Strategy)
}

func TestEngine_Suggest_SkipPosition(t *testing.T) {
	fake := &fakeLLM{response: "never used"}
	e := newTestEngine(t, fake)

	sugg, err := e.Suggest(context.Background(), "a.py", "x = 1\n", 1, 0)
	require.NoError(t, err)
	require.NotNil(t, sugg)

	assert.Equal(t, "", sugg.Text)
	assert.NotEmpty(t, sugg.Bucket)
	assert.Equal(t, 0, fake.calls, "skipped positions never reach the model")
}

func TestEngine_Suggest_ModelError(t *testing.T) {
	fake := &fakeLLM{err: errors.New("boom")}
	e := newTestEngine(t, fake)

	_, err := e.Suggest(context.Background(), "math.py", returnDoc, 1, 11)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "generate suggestion")
	assert.Equal(t, 0, e.Memo().Stats().Size, "failures are not memoized")

	// Failures do not poison later requests.
	_, err = e.Suggest(context.Background(), "math.py", returnDoc, 1, 11)
	require.Error(t, err)
	assert.Equal(t, 2, fake.calls)
}

func TestEngine_Suggest_NoClient(t *testing.T) {
	e := newTestEngine(t, &fakeLLM{})
	e.client = nil

	_, err := e.Suggest(context.Background(), "math.py", returnDoc, 1, 11)
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestEngine_Suggest_EmptyOutput(t *testing.T) {
	fake := &fakeLLM{response: "```\n```"}
	e := newTestEngine(t, fake)

	sugg, err := e.Suggest(context.Background(), "math.py", returnDoc, 1, 11)
	require.NoError(t, err)

	assert.Equal(t, "", sugg.Text)
	assert.NotEmpty(t, sugg.Strategy, "a strategy was consulted even though it produced nothing")
	assert.Equal(t, 0, e.Memo().Stats().Size, "empty outputs are not memoized")
}

// ----------------------------------------------------------------------------
// Model management
// ----------------------------------------------------------------------------

func TestEngine_SetModel(t *testing.T) {
	e := newTestEngine(t, &fakeLLM{})

	require.NoError(t, e.SetModel("local"))
	assert.Equal(t, "qwen2.5-coder:1.5b", e.Model(), "aliases resolve to full names")
}

func TestEngine_SetModel_FailureKeepsOldClient(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	fake := &fakeLLM{response: "ok"}
	e := newTestEngine(t, fake)

	err := e.SetModel("gpt-4o-mini")
	require.Error(t, err)
	assert.Equal(t, "fake-model", e.Model())

	sugg, err := e.Suggest(context.Background(), "math.py", returnDoc, 1, 11)
	require.NoError(t, err)
	assert.Equal(t, "ok", sugg.Text)
}

func TestEngine_Warm(t *testing.T) {
	w := &warmableLLM{}
	e := newTestEngine(t, w)

	require.NoError(t, e.Warm(context.Background()))
	assert.True(t, w.warmed)
}

func TestEngine_Warm_NonWarmerIsNoop(t *testing.T) {
	e := newTestEngine(t, &fakeLLM{})
	assert.NoError(t, e.Warm(context.Background()))
}

// ----------------------------------------------------------------------------
// Construction
// ----------------------------------------------------------------------------

func TestEngine_New_RequiresRegistryAndPolicy(t *testing.T) {
	policy, err := rl.NewPolicy(rl.DefaultPolicyConfig())
	require.NoError(t, err)

	_, err = New(Config{}, nil, policy, nil, nil)
	assert.Error(t, err)

	_, err = New(Config{}, rl.DefaultRegistry(), nil, nil, nil)
	assert.Error(t, err)
}
