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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------
// Builtin Strategy Tests
// -----------------------------------------------------------------------------

func TestBuiltinStrategies(t *testing.T) {
	strategies := BuiltinStrategies()

	require.Len(t, strategies, len(StrategyNames))
	for _, name := range StrategyNames {
		s, ok := strategies[name]
		require.True(t, ok, "missing builtin %q", name)
		assert.Equal(t, name, s.Name)
		assert.NoError(t, s.Validate())
	}
}

func TestBuiltinStrategies_StandardShape(t *testing.T) {
	s := BuiltinStrategies()["standard"]

	assert.Equal(t, 15, s.LinesBefore)
	assert.Equal(t, 2, s.LinesAfter)
	assert.True(t, s.IncludeImports)
	assert.Equal(t, 10, s.MaxImports)
	assert.True(t, s.IncludeFunctions)
	assert.Equal(t, 5, s.MaxFunctions)
	assert.Equal(t, 100, s.MaxTokens)
	assert.False(t, s.DynamicScope)
}

func TestBuiltinStrategies_ScopeAwareShape(t *testing.T) {
	s := BuiltinStrategies()["scope_aware"]

	assert.Zero(t, s.LinesBefore) // Ignored when DynamicScope is set
	assert.True(t, s.DynamicScope)
	assert.Equal(t, 30, s.MaxScopeLines)
}

func TestBuiltinStrategies_ReturnsCopy(t *testing.T) {
	a := BuiltinStrategies()
	a["standard"] = Strategy{Name: "mutated"}

	b := BuiltinStrategies()
	assert.Equal(t, "standard", b["standard"].Name)
}

// -----------------------------------------------------------------------------
// Strategy Validation Tests
// -----------------------------------------------------------------------------

func TestStrategy_Validate(t *testing.T) {
	valid := Strategy{Name: "custom", LinesBefore: 10, MaxTokens: 80}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid.Validate())
	})

	t.Run("missing name", func(t *testing.T) {
		s := valid
		s.Name = ""
		assert.ErrorIs(t, s.Validate(), ErrInvalidStrategy)
	})

	t.Run("negative lines_before", func(t *testing.T) {
		s := valid
		s.LinesBefore = -1
		assert.ErrorIs(t, s.Validate(), ErrInvalidStrategy)
	})

	t.Run("negative max_imports", func(t *testing.T) {
		s := valid
		s.MaxImports = -1
		assert.ErrorIs(t, s.Validate(), ErrInvalidStrategy)
	})

	t.Run("zero max_tokens", func(t *testing.T) {
		s := valid
		s.MaxTokens = 0
		assert.ErrorIs(t, s.Validate(), ErrInvalidStrategy)
	})
}

// -----------------------------------------------------------------------------
// LoadStrategies Tests
// -----------------------------------------------------------------------------

func TestLoadStrategies(t *testing.T) {
	t.Run("missing file yields builtins", func(t *testing.T) {
		strategies, err := LoadStrategies(filepath.Join(t.TempDir(), "nope.yaml"))
		require.NoError(t, err)
		assert.Len(t, strategies, len(StrategyNames))
	})

	t.Run("override builtin", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "strategies.yaml")
		content := `
strategies:
  - name: rich
    lines_before: 30
    lines_after: 8
    include_imports: true
    max_imports: 20
    include_functions: true
    max_functions: 10
    max_tokens: 150
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		strategies, err := LoadStrategies(path)
		require.NoError(t, err)
		assert.Equal(t, 30, strategies["rich"].LinesBefore)
		assert.Equal(t, 150, strategies["rich"].MaxTokens)
		// Untouched builtins survive
		assert.Equal(t, 15, strategies["standard"].LinesBefore)
	})

	t.Run("new strategy extends the set", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "strategies.yaml")
		content := `
strategies:
  - name: imports_only
    lines_before: 3
    include_imports: true
    max_imports: 25
    max_tokens: 70
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		strategies, err := LoadStrategies(path)
		require.NoError(t, err)
		assert.Len(t, strategies, len(StrategyNames)+1)
		assert.Equal(t, 25, strategies["imports_only"].MaxImports)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "strategies.yaml")
		require.NoError(t, os.WriteFile(path, []byte("strategies: [\n"), 0644))

		_, err := LoadStrategies(path)
		assert.Error(t, err)
	})

	t.Run("invalid strategy definition", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "strategies.yaml")
		content := `
strategies:
  - name: broken
    max_tokens: 0
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		_, err := LoadStrategies(path)
		assert.ErrorIs(t, err, ErrInvalidStrategy)
	})
}

// -----------------------------------------------------------------------------
// Registry Tests
// -----------------------------------------------------------------------------

func TestRegistry(t *testing.T) {
	t.Run("builtin order preserved", func(t *testing.T) {
		r := DefaultRegistry()
		assert.Equal(t, StrategyNames, r.Names())
	})

	t.Run("extras follow in sorted order", func(t *testing.T) {
		strategies := BuiltinStrategies()
		strategies["zeta"] = Strategy{Name: "zeta", MaxTokens: 50}
		strategies["alpha"] = Strategy{Name: "alpha", MaxTokens: 50}

		r := NewRegistry(strategies)
		names := r.Names()
		require.Len(t, names, len(StrategyNames)+2)
		assert.Equal(t, StrategyNames, names[:len(StrategyNames)])
		assert.Equal(t, []string{"alpha", "zeta"}, names[len(StrategyNames):])
	})

	t.Run("get known", func(t *testing.T) {
		r := DefaultRegistry()
		s, err := r.Get("compact")
		require.NoError(t, err)
		assert.Equal(t, 10, s.LinesBefore)
	})

	t.Run("get unknown", func(t *testing.T) {
		r := DefaultRegistry()
		_, err := r.Get("imaginary")
		assert.ErrorIs(t, err, ErrUnknownStrategy)
	})
}
