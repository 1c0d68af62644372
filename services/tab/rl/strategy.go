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
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// StrategyNames lists the built-in strategies in canonical order. The
// policy uses this order for deterministic tie-breaking.
var StrategyNames = []string{"minimal", "compact", "standard", "rich", "scope_aware"}

// DefaultStrategy is the safe arm used for fallbacks and cold paths.
const DefaultStrategy = "standard"

// Strategy is a discrete context-building recipe for completion prompts.
//
// # Description
//
// Each strategy controls how much of the document the prompt builder
// feeds the model: lines around the cursor, import statements, sibling
// function signatures, and the response token budget. DynamicScope
// replaces the fixed LinesBefore window with the enclosing function or
// class body, capped at MaxScopeLines.
type Strategy struct {
	Name             string `yaml:"name" json:"name"`
	LinesBefore      int    `yaml:"lines_before" json:"lines_before"`
	LinesAfter       int    `yaml:"lines_after" json:"lines_after"`
	IncludeImports   bool   `yaml:"include_imports" json:"include_imports"`
	MaxImports       int    `yaml:"max_imports" json:"max_imports"`
	IncludeFunctions bool   `yaml:"include_functions" json:"include_functions"`
	MaxFunctions     int    `yaml:"max_functions" json:"max_functions"`
	MaxTokens        int    `yaml:"max_tokens" json:"max_tokens"`
	DynamicScope     bool   `yaml:"dynamic_scope" json:"dynamic_scope"`
	MaxScopeLines    int    `yaml:"max_scope_lines" json:"max_scope_lines"`
}

// Validate checks field ranges on a strategy definition.
func (s Strategy) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidStrategy)
	}
	if s.LinesBefore < 0 || s.LinesAfter < 0 {
		return fmt.Errorf("%w: %s: line windows must be non-negative", ErrInvalidStrategy, s.Name)
	}
	if s.MaxImports < 0 || s.MaxFunctions < 0 || s.MaxScopeLines < 0 {
		return fmt.Errorf("%w: %s: caps must be non-negative", ErrInvalidStrategy, s.Name)
	}
	if s.MaxTokens <= 0 {
		return fmt.Errorf("%w: %s: max_tokens must be positive", ErrInvalidStrategy, s.Name)
	}
	return nil
}

// BuiltinStrategies returns the five built-in strategies keyed by name.
//
// The returned map is a fresh copy; callers may mutate it.
func BuiltinStrategies() map[string]Strategy {
	return map[string]Strategy{
		"minimal": {
			Name:        "minimal",
			LinesBefore: 5,
			MaxTokens:   60,
		},
		"compact": {
			Name:        "compact",
			LinesBefore: 10,
			LinesAfter:  2,
			MaxTokens:   80,
		},
		"standard": {
			Name:             "standard",
			LinesBefore:      15,
			LinesAfter:       2,
			IncludeImports:   true,
			MaxImports:       10,
			IncludeFunctions: true,
			MaxFunctions:     5,
			MaxTokens:        100,
		},
		"rich": {
			Name:             "rich",
			LinesBefore:      20,
			LinesAfter:       5,
			IncludeImports:   true,
			MaxImports:       15,
			IncludeFunctions: true,
			MaxFunctions:     8,
			MaxTokens:        120,
		},
		"scope_aware": {
			Name:             "scope_aware",
			LinesAfter:       3,
			IncludeImports:   true,
			MaxImports:       10,
			IncludeFunctions: true,
			MaxFunctions:     5,
			MaxTokens:        100,
			DynamicScope:     true,
			MaxScopeLines:    30,
		},
	}
}

// LoadStrategies reads strategy overrides from a YAML file and merges them
// over the builtins.
//
// # Description
//
// The file holds a top-level "strategies" list of Strategy entries.
// Entries with a builtin name replace that builtin; entries with new names
// extend the arm set. A missing file is not an error and yields the
// builtins unchanged.
//
// # Example
//
//	strategies:
//	  - name: rich
//	    lines_before: 30
//	    lines_after: 8
//	    include_imports: true
//	    max_imports: 20
//	    include_functions: true
//	    max_functions: 10
//	    max_tokens: 150
func LoadStrategies(path string) (map[string]Strategy, error) {
	strategies := BuiltinStrategies()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return strategies, nil
		}
		return nil, fmt.Errorf("read strategies file: %w", err)
	}

	var file struct {
		Strategies []Strategy `yaml:"strategies"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse strategies file %s: %w", path, err)
	}

	for _, s := range file.Strategies {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		strategies[s.Name] = s
	}
	return strategies, nil
}

// Registry holds the effective strategy set with a stable arm order.
//
// # Thread Safety
//
// Immutable after construction. Safe for concurrent use.
type Registry struct {
	strategies map[string]Strategy
	names      []string
}

// NewRegistry builds a registry from a strategy map.
//
// Builtin names keep their canonical order; any extra names follow in
// sorted order so the arm ordering is deterministic across restarts.
func NewRegistry(strategies map[string]Strategy) *Registry {
	names := make([]string, 0, len(strategies))
	seen := make(map[string]bool, len(strategies))
	for _, name := range StrategyNames {
		if _, ok := strategies[name]; ok {
			names = append(names, name)
			seen[name] = true
		}
	}
	var extra []string
	for name := range strategies {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	names = append(names, extra...)

	copied := make(map[string]Strategy, len(strategies))
	for name, s := range strategies {
		copied[name] = s
	}
	return &Registry{strategies: copied, names: names}
}

// DefaultRegistry returns a registry of just the builtins.
func DefaultRegistry() *Registry {
	return NewRegistry(BuiltinStrategies())
}

// Get returns a strategy by name.
func (r *Registry) Get(name string) (Strategy, error) {
	s, ok := r.strategies[name]
	if !ok {
		return Strategy{}, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	return s, nil
}

// Names returns the arm order. Callers must not mutate the result.
func (r *Registry) Names() []string {
	return r.names
}
