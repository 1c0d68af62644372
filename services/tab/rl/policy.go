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
	"math"
	"sync"
)

// PolicyConfig controls the UCB1 policy.
//
// All fields have sensible defaults via DefaultPolicyConfig().
type PolicyConfig struct {
	// Strategies is the arm set in tie-breaking order.
	Strategies []string

	// ExplorationConstant is the c in mean + c*sqrt(ln(total)/count).
	ExplorationConstant float64

	// MinObservations is how many pulls an arm needs before the disable
	// rule may judge it.
	MinObservations int64

	// ProtectedStrategy is never disabled, keeping a safe arm in every
	// bucket. Empty means no protection.
	ProtectedStrategy string

	// ReenableMargin, when positive, re-enables a disabled arm whose upper
	// bound climbs back above the best lower bound by at least this much.
	// Zero keeps disabling monotone.
	ReenableMargin float64
}

// DefaultPolicyConfig returns the production defaults: the five builtin
// arms, UCB1's classic sqrt(2) exploration constant, and a monotone
// disable rule that never touches "standard".
func DefaultPolicyConfig() PolicyConfig {
	strategies := make([]string, len(StrategyNames))
	copy(strategies, StrategyNames)
	return PolicyConfig{
		Strategies:          strategies,
		ExplorationConstant: 1.41,
		MinObservations:     30,
		ProtectedStrategy:   DefaultStrategy,
		ReenableMargin:      0,
	}
}

// Validate checks the config for usable values.
func (c *PolicyConfig) Validate() error {
	if len(c.Strategies) == 0 {
		return fmt.Errorf("%w: no strategies", ErrInvalidPolicyConfig)
	}
	seen := make(map[string]bool, len(c.Strategies))
	for _, name := range c.Strategies {
		if name == "" {
			return fmt.Errorf("%w: empty strategy name", ErrInvalidPolicyConfig)
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate strategy %q", ErrInvalidPolicyConfig, name)
		}
		seen[name] = true
	}
	if c.ExplorationConstant <= 0 {
		return fmt.Errorf("%w: exploration constant must be positive", ErrInvalidPolicyConfig)
	}
	if c.MinObservations < 1 {
		return fmt.Errorf("%w: min observations must be at least 1", ErrInvalidPolicyConfig)
	}
	if c.ProtectedStrategy != "" && !seen[c.ProtectedStrategy] {
		return fmt.Errorf("%w: protected strategy %q not in arm set", ErrInvalidPolicyConfig, c.ProtectedStrategy)
	}
	if c.ReenableMargin < 0 {
		return fmt.Errorf("%w: reenable margin must be non-negative", ErrInvalidPolicyConfig)
	}
	return nil
}

// armStat is one arm's running state within a bucket.
type armStat struct {
	mean     float64
	count    int64
	disabled bool
}

// Policy is a per-bucket UCB1 bandit over context-building strategies.
//
// # Description
//
// Select picks an arm for a bucket; Update folds an observed reward back
// into that arm's running mean. Arms that another arm confidently
// dominates get disabled per bucket once both have MinObservations pulls:
// an arm is dominated when its upper confidence bound falls below the
// best competing lower confidence bound.
//
// # Thread Safety
//
// Safe for concurrent use. One policy is shared across all editor
// sessions in the daemon.
type Policy struct {
	mu   sync.RWMutex
	cfg  PolicyConfig
	arms map[string]map[string]*armStat

	// total counts every reward observation across all buckets.
	total int64
}

// NewPolicy builds a policy from a validated config.
func NewPolicy(cfg PolicyConfig) (*Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Policy{
		cfg:  cfg,
		arms: make(map[string]map[string]*armStat),
	}, nil
}

// Select picks a strategy for the bucket.
//
// Untried arms go first, so every strategy gets at least one trial per
// bucket before scores matter. After that the highest UCB score wins,
// with ties broken toward the least-pulled arm. If every arm has been
// disabled, Select falls back to the best historical mean.
func (p *Policy) Select(bucket string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	arms := p.ensureBucket(bucket)

	// Cold start: trial every enabled arm once
	for _, name := range p.cfg.Strategies {
		a := arms[name]
		if !a.disabled && a.count == 0 {
			return name
		}
	}

	var bucketTotal int64
	enabled := 0
	for _, name := range p.cfg.Strategies {
		a := arms[name]
		bucketTotal += a.count
		if !a.disabled {
			enabled++
		}
	}

	if enabled == 0 {
		return p.bestMeanLocked(arms)
	}

	logTotal := math.Log(float64(bucketTotal))
	var best string
	bestScore := math.Inf(-1)
	var bestCount int64
	for _, name := range p.cfg.Strategies {
		a := arms[name]
		if a.disabled {
			continue
		}
		score := a.mean + p.cfg.ExplorationConstant*math.Sqrt(logTotal/float64(a.count))
		betterTie := score == bestScore && a.count < bestCount
		if best == "" || score > bestScore || betterTie {
			best = name
			bestScore = score
			bestCount = a.count
		}
	}
	return best
}

// bestMeanLocked returns the arm with the highest observed mean,
// disabled or not. Caller holds the lock.
func (p *Policy) bestMeanLocked(arms map[string]*armStat) string {
	best := p.cfg.Strategies[0]
	bestMean := math.Inf(-1)
	for _, name := range p.cfg.Strategies {
		if a := arms[name]; a.mean > bestMean {
			best = name
			bestMean = a.mean
		}
	}
	return best
}

// Update folds a reward observation into the arm's running mean and
// re-evaluates the bucket's disable rule.
func (p *Policy) Update(bucket, strategy string, reward float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	arms := p.ensureBucket(bucket)
	a, ok := arms[strategy]
	if !ok {
		a = &armStat{}
		arms[strategy] = a
	}

	a.mean += (reward - a.mean) / float64(a.count+1)
	a.count++
	p.total++

	p.applyDisableRuleLocked(arms)
}

// applyDisableRuleLocked disables confidently dominated arms in one
// bucket, and with ReenableMargin set, re-enables arms whose bound
// recovered. Caller holds the lock.
func (p *Policy) applyDisableRuleLocked(arms map[string]*armStat) {
	var bucketTotal int64
	for _, name := range p.cfg.Strategies {
		bucketTotal += arms[name].count
	}
	if bucketTotal == 0 {
		return
	}
	logTotal := math.Log(float64(bucketTotal))

	bound := func(a *armStat) float64 {
		return p.cfg.ExplorationConstant * math.Sqrt(logTotal/float64(a.count))
	}

	for _, name := range p.cfg.Strategies {
		a := arms[name]
		if name == p.cfg.ProtectedStrategy || a.count < p.cfg.MinObservations {
			continue
		}

		// Best lower bound among the other mature arms
		bestLCB := math.Inf(-1)
		for _, other := range p.cfg.Strategies {
			if other == name {
				continue
			}
			o := arms[other]
			if o.disabled || o.count < p.cfg.MinObservations {
				continue
			}
			if lcb := o.mean - bound(o); lcb > bestLCB {
				bestLCB = lcb
			}
		}
		if math.IsInf(bestLCB, -1) {
			continue
		}

		ucb := a.mean + bound(a)
		if a.disabled {
			if p.cfg.ReenableMargin > 0 && ucb >= bestLCB+p.cfg.ReenableMargin {
				a.disabled = false
			}
			continue
		}
		if ucb < bestLCB {
			a.disabled = true
		}
	}
}

// ensureBucket returns the bucket's arm map, creating zeroed arms for
// every configured strategy on first sight. Caller holds the lock.
func (p *Policy) ensureBucket(bucket string) map[string]*armStat {
	arms, ok := p.arms[bucket]
	if !ok {
		arms = make(map[string]*armStat, len(p.cfg.Strategies))
		for _, name := range p.cfg.Strategies {
			arms[name] = &armStat{}
		}
		p.arms[bucket] = arms
	}
	return arms
}

// =============================================================================
// State Export / Import
// =============================================================================

// ArmState is one arm's serializable state.
type ArmState struct {
	Mean         float64 `json:"mean"`
	Observations int64   `json:"observations"`
	Disabled     bool    `json:"disabled,omitempty"`
}

// PolicyState is a deep, serializable copy of the policy.
type PolicyState struct {
	TotalInteractions int64
	Buckets           map[string]map[string]ArmState
}

// State returns a deep copy of the policy for stats and persistence.
func (p *Policy) State() PolicyState {
	p.mu.RLock()
	defer p.mu.RUnlock()

	st := PolicyState{
		TotalInteractions: p.total,
		Buckets:           make(map[string]map[string]ArmState, len(p.arms)),
	}
	for bucket, arms := range p.arms {
		bucketState := make(map[string]ArmState, len(arms))
		for name, a := range arms {
			bucketState[name] = ArmState{
				Mean:         a.mean,
				Observations: a.count,
				Disabled:     a.disabled,
			}
		}
		st.Buckets[bucket] = bucketState
	}
	return st
}

// Import replaces the policy's state wholesale, e.g. from disk on
// startup or after an external edit to the policy file.
func (p *Policy) Import(st PolicyState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.total = st.TotalInteractions
	p.arms = make(map[string]map[string]*armStat, len(st.Buckets))
	for bucket, bucketState := range st.Buckets {
		arms := make(map[string]*armStat, len(p.cfg.Strategies))
		for _, name := range p.cfg.Strategies {
			arms[name] = &armStat{}
		}
		for name, a := range bucketState {
			arms[name] = &armStat{
				mean:     a.Mean,
				count:    a.Observations,
				disabled: a.Disabled,
			}
		}
		p.arms[bucket] = arms
	}
}

// TotalInteractions returns the number of reward observations seen.
func (p *Policy) TotalInteractions() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.total
}

// DisabledCount returns how many arms are disabled across all buckets.
func (p *Policy) DisabledCount() int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var n int64
	for _, arms := range p.arms {
		for _, a := range arms {
			if a.disabled {
				n++
			}
		}
	}
	return n
}

// Strategies returns the configured arm order.
func (p *Policy) Strategies() []string {
	out := make([]string, len(p.cfg.Strategies))
	copy(out, p.cfg.Strategies)
	return out
}
