// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianTab/pkg/ux"
	"github.com/AleutianAI/AleutianTab/services/tab/rl"
)

// simBucket is the single context bucket the offline run plays in.
// Convergence is easiest to read without traffic split across buckets.
const simBucket = "python:function:medium:mid"

// defaultOdds approximates acceptance rates we see per prompt strategy:
// scope_aware wins on acceptance, minimal wins on latency.
func defaultOdds() map[string]float64 {
	return map[string]float64{
		"minimal":     0.22,
		"compact":     0.34,
		"standard":    0.46,
		"rich":        0.41,
		"scope_aware": 0.55,
	}
}

// strategyLatencies holds per-strategy base latency in milliseconds.
// Bigger prompts cost more tokens, so richer strategies run slower.
var strategyLatencies = map[string]float64{
	"minimal":     180,
	"compact":     240,
	"standard":    320,
	"rich":        520,
	"scope_aware": 430,
}

// parseOddsFlags overlays --odds entries onto the defaults. Unknown
// names add new arms, so hypothetical strategies can join the run.
func parseOddsFlags(entries []string, odds map[string]float64) error {
	for _, entry := range entries {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 || parts[0] == "" {
			return fmt.Errorf("malformed --odds entry %q: want name=probability", entry)
		}
		p, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return fmt.Errorf("malformed --odds entry %q: %v", entry, err)
		}
		if p < 0 || p > 1 {
			return fmt.Errorf("--odds %s: probability %v outside [0, 1]", parts[0], p)
		}
		odds[parts[0]] = p
	}
	return nil
}

// drawLatency returns a synthetic round-trip latency for the strategy.
func drawLatency(strategy string, rng *rand.Rand) float64 {
	base, ok := strategyLatencies[strategy]
	if !ok {
		base = 350
	}
	return base + rng.Float64()*150
}

// simResult is what one offline run produced.
type simResult struct {
	selections     map[string]int
	lateSelections map[string]int
	lateTotal      int
}

// winner returns the strategy with the most late-window selections.
func (r simResult) winner() (string, int) {
	best, bestN := "", -1
	names := make([]string, 0, len(r.lateSelections))
	for name := range r.lateSelections {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if r.lateSelections[name] > bestN {
			best, bestN = name, r.lateSelections[name]
		}
	}
	return best, bestN
}

// runTrials plays the bandit against the odds table. Late selections
// cover the final quarter of the run, where a converged policy should
// have settled on the best arm.
func runTrials(policy *rl.Policy, odds map[string]float64, trials int, rng *rand.Rand) simResult {
	res := simResult{
		selections:     make(map[string]int, len(odds)),
		lateSelections: make(map[string]int, len(odds)),
	}
	lateStart := trials * 3 / 4
	res.lateTotal = trials - lateStart

	for i := 0; i < trials; i++ {
		strategy := policy.Select(simBucket)
		res.selections[strategy]++
		if i >= lateStart {
			res.lateSelections[strategy]++
		}
		accepted := rng.Float64() < odds[strategy]
		policy.Update(simBucket, strategy, rl.Reward(accepted, drawLatency(strategy, rng)))
	}
	return res
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simTrials <= 0 {
		return fmt.Errorf("--trials must be positive, got %d", simTrials)
	}
	odds := defaultOdds()
	if err := parseOddsFlags(simOdds, odds); err != nil {
		return err
	}

	names := make([]string, 0, len(odds))
	for name := range odds {
		names = append(names, name)
	}
	sort.Strings(names)

	cfg := rl.DefaultPolicyConfig()
	cfg.Strategies = names
	policy, err := rl.NewPolicy(cfg)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(simSeed))
	res := runTrials(policy, odds, simTrials, rng)

	arms := policy.State().Buckets[simBucket]
	ux.Title(fmt.Sprintf("Bandit convergence after %d trials (seed %d)", simTrials, simSeed))
	table := ux.NewTable("STRATEGY", "ODDS", "PULLS", "SHARE", "LATE SHARE", "MEAN", "STATE")
	for _, name := range names {
		arm := arms[name]
		state := "active"
		if arm.Disabled {
			state = "disabled"
		}
		table.Row(
			name,
			fmt.Sprintf("%.2f", odds[name]),
			strconv.Itoa(res.selections[name]),
			fmt.Sprintf("%4.1f%%", 100*float64(res.selections[name])/float64(simTrials)),
			fmt.Sprintf("%4.1f%%", 100*float64(res.lateSelections[name])/float64(res.lateTotal)),
			fmt.Sprintf("%.3f", arm.Mean),
			state,
		)
	}
	table.Print()
	winner, winnerLate := res.winner()
	ux.Success(fmt.Sprintf("%s took %.0f%% of the final %d trials",
		winner, 100*float64(winnerLate)/float64(res.lateTotal), res.lateTotal))
	return nil
}
