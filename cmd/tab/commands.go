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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	configPath  string
	connectAddr string
	dataDir     string
	modelName   string
	logLevel    string
	httpAddr    string
	quiet       bool

	simTrials int
	simSeed   int64
	simOdds   []string

	demoFile string

	rootCmd = &cobra.Command{
		Use:   "tab",
		Short: "Adaptive inline completion daemon and client",
		Long: `tab runs the Aleutian inline-completion daemon and talks to it.

The daemon serves JSON-RPC over stdio for editor integrations and can
expose a debug HTTP listener for WebSocket clients, stats, and metrics.
Client commands either connect to a running daemon or spawn one as a
child process for the duration of the command.`,
	}

	// --- Daemon ---
	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the completion daemon (JSON-RPC on stdio)",
		RunE:  runServe, // Defined in cmd_serve.go
	}

	// --- Client commands ---
	pingCmd = &cobra.Command{
		Use:   "ping",
		Short: "Check that the daemon answers",
		RunE:  runPing, // Defined in cmd_client.go
	}
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Show daemon cache and request counters",
		RunE:  runStats, // Defined in cmd_client.go
	}
	rlStatsCmd = &cobra.Command{
		Use:   "rlstats",
		Short: "Show bandit arm statistics per context bucket",
		RunE:  runRLStats, // Defined in cmd_client.go
	}
	clearCacheCmd = &cobra.Command{
		Use:   "clear-cache",
		Short: "Empty the daemon's suggestion memo cache",
		RunE:  runClearCache, // Defined in cmd_client.go
	}
	setModelCmd = &cobra.Command{
		Use:   "set-model [model]",
		Short: "Switch the completion model at runtime",
		Args:  cobra.ExactArgs(1),
		RunE:  runSetModel, // Defined in cmd_client.go
	}

	// --- Offline tools ---
	simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Run the strategy bandit against synthetic feedback",
		Long: `simulate runs the UCB policy offline: each trial selects a strategy,
draws accept/reject from per-strategy odds, and feeds the reward back.
The convergence table shows whether the best arm wins the traffic.`,
		RunE: runSimulate, // Defined in cmd_simulate.go
	}
	demoCmd = &cobra.Command{
		Use:   "demo",
		Short: "Interactive completion demo against the offline backend",
		Long: `demo opens a small editor buffer wired to an in-process daemon running
the deterministic mock backend. Type to trigger fetches, Tab accepts the
ghost text, Esc dismisses it, Ctrl+C quits.`,
		RunE: runDemo, // Defined in cmd_demo.go
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the daemon version",
		Run:   runVersion, // Defined in cmd_serve.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file path (default ~/.aleutian/tab/config.yaml)")

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&httpAddr, "http", "",
		"Also listen on this address for WebSocket/stats/metrics (e.g. :8765)")
	serveCmd.Flags().StringVar(&dataDir, "data-dir", "", "Override the policy/feedback data directory")
	serveCmd.Flags().StringVar(&modelName, "model", "", "Override the completion model")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "", "Override the log level (debug, info, warn, error)")
	serveCmd.Flags().BoolVar(&quiet, "quiet", false, "Drop stderr logging")

	for _, cmd := range []*cobra.Command{pingCmd, statsCmd, rlStatsCmd, clearCacheCmd, setModelCmd} {
		rootCmd.AddCommand(cmd)
		cmd.Flags().StringVar(&connectAddr, "connect", "",
			"Connect to a running daemon's WebSocket (host:port) instead of spawning one")
	}

	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().IntVar(&simTrials, "trials", 2000, "Number of simulated completion cycles")
	simulateCmd.Flags().Int64Var(&simSeed, "seed", 1, "Random seed for reproducible runs")
	simulateCmd.Flags().StringArrayVar(&simOdds, "odds", nil,
		"Per-strategy acceptance odds as name=probability (repeatable)")

	rootCmd.AddCommand(demoCmd)
	demoCmd.Flags().StringVar(&demoFile, "file", "demo.py", "File name presented to the engine")
	demoCmd.Flags().StringVar(&modelName, "model", "", "Backend model for the demo (default mock)")

	rootCmd.AddCommand(versionCmd)
}
