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
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianTab/pkg/logging"
	"github.com/AleutianAI/AleutianTab/services/tab"
)

// loadServeConfig layers the serve flags over the file config.
func loadServeConfig() (tab.Config, error) {
	cfg, err := tab.LoadConfig(configPath)
	if err != nil {
		return tab.Config{}, err
	}

	if dataDir != "" {
		// Keep a derived strategies path tracking the data dir; an
		// explicit strategies_file stays where it points.
		derived := filepath.Join(cfg.DataDir, "strategies.yaml")
		cfg.DataDir = logging.ExpandPath(dataDir)
		if cfg.StrategiesFile == derived {
			cfg.StrategiesFile = filepath.Join(cfg.DataDir, "strategies.yaml")
		}
	}
	if modelName != "" {
		cfg.Model = modelName
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if httpAddr != "" {
		cfg.HTTPAddr = httpAddr
	}
	if quiet {
		cfg.Quiet = true
	}

	if err := cfg.Validate(); err != nil {
		return tab.Config{}, err
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServeConfig()
	if err != nil {
		return err
	}

	logger := logging.New(cfg.LoggerConfig("tab"))
	defer logger.Close()

	// Editors talk to the daemon over pipes. On an interactive
	// terminal with an HTTP listener configured, stdio is left off so
	// the terminal stays usable.
	stdin := os.Stdin.Fd()
	interactive := isatty.IsTerminal(stdin) || isatty.IsCygwinTerminal(stdin)
	stdio := !interactive || cfg.HTTPAddr == ""

	if !cfg.Quiet {
		printBanner(cfg, stdio)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := tab.NewDaemon(cfg, logger)
	if err != nil {
		return err
	}
	return d.Run(ctx, stdio)
}

func runVersion(cmd *cobra.Command, args []string) {
	fmt.Println("aleutian-tab", tab.Version)
}

// printBanner writes the startup banner to stderr; stdout carries the
// stdio JSON-RPC stream.
func printBanner(cfg tab.Config, stdio bool) {
	transport := "stdio"
	if stdio && cfg.HTTPAddr != "" {
		transport = "stdio + http " + cfg.HTTPAddr
	} else if !stdio {
		transport = "http " + cfg.HTTPAddr
	}

	banner := `
╔═══════════════════════════════════════════════════════════╗
║                    ALEUTIAN TAB DAEMON                    ║
╠═══════════════════════════════════════════════════════════╣
║                                                           ║
║  Adaptive inline completion with per-context learning.    ║
║                                                           ║
║  Version:   %-45s ║
║  Model:     %-45s ║
║  Transport: %-45s ║
║  Data dir:  %-45s ║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Fprintf(os.Stderr, banner, tab.Version, cfg.Model, transport, cfg.DataDir)
}
